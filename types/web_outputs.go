package types

// OutputSubmissionAccepted is deliberately sparse: the receipt code is shown
// exactly once and only its hash persists.
type OutputSubmissionAccepted struct {
	ID      string `json:"id"`
	Receipt string `json:"receipt"`
}

type OutputAccessChallenge struct {
	Nonce string `json:"nonce"`
}

type OutputAccessToken struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// OutputTip is the recipient's view of a routed submission
type OutputTip struct {
	ID                   string        `json:"id"`
	Ciphertext           string        `json:"ciphertext"`
	ContentHash          string        `json:"contentHash"`
	Category             string        `json:"category"`
	Urgency              string        `json:"urgency,omitempty"`
	Status               string        `json:"status"`
	WrappedKey           string        `json:"wrappedKey"`
	Label                string        `json:"label,omitempty"`
	NotificationsEnabled bool          `json:"notificationsEnabled"`
	AccessCount          int64         `json:"accessCount"`
	Created              int64         `json:"created"`
	Expires              int64         `json:"expires"`
	Attachments          []*Attachment `json:"attachments,omitempty"`
	Comments             []*Comment    `json:"comments,omitempty"`
	Messages             []*Message    `json:"messages,omitempty"`
}

// OutputTipListItem omits ciphertext and wrapped keys
type OutputTipListItem struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Urgency     string `json:"urgency,omitempty"`
	Status      string `json:"status"`
	Label       string `json:"label,omitempty"`
	AccessCount int64  `json:"accessCount"`
	Created     int64  `json:"created"`
	Expires     int64  `json:"expires"`
}

type OutputRecipient struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Role    string   `json:"role"`
	Tags    []string `json:"tags,omitempty"`
	Active  bool     `json:"active"`
	Created int64    `json:"created"`
	Revoked int64    `json:"revoked,omitempty"`
}

type OutputRetentionPolicy struct {
	ExpiryDays    int `json:"expiryDays"`
	MaxExpiryDays int `json:"maxExpiryDays"`
}

// OutputAuditEvent strips the storage envelope off an audit record
type OutputAuditEvent struct {
	Type         string `json:"type"`
	ActorID      string `json:"actorId,omitempty"`
	SubmissionID string `json:"submissionId,omitempty"`
	Detail       string `json:"detail,omitempty"`
	Created      int64  `json:"created"`
}
