package types

// Submission lifecycle statuses. A submission is stored already routed, the
// single document save is the commit point.
const (
	SubmissionStatusRouted   = "routed"
	SubmissionStatusArchived = "archived"
	SubmissionStatusPurged   = "purged"
)

// Submission urgency, set by the submitter and used for notification priority
const (
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
)

// WrappedKey is the per (submission, recipient) record: the symmetric content
// key encapsulated to the recipient's public key. Exactly one exists per
// eligible recipient per submission. Deleting all wrapped keys of a submission
// renders its ciphertext permanently unreadable.
type WrappedKey struct {
	SubmissionID string `json:"submissionId" validate:"required"`
	RecipientID  string `json:"recipientId" validate:"required"`
	WrappedKey   string `json:"wrappedKey" validate:"required"` // base64 CBOR envelope.KeyCapsule

	// per-recipient tip state
	AccessCount          int64  `json:"accessCount"`
	LastAccess           int64  `json:"lastAccess,omitempty"`
	Label                string `json:"label,omitempty"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
}

// Submission is the durable record of a sealed submission. The ciphertext and
// all of its wrapped keys live in a single document so that a put or a purge
// is a single all-or-nothing CouchDB operation.
type Submission struct {
	BaseDocument `json:",inline"`
	Ciphertext   string        `json:"ciphertext" validate:"required"`  // base64 CBOR envelope.SealedBox
	ContentHash  string        `json:"contentHash" validate:"required"` // sha256 hex of the plaintext
	Category     string        `json:"category"`
	Urgency      string        `json:"urgency,omitempty"`
	Status       string        `json:"status" validate:"required"`
	WrappedKeys  []*WrappedKey `json:"wrappedKeys" validate:"required"`
	ReceiptHash  string        `json:"receiptHash,omitempty"` // scrypt of the submitter receipt code
	Created      int64         `json:"created"`
	Expires      int64         `json:"expires"`

	// attachment object keys in external storage, ciphertext only
	Attachments []*Attachment `json:"attachments,omitempty"`
}

// Attachment references an encrypted blob in object storage. The blob is
// encrypted under the same content key as the submission body.
type Attachment struct {
	ObjectKey   string `json:"objectKey"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// WrappedKeyFor returns the wrapped key record for a recipient, or nil
func (s *Submission) WrappedKeyFor(recipientID string) *WrappedKey {
	for _, wk := range s.WrappedKeys {
		if wk.RecipientID == recipientID {
			return wk
		}
	}
	return nil
}

// Comment is a recipient's note on a submission, visible to every recipient
// routed to it. Stored in its own database keyed by submission id.
type Comment struct {
	BaseDocument `json:",inline"`
	SubmissionID string `json:"submissionId" validate:"required"`
	AuthorID     string `json:"authorId"`
	Content      string `json:"content" validate:"required"`
	Created      int64  `json:"created"`
}
