package types

// anonymous intake
type InputSubmission struct {
	Category string `json:"category" validate:"required,max=128"`
	// Payload is the submitter's material, base64 encoded. It is sealed before
	// it touches storage and the plaintext is discarded.
	Payload     string                  `json:"payload" validate:"required"`
	Attachments []*InputSubmissionBlob  `json:"attachments,omitempty" validate:"dive"`
	Metadata    *InputSubmissionContext `json:"metadata,omitempty"`
}

type InputSubmissionBlob struct {
	Name        string `json:"name" validate:"required,max=512"`
	ContentType string `json:"contentType"`
	Content     string `json:"content" validate:"required"` // base64
}

// InputSubmissionContext carries routing metadata only. The transport layer
// strips network identity before the request reaches this server.
type InputSubmissionContext struct {
	Urgency string `json:"urgency,omitempty" validate:"omitempty,oneof=normal high"`
}

// submitter re-authentication with the receipt code shown at intake
type InputReceiptCheck struct {
	ID      string `json:"id" validate:"required"`
	Receipt string `json:"receipt" validate:"required,len=16,numeric"`
}

// recipient login: a detached JWS over a server nonce
type InputAccessChallenge struct {
	RecipientID string `json:"recipientId" validate:"required"`
}

type InputAccessProof struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Nonce       string `json:"nonce" validate:"required"`
	// SignedNonce is a compact JWS of the nonce, signed with the recipient's
	// registered Ed25519 key.
	SignedNonce string `json:"signedNonce" validate:"required"`
}

// tip operations (postpone, label, notifications)
type InputTipOp struct {
	Operation string `json:"operation" validate:"required,oneof=postpone label notifications"`
	Label     string `json:"label,omitempty" validate:"max=256"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

type InputComment struct {
	Content string `json:"content" validate:"required,max=4096"`
}

// recipient side of the submission conversation
type InputMessage struct {
	Content string `json:"content" validate:"required,max=4096"`
}

// submitter side of the submission conversation, gated by the receipt code
type InputSubmitterMessage struct {
	ID      string `json:"id" validate:"required"`
	Receipt string `json:"receipt" validate:"required,len=16,numeric"`
	Content string `json:"content" validate:"required,max=4096"`
}

// admin: recipient registration
type InputRecipient struct {
	Name                string   `json:"name" validate:"required,max=256"`
	Role                string   `json:"role" validate:"required,oneof=handler admin"`
	Tags                []string `json:"tags"`
	EncryptionPublicKey string   `json:"encryptionPublicKey" validate:"required"`
	SigningPublicKeyJWK string   `json:"signingPublicKeyJwk" validate:"required"`
	CanPurge            bool     `json:"canPurge"`
	CanPostpone         bool     `json:"canPostpone"`
}

// admin: retention policy
type InputRetentionPolicy struct {
	ExpiryDays    int `json:"expiryDays" validate:"required,min=1,max=3650"`
	MaxExpiryDays int `json:"maxExpiryDays" validate:"required,min=1,max=3650"`
}
