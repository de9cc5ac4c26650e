package types

// Audit event types. Security events cover denied access and failed
// authentication; administrative events cover registry and retention changes.
const (
	AuditAccessGranted    = "access:granted"
	AuditAccessDenied     = "access:denied"
	AuditAuthFailed       = "auth:failed"
	AuditLockout          = "auth:lockout"
	AuditRecipientChange  = "admin:recipient"
	AuditRetentionChange  = "admin:retention"
	AuditSubmissionPurge  = "submission:purge"
	AuditSubmissionShred  = "submission:shred"
	AuditExpirationChange = "submission:postpone"
)

// AuditEvent is an append-only administrative or security record. It never
// contains submission plaintext or submitter identifiers.
type AuditEvent struct {
	BaseDocument `json:",inline"`
	Type         string `json:"type" validate:"required"`
	ActorID      string `json:"actorId,omitempty"` // recipient id, empty for system actions
	SubmissionID string `json:"submissionId,omitempty"`
	Detail       string `json:"detail,omitempty"`
	Created      int64  `json:"created"`
}
