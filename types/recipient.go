package types

// Recipient roles
const (
	RecipientRoleHandler = "handler" // receives routed submissions
	RecipientRoleAdmin   = "admin"   // may also manage the registry and retention policy
)

// Recipient is an internal user entitled to receive submissions. Mutated by
// administrative action only.
type Recipient struct {
	BaseDocument `json:",inline"`
	Name         string   `json:"name" validate:"required"`
	Role         string   `json:"role" validate:"required,oneof=handler admin"`
	Tags         []string `json:"tags"` // routing categories this recipient handles

	// EncryptionPublicKey is the base64 ML-KEM-768 public key submissions are
	// sealed to.
	EncryptionPublicKey string `json:"encryptionPublicKey" validate:"required"`

	// SigningPublicKeyJWK is the recipient's Ed25519 verification key in JWK
	// form, used to authenticate access requests.
	SigningPublicKeyJWK string `json:"signingPublicKeyJwk" validate:"required"`

	Active  bool  `json:"active"`
	Created int64 `json:"created"`
	Revoked int64 `json:"revoked,omitempty"`

	// CanPurge permits irreversible deletion of submissions
	CanPurge bool `json:"canPurge"`
	// CanPostpone permits extending a submission's expiration
	CanPostpone bool `json:"canPostpone"`
}

// HandlesCategory reports whether the recipient is tagged for the category.
// A recipient with no tags handles every category.
func (r *Recipient) HandlesCategory(category string) bool {
	if len(r.Tags) == 0 {
		return true
	}
	for _, t := range r.Tags {
		if t == category {
			return true
		}
	}
	return false
}

// RegistrySnapshot is an explicit versioned view of the recipient registry.
// Routing decisions are computed against a snapshot so the same snapshot and
// metadata always produce the same recipient set.
type RegistrySnapshot struct {
	Version    int64        `json:"version"` // unix millis at snapshot time
	Recipients []*Recipient `json:"recipients"`
}
