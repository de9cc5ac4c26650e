package types

// ServerKeys is the on-disk JSON layout of the server's Ed25519 signing key,
// generated with the keys command.
type ServerKeys struct {
	Type       string `json:"type"`
	PublicKey  string `json:"publicKey,omitempty"`
	PrivateKey string `json:"privateKey"`
	Created    int64  `json:"created"`
}
