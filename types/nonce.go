package types

// Nonce is a single use access challenge bound to the recipient that asked
// for it. Expired nonces are swept by a periodic job.
type Nonce struct {
	BaseDocument `json:",inline"`
	Nonce        string `json:"nonce"`
	RecipientID  string `json:"recipientId"`
	Created      int64  `json:"created"`
}
