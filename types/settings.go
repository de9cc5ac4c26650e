package types

// RetentionPolicy is the stored server wide retention setting. ExpiryDays is
// the default time to live of a new submission, MaxExpiryDays the hard upper
// bound a postpone can reach.
type RetentionPolicy struct {
	BaseDocument  `json:",inline"`
	ExpiryDays    int   `json:"expiryDays"`
	MaxExpiryDays int   `json:"maxExpiryDays"`
	Modified      int64 `json:"modified,omitempty"`
}
