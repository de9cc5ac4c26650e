package types

// Message authors
const (
	MessageAuthorRecipient = "recipient"
	MessageAuthorSubmitter = "submitter"
)

// Message is one side of the conversation between a submitter and the
// recipients routed to their submission. The submitter side is authenticated
// only by the receipt code, so a message never carries a submitter identity;
// AuthorID is set for recipient messages and empty otherwise.
type Message struct {
	BaseDocument `json:",inline"`
	SubmissionID string `json:"submissionId" validate:"required"`
	Author       string `json:"author" validate:"required,oneof=recipient submitter"`
	AuthorID     string `json:"authorId,omitempty"`
	Content      string `json:"content" validate:"required"`
	Created      int64  `json:"created"`
}
