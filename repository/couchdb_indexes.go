package repository

import (
	"fmt"

	"github.com/go-resty/resty/v2"
)

// CreateRecipientActiveIndex creates a mango index on the recipients database
// for eligibility queries by active flag and tags.
func CreateRecipientActiveIndex(recipientRepo Repository) error {
	dbName := Recipient
	activeIndex := map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []string{"active", "tags"},
		},
		"name": "recipient-active-index",
		"type": "json",
		"ddoc": "recipient-active-index",
	}
	c := recipientRepo.GetClient().(*resty.Client)
	resp, rErr := c.R().SetBody(activeIndex).Post(fmt.Sprintf("%s/%s", dbName, "_index"))
	if rErr != nil {
		return rErr
	}
	if resp.IsError() {
		return handleError(resp)
	}
	return nil
}

// CreateCommentSubmissionIndex creates a mango index on the comments database
// for lookups by submission id and creation time.
func CreateCommentSubmissionIndex(commentRepo Repository) error {
	dbName := Comment
	submissionIndex := map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"submissionId": "desc"},
				{"created": "desc"},
			},
		},
		"name": "comment-submission-created-index",
		"ddoc": "comment-submission-created-index",
		"type": "json",
	}
	c := commentRepo.GetClient().(*resty.Client)
	resp, rErr := c.R().SetBody(submissionIndex).Post(fmt.Sprintf("%s/%s", dbName, "_index"))
	if rErr != nil {
		return rErr
	}
	if resp.IsError() {
		return handleError(resp)
	}
	return nil
}

// CreateMessageSubmissionIndex creates a mango index on the messages database
// for lookups by submission id and creation time.
func CreateMessageSubmissionIndex(messageRepo Repository) error {
	dbName := Message
	submissionIndex := map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"submissionId": "desc"},
				{"created": "desc"},
			},
		},
		"name": "message-submission-created-index",
		"ddoc": "message-submission-created-index",
		"type": "json",
	}
	c := messageRepo.GetClient().(*resty.Client)
	resp, rErr := c.R().SetBody(submissionIndex).Post(fmt.Sprintf("%s/%s", dbName, "_index"))
	if rErr != nil {
		return rErr
	}
	if resp.IsError() {
		return handleError(resp)
	}
	return nil
}
