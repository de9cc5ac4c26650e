package types

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

var (
	QueueTypeNotify           = "notification:send"
	QueueTypeAttachmentDelete = "attachment:delete"
)

// NotifyTask informs a recipient that a submission was routed to them.
// Enqueued after the submission is durably stored; a failing handler is
// retried by the queue and never rolls back the submission.
type NotifyTask struct {
	RecipientID  string `json:"recipientId" validate:"required"`
	SubmissionID string `json:"submissionId" validate:"required"`
}

// AttachmentDeleteTask removes an encrypted attachment object from external
// storage after its submission was purged.
type AttachmentDeleteTask struct {
	SubmissionID string `json:"submissionId"`
	ObjectKey    string `json:"objectKey" validate:"required"`
}

func NewNotifyTask(task *NotifyTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(QueueTypeNotify, payload), nil
}

func NewAttachmentDeleteTask(task *AttachmentDeleteTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(QueueTypeAttachmentDelete, payload), nil
}
