package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-kit/log/level"
	"github.com/hibiken/asynq"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/metrics"
	"github.com/tipline/go-tipline-server/notify"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/services"
	"github.com/tipline/go-tipline-server/types"
)

// TaskQueue processes the background work a stored submission produces:
// recipient notifications and attachment object deletion after a purge.
// Handlers are retried by the queue; none of them touches the submission
// document itself.
type TaskQueue struct {
	recipientService *services.RecipientService
	s3Service        *services.S3Service
	env              *types.Environment
}

func NewTaskQueue(dbSelector repository.DBSelector, env *types.Environment) *TaskQueue {
	recipientService := services.NewRecipientService(dbSelector)
	s3Service := services.NewS3Service(env)

	return &TaskQueue{
		recipientService: recipientService,
		s3Service:        s3Service,
		env:              env,
	}
}

// ProcessNotifyTask delivers a routed-submission notice through every
// registered notifier
func (tq *TaskQueue) ProcessNotifyTask(ctx context.Context, t *asynq.Task) error {
	var task types.NotifyTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	recipient, rErr := tq.recipientService.Get(task.RecipientID)
	if rErr != nil {
		if errors.Is(rErr, types.ErrNotFound) {
			// recipient removed between routing and delivery, nothing to do
			return nil
		}
		return rErr
	}

	if nErr := notify.NotifyAll(ctx, recipient, task.SubmissionID); nErr != nil {
		level.Warn(global.Logger).Log("msg", "notification delivery failed", "recipient", task.RecipientID, "err", nErr)
		return nErr
	}
	metrics.NotificationsSentMetricsCount.Inc()
	return nil
}

// ProcessAttachmentDeleteTask removes a purged submission's encrypted blob
// from object storage
func (tq *TaskQueue) ProcessAttachmentDeleteTask(ctx context.Context, t *asynq.Task) error {
	var task types.AttachmentDeleteTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if !global.Conf.Storage.Enabled {
		return nil
	}

	dErr := tq.s3Service.DeleteAttachment(global.Conf.Storage.Bucket, task.ObjectKey)
	if dErr != nil {
		if errors.Is(dErr, types.ErrNotFound) {
			return nil
		}
		level.Error(global.Logger).Log("msg", "attachment delete failed", "objectKey", task.ObjectKey, "err", dErr)
		return dErr
	}
	level.Info(global.Logger).Log("msg", "attachment deleted", "submission", task.SubmissionID, "objectKey", task.ObjectKey)
	return nil
}
