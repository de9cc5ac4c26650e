package services

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/types"
)

// AuditService appends administrative and security events. Recording is
// best effort from the caller's point of view: a failed append is logged
// but never fails the operation that produced the event.
type AuditService struct {
	auditRepo repository.Repository
}

func NewAuditService(dbSelector repository.DBSelector) *AuditService {
	db, err := dbSelector.ChooseDB(repository.Audit)
	if err != nil {
		level.Error(global.Logger).Log("msg", "audit database not available", "err", err)
		panic(err)
	}
	return &AuditService{auditRepo: db}
}

// Record appends a single event. actorID is empty for system actions such
// as retention sweeps.
func (as *AuditService) Record(eventType, actorID, submissionID, detail string) {
	event := &types.AuditEvent{
		Type:         eventType,
		ActorID:      actorID,
		SubmissionID: submissionID,
		Detail:       detail,
		Created:      time.Now().UTC().UnixMilli(),
	}
	event.UnderscoreID = uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := as.auditRepo.Save(ctx, event.UnderscoreID, event); err != nil {
		level.Error(global.Logger).Log("msg", "failed to record audit event", "type", eventType, "err", err)
	}
}

type auditFindResult struct {
	Docs []*types.AuditEvent `json:"docs"`
}

// ListForSubmission returns events touching a single submission, newest first.
func (as *AuditService) ListForSubmission(submissionID string, limit int) ([]*types.AuditEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	selector := map[string]interface{}{
		"selector": map[string]interface{}{
			"submissionId": submissionID,
		},
		"sort":  []map[string]string{{"created": "desc"}},
		"limit": limit,
	}
	response, err := as.auditRepo.Find(ctx, selector)
	if err != nil {
		return nil, err
	}
	var result auditFindResult
	if mErr := repository.MapToObject(response, &result); mErr != nil {
		return nil, mErr
	}
	return result.Docs, nil
}
