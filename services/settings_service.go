package services

import (
	"context"
	"errors"
	"time"

	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/types"
)

const retentionPolicyDocID = "retention-policy"

// SettingsService holds server wide runtime settings. Currently that is the
// retention policy: the default and maximum time to live of submissions.
// Configuration file values act as the fallback until an admin writes a
// policy.
type SettingsService struct {
	settingsRepo repository.Repository
	auditService *AuditService
}

func NewSettingsService(dbSelector repository.DBSelector) *SettingsService {
	db, err := dbSelector.ChooseDB(repository.Settings)
	if err != nil {
		panic(err)
	}
	return &SettingsService{
		settingsRepo: db,
		auditService: NewAuditService(dbSelector),
	}
}

// GetRetention returns the active retention policy
func (ss *SettingsService) GetRetention() (*types.RetentionPolicy, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	response, err := ss.settingsRepo.GetByID(ctx, retentionPolicyDocID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return &types.RetentionPolicy{
				ExpiryDays:    global.Conf.Retention.ExpiryDays,
				MaxExpiryDays: global.Conf.Retention.MaxExpiryDays,
			}, nil
		}
		return nil, err
	}
	var policy types.RetentionPolicy
	if mErr := repository.MapToObject(response, &policy); mErr != nil {
		return nil, mErr
	}
	return &policy, nil
}

// SetRetention replaces the retention policy. Admin operation, audited.
func (ss *SettingsService) SetRetention(input *types.InputRetentionPolicy, actorID string) (*types.RetentionPolicy, error) {
	if input.MaxExpiryDays < input.ExpiryDays {
		return nil, types.ErrBadRequest
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	policy := &types.RetentionPolicy{
		ExpiryDays:    input.ExpiryDays,
		MaxExpiryDays: input.MaxExpiryDays,
		Modified:      time.Now().UTC().UnixMilli(),
	}
	policy.UnderscoreID = retentionPolicyDocID

	existing, gErr := ss.settingsRepo.GetByID(ctx, retentionPolicyDocID)
	if gErr == nil {
		var current types.RetentionPolicy
		if mErr := repository.MapToObject(existing, &current); mErr == nil {
			policy.UnderscoreRev = current.UnderscoreRev
		}
	} else if !errors.Is(gErr, types.ErrNotFound) {
		return nil, gErr
	}

	if err := ss.settingsRepo.Save(ctx, retentionPolicyDocID, policy); err != nil {
		return nil, err
	}
	ss.auditService.Record(types.AuditRetentionChange, actorID, "", "retention policy updated")
	return policy, nil
}
