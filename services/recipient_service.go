package services

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/tipline/go-tipline-server/envelope"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/types"
)

// RecipientService is the recipient registry: who exists, which keys they
// hold, and whether they are eligible for future routing. Mutations are
// administrative and audited; revocation never touches already-issued
// wrapped keys.
type RecipientService struct {
	recipientRepo repository.Repository
	auditService  *AuditService
}

func NewRecipientService(dbSelector repository.DBSelector) *RecipientService {
	db, err := dbSelector.ChooseDB(repository.Recipient)
	if err != nil {
		level.Error(global.Logger).Log("msg", "error while choosing db", "err", err)
		panic(err)
	}
	return &RecipientService{
		recipientRepo: db,
		auditService:  NewAuditService(dbSelector),
	}
}

// Register validates the recipient's keys and stores a new active recipient
func (rs *RecipientService) Register(input *types.InputRecipient, actorID string) (*types.Recipient, error) {
	encKey, decErr := base64.StdEncoding.DecodeString(input.EncryptionPublicKey)
	if decErr != nil || !envelope.ValidatePublicKey(encKey) {
		return nil, types.ErrInvalidPublicKey
	}
	if _, jwkErr := jwk.ParseKey([]byte(input.SigningPublicKeyJWK)); jwkErr != nil {
		return nil, types.ErrInvalidPublicKey
	}

	recipient := &types.Recipient{
		BaseDocument:        types.BaseDocument{UnderscoreID: uuid.NewString()},
		Name:                input.Name,
		Role:                input.Role,
		Tags:                input.Tags,
		EncryptionPublicKey: input.EncryptionPublicKey,
		SigningPublicKeyJWK: input.SigningPublicKeyJWK,
		Active:              true,
		Created:             time.Now().UTC().UnixMilli(),
		CanPurge:            input.CanPurge,
		CanPostpone:         input.CanPostpone,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := rs.recipientRepo.Save(ctx, recipient.UnderscoreID, recipient); err != nil {
		return nil, err
	}
	rs.auditService.Record(types.AuditRecipientChange, actorID, "", "registered "+recipient.UnderscoreID)
	return recipient, nil
}

// Get returns a recipient by id
func (rs *RecipientService) Get(id string) (*types.Recipient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	response, err := rs.recipientRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRegistryError(err)
	}
	var recipient types.Recipient
	if mErr := repository.MapToObject(response, &recipient); mErr != nil {
		return nil, mErr
	}
	return &recipient, nil
}

// Revoke deactivates a recipient. Already-routed submissions keep their
// wrapped keys; only future routing excludes the recipient.
func (rs *RecipientService) Revoke(id string, actorID string) (*types.Recipient, error) {
	recipient, err := rs.Get(id)
	if err != nil {
		return nil, err
	}
	if !recipient.Active {
		return recipient, nil
	}
	recipient.Active = false
	recipient.Revoked = time.Now().UTC().UnixMilli()
	recipient.Rev = recipient.UnderscoreRev

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if _, uErr := rs.recipientRepo.Update(ctx, recipient.UnderscoreID, recipient); uErr != nil {
		return nil, uErr
	}
	rs.auditService.Record(types.AuditRecipientChange, actorID, "", "revoked "+id)
	return recipient, nil
}

// List returns all recipients, active and revoked
func (rs *RecipientService) List() ([]*types.Recipient, error) {
	snapshot, err := rs.Snapshot()
	if err != nil {
		return nil, err
	}
	return snapshot.Recipients, nil
}

type recipientFindResult struct {
	Docs []*types.Recipient `json:"docs"`
}

// Snapshot returns an explicit versioned view of the whole registry. Routing
// runs against a snapshot so repeated calls with the same snapshot and
// metadata are deterministic.
func (rs *RecipientService) Snapshot() (*types.RegistrySnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	selector := map[string]interface{}{
		"selector": map[string]interface{}{
			"created": map[string]interface{}{"$gt": 0},
		},
		"limit": 1000,
	}
	response, err := rs.recipientRepo.Find(ctx, selector)
	if err != nil {
		return nil, mapRegistryError(err)
	}
	var result recipientFindResult
	if mErr := repository.MapToObject(response, &result); mErr != nil {
		return nil, mErr
	}
	return &types.RegistrySnapshot{
		Version:    time.Now().UTC().UnixMilli(),
		Recipients: result.Docs,
	}, nil
}

// ParseSigningKey returns the recipient's Ed25519 verification key
func ParseSigningKey(recipient *types.Recipient) (interface{}, error) {
	key, err := jwk.ParseKey([]byte(recipient.SigningPublicKeyJWK))
	if err != nil {
		return nil, types.ErrInvalidPublicKey
	}
	var raw interface{}
	if rErr := key.Raw(&raw); rErr != nil {
		return nil, types.ErrInvalidPublicKey
	}
	return raw, nil
}

// EncryptionKeyBytes decodes the recipient's ML-KEM public key
func EncryptionKeyBytes(recipient *types.Recipient) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(recipient.EncryptionPublicKey)
	if err != nil {
		return nil, types.ErrInvalidPublicKey
	}
	return raw, nil
}

// registry lookups that time out surface as ErrRegistryUnavailable
func mapRegistryError(err error) error {
	if errors.Is(err, types.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return types.ErrRegistryUnavailable
	}
	return err
}
