package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/types"
	"github.com/tipline/go-tipline-server/util"
)

// NonceService issues and consumes access challenge nonces
type NonceService struct {
	nonceRepo repository.Repository
}

type nonceExpiredView struct {
	TotalRows int64             `json:"total_rows"`
	Offset    int64             `json:"offset"`
	Rows      []nonceExpiredRow `json:"rows"`
}

type nonceExpiredRow struct {
	ID      string `json:"id"`
	Created int64  `json:"key"`   // key is created timestamp
	Rev     string `json:"value"` // value is _rev which is needed for deletion
}

func NewNonceService(dbSelector repository.DBSelector) *NonceService {
	db, err := dbSelector.ChooseDB(repository.Nonce)
	if err != nil {
		panic(err)
	}

	return &NonceService{
		nonceRepo: db,
	}
}

// CreateNonce stores a fresh 64 byte challenge bound to a recipient
func (ns *NonceService) CreateNonce(recipientID string) (*types.Nonce, error) {
	n, nErr := util.GenerateNonce(64)
	if nErr != nil {
		return nil, types.ErrCryptoFailure
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	nonce := &types.Nonce{
		Nonce:       n,
		RecipientID: recipientID,
		Created:     time.Now().UTC().UnixMilli(),
	}
	nonce.UnderscoreID = n
	if err := ns.nonceRepo.Save(ctx, n, nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

// GetNonce returns a stored nonce by its value
func (ns *NonceService) GetNonce(nonce string) (*types.Nonce, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	response, eErr := ns.nonceRepo.GetByID(ctx, nonce)
	if eErr != nil {
		return nil, eErr
	}
	var existing types.Nonce
	mErr := repository.MapToObject(response, &existing)
	if mErr != nil {
		return nil, mErr
	}
	return &existing, nil
}

// DeleteNonce consumes a nonce so a challenge cannot be replayed
func (ns *NonceService) DeleteNonce(nonce string) error {
	existing, gErr := ns.GetNonce(nonce)
	if gErr != nil {
		return gErr
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	return ns.nonceRepo.Delete(ctx, nonce, existing.UnderscoreRev)
}

// RemoveExpiredNonces loops and deletes stale nonces until none remain
func (ns *NonceService) RemoveExpiredNonces() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)

		timeAgo := time.Now().UnixMilli() - (5 * 60 * 1000) // 5 minutes ago and older
		query := fmt.Sprintf("_design/nonce/_view/old?descending=true&startkey=%d&limit=100", timeAgo)
		response, err := ns.nonceRepo.GetByID(ctx, query)
		if err != nil {
			cancel()
			level.Error(global.Logger).Log("msg", "error getting expired nonces", "err", err)
			return
		}

		var expiredNonces nonceExpiredView
		mErr := repository.MapToObject(response, &expiredNonces)
		if mErr != nil {
			cancel()
			level.Error(global.Logger).Log("msg", "error mapping expired nonces", "err", mErr)
			return
		}
		if len(expiredNonces.Rows) == 0 {
			cancel()
			return
		}
		for _, row := range expiredNonces.Rows {
			if dErr := ns.nonceRepo.Delete(ctx, row.ID, row.Rev); dErr != nil {
				level.Warn(global.Logger).Log("msg", "error deleting expired nonce", "err", dErr)
			}
		}
		cancel()
	}
}
