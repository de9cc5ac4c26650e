package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-kit/log/level"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/types"
)

const (
	tokenExpiryHours = 12
	nonceMaxAgeMs    = 5 * 60 * 1000

	// lockout thresholds. After lockoutFreeFailures the backoff doubles per
	// failure, capped so a lockout is never permanent.
	lockoutFreeFailures = 3
	lockoutMaxShift     = 10 // 2^10 seconds, about 17 minutes
)

// AccessService is the gate in front of recipient and admin surfaces. A
// recipient proves control of their registered signing key by signing a
// server nonce; repeated failures back off exponentially per credential.
// Authorization to read a submission is possession of a wrapped key, nothing
// else.
type AccessService struct {
	recipientService *RecipientService
	nonceService     *NonceService
	auditService     *AuditService
	env              *types.Environment
}

func NewAccessService(dbSelector repository.DBSelector, recipientService *RecipientService, env *types.Environment) *AccessService {
	return &AccessService{
		recipientService: recipientService,
		nonceService:     NewNonceService(dbSelector),
		auditService:     NewAuditService(dbSelector),
		env:              env,
	}
}

// Challenge issues a fresh signing nonce for a recipient. Revocation is not
// consulted here: a revoked recipient may still authenticate to read what
// was routed to them before revocation.
func (as *AccessService) Challenge(recipientID string) (*types.OutputAccessChallenge, error) {
	if err := as.checkLockout(recipientID); err != nil {
		return nil, err
	}
	if _, err := as.recipientService.Get(recipientID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrAuthenticationFailure
		}
		return nil, err
	}
	nonce, nErr := as.nonceService.CreateNonce(recipientID)
	if nErr != nil {
		return nil, nErr
	}
	return &types.OutputAccessChallenge{Nonce: nonce.Nonce}, nil
}

// Prove verifies a compact JWS over a previously issued nonce and mints a
// bearer token signed with the server key. The nonce is consumed either way.
func (as *AccessService) Prove(input *types.InputAccessProof) (*types.OutputAccessToken, error) {
	if err := as.checkLockout(input.RecipientID); err != nil {
		return nil, err
	}

	nonce, nErr := as.nonceService.GetNonce(input.Nonce)
	if nErr != nil {
		as.registerFailure(input.RecipientID)
		return nil, types.ErrAuthenticationFailure
	}
	defer func() {
		if dErr := as.nonceService.DeleteNonce(nonce.Nonce); dErr != nil && !errors.Is(dErr, types.ErrNotFound) {
			level.Warn(global.Logger).Log("msg", "failed to consume nonce", "err", dErr)
		}
	}()

	if nonce.RecipientID != input.RecipientID {
		as.registerFailure(input.RecipientID)
		return nil, types.ErrAuthenticationFailure
	}
	if time.Now().UTC().UnixMilli()-nonce.Created > nonceMaxAgeMs {
		as.registerFailure(input.RecipientID)
		return nil, types.ErrAuthenticationFailure
	}

	recipient, rErr := as.recipientService.Get(input.RecipientID)
	if rErr != nil {
		as.registerFailure(input.RecipientID)
		return nil, types.ErrAuthenticationFailure
	}
	signingKey, kErr := ParseSigningKey(recipient)
	if kErr != nil {
		return nil, types.ErrCryptoFailure
	}

	object, pErr := jose.ParseSigned(input.SignedNonce)
	if pErr != nil {
		as.registerFailure(input.RecipientID)
		return nil, types.ErrAuthenticationFailure
	}
	payload, vErr := object.Verify(signingKey)
	if vErr != nil || string(payload) != nonce.Nonce {
		as.registerFailure(input.RecipientID)
		return nil, types.ErrAuthenticationFailure
	}

	as.clearFailures(input.RecipientID)

	token, expires, tErr := generateAccessToken(recipient, nonce.Nonce)
	if tErr != nil {
		return nil, tErr
	}
	return &types.OutputAccessToken{Token: token, Expires: expires}, nil
}

// Authorize reports whether a recipient may read a submission. The wrapped
// key set inside the submission document is the only source of truth; a
// denial is recorded as a security event.
func (as *AccessService) Authorize(submission *types.Submission, recipientID string) error {
	if submission.WrappedKeyFor(recipientID) == nil {
		as.auditService.Record(types.AuditAccessDenied, recipientID, submission.UnderscoreID, "")
		return types.ErrNotAuthorized
	}
	return nil
}

// generateAccessToken mints the bearer token recipients present on the
// authenticated surfaces
func generateAccessToken(recipient *types.Recipient, challenge string) (string, int64, error) {
	expires := time.Now().Add(time.Hour * tokenExpiryHours).Unix()
	pl := map[string]interface{}{
		"iss":  "tipline",
		"sub":  recipient.UnderscoreID,
		"role": recipient.Role,
		"iat":  time.Now().Unix(),
		"jti":  challenge,
		"exp":  expires,
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: global.PrivateKey}, nil)
	if err != nil {
		return "", 0, err
	}
	plBytes, plErr := json.Marshal(pl)
	if plErr != nil {
		return "", 0, plErr
	}
	object, sErr := signer.Sign(plBytes)
	if sErr != nil {
		return "", 0, sErr
	}
	token, cErr := object.CompactSerialize()
	if cErr != nil {
		return "", 0, cErr
	}
	return token, expires * 1000, nil
}

func lockoutKey(recipientID string) string {
	return "lockout:" + recipientID
}

func failureKey(recipientID string) string {
	return "authfail:" + recipientID
}

func (as *AccessService) checkLockout(recipientID string) error {
	if as.env == nil || as.env.RedisClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	ttl, err := as.env.RedisClient.TTL(ctx, lockoutKey(recipientID)).Result()
	if err != nil {
		level.Warn(global.Logger).Log("msg", "lockout check failed", "err", err)
		return nil
	}
	if ttl > 0 {
		return types.ErrLockout
	}
	return nil
}

// registerFailure counts a failed proof and, past the free failures, locks
// the credential for an exponentially growing window
func (as *AccessService) registerFailure(recipientID string) {
	as.auditService.Record(types.AuditAuthFailed, recipientID, "", "")
	if as.env == nil || as.env.RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	failures, err := as.env.RedisClient.Incr(ctx, failureKey(recipientID)).Result()
	if err != nil {
		level.Warn(global.Logger).Log("msg", "failed to count auth failure", "err", err)
		return
	}
	as.env.RedisClient.Expire(ctx, failureKey(recipientID), time.Hour*24)

	if failures <= lockoutFreeFailures {
		return
	}
	shift := failures - lockoutFreeFailures
	if shift > lockoutMaxShift {
		shift = lockoutMaxShift
	}
	window := time.Duration(int64(1)<<shift) * time.Second
	if sErr := as.env.RedisClient.Set(ctx, lockoutKey(recipientID), "1", window).Err(); sErr != nil {
		level.Warn(global.Logger).Log("msg", "failed to set lockout", "err", sErr)
		return
	}
	as.auditService.Record(types.AuditLockout, recipientID, "", fmt.Sprintf("window %s", window))
}

func (as *AccessService) clearFailures(recipientID string) {
	if as.env == nil || as.env.RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	as.env.RedisClient.Del(ctx, failureKey(recipientID), lockoutKey(recipientID))
}
