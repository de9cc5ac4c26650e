package services

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/jarcoal/httpmock"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/types"
	assert "github.com/stretchr/testify/require"
)

func init() {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	global.PublicKey = pub
	global.PrivateKey = priv
}

func signingRecipient(t *testing.T, id string) (*types.Recipient, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	key, kErr := jwk.FromRaw(pub)
	if kErr != nil {
		t.Fatal(kErr)
	}
	keyJSON, mErr := json.Marshal(key)
	if mErr != nil {
		t.Fatal(mErr)
	}
	r := &types.Recipient{
		Name:                "r-" + id,
		Role:                types.RecipientRoleHandler,
		SigningPublicKeyJWK: string(keyJSON),
		Active:              true,
	}
	r.UnderscoreID = id
	r.UnderscoreRev = "1-abc"
	return r, priv
}

func TestChallengeProveMintsToken(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	alice, alicePriv := signingRecipient(t, "alice")

	get, _ := httpmock.NewJsonResponder(200, alice)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/alice", testURL, repository.Recipient), get)
	ok, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Nonce), ok)
	httpmock.RegisterResponder("DELETE", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Nonce), ok)
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Audit), ok)

	recipientService := NewRecipientService(selector)
	service := NewAccessService(selector, recipientService, types.NewEnvironment(nil))

	challenge, cErr := service.Challenge("alice")
	assert.NoError(t, cErr)
	assert.NotEmpty(t, challenge.Nonce)

	stored := &types.Nonce{Nonce: challenge.Nonce, RecipientID: "alice", Created: time.Now().UTC().UnixMilli()}
	stored.UnderscoreID = challenge.Nonce
	stored.UnderscoreRev = "1-abc"
	nonceGet, _ := httpmock.NewJsonResponder(200, stored)
	httpmock.RegisterResponder("GET", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Nonce), nonceGet)

	signer, sErr := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: alicePriv}, nil)
	assert.NoError(t, sErr)
	object, oErr := signer.Sign([]byte(challenge.Nonce))
	assert.NoError(t, oErr)
	signedNonce, snErr := object.CompactSerialize()
	assert.NoError(t, snErr)

	token, pErr := service.Prove(&types.InputAccessProof{
		RecipientID: "alice",
		Nonce:       challenge.Nonce,
		SignedNonce: signedNonce,
	})
	assert.NoError(t, pErr)
	assert.NotEmpty(t, token.Token)

	// the token verifies against the server key and names the recipient
	parsed, prErr := jose.ParseSigned(token.Token)
	assert.NoError(t, prErr)
	payload, vErr := parsed.Verify(global.PublicKey)
	assert.NoError(t, vErr)
	var claims map[string]interface{}
	assert.NoError(t, json.Unmarshal(payload, &claims))
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, types.RecipientRoleHandler, claims["role"])
}

func TestProveRejectsWrongKey(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	alice, _ := signingRecipient(t, "alice")
	_, malloryPriv := signingRecipient(t, "mallory")

	get, _ := httpmock.NewJsonResponder(200, alice)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/alice", testURL, repository.Recipient), get)
	ok, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Audit), ok)
	httpmock.RegisterResponder("DELETE", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Nonce), ok)

	stored := &types.Nonce{Nonce: "nonce-1", RecipientID: "alice", Created: time.Now().UTC().UnixMilli()}
	stored.UnderscoreID = "nonce-1"
	stored.UnderscoreRev = "1-abc"
	nonceGet, _ := httpmock.NewJsonResponder(200, stored)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/nonce-1", testURL, repository.Nonce), nonceGet)

	recipientService := NewRecipientService(selector)
	service := NewAccessService(selector, recipientService, types.NewEnvironment(nil))

	signer, _ := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: malloryPriv}, nil)
	object, _ := signer.Sign([]byte("nonce-1"))
	signedNonce, _ := object.CompactSerialize()

	_, err := service.Prove(&types.InputAccessProof{
		RecipientID: "alice",
		Nonce:       "nonce-1",
		SignedNonce: signedNonce,
	})
	assert.ErrorIs(t, err, types.ErrAuthenticationFailure)
}

func TestAuthorizeByWrappedKeyPossession(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	ok, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Audit), ok)

	recipientService := NewRecipientService(selector)
	service := NewAccessService(selector, recipientService, types.NewEnvironment(nil))

	submission := &types.Submission{
		Status:      types.SubmissionStatusRouted,
		WrappedKeys: []*types.WrappedKey{{SubmissionID: "sub-1", RecipientID: "alice", WrappedKey: "wk"}},
	}
	submission.UnderscoreID = "sub-1"

	assert.NoError(t, service.Authorize(submission, "alice"))
	// revocation in the registry is irrelevant, only the wrapped key counts
	assert.ErrorIs(t, service.Authorize(submission, "bob"), types.ErrNotAuthorized)
}
