package services

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/tipline/go-tipline-server/envelope"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/types"
	"github.com/tipline/go-tipline-server/util"
	assert "github.com/stretchr/testify/require"
)

var testURL = "http://localhost:5689"

func init() {
	global.Conf.Retention.ExpiryDays = 90
	global.Conf.Retention.MaxExpiryDays = 365
	global.Conf.Intake.MaxPayloadBytes = 1 << 20
	global.Conf.Intake.MaxAttachmentBytes = 50 << 20
	global.Conf.Storage.Enabled = false
}

// mockSelector builds a CouchDB selector over httpmock backed databases
func mockSelector(t *testing.T, dbNames ...string) repository.DBSelector {
	httpmock.Activate()

	selector := repository.NewCouchDBSelector()
	for _, dbName := range dbNames {
		ok, _ := httpmock.NewJsonResponder(200, types.OK{IsOK: true})
		httpmock.RegisterResponder("HEAD", fmt.Sprintf("%s/%s", testURL, dbName), ok)

		db, err := repository.NewCouchDBRepository(testURL, dbName, "test", "test", true)
		if err != nil {
			t.Fatal(err)
		}
		selector.AddDB(db)
	}
	return selector
}

func registerRecipientFind(t *testing.T, recipients ...*types.Recipient) {
	find, err := httpmock.NewJsonResponder(200, map[string]interface{}{"docs": recipients})
	if err != nil {
		t.Fatal(err)
	}
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Recipient), find)
}

func testRecipient(t *testing.T, id string, tags ...string) (*types.Recipient, *envelope.Keypair) {
	keypair, err := envelope.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	r := &types.Recipient{
		Name:                "r-" + id,
		Role:                types.RecipientRoleHandler,
		Tags:                tags,
		EncryptionPublicKey: base64.StdEncoding.EncodeToString(keypair.PublicKey),
		Active:              true,
	}
	r.UnderscoreID = id
	return r, keypair
}

func newTestSubmissionService(t *testing.T, selector repository.DBSelector) *SubmissionService {
	recipientService := NewRecipientService(selector)
	settingsService := NewSettingsService(selector)
	env := types.NewEnvironment(nil)
	return NewSubmissionService(selector, recipientService, settingsService, nil, env)
}

func allServiceDBs() []string {
	return []string{repository.Submission, repository.Comment, repository.Message, repository.Recipient, repository.Audit, repository.Settings, repository.Nonce}
}

func TestReceiveSealsAndStores(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	alice, aliceKeys := testRecipient(t, "alice")
	bob, bobKeys := testRecipient(t, "bob", "corruption")
	registerRecipientFind(t, alice, bob)

	notFound, _ := httpmock.NewJsonResponder(404, types.CouchDBError{Error: "not_found", Reason: "missing"})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/retention-policy", testURL, repository.Settings), notFound)

	var stored types.Submission
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Submission),
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&stored); err != nil {
				return httpmock.NewStringResponse(400, err.Error()), nil
			}
			return httpmock.NewJsonResponse(201, types.OK{IsOK: true})
		})
	ok, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Audit), ok)

	service := newTestSubmissionService(t, selector)

	plaintext := []byte("sealed testimony")
	out, err := service.Receive(&types.InputSubmission{
		Category: "corruption",
		Payload:  base64.StdEncoding.EncodeToString(plaintext),
		Metadata: &types.InputSubmissionContext{Urgency: types.UrgencyHigh},
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, 16, len(out.Receipt))

	// one wrapped key per routed recipient, ciphertext opaque, no plaintext key
	assert.Equal(t, types.SubmissionStatusRouted, stored.Status)
	assert.Equal(t, 2, len(stored.WrappedKeys))
	assert.NotEmpty(t, stored.ReceiptHash)
	assert.True(t, stored.Expires > stored.Created)
	assert.Equal(t, types.UrgencyHigh, stored.Urgency)

	// the wrapped keys live inside the submission document itself and each
	// one names the document that carries it
	assert.Equal(t, out.ID, stored.UnderscoreID)
	for _, wk := range stored.WrappedKeys {
		assert.Equal(t, out.ID, wk.SubmissionID)
	}

	// each recipient can unseal with their own private key
	box, _ := base64.StdEncoding.DecodeString(stored.Ciphertext)
	for _, wk := range stored.WrappedKeys {
		capsule, _ := base64.StdEncoding.DecodeString(wk.WrappedKey)
		var priv []byte
		if wk.RecipientID == "alice" {
			priv = aliceKeys.PrivateKey
		} else {
			priv = bobKeys.PrivateKey
		}
		opened, oErr := envelope.Unseal(box, capsule, priv)
		assert.NoError(t, oErr)
		assert.Equal(t, plaintext, opened)
	}
}

func TestReceiveNoRouteStoresNothing(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	bob, _ := testRecipient(t, "bob", "environment")
	registerRecipientFind(t, bob)

	service := newTestSubmissionService(t, selector)

	_, err := service.Receive(&types.InputSubmission{
		Category: "corruption",
		Payload:  base64.StdEncoding.EncodeToString([]byte("testimony")),
	})
	assert.ErrorIs(t, err, types.ErrNoRoute)

	// nothing was written anywhere
	info := httpmock.GetCallCountInfo()
	for route, count := range info {
		if count > 0 {
			assert.NotContains(t, route, "PUT ")
			assert.NotContains(t, route, "DELETE ")
		}
	}
}

func TestGetTipRequiresWrappedKey(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	submission := types.Submission{
		Ciphertext:  "b64",
		ContentHash: "hash",
		Status:      types.SubmissionStatusRouted,
		WrappedKeys: []*types.WrappedKey{{SubmissionID: "sub-1", RecipientID: "alice", WrappedKey: "wk"}},
	}
	submission.UnderscoreID = "sub-1"
	submission.UnderscoreRev = "1-abc"

	get, _ := httpmock.NewJsonResponder(200, submission)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), get)
	ok, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), ok)
	comments, _ := httpmock.NewJsonResponder(200, map[string]interface{}{"docs": []*types.Comment{}})
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Comment), comments)
	messages, _ := httpmock.NewJsonResponder(200, map[string]interface{}{"docs": []*types.Message{}})
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Message), messages)

	service := newTestSubmissionService(t, selector)

	tip, err := service.GetTip("alice", "sub-1")
	assert.NoError(t, err)
	assert.Equal(t, "wk", tip.WrappedKey)
	assert.Equal(t, int64(1), tip.AccessCount)

	_, dErr := service.GetTip("mallory", "sub-1")
	assert.ErrorIs(t, dErr, types.ErrNotAuthorized)
}

func TestPurgeDeletesDocumentAndAudits(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	submission := types.Submission{
		Status:      types.SubmissionStatusRouted,
		WrappedKeys: []*types.WrappedKey{{SubmissionID: "sub-1", RecipientID: "alice", WrappedKey: "wk"}},
	}
	submission.UnderscoreID = "sub-1"
	submission.UnderscoreRev = "3-def"

	get, _ := httpmock.NewJsonResponder(200, submission)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), get)
	del, _ := httpmock.NewJsonResponder(200, types.OK{IsOK: true})
	httpmock.RegisterResponder("DELETE", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), del)
	ok, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Audit), ok)

	service := newTestSubmissionService(t, selector)

	err := service.Purge("sub-1", "admin-1")
	assert.NoError(t, err)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info[fmt.Sprintf("DELETE %s/%s/sub-1", testURL, repository.Submission)])

	// the document is gone for good, a later read sees nothing
	notFound, _ := httpmock.NewJsonResponder(404, types.CouchDBError{Error: "not_found", Reason: "deleted"})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), notFound)

	_, gErr := service.Get("sub-1")
	assert.ErrorIs(t, gErr, types.ErrNotFound)
}

func TestRecipientMessageRequiresWrappedKey(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	submission := types.Submission{
		Status:      types.SubmissionStatusRouted,
		WrappedKeys: []*types.WrappedKey{{SubmissionID: "sub-1", RecipientID: "alice", WrappedKey: "wk"}},
	}
	submission.UnderscoreID = "sub-1"
	submission.UnderscoreRev = "1-abc"

	get, _ := httpmock.NewJsonResponder(200, submission)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), get)

	var stored types.Message
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Message),
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&stored); err != nil {
				return httpmock.NewStringResponse(400, err.Error()), nil
			}
			return httpmock.NewJsonResponse(201, types.OK{IsOK: true})
		})

	service := newTestSubmissionService(t, selector)

	message, err := service.AddRecipientMessage("alice", "sub-1", "please send the second ledger page")
	assert.NoError(t, err)
	assert.Equal(t, types.MessageAuthorRecipient, message.Author)
	assert.Equal(t, "alice", stored.AuthorID)
	assert.Equal(t, "sub-1", stored.SubmissionID)

	_, dErr := service.AddRecipientMessage("mallory", "sub-1", "let me in")
	assert.ErrorIs(t, dErr, types.ErrNotAuthorized)
}

func TestSubmitterMessageRequiresReceipt(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	receipt := "1234567890123456"
	receiptHash, hErr := util.ScryptReceipt(receipt, "sub-1")
	assert.NoError(t, hErr)

	submission := types.Submission{
		Status:      types.SubmissionStatusRouted,
		ReceiptHash: receiptHash,
		WrappedKeys: []*types.WrappedKey{{SubmissionID: "sub-1", RecipientID: "alice", WrappedKey: "wk"}},
	}
	submission.UnderscoreID = "sub-1"
	submission.UnderscoreRev = "1-abc"

	get, _ := httpmock.NewJsonResponder(200, submission)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), get)

	var stored types.Message
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Message),
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&stored); err != nil {
				return httpmock.NewStringResponse(400, err.Error()), nil
			}
			return httpmock.NewJsonResponse(201, types.OK{IsOK: true})
		})

	service := newTestSubmissionService(t, selector)

	message, err := service.AddSubmitterMessage("sub-1", receipt, "the second page follows")
	assert.NoError(t, err)
	assert.Equal(t, types.MessageAuthorSubmitter, message.Author)
	// the stored message carries no identity at all
	assert.Empty(t, stored.AuthorID)
	assert.Equal(t, "sub-1", stored.SubmissionID)

	_, dErr := service.AddSubmitterMessage("sub-1", "6543210987654321", "guessing")
	assert.ErrorIs(t, dErr, types.ErrAuthenticationFailure)
}

func TestCheckReceiptReturnsConversation(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	receipt := "1234567890123456"
	receiptHash, hErr := util.ScryptReceipt(receipt, "sub-1")
	assert.NoError(t, hErr)

	submission := types.Submission{
		Status:      types.SubmissionStatusRouted,
		ReceiptHash: receiptHash,
	}
	submission.UnderscoreID = "sub-1"
	submission.UnderscoreRev = "1-abc"

	get, _ := httpmock.NewJsonResponder(200, submission)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), get)

	reply := &types.Message{SubmissionID: "sub-1", Author: types.MessageAuthorRecipient, AuthorID: "alice", Content: "received, thank you"}
	messages, _ := httpmock.NewJsonResponder(200, map[string]interface{}{"docs": []*types.Message{reply}})
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Message), messages)

	service := newTestSubmissionService(t, selector)

	status, conversation, err := service.CheckReceipt("sub-1", receipt)
	assert.NoError(t, err)
	assert.Equal(t, types.SubmissionStatusRouted, status)
	assert.Equal(t, 1, len(conversation))
	assert.Equal(t, "received, thank you", conversation[0].Content)

	_, _, dErr := service.CheckReceipt("sub-1", "6543210987654321")
	assert.ErrorIs(t, dErr, types.ErrAuthenticationFailure)
}

func TestPostponeCappedByMaxRetention(t *testing.T) {
	selector := mockSelector(t, allServiceDBs()...)
	defer httpmock.DeactivateAndReset()

	created := time.Now().UTC().UnixMilli() - 300*dayMillis
	submission := types.Submission{
		Status:      types.SubmissionStatusRouted,
		WrappedKeys: []*types.WrappedKey{{SubmissionID: "sub-1", RecipientID: "alice", WrappedKey: "wk"}},
		Created:     created,
		Expires:     created + 310*dayMillis,
	}
	submission.UnderscoreID = "sub-1"
	submission.UnderscoreRev = "1-abc"

	get, _ := httpmock.NewJsonResponder(200, submission)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), get)
	notFound, _ := httpmock.NewJsonResponder(404, types.CouchDBError{Error: "not_found", Reason: "missing"})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/retention-policy", testURL, repository.Settings), notFound)
	ok, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/sub-1", testURL, repository.Submission), ok)
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Audit), ok)

	service := newTestSubmissionService(t, selector)

	updated, err := service.Postpone("sub-1", "alice")
	assert.NoError(t, err)
	// now + 90 days would pass the ceiling, so the cap applies
	assert.Equal(t, created+365*dayMillis, updated.Expires)
}
