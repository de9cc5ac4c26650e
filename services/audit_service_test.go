package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/types"
	"github.com/tj/assert"
)

func TestRecordAppendsEvent(t *testing.T) {
	selector := mockSelector(t, repository.Audit)
	defer httpmock.DeactivateAndReset()

	var stored types.AuditEvent
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Audit),
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&stored); err != nil {
				return httpmock.NewStringResponse(400, err.Error()), nil
			}
			return httpmock.NewJsonResponse(201, types.OK{IsOK: true})
		})

	service := NewAuditService(selector)
	service.Record(types.AuditSubmissionPurge, "admin-1", "sub-1", "manual purge")

	assert.Equal(t, types.AuditSubmissionPurge, stored.Type)
	assert.Equal(t, "admin-1", stored.ActorID)
	assert.Equal(t, "sub-1", stored.SubmissionID)
	assert.NotEmpty(t, stored.UnderscoreID)
	assert.True(t, stored.Created > 0)
}

func TestListForSubmission(t *testing.T) {
	selector := mockSelector(t, repository.Audit)
	defer httpmock.DeactivateAndReset()

	newer := &types.AuditEvent{Type: types.AuditSubmissionPurge, ActorID: "admin-1", SubmissionID: "sub-1", Created: 2000}
	older := &types.AuditEvent{Type: types.AuditExpirationChange, SubmissionID: "sub-1", Created: 1000}
	find, _ := httpmock.NewJsonResponder(200, map[string]interface{}{"docs": []*types.AuditEvent{newer, older}})
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Audit), find)

	service := NewAuditService(selector)

	events, err := service.ListForSubmission("sub-1", 0)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(events))
	assert.Equal(t, types.AuditSubmissionPurge, events[0].Type)
	assert.True(t, events[0].Created > events[1].Created)
}
