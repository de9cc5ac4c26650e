package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/tipline/go-tipline-server/types"
)

var testServerURL = "http://localhost:5689"

func InitMockDatabase(dbName string) (Repository, error) {
	httpmock.Activate()

	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s", testServerURL, "_all_dbs"),
		httpmock.NewStringResponder(200, `[]`))

	mr, mErr := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	if mErr != nil {
		return nil, mErr
	}
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s", testServerURL, dbName), mr)
	httpmock.RegisterResponder("HEAD", fmt.Sprintf("%s/%s", testServerURL, dbName), mr)

	db, err := NewCouchDBRepository(testServerURL, dbName, "test", "test", true)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func deactivateMock() {
	httpmock.DeactivateAndReset()
}

func TestInitNewDatabase(t *testing.T) {
	db, err := InitMockDatabase(Submission)
	defer deactivateMock()
	if err != nil {
		t.Fatal(err)
	}
	if db == nil {
		t.Fatal("db is nil")
	}
	assert.Equal(t, Submission, db.GetDBName())
}

func TestSaveAndGetByID(t *testing.T) {
	db, err := InitMockDatabase(Submission)
	defer deactivateMock()
	if err != nil {
		t.Fatal(err)
	}

	mk, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testServerURL, Submission, "sub-1"), mk)

	mk, _ = httpmock.NewJsonResponder(200, types.Submission{
		BaseDocument: types.BaseDocument{UnderscoreID: "sub-1"},
		Status:       types.SubmissionStatusRouted,
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testServerURL, Submission, "sub-1"), mk)

	sErr := db.Save(context.Background(), "sub-1", &types.Submission{
		BaseDocument: types.BaseDocument{UnderscoreID: "sub-1"},
		Status:       types.SubmissionStatusRouted,
	})
	if sErr != nil {
		t.Fatal(sErr)
	}
	res, gErr := db.GetByID(context.Background(), "sub-1")
	if gErr != nil {
		t.Fatal(gErr)
	}

	var sub types.Submission
	if mErr := MapToObject(res, &sub); mErr != nil {
		t.Fatal(mErr)
	}
	assert.Equal(t, "sub-1", sub.UnderscoreID)
	assert.Equal(t, types.SubmissionStatusRouted, sub.Status)
}

func TestGetByIDNotFound(t *testing.T) {
	db, err := InitMockDatabase(Submission)
	defer deactivateMock()
	if err != nil {
		t.Fatal(err)
	}

	mk, _ := httpmock.NewJsonResponder(404, types.CouchDBError{Error: "not_found", Reason: "missing"})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testServerURL, Submission, "missing"), mk)

	_, gErr := db.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, gErr, types.ErrNotFound)
}

func TestUpdateConflict(t *testing.T) {
	db, err := InitMockDatabase(Submission)
	defer deactivateMock()
	if err != nil {
		t.Fatal(err)
	}

	mk, _ := httpmock.NewJsonResponder(409, types.CouchDBError{Error: "conflict", Reason: "document update conflict"})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testServerURL, Submission, "sub-1"), mk)

	_, uErr := db.Update(context.Background(), "sub-1", &types.Submission{})
	assert.ErrorIs(t, uErr, types.ErrConflict)
}

func TestDeleteWithRev(t *testing.T) {
	db, err := InitMockDatabase(Submission)
	defer deactivateMock()
	if err != nil {
		t.Fatal(err)
	}

	mk, _ := httpmock.NewJsonResponder(200, types.OK{IsOK: true})
	httpmock.RegisterResponder("DELETE", fmt.Sprintf("%s/%s/%s", testServerURL, Submission, "sub-1"), mk)

	dErr := db.Delete(context.Background(), "sub-1", "1-abc")
	assert.NoError(t, dErr)
}

func TestChooseDB(t *testing.T) {
	db, err := InitMockDatabase(Recipient)
	defer deactivateMock()
	if err != nil {
		t.Fatal(err)
	}

	selector := NewCouchDBSelector()
	selector.AddDB(db)

	chosen, cErr := selector.ChooseDB(Recipient)
	assert.NoError(t, cErr)
	assert.Equal(t, Recipient, chosen.GetDBName())

	_, missErr := selector.ChooseDB(Submission)
	assert.ErrorIs(t, missErr, types.ErrNotFound)
}
