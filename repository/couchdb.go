package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jarcoal/httpmock"
	"github.com/tipline/go-tipline-server/types"
)

// implements Repository interface using CouchDB
type CouchDBRepository struct {
	client *resty.Client
	dbName string
}

func NewCouchDBRepository(url, dbName string, username string, password string, mock bool) (Repository, error) {
	cl := resty.New().SetBaseURL(url).SetTimeout(time.Second * 10)
	cl.SetHeader("Content-Type", "application/json")
	cl.SetHeader("Accept", "application/json")
	cl.SetBasicAuth(username, password)

	if mock {
		httpmock.ActivateNonDefault(cl.GetClient())
	}

	existsRes, existsErr := cl.R().Head(dbName)
	if existsErr != nil {
		return nil, fmt.Errorf("failed to check if database exists: %s", existsErr.Error())
	}
	if existsRes.StatusCode() == 200 {
		return &CouchDBRepository{cl, dbName}, nil
	}

	var ok types.OK
	var dbErr types.CouchDBError
	// create DB since it doesn't exist
	cl.R().SetResult(&ok).SetError(&dbErr).Put(dbName)
	if dbErr.Error != "" {
		return nil, fmt.Errorf("failed to create database %s: %s", dbName, dbErr.Error)
	}
	if !ok.IsOK {
		return nil, fmt.Errorf("failed to create database %s", dbName)
	}
	return &CouchDBRepository{cl, dbName}, nil
}

// GetByID returns a document by its ID
func (c *CouchDBRepository) GetByID(ctx context.Context, id string) (interface{}, error) {
	response, err := c.client.R().SetContext(ctx).Get(fmt.Sprintf("%s/%s", c.dbName, id))
	if err != nil {
		return nil, mapTransportError(err)
	}
	if response.IsError() {
		return nil, handleError(response)
	}
	return response, nil
}

// Save creates a new doc. The write either lands whole or not at all; CouchDB
// document writes are atomic, which is why a submission and its wrapped keys
// share a single document.
func (c *CouchDBRepository) Save(ctx context.Context, docID string, data interface{}) error {
	var dbErr types.CouchDBError
	response, err := c.client.R().SetContext(ctx).SetBody(data).SetError(&dbErr).Put(fmt.Sprintf("%s/%s", c.dbName, url.PathEscape(docID)))
	if err != nil {
		return mapTransportError(err)
	}
	if response.IsError() {
		return handleError(response)
	}
	return nil
}

// Update updates an existing document. The body must carry the current _rev
// or CouchDB rejects the write with a conflict.
func (c *CouchDBRepository) Update(ctx context.Context, id string, data interface{}) (interface{}, error) {
	var dbErr types.CouchDBError
	response, err := c.client.R().SetContext(ctx).SetBody(data).SetError(&dbErr).Put(fmt.Sprintf("%s/%s", c.dbName, url.PathEscape(id)))
	if err != nil {
		return nil, mapTransportError(err)
	}
	if response.IsError() {
		return nil, handleError(response)
	}
	return response, nil
}

// Delete removes a document at a specific revision. Removing a submission
// document deletes its ciphertext and every wrapped key in one operation.
func (c *CouchDBRepository) Delete(ctx context.Context, id string, rev string) error {
	var delErr types.CouchDBError
	response, err := c.client.R().SetContext(ctx).SetError(&delErr).SetQueryParam("rev", rev).Delete(fmt.Sprintf("%s/%s", c.dbName, url.PathEscape(id)))
	if err != nil {
		return mapTransportError(err)
	}
	if response.IsError() {
		return handleError(response)
	}
	return nil
}

// Find runs a mango selector query against the database
func (c *CouchDBRepository) Find(ctx context.Context, selector map[string]interface{}) (interface{}, error) {
	var dbErr types.CouchDBError
	response, err := c.client.R().SetContext(ctx).SetBody(selector).SetError(&dbErr).Post(fmt.Sprintf("%s/_find", c.dbName))
	if err != nil {
		return nil, mapTransportError(err)
	}
	if response.IsError() {
		return nil, handleError(response)
	}
	return response, nil
}

// return name of the database
func (c *CouchDBRepository) GetDBName() string {
	return c.dbName
}

// returns a resty client
func (c *CouchDBRepository) GetClient() interface{} {
	return c.client
}

// a timed out or unreachable store surfaces as ErrStoreUnavailable; the
// caller must not assume a partial write occurred
func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.ErrStoreUnavailable
	}
	var uErr *url.Error
	if errors.As(err, &uErr) {
		return types.ErrStoreUnavailable
	}
	return err
}
