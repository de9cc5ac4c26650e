package repository

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/types"
)

func createDesignAndView(databaseName string, designName string, viewName string, mapFunction string, reduceFunction string) error {
	client := resty.New().SetTimeout(time.Second*10).SetBasicAuth(global.Conf.CouchDB.Username, global.Conf.CouchDB.Password)

	host := ""
	scheme := global.Conf.CouchDB.Scheme
	if scheme == "" {
		scheme = "http"
	}
	if global.Conf.CouchDB.Port != 0 {
		host = fmt.Sprintf("%s://%s:%d", scheme, global.Conf.CouchDB.Host, global.Conf.CouchDB.Port)
	} else {
		host = fmt.Sprintf("%s://%s", scheme, global.Conf.CouchDB.Host)
	}
	url := fmt.Sprintf("%s/%s/_design/%s/_view/%s", host, databaseName, designName, viewName)
	existingResponse, eErr := client.R().Head(url)
	if eErr != nil {
		return eErr
	}
	if existingResponse.IsError() && existingResponse.StatusCode() != 404 {
		return fmt.Errorf("failed to check design %s with view %s: %s", designName, viewName, existingResponse.Status())
	}
	if existingResponse.StatusCode() == 200 {
		return nil // view already exists
	}

	ddoc := &types.DesignDocument{
		Language: "javascript",
		Views: map[string]types.MapFunction{
			viewName: {
				Map: mapFunction,
			},
		},
	}
	if reduceFunction != "" {
		temp := ddoc.Views[viewName]
		temp.Reduce = reduceFunction
		ddoc.Views[viewName] = temp
	}
	url = fmt.Sprintf("%s/%s/_design/%s", host, databaseName, designName)
	resp, err := client.R().SetBody(ddoc).Put(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return handleError(resp)
	}
	return nil
}

// CreateDesign_ExpiredSubmissions indexes submissions by expiry timestamp so
// the retention sweep can page through everything past its deadline.
func CreateDesign_ExpiredSubmissions(databaseName string, designName string, viewName string) error {
	mapFunction := `function(doc)
						{
							if (doc.expires && doc.status !== "purged") {
								emit(doc.expires, doc._rev);
							}
						}`
	return createDesignAndView(databaseName, designName, viewName, mapFunction, "")
}

// CreateDesign_SubmissionsByRecipient indexes wrapped keys by recipient so a
// recipient's tip list is a single view query.
func CreateDesign_SubmissionsByRecipient(databaseName string, designName string, viewName string) error {
	mapFunction := `function(doc)
						{
							if (doc.wrappedKeys) {
								doc.wrappedKeys.forEach(function(wk) {
									emit([wk.recipientId, doc.created], null);
								});
							}
						}`
	return createDesignAndView(databaseName, designName, viewName, mapFunction, "")
}

// CreateDesign_ExpiredNonces indexes access nonces by creation time for the
// periodic cleanup job.
func CreateDesign_ExpiredNonces(databaseName string, designName string, viewName string) error {
	mapFunction := `function(doc)
						{
							if (doc.created) {
								emit(doc.created, doc._rev);
							}
						}`
	return createDesignAndView(databaseName, designName, viewName, mapFunction, "")
}
