package repository

import "github.com/tipline/go-tipline-server/types"

const (
	// CouchDB database names
	Submission = "submissions"
	Recipient  = "recipients"
	Comment    = "comments"
	Message    = "messages"
	Audit      = "audit"
	Nonce      = "nonce"
	Settings   = "settings"
)

type CouchDBSelector struct {
	dbs []Repository
}

func NewCouchDBSelector() *CouchDBSelector {
	return &CouchDBSelector{}
}

// adds a database to the database selector
func (c *CouchDBSelector) AddDB(db Repository) {
	c.dbs = append(c.dbs, db)
}

// returns the required database
func (c *CouchDBSelector) ChooseDB(dbName string) (Repository, error) {
	if len(c.dbs) == 0 {
		return nil, types.ErrNotFound
	}
	for i, r := range c.dbs {
		if r.GetDBName() == dbName {
			return c.dbs[i], nil
		}
	}
	return nil, types.ErrNotFound
}
