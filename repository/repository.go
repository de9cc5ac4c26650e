package repository

import (
	"context"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (interface{}, error)
	Save(ctx context.Context, docID string, data interface{}) error
	Update(ctx context.Context, id string, data interface{}) (interface{}, error)
	Delete(ctx context.Context, id string, rev string) error
	Find(ctx context.Context, selector map[string]interface{}) (interface{}, error)
	GetDBName() string
	GetClient() interface{}
}

type DBSelector interface {
	AddDB(db Repository)
	ChooseDB(dbName string) (Repository, error)
}
