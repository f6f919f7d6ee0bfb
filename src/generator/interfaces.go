package generator

import (
	"context"

	"paimonWriter/src/store"
)

// Catalog is the part of the table store catalog the writer needs.
type Catalog interface {
	CreateDatabase(ctx context.Context, name string, ignoreIfExists bool) error
	CreateTable(ctx context.Context, id store.Identifier, schema store.Schema, ignoreIfExists bool) error
	GetTable(ctx context.Context, id store.Identifier) (*store.FileStoreTable, error)
}
