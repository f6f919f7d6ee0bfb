package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"golang.org/x/sync/errgroup"
)

const dropConcurrency = 16

// FileSystemCatalog keeps databases and tables as directories under a warehouse root.
type FileSystemCatalog struct {
	store  storage.ExternalStorage
	logger *slog.Logger
}

// NewFileSystemCatalog opens a catalog over store. A nil logger means slog.Default().
func NewFileSystemCatalog(store storage.ExternalStorage, logger *slog.Logger) *FileSystemCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSystemCatalog{store: store, logger: logger}
}

// Storage returns the warehouse storage.
func (c *FileSystemCatalog) Storage() storage.ExternalStorage {
	return c.store
}

func (c *FileSystemCatalog) DatabaseExists(ctx context.Context, name string) (bool, error) {
	exists, err := c.store.FileExists(ctx, path.Join(databasePath(name), databaseMarkerFile))
	return exists, errors.Trace(err)
}

// CreateDatabase creates database name. With ignoreIfExists an existing database is not an error.
func (c *FileSystemCatalog) CreateDatabase(ctx context.Context, name string, ignoreIfExists bool) error {
	if name == "" || strings.ContainsAny(name, "/.") {
		return errors.Errorf("invalid database name %q", name)
	}
	exists, err := c.DatabaseExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if ignoreIfExists {
			return nil
		}
		return errors.Annotatef(ErrDatabaseAlreadyExist, "database %s", name)
	}

	marker, err := json.Marshal(map[string]any{"name": name, "createdAt": time.Now().UnixMilli()})
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.store.WriteFile(ctx, path.Join(databasePath(name), databaseMarkerFile), marker); err != nil {
		return errors.Annotatef(err, "create database %s", name)
	}
	c.logger.Info("created database", "database", name)
	return nil
}

func (c *FileSystemCatalog) schemaPath(id Identifier, schemaID int64) string {
	return path.Join(tablePath(id), schemaDir, schemaPrefix+strconv.FormatInt(schemaID, 10))
}

// latestSchemaID returns the highest schema id of a table, ok is false when the table has none.
func (c *FileSystemCatalog) latestSchemaID(ctx context.Context, id Identifier) (int64, bool, error) {
	latest, ok := int64(-1), false
	err := c.store.WalkDir(ctx, &storage.WalkOption{SubDir: path.Join(tablePath(id), schemaDir)},
		func(p string, _ int64) error {
			name := path.Base(p)
			if !strings.HasPrefix(name, schemaPrefix) {
				return nil
			}
			n, err := strconv.ParseInt(strings.TrimPrefix(name, schemaPrefix), 10, 64)
			if err != nil {
				return nil
			}
			latest, ok = max(latest, n), true
			return nil
		})
	return latest, ok, errors.Trace(err)
}

func (c *FileSystemCatalog) TableExists(ctx context.Context, id Identifier) (bool, error) {
	_, ok, err := c.latestSchemaID(ctx, id)
	return ok, err
}

// CreateTable persists schema as version 0 of table id. The database must exist.
func (c *FileSystemCatalog) CreateTable(ctx context.Context, id Identifier, schema Schema, ignoreIfExists bool) error {
	if id.Table == "" || strings.ContainsAny(id.Table, "/") {
		return errors.Errorf("invalid table name %q", id.Table)
	}
	dbExists, err := c.DatabaseExists(ctx, id.Database)
	if err != nil {
		return err
	}
	if !dbExists {
		return errors.Annotatef(ErrDatabaseNotExist, "database %s", id.Database)
	}
	exists, err := c.TableExists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		if ignoreIfExists {
			return nil
		}
		return errors.Annotatef(ErrTableAlreadyExist, "table %s", id)
	}

	ts := newTableSchema(0, schema)
	if _, _, err := ts.PartitionType(); err != nil {
		return err
	}
	data, err := ts.encode()
	if err != nil {
		return err
	}
	if err := c.store.WriteFile(ctx, c.schemaPath(id, ts.ID), data); err != nil {
		return errors.Annotatef(err, "create table %s", id)
	}
	c.logger.Info("created table", "table", id.FullName(), "columns", len(ts.Fields),
		"partitionKeys", ts.PartitionKeys)
	return nil
}

// GetTable loads table id with its latest schema.
func (c *FileSystemCatalog) GetTable(ctx context.Context, id Identifier) (*FileStoreTable, error) {
	schemaID, ok, err := c.latestSchemaID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Annotatef(ErrTableNotExist, "table %s", id)
	}
	data, err := c.store.ReadFile(ctx, c.schemaPath(id, schemaID))
	if err != nil {
		return nil, errors.Annotatef(err, "read schema %d of %s", schemaID, id)
	}
	ts, err := decodeTableSchema(data)
	if err != nil {
		return nil, errors.Annotatef(err, "table %s", id)
	}
	return newFileStoreTable(c.store, id, ts, c.logger)
}

// DropTable deletes every file below the table directory.
func (c *FileSystemCatalog) DropTable(ctx context.Context, id Identifier, ignoreIfNotExists bool) error {
	exists, err := c.TableExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		if ignoreIfNotExists {
			return nil
		}
		return errors.Annotatef(ErrTableNotExist, "table %s", id)
	}

	var files []string
	err = c.store.WalkDir(ctx, &storage.WalkOption{SubDir: tablePath(id)}, func(p string, _ int64) error {
		files = append(files, p)
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}

	// Schema files go last so a partial drop still leaves a readable table.
	var rest, schemas []string
	for _, f := range files {
		if isSchemaFile(f) {
			schemas = append(schemas, f)
		} else {
			rest = append(rest, f)
		}
	}
	for _, batch := range [][]string{rest, schemas} {
		if err := c.deleteFiles(ctx, batch); err != nil {
			return err
		}
	}
	c.logger.Info("dropped table", "table", id.FullName(), "files", len(files))
	return nil
}

func isSchemaFile(p string) bool {
	return path.Base(path.Dir(p)) == schemaDir && strings.HasPrefix(path.Base(p), schemaPrefix)
}

func (c *FileSystemCatalog) deleteFiles(ctx context.Context, files []string) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(dropConcurrency)
	for _, f := range files {
		eg.Go(func() error {
			return errors.Annotatef(c.store.DeleteFile(ctx, f), "delete %s", f)
		})
	}
	return eg.Wait()
}
