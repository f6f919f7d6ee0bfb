package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"paimonWriter/src/config"
	"paimonWriter/src/store"

	"github.com/pingcap/tidb/br/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	var cfg config.Config
	require.NoError(t, config.FromArgs(&cfg, append([]string{t.TempDir(), "db", "tbl"}, args...)))
	require.NoError(t, config.Normalize(&cfg))
	require.NoError(t, config.Validate(&cfg))
	return &cfg
}

func openCatalog(t *testing.T, cfg *config.Config) *store.FileSystemCatalog {
	t.Helper()
	es, err := storage.NewLocalStorage(cfg.Common.Path)
	require.NoError(t, err)
	return store.NewFileSystemCatalog(es, nil)
}

func TestWriteRounds(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t, "0", "3", "2")
	require.NoError(t, WriteRounds(ctx, cfg, 0, slog.Default()))

	table, err := openCatalog(t, cfg).GetTable(ctx, cfg.Identifier())
	require.NoError(t, err)
	assert.Equal(t, []string{"f_string", "f_int", "f_bigint"}, table.RowType().FieldNames())
	assert.Equal(t, []string{"f_string"}, table.PartitionKeys())

	snapshot, err := table.SnapshotManager().LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, int64(2), snapshot.ID)
	assert.Equal(t, int64(6), snapshot.TotalRecordCount)

	// scratch directories are cleaned up
	entries, err := os.ReadDir(cfg.Common.Path)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, "db.db", e.Name())
	}

	require.NoError(t, ShowTable(ctx, cfg, slog.Default()))
	require.NoError(t, ScanTable(ctx, cfg, -1, 0, 2, 4, slog.Default()))
	require.NoError(t, ScanTable(ctx, cfg, 1, 0, 2, 0, slog.Default()))
	require.NoError(t, ScanTable(ctx, cfg, -1, 1, 2, 0, slog.Default()))
	require.NoError(t, DropTable(ctx, cfg, slog.Default()))

	_, err = openCatalog(t, cfg).GetTable(ctx, cfg.Identifier())
	assert.True(t, store.IsNotExist(err))
}

func TestWriteRoundsProvisionOnly(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t, "0", "3", "0")
	require.NoError(t, WriteRounds(ctx, cfg, 0, slog.Default()))

	catalog := openCatalog(t, cfg)
	exists, err := catalog.TableExists(ctx, cfg.Identifier())
	require.NoError(t, err)
	assert.True(t, exists)
	table, err := catalog.GetTable(ctx, cfg.Identifier())
	require.NoError(t, err)
	_, ok, err := table.SnapshotManager().LatestSnapshotID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteRoundsFromSQL(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t, "5", "2", "1")
	cfg.Table.SQLPath = filepath.Join(t.TempDir(), "t.sql")
	require.NoError(t, os.WriteFile(cfg.Table.SQLPath,
		[]byte("CREATE TABLE t (id BIGINT, name VARCHAR(32), blob_col BLOB);"), 0o644))

	err := WriteRounds(ctx, cfg, 0, slog.Default())
	require.Error(t, err)

	// the table exists with the SQL schema even though the round failed
	table, err := openCatalog(t, cfg).GetTable(ctx, cfg.Identifier())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "blob_col"}, table.RowType().FieldNames())
}

func TestUsageErrorNeverTouchesStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "warehouse")
	var cfg config.Config
	err := config.FromArgs(&cfg, []string{dir, "db", "tbl", "0", "3"})
	require.Error(t, err)
	assert.NoDirExists(t, dir)
}
