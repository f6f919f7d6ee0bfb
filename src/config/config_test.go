package config

import (
	"os"
	"path/filepath"
	"testing"

	"paimonWriter/src/store"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromArgs(t *testing.T) {
	var cfg Config
	require.NoError(t, FromArgs(&cfg, []string{"/tmp/warehouse", "db", "tbl", "0", "3", "2"}))
	assert.Equal(t, CommonConfig{
		Path:          "/tmp/warehouse",
		Database:      "db",
		Table:         "tbl",
		StartID:       0,
		RowsPerCommit: 3,
		CommitTimes:   2,
	}, cfg.Common)
	assert.Equal(t, store.NewIdentifier("db", "tbl"), cfg.Identifier())

	// extra arguments are ignored
	require.NoError(t, FromArgs(&cfg, []string{"s3://bucket/wh", "db", "tbl", "-10", "1", "1", "extra"}))
	assert.Equal(t, int64(-10), cfg.Common.StartID)
}

func TestFromArgsUsage(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"/tmp/warehouse", "db", "tbl", "0", "3"},
		{"/tmp/warehouse", "db", "tbl", "zero", "3", "2"},
		{"/tmp/warehouse", "db", "tbl", "0", "3.5", "2"},
	} {
		var cfg Config
		err := FromArgs(&cfg, args)
		require.Error(t, err)
		assert.Equal(t, ErrUsage, errors.Cause(err))
	}
}

func TestFromTableArgs(t *testing.T) {
	var cfg Config
	assert.Error(t, FromTableArgs(&cfg, []string{"/tmp/warehouse", "db"}))
	require.NoError(t, FromTableArgs(&cfg, []string{"/tmp/warehouse", "db", "tbl"}))
	assert.Equal(t, "tbl", cfg.Common.Table)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Common: CommonConfig{Path: "/tmp/wh", Database: "db", Table: "tbl", RowsPerCommit: 1, CommitTimes: 0}}
	}
	require.NoError(t, Validate(valid()))

	cfg := valid()
	cfg.Common.Database = "a.b"
	cfg.Common.RowsPerCommit = -1
	cfg.Common.CommitTimes = -1
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database must not contain")
	assert.Contains(t, err.Error(), "rowsPerCommit must be >= 0")
	assert.Contains(t, err.Error(), "commitTimes must be >= 0")

	cfg = valid()
	cfg.S3Config = &S3Config{}
	cfg.GCSConfig = &GCSConfig{}
	assert.Error(t, Validate(cfg))
}

func TestNormalizeAndDynamicOptions(t *testing.T) {
	cfg := &Config{
		Table:   TableConfig{Options: map[string]string{"manifest.compression": "zstd"}},
		Parquet: ParquetConfig{PageSize: "64KiB", Compression: "snappy", TargetFileSize: "1MB"},
	}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, int64(64<<10), cfg.Parquet.PageSizeBytes)
	assert.Equal(t, int64(1<<20), cfg.Parquet.TargetFileSizeBytes)
	assert.Equal(t, map[string]string{
		"manifest.compression":      "zstd",
		store.OptionFileCompression: "snappy",
		store.OptionParquetPageSize: "65536",
		store.OptionTargetFileSize:  "1048576",
	}, cfg.DynamicOptions())

	cfg.Parquet.PageSize = "lots"
	assert.Error(t, Normalize(cfg))
	cfg.Parquet.PageSize = "0"
	assert.Error(t, Normalize(cfg))
}

func TestScratchRoot(t *testing.T) {
	cfg := &Config{Common: CommonConfig{Path: "/tmp/wh"}}
	assert.Equal(t, "/tmp/wh", cfg.ScratchRoot())
	cfg.Common.Path = "local:///tmp/wh"
	assert.Equal(t, "/tmp/wh", cfg.ScratchRoot())
	cfg.Common.Path = "s3://bucket/wh"
	assert.Equal(t, "", cfg.ScratchRoot())
	cfg.Common.ScratchDir = "/scratch"
	assert.Equal(t, "/scratch", cfg.ScratchRoot())
}

func TestDecodeConfigFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(`
[common]
scratch_dir = "/scratch"

[table]
sql = "schema.sql"
[table.options]
"file.compression" = "gzip"

[parquet]
page_size = "1MB"

[s3]
region = "us-west-2"
force = true
`), 0o644))

	var cfg Config
	_, err := toml.DecodeFile(p, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "/scratch", cfg.Common.ScratchDir)
	assert.Equal(t, "schema.sql", cfg.Table.SQLPath)
	assert.Equal(t, "gzip", cfg.Table.Options["file.compression"])
	assert.Equal(t, "1MB", cfg.Parquet.PageSize)
	require.NotNil(t, cfg.S3Config)
	assert.True(t, cfg.S3Config.Force)
	assert.Nil(t, cfg.GCSConfig)
}
