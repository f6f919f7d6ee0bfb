package store

import (
	"log/slog"
	"maps"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/hamba/avro/v2/ocf"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

// Table options understood by the store.
const (
	OptionFileFormat          = "file.format"
	OptionFileCompression     = "file.compression"
	OptionTargetFileSize      = "target-file-size"
	OptionParquetPageSize     = "parquet.page-size"
	OptionManifestCompression = "manifest.compression"
	OptionBucket              = "bucket"
)

var defaultOptions = map[string]string{
	OptionFileFormat:          "parquet",
	OptionFileCompression:     "zstd",
	OptionTargetFileSize:      "128MB",
	OptionParquetPageSize:     "1MB",
	OptionManifestCompression: "deflate",
	OptionBucket:              "-1",
}

// tableOptions is the parsed form of the options of a table.
type tableOptions struct {
	fileFormat          string
	fileCompression     string
	targetFileSize      int64
	parquetPageSize     int64
	manifestCompression ocf.CodecName
	bucket              int
}

func parseOptions(raw map[string]string) (tableOptions, error) {
	get := func(key string) string {
		if v, ok := raw[key]; ok {
			return strings.TrimSpace(v)
		}
		return defaultOptions[key]
	}

	var (
		opts tableOptions
		err  error
	)
	opts.fileFormat = strings.ToLower(get(OptionFileFormat))
	if opts.fileFormat != "parquet" {
		return opts, errors.Annotatef(ErrUnsupported, "%s=%s", OptionFileFormat, opts.fileFormat)
	}
	opts.fileCompression = get(OptionFileCompression)
	if _, err = getParquetCompressionCodec(opts.fileCompression); err != nil {
		return opts, err
	}
	if opts.targetFileSize, err = units.RAMInBytes(get(OptionTargetFileSize)); err != nil {
		return opts, errors.Annotatef(err, "option %s", OptionTargetFileSize)
	}
	if opts.parquetPageSize, err = units.RAMInBytes(get(OptionParquetPageSize)); err != nil {
		return opts, errors.Annotatef(err, "option %s", OptionParquetPageSize)
	}
	if opts.manifestCompression, err = manifestCodec(get(OptionManifestCompression)); err != nil {
		return opts, err
	}
	if opts.bucket, err = strconv.Atoi(get(OptionBucket)); err != nil {
		return opts, errors.Annotatef(err, "option %s", OptionBucket)
	}
	if opts.targetFileSize <= 0 || opts.parquetPageSize <= 0 {
		return opts, errors.Errorf("%s and %s must be positive", OptionTargetFileSize, OptionParquetPageSize)
	}
	return opts, nil
}

// FileStoreTable is a handle on one table at a fixed schema.
type FileStoreTable struct {
	store    storage.ExternalStorage
	id       Identifier
	schema   *TableSchema
	options  map[string]string
	parsed   tableOptions
	partType RowType
	partIdx  []int
	logger   *slog.Logger
}

func newFileStoreTable(store storage.ExternalStorage, id Identifier, schema *TableSchema, logger *slog.Logger) (*FileStoreTable, error) {
	return newFileStoreTableWithOptions(store, id, schema, maps.Clone(schema.Options), logger)
}

func newFileStoreTableWithOptions(
	store storage.ExternalStorage,
	id Identifier,
	schema *TableSchema,
	options map[string]string,
	logger *slog.Logger,
) (*FileStoreTable, error) {
	if options == nil {
		options = map[string]string{}
	}
	parsed, err := parseOptions(options)
	if err != nil {
		return nil, errors.Annotatef(err, "table %s", id)
	}
	partType, partIdx, err := schema.PartitionType()
	if err != nil {
		return nil, err
	}
	return &FileStoreTable{
		store:    store,
		id:       id,
		schema:   schema,
		options:  options,
		parsed:   parsed,
		partType: partType,
		partIdx:  partIdx,
		logger:   logger.With("table", id.FullName()),
	}, nil
}

func (t *FileStoreTable) Identifier() Identifier { return t.id }

func (t *FileStoreTable) Schema() *TableSchema { return t.schema }

func (t *FileStoreTable) RowType() RowType { return t.schema.RowType() }

func (t *FileStoreTable) PartitionKeys() []string { return t.schema.PartitionKeys }

func (t *FileStoreTable) PrimaryKeys() []string { return t.schema.PrimaryKeys }

// Options returns the effective options, including dynamic ones.
func (t *FileStoreTable) Options() map[string]string { return maps.Clone(t.options) }

// Location returns the table directory relative to the warehouse root.
func (t *FileStoreTable) Location() string { return tablePath(t.id) }

// Copy returns a handle whose options are overridden by dynamicOptions. Nothing is persisted.
func (t *FileStoreTable) Copy(dynamicOptions map[string]string) (*FileStoreTable, error) {
	options := maps.Clone(t.options)
	maps.Copy(options, dynamicOptions)
	return newFileStoreTableWithOptions(t.store, t.id, t.schema, options, t.logger)
}

func (t *FileStoreTable) SnapshotManager() *SnapshotManager {
	return newSnapshotManager(t.store, t.Location())
}

func (t *FileStoreTable) NewBatchWriteBuilder() *BatchWriteBuilder {
	return &BatchWriteBuilder{table: t, commitUser: newCommitUser()}
}

func (t *FileStoreTable) NewReadBuilder() *ReadBuilder {
	return &ReadBuilder{table: t}
}

func (t *FileStoreTable) newManifestIO(paths *pathFactory) *manifestIO {
	return &manifestIO{
		store:    t.store,
		paths:    paths,
		codec:    t.parsed.manifestCompression,
		partType: t.partType,
	}
}
