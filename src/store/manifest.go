package store

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/hamba/avro/v2/ocf"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

const statsFields = `[
	{"name": "_MIN_VALUES", "type": "bytes"},
	{"name": "_MAX_VALUES", "type": "bytes"},
	{"name": "_NULL_COUNTS", "type": {"type": "array", "items": ["null", "long"]}}
]`

// Avro schema of one manifest entry: a data file added to or removed from a bucket.
var manifestEntryAvroSchema = `{
	"type": "record",
	"name": "ManifestEntry",
	"namespace": "org.apache.paimon.avro.generated",
	"fields": [
		{"name": "_VERSION", "type": "int"},
		{"name": "_KIND", "type": "int"},
		{"name": "_PARTITION", "type": "bytes"},
		{"name": "_BUCKET", "type": "int"},
		{"name": "_TOTAL_BUCKETS", "type": "int"},
		{"name": "_FILE", "type": {
			"type": "record",
			"name": "DataFileMeta",
			"fields": [
				{"name": "_FILE_NAME", "type": "string"},
				{"name": "_FILE_SIZE", "type": "long"},
				{"name": "_ROW_COUNT", "type": "long"},
				{"name": "_MIN_KEY", "type": "bytes"},
				{"name": "_MAX_KEY", "type": "bytes"},
				{"name": "_KEY_STATS", "type": {"type": "record", "name": "KeyStats", "fields": ` + statsFields + `}},
				{"name": "_VALUE_STATS", "type": {"type": "record", "name": "ValueStats", "fields": ` + statsFields + `}},
				{"name": "_MIN_SEQUENCE_NUMBER", "type": "long"},
				{"name": "_MAX_SEQUENCE_NUMBER", "type": "long"},
				{"name": "_SCHEMA_ID", "type": "long"},
				{"name": "_LEVEL", "type": "int"},
				{"name": "_EXTRA_FILES", "type": {"type": "array", "items": "string"}},
				{"name": "_CREATION_TIME", "type": ["null", "long"], "default": null},
				{"name": "_DELETE_ROW_COUNT", "type": ["null", "long"], "default": null},
				{"name": "_EMBEDDED_FILE_INDEX", "type": ["null", "bytes"], "default": null},
				{"name": "_FILE_SOURCE", "type": ["null", "int"], "default": null}
			]
		}}
	]
}`

// Avro schema of one manifest list row.
var manifestFileMetaAvroSchema = `{
	"type": "record",
	"name": "ManifestFileMeta",
	"namespace": "org.apache.paimon.avro.generated",
	"fields": [
		{"name": "_VERSION", "type": "int"},
		{"name": "_FILE_NAME", "type": "string"},
		{"name": "_FILE_SIZE", "type": "long"},
		{"name": "_NUM_ADDED_FILES", "type": "long"},
		{"name": "_NUM_DELETED_FILES", "type": "long"},
		{"name": "_PARTITION_STATS", "type": {"type": "record", "name": "PartitionStats", "fields": ` + statsFields + `}},
		{"name": "_SCHEMA_ID", "type": "long"}
	]
}`

const (
	manifestEntryVersion    = 2
	manifestFileMetaVersion = 2
)

// FileKind tells whether a manifest entry adds or deletes a file.
type FileKind int

const (
	FileKindAdd FileKind = iota
	FileKindDelete
)

func (k FileKind) String() string {
	if k == FileKindDelete {
		return "DELETE"
	}
	return "ADD"
}

// FileSource tells how a data file came to be.
const (
	FileSourceAppend  = 0
	FileSourceCompact = 1
)

// DataFileMeta describes one data file.
type DataFileMeta struct {
	FileName          string      `avro:"_FILE_NAME"`
	FileSize          int64       `avro:"_FILE_SIZE"`
	RowCount          int64       `avro:"_ROW_COUNT"`
	MinKey            []byte      `avro:"_MIN_KEY"`
	MaxKey            []byte      `avro:"_MAX_KEY"`
	KeyStats          SimpleStats `avro:"_KEY_STATS"`
	ValueStats        SimpleStats `avro:"_VALUE_STATS"`
	MinSequenceNumber int64       `avro:"_MIN_SEQUENCE_NUMBER"`
	MaxSequenceNumber int64       `avro:"_MAX_SEQUENCE_NUMBER"`
	SchemaID          int64       `avro:"_SCHEMA_ID"`
	Level             int         `avro:"_LEVEL"`
	ExtraFiles        []string    `avro:"_EXTRA_FILES"`
	CreationTime      *int64      `avro:"_CREATION_TIME"`
	DeleteRowCount    *int64      `avro:"_DELETE_ROW_COUNT"`
	EmbeddedIndex     []byte      `avro:"_EMBEDDED_FILE_INDEX"`
	FileSource        *int        `avro:"_FILE_SOURCE"`
}

// ManifestEntry is one row of a manifest file.
type ManifestEntry struct {
	Version      int          `avro:"_VERSION"`
	Kind         FileKind     `avro:"_KIND"`
	Partition    []byte       `avro:"_PARTITION"`
	Bucket       int          `avro:"_BUCKET"`
	TotalBuckets int          `avro:"_TOTAL_BUCKETS"`
	File         DataFileMeta `avro:"_FILE"`
}

// fileKey identifies a data file across manifests.
func (e ManifestEntry) fileKey() string {
	return string(e.Partition) + "\x00" + strconv.Itoa(e.Bucket) + "\x00" + e.File.FileName
}

// ManifestFileMeta is one row of a manifest list.
type ManifestFileMeta struct {
	Version         int         `avro:"_VERSION"`
	FileName        string      `avro:"_FILE_NAME"`
	FileSize        int64       `avro:"_FILE_SIZE"`
	NumAddedFiles   int64       `avro:"_NUM_ADDED_FILES"`
	NumDeletedFiles int64       `avro:"_NUM_DELETED_FILES"`
	PartitionStats  SimpleStats `avro:"_PARTITION_STATS"`
	SchemaID        int64       `avro:"_SCHEMA_ID"`
}

// manifestIO reads and writes manifest files and manifest lists of one table.
type manifestIO struct {
	store    storage.ExternalStorage
	paths    *pathFactory
	codec    ocf.CodecName
	partType RowType
}

func manifestCodec(name string) (ocf.CodecName, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "deflate":
		return ocf.Deflate, nil
	case "snappy":
		return ocf.Snappy, nil
	case "zstd", "zstandard":
		return ocf.ZStandard, nil
	case "none", "null", "uncompressed":
		return ocf.Null, nil
	default:
		return "", errors.Errorf("unsupported manifest compression: %q", name)
	}
}

func encodeOCF[T any](schema string, codec ocf.CodecName, rows []T) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(schema, &buf, ocf.WithCodec(codec))
	if err != nil {
		return nil, errors.Annotate(err, "create avro encoder")
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return nil, errors.Annotate(err, "encode avro record")
		}
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Annotate(err, "close avro encoder")
	}
	return buf.Bytes(), nil
}

func decodeOCF[T any](data []byte) ([]T, error) {
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Annotate(err, "create avro decoder")
	}
	var rows []T
	for dec.HasNext() {
		var row T
		if err := dec.Decode(&row); err != nil {
			return nil, errors.Annotate(err, "decode avro record")
		}
		rows = append(rows, row)
	}
	return rows, errors.Trace(dec.Error())
}

// writeManifest stores entries in a new manifest file and returns its list row.
func (m *manifestIO) writeManifest(ctx context.Context, entries []ManifestEntry, schemaID int64) (ManifestFileMeta, error) {
	partTypes := m.partType.FieldTypes()
	partStats := newStatsCollector(partTypes)
	var added, deleted int64
	for i := range entries {
		entries[i].Version = manifestEntryVersion
		partition, err := deserializeBinaryRow(entries[i].Partition, partTypes)
		if err != nil {
			return ManifestFileMeta{}, errors.Annotate(err, "partition of manifest entry")
		}
		partStats.collect(partition)
		if entries[i].Kind == FileKindAdd {
			added++
		} else {
			deleted++
		}
	}
	stats, err := partStats.result()
	if err != nil {
		return ManifestFileMeta{}, err
	}

	data, err := encodeOCF(manifestEntryAvroSchema, m.codec, entries)
	if err != nil {
		return ManifestFileMeta{}, err
	}
	name := m.paths.newManifestFile()
	if err := m.store.WriteFile(ctx, m.paths.manifestPath(name), data); err != nil {
		return ManifestFileMeta{}, errors.Annotatef(err, "write manifest %s", name)
	}
	return ManifestFileMeta{
		Version:         manifestFileMetaVersion,
		FileName:        name,
		FileSize:        int64(len(data)),
		NumAddedFiles:   added,
		NumDeletedFiles: deleted,
		PartitionStats:  stats,
		SchemaID:        schemaID,
	}, nil
}

func (m *manifestIO) readManifest(ctx context.Context, name string) ([]ManifestEntry, error) {
	data, err := m.store.ReadFile(ctx, m.paths.manifestPath(name))
	if err != nil {
		return nil, errors.Annotatef(err, "read manifest %s", name)
	}
	entries, err := decodeOCF[ManifestEntry](data)
	return entries, errors.Annotatef(err, "manifest %s", name)
}

func (m *manifestIO) writeManifestList(ctx context.Context, metas []ManifestFileMeta) (string, error) {
	data, err := encodeOCF(manifestFileMetaAvroSchema, m.codec, metas)
	if err != nil {
		return "", err
	}
	name := m.paths.newManifestList()
	if err := m.store.WriteFile(ctx, m.paths.manifestPath(name), data); err != nil {
		return "", errors.Annotatef(err, "write manifest list %s", name)
	}
	return name, nil
}

func (m *manifestIO) readManifestList(ctx context.Context, name string) ([]ManifestFileMeta, error) {
	data, err := m.store.ReadFile(ctx, m.paths.manifestPath(name))
	if err != nil {
		return nil, errors.Annotatef(err, "read manifest list %s", name)
	}
	metas, err := decodeOCF[ManifestFileMeta](data)
	return metas, errors.Annotatef(err, "manifest list %s", name)
}

// readEntries reads every manifest listed in the given manifest lists, in order.
func (m *manifestIO) readEntries(ctx context.Context, lists ...string) ([]ManifestEntry, error) {
	var entries []ManifestEntry
	for _, list := range lists {
		metas, err := m.readManifestList(ctx, list)
		if err != nil {
			return nil, err
		}
		for _, meta := range metas {
			e, err := m.readManifest(ctx, meta.FileName)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e...)
		}
	}
	return entries, nil
}

// mergeEntries drops added files that a later entry deleted.
func mergeEntries(entries []ManifestEntry) []ManifestEntry {
	deleted := make(map[string]struct{})
	for _, e := range entries {
		if e.Kind == FileKindDelete {
			deleted[e.fileKey()] = struct{}{}
		}
	}
	live := make([]ManifestEntry, 0, len(entries))
	for _, e := range entries {
		if e.Kind != FileKindAdd {
			continue
		}
		if _, ok := deleted[e.fileKey()]; ok {
			continue
		}
		live = append(live, e)
	}
	return live
}
