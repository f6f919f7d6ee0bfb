package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
)

const (
	unawareBucket      = 0
	unawareTotalBucket = -1
)

func newCommitUser() string {
	return uuid.New().String()
}

// BatchWriteBuilder creates the writer and committer of one batch job.
type BatchWriteBuilder struct {
	table      *FileStoreTable
	commitUser string
}

func (b *BatchWriteBuilder) CommitUser() string { return b.commitUser }

// NewWrite opens a writer. Only append tables without a fixed bucket number can be written.
func (b *BatchWriteBuilder) NewWrite() (*TableWrite, error) {
	t := b.table
	if len(t.schema.PrimaryKeys) > 0 {
		return nil, errors.Annotatef(ErrUnsupported, "write to primary key table %s", t.id)
	}
	if t.parsed.bucket != -1 {
		return nil, errors.Annotatef(ErrUnsupported, "write to table %s with %s=%d", t.id, OptionBucket, t.parsed.bucket)
	}
	codec, err := getParquetCompressionCodec(t.parsed.fileCompression)
	if err != nil {
		return nil, err
	}
	return &TableWrite{
		table: t,
		paths: newPathFactory(t.Location()),
		writer: &dataFileWriter{
			rowType:     t.RowType(),
			pageSize:    t.parsed.parquetPageSize,
			compression: codec,
		},
		buffers: make(map[string]*partitionBuffer),
		seq:     -1,
	}, nil
}

func (b *BatchWriteBuilder) NewCommit() *BatchTableCommit {
	return &BatchTableCommit{
		table:      b.table,
		commitUser: b.commitUser,
		paths:      newPathFactory(b.table.Location()),
	}
}

// CommitMessage carries the files a writer produced for one partition and bucket.
type CommitMessage struct {
	Partition      Row
	PartitionBytes []byte
	Bucket         int
	NewFiles       []DataFileMeta
}

func (m CommitMessage) IsEmpty() bool {
	return len(m.NewFiles) == 0
}

type partitionBuffer struct {
	partition      Row
	partitionBytes []byte
	rows           []Row
	estimatedSize  int64
	files          []DataFileMeta
}

// TableWrite buffers rows per partition and rolls them into data files.
type TableWrite struct {
	table  *FileStoreTable
	paths  *pathFactory
	writer *dataFileWriter

	iom    *IOManager
	ownsIO bool

	buffers map[string]*partitionBuffer
	order   []string
	// next sequence number, -1 until the latest snapshot was consulted
	seq int64

	closed bool
}

// WithIOManager sets the scratch space used to stage data files.
func (w *TableWrite) WithIOManager(iom *IOManager) *TableWrite {
	w.iom = iom
	return w
}

// Write buffers one row. The row must follow the table row type.
func (w *TableWrite) Write(ctx context.Context, row Row) error {
	if w.closed {
		return errors.New("write to closed table writer")
	}
	rowType := w.table.RowType()
	if err := checkRow(rowType, row); err != nil {
		return err
	}

	partition := row.Project(w.table.partIdx)
	key, err := serializeBinaryRow(partition, w.table.partType.FieldTypes())
	if err != nil {
		return errors.Annotate(err, "partition of row")
	}
	buf, ok := w.buffers[string(key)]
	if !ok {
		buf = &partitionBuffer{partition: partition, partitionBytes: key}
		w.buffers[string(key)] = buf
		w.order = append(w.order, string(key))
	}
	buf.rows = append(buf.rows, row)
	buf.estimatedSize += estimateRowSize(row)
	if buf.estimatedSize >= w.table.parsed.targetFileSize {
		return w.flush(ctx, buf)
	}
	return nil
}

func (w *TableWrite) nextSequence(ctx context.Context) (int64, error) {
	if w.seq >= 0 {
		return w.seq, nil
	}
	latest, err := w.table.SnapshotManager().LatestSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	w.seq = 0
	if latest != nil {
		w.seq = latest.TotalRecordCount
	}
	return w.seq, nil
}

func (w *TableWrite) flush(ctx context.Context, buf *partitionBuffer) error {
	if len(buf.rows) == 0 {
		return nil
	}
	if w.iom == nil {
		iom, err := NewIOManager("")
		if err != nil {
			return err
		}
		w.iom, w.ownsIO = iom, true
	}
	seq, err := w.nextSequence(ctx)
	if err != nil {
		return err
	}

	stats := newStatsCollector(w.table.RowType().FieldTypes())
	for _, row := range buf.rows {
		stats.collect(row)
	}
	valueStats, err := stats.result()
	if err != nil {
		return errors.Annotate(err, "value stats")
	}

	name := w.paths.newDataFile()
	bucketDir := bucketPath(w.table.partType, buf.partition, unawareBucket)
	size, err := w.writer.writeDataFile(ctx, w.table.store, w.iom, w.paths.dataFilePath(bucketDir, name), buf.rows)
	if err != nil {
		return err
	}

	rowCount := int64(len(buf.rows))
	creation := time.Now().UnixMilli()
	deleted := int64(0)
	source := FileSourceAppend
	buf.files = append(buf.files, DataFileMeta{
		FileName:          name,
		FileSize:          size,
		RowCount:          rowCount,
		MinKey:            emptyRowBytes,
		MaxKey:            emptyRowBytes,
		KeyStats:          emptyStats(),
		ValueStats:        valueStats,
		MinSequenceNumber: seq,
		MaxSequenceNumber: seq + rowCount - 1,
		SchemaID:          w.table.schema.ID,
		Level:             0,
		ExtraFiles:        []string{},
		CreationTime:      &creation,
		DeleteRowCount:    &deleted,
		FileSource:        &source,
	})
	w.seq += rowCount
	w.table.logger.Debug("rolled data file", "file", name, "partition", bucketDir,
		"rows", rowCount, "bytes", size)

	buf.rows = nil
	buf.estimatedSize = 0
	return nil
}

// PrepareCommit flushes every buffer and returns the files written since the last call.
func (w *TableWrite) PrepareCommit(ctx context.Context) ([]CommitMessage, error) {
	if w.closed {
		return nil, errors.New("prepare commit on closed table writer")
	}
	msgs := make([]CommitMessage, 0, len(w.order))
	for _, key := range w.order {
		buf := w.buffers[key]
		if err := w.flush(ctx, buf); err != nil {
			return nil, err
		}
		if len(buf.files) == 0 {
			continue
		}
		msgs = append(msgs, CommitMessage{
			Partition:      buf.partition,
			PartitionBytes: buf.partitionBytes,
			Bucket:         unawareBucket,
			NewFiles:       buf.files,
		})
	}
	w.buffers = make(map[string]*partitionBuffer)
	w.order = nil
	return msgs, nil
}

// Close drops buffered rows. Files already returned by PrepareCommit are left to the committer.
func (w *TableWrite) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.buffers = nil
	w.order = nil
	if w.ownsIO {
		return w.iom.Close()
	}
	return nil
}

func checkRow(rowType RowType, row Row) error {
	if len(row) != rowType.FieldCount() {
		return errors.Errorf("row has %d fields, table has %d", len(row), rowType.FieldCount())
	}
	for i, f := range rowType.Fields {
		if row[i] == nil {
			if !f.Type.Nullable {
				return errors.Errorf("null value in NOT NULL column %s", f.Name)
			}
			continue
		}
		if !valueMatches(f.Type, row[i]) {
			return errors.Annotatef(typeMismatch(f.Type, row[i]), "column %s", f.Name)
		}
	}
	return nil
}

func valueMatches(t DataType, v any) bool {
	switch v.(type) {
	case bool:
		return t.Root == Boolean
	case int8:
		return t.Root == Tinyint
	case int16:
		return t.Root == Smallint
	case int32:
		return t.Root == Integer || t.Root == Date
	case int64:
		return t.Root == Bigint
	case float32:
		return t.Root == Float
	case float64:
		return t.Root == Double
	case string:
		return t.Root == Char || t.Root == Varchar
	case []byte:
		return t.Root == Binary || t.Root == Varbinary
	default:
		return false
	}
}

func estimateRowSize(row Row) int64 {
	var size int64
	for _, v := range row {
		switch val := v.(type) {
		case nil:
			size++
		case bool, int8:
			size++
		case int16:
			size += 2
		case int32, float32:
			size += 4
		case string:
			size += int64(len(val)) + 4
		case []byte:
			size += int64(len(val)) + 4
		default:
			size += 8
		}
	}
	return size
}
