package store

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRow(id int64) Row {
	return Row{"VARCHAR_" + strconv.FormatInt(id, 10), int32(id), id}
}

func writeAndCommit(ctx context.Context, t *testing.T, table *FileStoreTable, first, n int64) *Snapshot {
	t.Helper()
	builder := table.NewBatchWriteBuilder()
	write, err := builder.NewWrite()
	require.NoError(t, err)
	defer write.Close()

	for id := first; id < first+n; id++ {
		require.NoError(t, write.Write(ctx, testRow(id)))
	}
	msgs, err := write.PrepareCommit(ctx)
	require.NoError(t, err)
	commit := builder.NewCommit()
	defer commit.Close()
	snapshot, err := commit.Commit(ctx, msgs)
	require.NoError(t, err)
	return snapshot
}

func newTestTable(ctx context.Context, t *testing.T, schema Schema) (*FileSystemCatalog, *FileStoreTable) {
	t.Helper()
	c := newTestCatalog(t)
	id := NewIdentifier("db", "tbl")
	require.NoError(t, c.CreateDatabase(ctx, "db", false))
	require.NoError(t, c.CreateTable(ctx, id, schema, false))
	table, err := c.GetTable(ctx, id)
	require.NoError(t, err)
	return c, table
}

func sortByBigint(rows []Row) {
	sort.Slice(rows, func(i, j int) bool { return rows[i][2].(int64) < rows[j][2].(int64) })
}

func TestWriteCommitAndScan(t *testing.T) {
	ctx := context.Background()
	_, table := newTestTable(ctx, t, testSchema(t))

	first := writeAndCommit(ctx, t, table, 0, 3)
	require.NotNil(t, first)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, CommitKindAppend, first.CommitKind)
	assert.Equal(t, int64(math.MaxInt64), first.CommitIdentifier)
	assert.Equal(t, int64(3), first.TotalRecordCount)
	assert.Equal(t, int64(3), first.DeltaRecordCount)

	second := writeAndCommit(ctx, t, table, 3, 3)
	require.NotNil(t, second)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, int64(6), second.TotalRecordCount)
	assert.Equal(t, int64(3), second.DeltaRecordCount)
	assert.NotEqual(t, first.CommitUser, second.CommitUser)

	sm := table.SnapshotManager()
	latest, ok, err := sm.LatestSnapshotID(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), latest)
	earliest, ok, err := sm.EarliestSnapshotID(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), earliest)

	rb := table.NewReadBuilder().WithThreads(2)
	plan, err := rb.Plan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), plan.SnapshotID)
	assert.Len(t, plan.Splits, 6)
	assert.Equal(t, int64(6), plan.RowCount())

	rows, err := rb.Read(ctx, plan)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	sortByBigint(rows)
	for i, row := range rows {
		assert.Equal(t, testRow(int64(i)), row)
	}

	plan, err = rb.PlanSnapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), plan.RowCount())

	plan, err = rb.PlanIncremental(ctx, 1, 2)
	require.NoError(t, err)
	rows, err = rb.Read(ctx, plan)
	require.NoError(t, err)
	sortByBigint(rows)
	require.Len(t, rows, 3)
	assert.Equal(t, testRow(3), rows[0])
	assert.Equal(t, testRow(5), rows[2])

	_, err = rb.PlanIncremental(ctx, 2, 1)
	assert.Error(t, err)
	_, err = rb.PlanSnapshot(ctx, 7)
	assert.True(t, IsNotExist(err))
}

func TestPartitionLayout(t *testing.T) {
	ctx := context.Background()
	_, table := newTestTable(ctx, t, testSchema(t))
	writeAndCommit(ctx, t, table, 10, 2)

	var files []string
	err := table.store.WalkDir(ctx, &storage.WalkOption{SubDir: table.Location()}, func(p string, _ int64) error {
		files = append(files, p)
		return nil
	})
	require.NoError(t, err)

	var data, manifests, snapshots int
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, parquetFileExtension):
			data++
			assert.Regexp(t, `f_string=VARCHAR_1[01]/bucket-0/data-[0-9a-f-]+-[01]\.parquet$`, f)
		case strings.Contains(f, "/manifest/"):
			manifests++
		case strings.Contains(f, "/snapshot/snapshot-"):
			snapshots++
		}
	}
	assert.Equal(t, 2, data)
	// one manifest, the base list and the delta list
	assert.Equal(t, 3, manifests)
	assert.Equal(t, 1, snapshots)
}

func TestProjectedRead(t *testing.T) {
	ctx := context.Background()
	_, table := newTestTable(ctx, t, testSchema(t))
	writeAndCommit(ctx, t, table, 0, 2)

	rb := table.NewReadBuilder().WithProjection("f_bigint", "f_string")
	readType, err := rb.ReadType()
	require.NoError(t, err)
	assert.Equal(t, []string{"f_bigint", "f_string"}, readType.FieldNames())

	plan, err := rb.Plan(ctx)
	require.NoError(t, err)
	rows, err := rb.Read(ctx, plan)
	require.NoError(t, err)
	sort.Slice(rows, func(i, j int) bool { return rows[i][0].(int64) < rows[j][0].(int64) })
	assert.Equal(t, []Row{{int64(0), "VARCHAR_0"}, {int64(1), "VARCHAR_1"}}, rows)
}

func TestEmptyCommitCreatesNoSnapshot(t *testing.T) {
	ctx := context.Background()
	_, table := newTestTable(ctx, t, testSchema(t))

	assert.Nil(t, writeAndCommit(ctx, t, table, 0, 0))
	_, ok, err := table.SnapshotManager().LatestSnapshotID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	plan, err := table.NewReadBuilder().Plan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), plan.SnapshotID)
	assert.Empty(t, plan.Splits)
}

func TestCommitOnlyOnce(t *testing.T) {
	ctx := context.Background()
	_, table := newTestTable(ctx, t, testSchema(t))

	builder := table.NewBatchWriteBuilder()
	commit := builder.NewCommit()
	_, err := commit.Commit(ctx, nil)
	require.NoError(t, err)
	_, err = commit.Commit(ctx, nil)
	assert.Error(t, err)
}

func TestSnapshotConflict(t *testing.T) {
	ctx := context.Background()
	_, table := newTestTable(ctx, t, testSchema(t))
	snapshot := writeAndCommit(ctx, t, table, 0, 1)
	require.NotNil(t, snapshot)

	err := table.SnapshotManager().commit(ctx, snapshot)
	require.Error(t, err)
	assert.Equal(t, ErrCommitConflict, errors.Cause(err))
}

func TestSequenceNumbersContinue(t *testing.T) {
	ctx := context.Background()
	_, table := newTestTable(ctx, t, testSchema(t))
	writeAndCommit(ctx, t, table, 0, 2)
	writeAndCommit(ctx, t, table, 2, 2)

	plan, err := table.NewReadBuilder().PlanIncremental(ctx, 1, 2)
	require.NoError(t, err)
	var seqs []int64
	for _, s := range plan.Splits {
		for _, f := range s.Files {
			seqs = append(seqs, f.MinSequenceNumber, f.MaxSequenceNumber)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	assert.Equal(t, []int64{2, 2, 3, 3}, seqs)
}

func TestRollingFiles(t *testing.T) {
	ctx := context.Background()
	schema, err := NewSchemaBuilder().
		Column("f_string", StringType()).
		Column("f_int", IntType()).
		Column("f_bigint", BigintType()).
		Build()
	require.NoError(t, err)
	_, table := newTestTable(ctx, t, schema)
	table, err = table.Copy(map[string]string{OptionTargetFileSize: "1"})
	require.NoError(t, err)

	snapshot := writeAndCommit(ctx, t, table, 0, 3)
	require.NotNil(t, snapshot)

	plan, err := table.NewReadBuilder().Plan(ctx)
	require.NoError(t, err)
	require.Len(t, plan.Splits, 1)
	assert.Empty(t, plan.Splits[0].Partition)
	assert.Len(t, plan.Splits[0].Files, 3)

	// dynamic options are not persisted
	assert.NotContains(t, table.Schema().Options, OptionTargetFileSize)
}

func TestWriteRejectsMismatchedRows(t *testing.T) {
	ctx := context.Background()
	_, table := newTestTable(ctx, t, testSchema(t))
	write, err := table.NewBatchWriteBuilder().NewWrite()
	require.NoError(t, err)
	defer write.Close()

	assert.Error(t, write.Write(ctx, Row{"a", int64(1), int64(1)}))
	assert.Error(t, write.Write(ctx, Row{"a", int32(1)}))
	assert.NoError(t, write.Write(ctx, Row{nil, nil, nil}))
}

func TestUnsupportedTables(t *testing.T) {
	ctx := context.Background()
	pk, err := NewSchemaBuilder().
		Column("f_int", IntType().NotNull()).
		Column("f_bigint", BigintType()).
		PrimaryKey("f_int").
		Build()
	require.NoError(t, err)
	_, table := newTestTable(ctx, t, pk)
	_, err = table.NewBatchWriteBuilder().NewWrite()
	assert.Equal(t, ErrUnsupported, errors.Cause(err))

	_, table = newTestTable(ctx, t, testSchema(t))
	bucketed, err := table.Copy(map[string]string{OptionBucket: "4"})
	require.NoError(t, err)
	_, err = bucketed.NewBatchWriteBuilder().NewWrite()
	assert.Equal(t, ErrUnsupported, errors.Cause(err))

	_, err = table.Copy(map[string]string{OptionFileFormat: "orc"})
	assert.Equal(t, ErrUnsupported, errors.Cause(err))
	_, err = table.Copy(map[string]string{OptionFileCompression: "foo"})
	assert.Error(t, err)
}

func TestAbortDeletesDataFiles(t *testing.T) {
	ctx := context.Background()
	_, table := newTestTable(ctx, t, testSchema(t))
	builder := table.NewBatchWriteBuilder()
	write, err := builder.NewWrite()
	require.NoError(t, err)
	defer write.Close()
	for id := int64(0); id < 2; id++ {
		require.NoError(t, write.Write(ctx, testRow(id)))
	}
	msgs, err := write.PrepareCommit(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.NoError(t, builder.NewCommit().Abort(ctx, msgs))
	var data int
	err = table.store.WalkDir(ctx, &storage.WalkOption{SubDir: table.Location()}, func(p string, _ int64) error {
		if strings.HasSuffix(p, parquetFileExtension) {
			data++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, data)
}
