package store

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/pingcap/tidb/br/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	es, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	iom, err := NewIOManager(t.TempDir())
	require.NoError(t, err)
	defer iom.Close()

	rowType := RowType{Fields: []DataField{
		{ID: 0, Name: "b", Type: BooleanType()},
		{ID: 1, Name: "t", Type: TinyintType()},
		{ID: 2, Name: "s", Type: SmallintType()},
		{ID: 3, Name: "i", Type: IntType().NotNull()},
		{ID: 4, Name: "l", Type: BigintType()},
		{ID: 5, Name: "f", Type: FloatType()},
		{ID: 6, Name: "d", Type: DoubleType()},
		{ID: 7, Name: "str", Type: StringType()},
		{ID: 8, Name: "bin", Type: BytesType()},
	}}
	rows := []Row{
		{true, int8(1), int16(2), int32(3), int64(4), float32(5.1), 6.1, "VARCHAR_7", []byte{8}},
		{nil, nil, nil, int32(-3), nil, nil, nil, nil, nil},
		{false, int8(-1), int16(-2), int32(0), int64(1) << 50, float32(0.1), -0.1, "", []byte{0, 1}},
	}

	for _, codec := range []string{"zstd", "snappy", "none"} {
		compression, err := getParquetCompressionCodec(codec)
		require.NoError(t, err)
		w := &dataFileWriter{rowType: rowType, pageSize: 1 << 20, compression: compression}
		p := "db.db/tbl/bucket-0/data-" + codec + ".parquet"

		size, err := w.writeDataFile(ctx, es, iom, p, rows)
		require.NoError(t, err)
		assert.Positive(t, size)

		got, err := readDataFile(ctx, es, p, rowType)
		require.NoError(t, err)
		assert.Equal(t, rows, got, codec)
	}
}

func TestDataFileRejectsNullInRequiredColumn(t *testing.T) {
	ctx := context.Background()
	es, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	iom, err := NewIOManager(t.TempDir())
	require.NoError(t, err)
	defer iom.Close()

	w := &dataFileWriter{
		rowType:     RowType{Fields: []DataField{{ID: 0, Name: "i", Type: IntType().NotNull()}}},
		pageSize:    1 << 20,
		compression: compress.Codecs.Uncompressed,
	}
	_, err = w.writeDataFile(ctx, es, iom, "bucket-0/data.parquet", []Row{{nil}})
	assert.Error(t, err)
}

func TestReadMissingColumnsAsNull(t *testing.T) {
	ctx := context.Background()
	es, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	iom, err := NewIOManager(t.TempDir())
	require.NoError(t, err)
	defer iom.Close()

	written := RowType{Fields: []DataField{{ID: 0, Name: "a", Type: BigintType()}}}
	w := &dataFileWriter{rowType: written, pageSize: 1 << 20, compression: compress.Codecs.Snappy}
	_, err = w.writeDataFile(ctx, es, iom, "data.parquet", []Row{{int64(1)}, {int64(2)}})
	require.NoError(t, err)

	wider := RowType{Fields: []DataField{
		{ID: 0, Name: "a", Type: BigintType()},
		{ID: 1, Name: "b", Type: StringType()},
	}}
	got, err := readDataFile(ctx, es, "data.parquet", wider)
	require.NoError(t, err)
	assert.Equal(t, []Row{{int64(1), nil}, {int64(2), nil}}, got)
}

func TestIOManager(t *testing.T) {
	root := t.TempDir()
	iom, err := NewIOManager(root)
	require.NoError(t, err)
	assert.DirExists(t, iom.Dir())

	f, err := iom.CreateTemp("data-*.parquet")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.FileExists(t, f.Name())

	require.NoError(t, iom.Close())
	assert.NoDirExists(t, iom.Dir())
}

func TestCompressionCodecs(t *testing.T) {
	for _, name := range []string{"snappy", "ZSTD", "gzip", "brotli", "lz4", "uncompressed"} {
		_, err := getParquetCompressionCodec(name)
		assert.NoError(t, err, name)
	}
	_, err := getParquetCompressionCodec("lzo")
	assert.Error(t, err)

	for _, name := range []string{"", "deflate", "snappy", "zstd", "null"} {
		_, err := manifestCodec(name)
		assert.NoError(t, err, name)
	}
	_, err = manifestCodec("bzip2")
	assert.Error(t, err)
}
