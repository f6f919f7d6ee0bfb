package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryRowRoundTrip(t *testing.T) {
	types := []DataType{
		BooleanType(), TinyintType(), SmallintType(), IntType(), BigintType(),
		FloatType(), DoubleType(), StringType(), StringType(), BytesType(), IntType(),
	}
	row := Row{
		true, int8(-3), int16(300), int32(-70000), int64(1) << 40,
		float32(1.5), 2.25, "short", strings.Repeat("long", 10), []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, nil,
	}

	data, err := EncodeBinaryRow(row, types)
	require.NoError(t, err)
	decoded, err := DecodeBinaryRow(data, types)
	require.NoError(t, err)
	assert.Equal(t, row, decoded)

	serialized, err := serializeBinaryRow(row, types)
	require.NoError(t, err)
	decoded, err = deserializeBinaryRow(serialized, types)
	require.NoError(t, err)
	assert.Equal(t, row, decoded)

	_, err = deserializeBinaryRow(serialized, types[:3])
	assert.Error(t, err)
}

func TestBinaryRowTypeMismatch(t *testing.T) {
	_, err := EncodeBinaryRow(Row{int64(1)}, []DataType{IntType()})
	assert.Error(t, err)

	_, err = EncodeBinaryRow(Row{int32(1), int32(2)}, []DataType{IntType()})
	assert.Error(t, err)
}

func TestEmptyBinaryRow(t *testing.T) {
	row, err := deserializeBinaryRow(emptyRowBytes, nil)
	require.NoError(t, err)
	assert.Empty(t, row)
}

func TestPartitionPath(t *testing.T) {
	partType := RowType{Fields: []DataField{
		{Name: "f_string", Type: StringType()},
		{Name: "dt", Type: IntType()},
	}}
	assert.Equal(t, "f_string=VARCHAR_1/dt=20/", partitionPath(partType, Row{"VARCHAR_1", int32(20)}))
	assert.Equal(t, "f_string=a%2Fb%3Dc/dt=__DEFAULT_PARTITION__/", partitionPath(partType, Row{"a/b=c", nil}))
	assert.Equal(t, "f_string=__DEFAULT_PARTITION__/dt=1/bucket-0", bucketPath(partType, Row{"", int32(1)}, 0))
	assert.Equal(t, "bucket-0", bucketPath(RowType{}, Row{}, 0))
}

func TestStatsCollector(t *testing.T) {
	types := []DataType{StringType(), IntType(), DoubleType()}
	c := newStatsCollector(types)
	c.collect(Row{"VARCHAR_2", int32(2), 2.1})
	c.collect(Row{"VARCHAR_10", nil, 10.1})
	c.collect(Row{"VARCHAR_3", int32(3), nil})

	stats, err := c.result()
	require.NoError(t, err)
	minRow, maxRow, err := stats.Decode(types)
	require.NoError(t, err)
	assert.Equal(t, Row{"VARCHAR_10", int32(2), 2.1}, minRow)
	assert.Equal(t, Row{"VARCHAR_3", int32(3), 10.1}, maxRow)

	require.Len(t, stats.NullCounts, 3)
	assert.Equal(t, int64(0), *stats.NullCounts[0])
	assert.Equal(t, int64(1), *stats.NullCounts[1])
	assert.Equal(t, int64(1), *stats.NullCounts[2])
}
