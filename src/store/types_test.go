package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataType(t *testing.T) {
	cases := []struct {
		in   string
		want DataType
	}{
		{"STRING", StringType()},
		{"string", StringType()},
		{"INT", IntType()},
		{"INTEGER NOT NULL", IntType().NotNull()},
		{"BIGINT", BigintType()},
		{"BYTES", BytesType()},
		{"VARCHAR(10)", DataType{Root: Varchar, Length: 10, Nullable: true}},
		{"CHAR(3) NOT NULL", DataType{Root: Char, Length: 3}},
		{"DECIMAL(12, 2)", DataType{Root: Decimal, Length: 12, Scale: 2, Nullable: true}},
		{"TIMESTAMP", DataType{Root: Timestamp, Length: 6, Nullable: true}},
	}
	for _, c := range cases {
		got, err := ParseDataType(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	for _, bad := range []string{"", "MAP<INT, INT>", "VARCHAR(x)", "VARCHAR(10"} {
		_, err := ParseDataType(bad)
		assert.Error(t, err, bad)
	}
}

func TestDataTypeString(t *testing.T) {
	assert.Equal(t, "STRING", StringType().String())
	assert.Equal(t, "INT NOT NULL", IntType().NotNull().String())
	assert.Equal(t, "VARCHAR(20)", DataType{Root: Varchar, Length: 20, Nullable: true}.String())
	assert.Equal(t, "BYTES", BytesType().String())
	assert.Equal(t, "DECIMAL(10, 3)", DataType{Root: Decimal, Length: 10, Scale: 3, Nullable: true}.String())
}

func TestDataFieldJSON(t *testing.T) {
	field := DataField{ID: 2, Name: "f_bigint", Type: BigintType().NotNull()}
	data, err := json.Marshal(field)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"name":"f_bigint","type":"BIGINT NOT NULL"}`, string(data))

	var decoded DataField
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, field, decoded)
}

func TestRowTypeProject(t *testing.T) {
	rt := RowType{Fields: []DataField{
		{ID: 0, Name: "a", Type: StringType()},
		{ID: 1, Name: "b", Type: IntType()},
		{ID: 2, Name: "c", Type: BigintType()},
	}}
	projected, idx, err := rt.Project([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, projected.FieldNames())
	assert.Equal(t, []int{2, 0}, idx)
	assert.Equal(t, Row{int64(3), "x"}, Row{"x", int32(2), int64(3)}.Project(idx))

	_, _, err = rt.Project([]string{"missing"})
	assert.Error(t, err)
}

func TestSchemaBuilder(t *testing.T) {
	_, err := NewSchemaBuilder().Build()
	assert.Error(t, err)

	_, err = NewSchemaBuilder().Column("a", IntType()).Column("a", IntType()).Build()
	assert.Error(t, err)

	_, err = NewSchemaBuilder().Column("a", IntType()).PartitionKeys("b").Build()
	assert.Error(t, err)

	s, err := NewSchemaBuilder().
		Column("a", StringType()).
		Column("b", IntType()).
		PartitionKeys("a").
		Option(OptionFileCompression, "snappy").
		Build()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Fields[1].ID)
	assert.Equal(t, []string{"a"}, s.PartitionKeys)
	assert.Equal(t, "snappy", s.Options[OptionFileCompression])
}

func TestParseIdentifier(t *testing.T) {
	id, err := ParseIdentifier("db.tbl")
	require.NoError(t, err)
	assert.Equal(t, NewIdentifier("db", "tbl"), id)
	assert.Equal(t, "db.tbl", id.String())

	for _, bad := range []string{"db", ".tbl", "db."} {
		_, err := ParseIdentifier(bad)
		assert.Error(t, err, bad)
	}
}
