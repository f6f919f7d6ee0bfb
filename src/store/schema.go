package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pingcap/errors"
)

// Identifier names a table inside a catalog.
type Identifier struct {
	Database string
	Table    string
}

func NewIdentifier(database, table string) Identifier {
	return Identifier{Database: database, Table: table}
}

// ParseIdentifier parses "db.table".
func ParseIdentifier(fullName string) (Identifier, error) {
	db, table, ok := strings.Cut(fullName, ".")
	if !ok || db == "" || table == "" {
		return Identifier{}, errors.Errorf("invalid table identifier %q, expected <database>.<table>", fullName)
	}
	return NewIdentifier(db, table), nil
}

func (id Identifier) FullName() string {
	return id.Database + "." + id.Table
}

func (id Identifier) String() string {
	return id.FullName()
}

// Schema is the user facing definition of a new table.
type Schema struct {
	Fields        []DataField
	PartitionKeys []string
	PrimaryKeys   []string
	Options       map[string]string
	Comment       string
}

// SchemaBuilder assembles a Schema and assigns field ids in column order.
type SchemaBuilder struct {
	schema Schema
	err    error
}

func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{schema: Schema{Options: map[string]string{}}}
}

func (b *SchemaBuilder) Column(name string, t DataType) *SchemaBuilder {
	return b.ColumnWithDescription(name, t, "")
}

func (b *SchemaBuilder) ColumnWithDescription(name string, t DataType, description string) *SchemaBuilder {
	for _, f := range b.schema.Fields {
		if f.Name == name && b.err == nil {
			b.err = errors.Errorf("duplicate column %q", name)
		}
	}
	b.schema.Fields = append(b.schema.Fields, DataField{
		ID:          len(b.schema.Fields),
		Name:        name,
		Type:        t,
		Description: description,
	})
	return b
}

func (b *SchemaBuilder) PartitionKeys(keys ...string) *SchemaBuilder {
	b.schema.PartitionKeys = append(b.schema.PartitionKeys, keys...)
	return b
}

func (b *SchemaBuilder) PrimaryKey(keys ...string) *SchemaBuilder {
	b.schema.PrimaryKeys = append(b.schema.PrimaryKeys, keys...)
	return b
}

func (b *SchemaBuilder) Option(key, value string) *SchemaBuilder {
	b.schema.Options[key] = value
	return b
}

func (b *SchemaBuilder) Comment(comment string) *SchemaBuilder {
	b.schema.Comment = comment
	return b
}

func (b *SchemaBuilder) Build() (Schema, error) {
	if b.err != nil {
		return Schema{}, b.err
	}
	if len(b.schema.Fields) == 0 {
		return Schema{}, errors.New("schema has no columns")
	}
	rowType := RowType{Fields: b.schema.Fields}
	for _, key := range append(append([]string{}, b.schema.PartitionKeys...), b.schema.PrimaryKeys...) {
		if rowType.FieldIndex(key) < 0 {
			return Schema{}, errors.Errorf("key column %q is not defined in the schema", key)
		}
	}
	return b.schema, nil
}

const currentSchemaVersion = 3

// TableSchema is the persisted form of a schema, stored as schema/schema-<id>.
type TableSchema struct {
	Version        int               `json:"version"`
	ID             int64             `json:"id"`
	Fields         []DataField       `json:"fields"`
	HighestFieldID int               `json:"highestFieldId"`
	PartitionKeys  []string          `json:"partitionKeys"`
	PrimaryKeys    []string          `json:"primaryKeys"`
	Options        map[string]string `json:"options"`
	Comment        string            `json:"comment,omitempty"`
	TimeMillis     int64             `json:"timeMillis"`
}

func newTableSchema(id int64, s Schema) *TableSchema {
	highest := -1
	for _, f := range s.Fields {
		highest = max(highest, f.ID)
	}
	options := make(map[string]string, len(s.Options))
	for k, v := range s.Options {
		options[k] = v
	}
	return &TableSchema{
		Version:        currentSchemaVersion,
		ID:             id,
		Fields:         s.Fields,
		HighestFieldID: highest,
		PartitionKeys:  nonNil(s.PartitionKeys),
		PrimaryKeys:    nonNil(s.PrimaryKeys),
		Options:        options,
		Comment:        s.Comment,
		TimeMillis:     time.Now().UnixMilli(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *TableSchema) RowType() RowType {
	return RowType{Fields: s.Fields}
}

// PartitionType returns the row type of the partition keys and their positions in the row.
func (s *TableSchema) PartitionType() (RowType, []int, error) {
	t, indexes, err := s.RowType().Project(s.PartitionKeys)
	if err != nil {
		return RowType{}, nil, errors.Annotatef(err, "partition keys of schema %d", s.ID)
	}
	return t, indexes, nil
}

func (s *TableSchema) encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	return data, errors.Trace(err)
}

func decodeTableSchema(data []byte) (*TableSchema, error) {
	var s TableSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Annotate(err, "decode table schema")
	}
	return &s, nil
}
