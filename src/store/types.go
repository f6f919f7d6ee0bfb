package store

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
)

// TypeRoot is the logical kind of a column type.
type TypeRoot int

const (
	Char TypeRoot = iota
	Varchar
	Boolean
	Binary
	Varbinary
	Decimal
	Tinyint
	Smallint
	Integer
	Bigint
	Float
	Double
	Date
	Timestamp
)

// maxVarcharLength is the length of STRING, which is VARCHAR(MaxInt32).
const maxVarcharLength = 1<<31 - 1

var typeRootNames = map[TypeRoot]string{
	Char:      "CHAR",
	Varchar:   "VARCHAR",
	Boolean:   "BOOLEAN",
	Binary:    "BINARY",
	Varbinary: "VARBINARY",
	Decimal:   "DECIMAL",
	Tinyint:   "TINYINT",
	Smallint:  "SMALLINT",
	Integer:   "INT",
	Bigint:    "BIGINT",
	Float:     "FLOAT",
	Double:    "DOUBLE",
	Date:      "DATE",
	Timestamp: "TIMESTAMP",
}

func (r TypeRoot) String() string {
	if name, ok := typeRootNames[r]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(r)) + ")"
}

// DataType is a column type. Length is the length for CHAR/VARCHAR/BINARY/VARBINARY,
// the precision for DECIMAL and TIMESTAMP.
type DataType struct {
	Root     TypeRoot
	Length   int
	Scale    int
	Nullable bool
}

func StringType() DataType  { return DataType{Root: Varchar, Length: maxVarcharLength, Nullable: true} }
func IntType() DataType     { return DataType{Root: Integer, Nullable: true} }
func BigintType() DataType  { return DataType{Root: Bigint, Nullable: true} }
func TinyintType() DataType { return DataType{Root: Tinyint, Nullable: true} }
func SmallintType() DataType { return DataType{Root: Smallint, Nullable: true} }
func FloatType() DataType   { return DataType{Root: Float, Nullable: true} }
func DoubleType() DataType  { return DataType{Root: Double, Nullable: true} }
func BooleanType() DataType { return DataType{Root: Boolean, Nullable: true} }
func BytesType() DataType   { return DataType{Root: Varbinary, Length: maxVarcharLength, Nullable: true} }

// NotNull returns a copy of t that rejects nulls.
func (t DataType) NotNull() DataType {
	t.Nullable = false
	return t
}

// IsString reports whether values of t are Go strings.
func (t DataType) IsString() bool {
	return t.Root == Char || t.Root == Varchar
}

// String renders t the way it is stored in schema files, e.g. "STRING", "INT NOT NULL".
func (t DataType) String() string {
	var s string
	switch t.Root {
	case Varchar:
		if t.Length == maxVarcharLength {
			s = "STRING"
		} else {
			s = "VARCHAR(" + strconv.Itoa(t.Length) + ")"
		}
	case Varbinary:
		if t.Length == maxVarcharLength {
			s = "BYTES"
		} else {
			s = "VARBINARY(" + strconv.Itoa(t.Length) + ")"
		}
	case Char, Binary, Timestamp:
		s = t.Root.String() + "(" + strconv.Itoa(t.Length) + ")"
	case Decimal:
		s = "DECIMAL(" + strconv.Itoa(t.Length) + ", " + strconv.Itoa(t.Scale) + ")"
	default:
		s = t.Root.String()
	}
	if !t.Nullable {
		s += " NOT NULL"
	}
	return s
}

func (t DataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *DataType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Trace(err)
	}
	parsed, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseDataType parses a type string such as "VARCHAR(10) NOT NULL".
func ParseDataType(s string) (DataType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	t := DataType{Nullable: true}
	if rest, ok := strings.CutSuffix(s, "NOT NULL"); ok {
		t.Nullable = false
		s = strings.TrimSpace(rest)
	}

	name, args := s, ""
	if i := strings.IndexByte(s, '('); i >= 0 {
		if !strings.HasSuffix(s, ")") {
			return DataType{}, errors.Errorf("malformed data type %q", s)
		}
		name, args = strings.TrimSpace(s[:i]), s[i+1:len(s)-1]
	}

	params, err := parseTypeParams(args)
	if err != nil {
		return DataType{}, errors.Annotatef(err, "data type %q", s)
	}
	param := func(i, def int) int {
		if i < len(params) {
			return params[i]
		}
		return def
	}

	switch name {
	case "STRING":
		t.Root, t.Length = Varchar, maxVarcharLength
	case "VARCHAR":
		t.Root, t.Length = Varchar, param(0, maxVarcharLength)
	case "CHAR":
		t.Root, t.Length = Char, param(0, 1)
	case "BYTES":
		t.Root, t.Length = Varbinary, maxVarcharLength
	case "VARBINARY":
		t.Root, t.Length = Varbinary, param(0, maxVarcharLength)
	case "BINARY":
		t.Root, t.Length = Binary, param(0, 1)
	case "BOOLEAN":
		t.Root = Boolean
	case "TINYINT":
		t.Root = Tinyint
	case "SMALLINT":
		t.Root = Smallint
	case "INT", "INTEGER":
		t.Root = Integer
	case "BIGINT":
		t.Root = Bigint
	case "FLOAT":
		t.Root = Float
	case "DOUBLE":
		t.Root = Double
	case "DATE":
		t.Root = Date
	case "TIMESTAMP":
		t.Root, t.Length = Timestamp, param(0, 6)
	case "DECIMAL":
		t.Root, t.Length, t.Scale = Decimal, param(0, 10), param(1, 0)
	default:
		return DataType{}, errors.Errorf("unknown data type %q", s)
	}
	return t, nil
}

func parseTypeParams(args string) ([]int, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	var params []int
	for _, a := range strings.Split(args, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, errors.Trace(err)
		}
		params = append(params, v)
	}
	return params, nil
}

// DataField is one column of a table.
type DataField struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Type        DataType `json:"type"`
	Description string   `json:"description,omitempty"`
}

// RowType is the ordered field list of a table.
type RowType struct {
	Fields []DataField
}

func (r RowType) FieldCount() int {
	return len(r.Fields)
}

func (r RowType) FieldTypes() []DataType {
	types := make([]DataType, len(r.Fields))
	for i, f := range r.Fields {
		types[i] = f.Type
	}
	return types
}

func (r RowType) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// FieldIndex returns the position of name, or -1.
func (r RowType) FieldIndex(name string) int {
	for i, f := range r.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Project returns the row type made of the given field names.
func (r RowType) Project(names []string) (RowType, []int, error) {
	fields := make([]DataField, 0, len(names))
	indexes := make([]int, 0, len(names))
	for _, name := range names {
		i := r.FieldIndex(name)
		if i < 0 {
			return RowType{}, nil, errors.Errorf("field %q not found", name)
		}
		fields = append(fields, r.Fields[i])
		indexes = append(indexes, i)
	}
	return RowType{Fields: fields}, indexes, nil
}

// Row is a generic row. Value types follow the field types:
// string (CHAR/VARCHAR), []byte (BINARY/VARBINARY), bool, int8, int16, int32, int64,
// float32, float64. A nil entry is a null.
type Row []any

// Project picks the values at indexes.
func (r Row) Project(indexes []int) Row {
	out := make(Row, len(indexes))
	for i, idx := range indexes {
		out[i] = r[idx]
	}
	return out
}
