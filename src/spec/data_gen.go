package spec

import (
	"strconv"

	"paimonWriter/src/store"

	"github.com/pingcap/errors"
)

// StringPrefix is prepended to the id in every string column.
const StringPrefix = "VARCHAR_"

// ErrUnsupportedType is returned for a column kind no generator exists for.
var ErrUnsupportedType = errors.New("unsupported field type")

type valueGenerator func(id int64) any

// generators maps a column kind to the value it gets for a row id. Supporting a new
// kind means adding an entry here.
var generators = map[store.TypeRoot]valueGenerator{
	store.Char:     genString,
	store.Varchar:  genString,
	store.Tinyint:  func(id int64) any { return int8(id) },
	store.Smallint: func(id int64) any { return int16(id) },
	store.Integer:  func(id int64) any { return int32(id) },
	store.Bigint:   func(id int64) any { return id },
	store.Float:    func(id int64) any { return float32(id) + 0.1 },
	store.Double:   func(id int64) any { return float64(id) + 0.1 },
}

func genString(id int64) any {
	return StringPrefix + strconv.FormatInt(id, 10)
}

// IsSupported reports whether rows can be generated for t.
func IsSupported(t store.DataType) bool {
	_, ok := generators[t.Root]
	return ok
}

// GenerateRow builds the row for id. Every field is derived from id alone, so the
// same id always yields the same row.
func GenerateRow(id int64, types []store.DataType) (store.Row, error) {
	row := make(store.Row, len(types))
	for i, t := range types {
		gen, ok := generators[t.Root]
		if !ok {
			return nil, errors.Annotatef(ErrUnsupportedType, "field %d has type %s", i, t)
		}
		row[i] = gen(id)
	}
	return row, nil
}
