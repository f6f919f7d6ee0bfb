package store

import (
	"bytes"
	"context"
	"io"

	"github.com/parquet-go/parquet-go"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

const readBatchSize = 256

// readDataFile loads a parquet data file and converts its rows to rowType.
// Columns missing from the file read as null.
func readDataFile(ctx context.Context, store storage.ExternalStorage, path string, rowType RowType) ([]Row, error) {
	data, err := store.ReadFile(ctx, path)
	if err != nil {
		return nil, errors.Annotatef(err, "read data file %s", path)
	}

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Annotatef(err, "open data file %s", path)
	}
	reader := parquet.NewReader(f)
	defer reader.Close()

	// leaf column index in the file -> field index in rowType
	mapping := make(map[int]int)
	for leaf, colPath := range reader.Schema().Columns() {
		if len(colPath) != 1 {
			continue
		}
		if idx := rowType.FieldIndex(colPath[0]); idx >= 0 {
			mapping[leaf] = idx
		}
	}

	rows := make([]Row, 0, reader.NumRows())
	buf := make([]parquet.Row, readBatchSize)
	for {
		n, err := reader.ReadRows(buf)
		for _, pr := range buf[:n] {
			row := make(Row, rowType.FieldCount())
			for _, v := range pr {
				idx, ok := mapping[v.Column()]
				if !ok || v.IsNull() {
					continue
				}
				val, cerr := convertParquetValue(v, rowType.Fields[idx].Type)
				if cerr != nil {
					return nil, errors.Annotatef(cerr, "column %s of %s", rowType.Fields[idx].Name, path)
				}
				row[idx] = val
			}
			rows = append(rows, row)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Annotatef(err, "decode data file %s", path)
		}
	}
	return rows, nil
}

func convertParquetValue(v parquet.Value, t DataType) (any, error) {
	switch t.Root {
	case Boolean:
		return v.Boolean(), nil
	case Tinyint:
		return int8(v.Int32()), nil
	case Smallint:
		return int16(v.Int32()), nil
	case Integer, Date:
		return v.Int32(), nil
	case Bigint:
		return v.Int64(), nil
	case Float:
		return v.Float(), nil
	case Double:
		return v.Double(), nil
	case Char, Varchar:
		return string(v.ByteArray()), nil
	case Binary, Varbinary:
		return bytes.Clone(v.ByteArray()), nil
	default:
		return nil, errors.Annotatef(ErrUnsupported, "read type %s", t)
	}
}
