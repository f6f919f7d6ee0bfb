package store

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/schema"
	"github.com/apache/arrow/go/arrow/memory"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"github.com/pingcap/tidb/pkg/util/hack"
)

const uploadBufferSize = 4 << 20

func getParquetCompressionCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "lz4_raw", "lz4":
		return compress.Codecs.Lz4Raw, nil
	case "uncompressed", "none":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, errors.Errorf("unsupported parquet compression: %q", name)
	}
}

// parquetColumn returns the physical type, converted type and type length of a column.
func parquetColumn(t DataType) (parquet.Type, schema.ConvertedType, int, error) {
	switch t.Root {
	case Boolean:
		return parquet.Types.Boolean, schema.ConvertedTypes.None, -1, nil
	case Tinyint:
		return parquet.Types.Int32, schema.ConvertedTypes.Int8, -1, nil
	case Smallint:
		return parquet.Types.Int32, schema.ConvertedTypes.Int16, -1, nil
	case Integer:
		return parquet.Types.Int32, schema.ConvertedTypes.None, -1, nil
	case Date:
		return parquet.Types.Int32, schema.ConvertedTypes.Date, -1, nil
	case Bigint:
		return parquet.Types.Int64, schema.ConvertedTypes.None, -1, nil
	case Float:
		return parquet.Types.Float, schema.ConvertedTypes.None, -1, nil
	case Double:
		return parquet.Types.Double, schema.ConvertedTypes.None, -1, nil
	case Char, Varchar:
		return parquet.Types.ByteArray, schema.ConvertedTypes.UTF8, -1, nil
	case Binary, Varbinary:
		return parquet.Types.ByteArray, schema.ConvertedTypes.None, -1, nil
	default:
		return 0, 0, 0, errors.Annotatef(ErrUnsupported, "parquet column of type %s", t)
	}
}

// writeWrapper adapts an io.Writer for the parquet file writer, which closes its sink itself.
type writeWrapper struct {
	w       io.Writer
	written int64
}

func (ww *writeWrapper) Write(b []byte) (int, error) {
	n, err := ww.w.Write(b)
	ww.written += int64(n)
	return n, err
}

func (ww *writeWrapper) Close() error {
	return nil
}

// dataFileWriter encodes buffered rows of one bucket into a parquet file.
type dataFileWriter struct {
	rowType     RowType
	pageSize    int64
	compression compress.Compression
}

func (dw *dataFileWriter) getWriter(w io.Writer) (*file.Writer, error) {
	fields := make([]schema.Node, dw.rowType.FieldCount())
	opts := []parquet.WriterProperty{
		parquet.WithAllocator(memory.DefaultAllocator),
		parquet.WithDataPageSize(dw.pageSize),
		parquet.WithCompression(dw.compression),
		parquet.WithStats(true),
	}
	for i, f := range dw.rowType.Fields {
		typ, converted, typeLen, err := parquetColumn(f.Type)
		if err != nil {
			return nil, err
		}
		rep := parquet.Repetitions.Optional
		if !f.Type.Nullable {
			rep = parquet.Repetitions.Required
		}
		fields[i], err = schema.NewPrimitiveNodeConverted(f.Name, rep, typ, converted, typeLen, 0, 0, int32(f.ID))
		if err != nil {
			return nil, errors.Annotatef(err, "parquet column %s", f.Name)
		}
	}

	node, err := schema.NewGroupNode("paimon_schema", parquet.Repetitions.Required, fields, -1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return file.NewParquetWriter(w, node, file.WithWriterProps(parquet.NewWriterProperties(opts...))), nil
}

// encode writes rows as a single row group and returns the encoded size.
func (dw *dataFileWriter) encode(w io.Writer, rows []Row) (int64, error) {
	ww := &writeWrapper{w: w}
	pw, err := dw.getWriter(ww)
	if err != nil {
		return 0, err
	}
	rgw := pw.AppendRowGroup()
	for col := range dw.rowType.Fields {
		if err := dw.writeColumn(rgw, rows, col); err != nil {
			pw.Close()
			return 0, err
		}
	}
	if err := rgw.Close(); err != nil {
		return 0, errors.Trace(err)
	}
	if err := pw.Close(); err != nil {
		return 0, errors.Trace(err)
	}
	return ww.written, nil
}

func (dw *dataFileWriter) writeColumn(rgw file.SerialRowGroupWriter, rows []Row, col int) error {
	cw, err := rgw.NextColumn()
	if err != nil {
		return errors.Trace(err)
	}
	defer cw.Close()

	f := dw.rowType.Fields[col]
	defLevels := make([]int16, len(rows))
	var present int
	for i, row := range rows {
		if row[col] != nil {
			defLevels[i] = 1
			present++
		}
	}
	if !f.Type.Nullable {
		if present != len(rows) {
			return errors.Errorf("null value in NOT NULL column %s", f.Name)
		}
		defLevels = nil
	}

	switch w := cw.(type) {
	case *file.BooleanColumnChunkWriter:
		buf := make([]bool, 0, present)
		for _, row := range rows {
			if v, ok := row[col].(bool); ok {
				buf = append(buf, v)
			}
		}
		_, err = w.WriteBatch(buf, defLevels, nil)
	case *file.Int32ColumnChunkWriter:
		buf := make([]int32, 0, present)
		for _, row := range rows {
			switch v := row[col].(type) {
			case int8:
				buf = append(buf, int32(v))
			case int16:
				buf = append(buf, int32(v))
			case int32:
				buf = append(buf, v)
			}
		}
		_, err = w.WriteBatch(buf, defLevels, nil)
	case *file.Int64ColumnChunkWriter:
		buf := make([]int64, 0, present)
		for _, row := range rows {
			if v, ok := row[col].(int64); ok {
				buf = append(buf, v)
			}
		}
		_, err = w.WriteBatch(buf, defLevels, nil)
	case *file.Float32ColumnChunkWriter:
		buf := make([]float32, 0, present)
		for _, row := range rows {
			if v, ok := row[col].(float32); ok {
				buf = append(buf, v)
			}
		}
		_, err = w.WriteBatch(buf, defLevels, nil)
	case *file.Float64ColumnChunkWriter:
		buf := make([]float64, 0, present)
		for _, row := range rows {
			if v, ok := row[col].(float64); ok {
				buf = append(buf, v)
			}
		}
		_, err = w.WriteBatch(buf, defLevels, nil)
	case *file.ByteArrayColumnChunkWriter:
		buf := make([]parquet.ByteArray, 0, present)
		for _, row := range rows {
			switch v := row[col].(type) {
			case string:
				buf = append(buf, hack.Slice(v))
			case []byte:
				buf = append(buf, v)
			}
		}
		_, err = w.WriteBatch(buf, defLevels, nil)
	default:
		return errors.Errorf("unsupported parquet writer for column %s", f.Name)
	}
	return errors.Annotatef(err, "write column %s", f.Name)
}

// writeDataFile encodes rows into a scratch file and uploads it to path.
func (dw *dataFileWriter) writeDataFile(
	ctx context.Context,
	store storage.ExternalStorage,
	iom *IOManager,
	path string,
	rows []Row,
) (int64, error) {
	tmp, err := iom.CreateTemp("data-*.parquet")
	if err != nil {
		return 0, err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := dw.encode(tmp, rows)
	if err != nil {
		return 0, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, errors.Trace(err)
	}

	writer, err := store.Create(ctx, path, &storage.WriterOption{Concurrency: 8})
	if err != nil {
		return 0, errors.Annotatef(err, "create data file %s", path)
	}
	buf := make([]byte, uploadBufferSize)
	for {
		n, rerr := tmp.Read(buf)
		if n > 0 {
			if _, err := writer.Write(ctx, buf[:n]); err != nil {
				writer.Close(ctx)
				return 0, errors.Annotatef(err, "upload data file %s", path)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			writer.Close(ctx)
			return 0, errors.Trace(rerr)
		}
	}
	if err := writer.Close(ctx); err != nil {
		return 0, errors.Annotatef(err, "close data file %s", path)
	}
	return size, nil
}
