package parquet

import (
	"fmt"
	"io"

	"tlcetl/internal/table"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// RowGroupRows is how many rows go into one record batch (and row group).
const RowGroupRows = 512 * 1024

// Write encodes t as a snappy-compressed parquet file. Rows are converted to
// Arrow one row group at a time.
func Write(w io.Writer, t *table.Table) error {
	schema := Schema(t)
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))

	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("parquet writer: %w", err)
	}

	n := t.NumRows()
	for lo := 0; lo < n; lo += RowGroupRows {
		hi := min(lo+RowGroupRows, n)
		rec := record(schema, t, lo, hi)
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			_ = fw.Close()
			return fmt.Errorf("parquet write rows %d-%d: %w", lo, hi, err)
		}
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}
	return nil
}

// Schema is the Arrow schema t is written with. Every field is nullable.
func Schema(t *table.Table) *arrow.Schema {
	fields := make([]arrow.Field, len(t.Columns))
	for i, c := range t.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t table.Type) arrow.DataType {
	switch t {
	case table.Int:
		return arrow.PrimitiveTypes.Int64
	case table.Float:
		return arrow.PrimitiveTypes.Float64
	case table.Bool:
		return arrow.FixedWidthTypes.Boolean
	case table.Timestamp:
		return arrow.FixedWidthTypes.Timestamp_ns
	default:
		return arrow.BinaryTypes.String
	}
}

func record(schema *arrow.Schema, t *table.Table, lo, hi int) arrow.Record {
	mem := memory.DefaultAllocator
	cols := make([]arrow.Array, len(t.Columns))
	for ci, c := range t.Columns {
		switch c.Type {
		case table.Int:
			b := array.NewInt64Builder(mem)
			for i := lo; i < hi; i++ {
				if c.IsNull(i) {
					b.AppendNull()
				} else {
					b.Append(c.Ints[i])
				}
			}
			cols[ci] = b.NewArray()
			b.Release()
		case table.Timestamp:
			b := array.NewTimestampBuilder(mem, arrow.FixedWidthTypes.Timestamp_ns.(*arrow.TimestampType))
			for i := lo; i < hi; i++ {
				if c.IsNull(i) {
					b.AppendNull()
				} else {
					b.Append(arrow.Timestamp(c.Ints[i]))
				}
			}
			cols[ci] = b.NewArray()
			b.Release()
		case table.Float:
			b := array.NewFloat64Builder(mem)
			for i := lo; i < hi; i++ {
				if c.IsNull(i) {
					b.AppendNull()
				} else {
					b.Append(c.Floats[i])
				}
			}
			cols[ci] = b.NewArray()
			b.Release()
		case table.Bool:
			b := array.NewBooleanBuilder(mem)
			for i := lo; i < hi; i++ {
				if c.IsNull(i) {
					b.AppendNull()
				} else {
					b.Append(c.Bools[i])
				}
			}
			cols[ci] = b.NewArray()
			b.Release()
		default:
			b := array.NewStringBuilder(mem)
			for i := lo; i < hi; i++ {
				if c.IsNull(i) {
					b.AppendNull()
				} else {
					b.Append(c.Strings[i])
				}
			}
			cols[ci] = b.NewArray()
			b.Release()
		}
	}

	rec := array.NewRecord(schema, cols, int64(hi-lo))
	for _, a := range cols {
		a.Release()
	}
	return rec
}
