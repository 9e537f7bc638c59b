// Package parquet reads a parquet file into a typed table through Arrow.
package parquet

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"tlcetl/internal/table"
	"tlcetl/internal/tlc"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// Read decodes a whole parquet file held in b.
func Read(ctx context.Context, b []byte) (*table.Table, error) {
	mem := memory.DefaultAllocator
	at, err := pqarrow.ReadTable(ctx, bytes.NewReader(b), parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("%w: read parquet: %v", tlc.ErrParse, err)
	}
	defer at.Release()

	schema := at.Schema()
	rows := int(at.NumRows())
	out := &table.Table{Columns: make([]*table.Column, 0, int(at.NumCols()))}
	for i := 0; i < int(at.NumCols()); i++ {
		f := schema.Field(i)
		col := table.NewColumn(f.Name, columnType(f.Type), rows)
		for _, chunk := range at.Column(i).Data().Chunks() {
			if err := appendChunk(col, chunk); err != nil {
				return nil, fmt.Errorf("%w: column %q: %v", tlc.ErrParse, f.Name, err)
			}
		}
		out.Columns = append(out.Columns, col)
	}
	return out, nil
}

// columnType maps an Arrow type onto the table model. Types without a
// direct counterpart are kept as their string rendering.
func columnType(dt arrow.DataType) table.Type {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return table.Int
	case arrow.FLOAT32, arrow.FLOAT64:
		return table.Float
	case arrow.BOOL:
		return table.Bool
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return table.Timestamp
	default:
		return table.String
	}
}

func appendChunk(col *table.Column, arr arrow.Array) error {
	each := func(fn func(i int)) {
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				col.AppendNull()
				continue
			}
			fn(i)
		}
	}

	switch a := arr.(type) {
	case *array.Int64:
		each(func(i int) { col.AppendInt(a.Value(i)) })
	case *array.Int32:
		each(func(i int) { col.AppendInt(int64(a.Value(i))) })
	case *array.Int16:
		each(func(i int) { col.AppendInt(int64(a.Value(i))) })
	case *array.Int8:
		each(func(i int) { col.AppendInt(int64(a.Value(i))) })
	case *array.Uint64:
		each(func(i int) { col.AppendInt(int64(a.Value(i))) })
	case *array.Uint32:
		each(func(i int) { col.AppendInt(int64(a.Value(i))) })
	case *array.Uint16:
		each(func(i int) { col.AppendInt(int64(a.Value(i))) })
	case *array.Uint8:
		each(func(i int) { col.AppendInt(int64(a.Value(i))) })
	case *array.Float64:
		each(func(i int) { col.AppendFloat(a.Value(i)) })
	case *array.Float32:
		each(func(i int) { col.AppendFloat(float64(a.Value(i))) })
	case *array.Boolean:
		each(func(i int) { col.AppendBool(a.Value(i)) })
	case *array.String:
		// Value aliases the arrow buffer, which is released with the table.
		each(func(i int) { col.AppendString(strings.Clone(a.Value(i))) })
	case *array.LargeString:
		each(func(i int) { col.AppendString(strings.Clone(a.Value(i))) })
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		each(func(i int) { col.AppendTimestamp(a.Value(i).ToTime(unit)) })
	case *array.Date32:
		each(func(i int) { col.AppendTimestamp(a.Value(i).ToTime()) })
	case *array.Date64:
		each(func(i int) { col.AppendTimestamp(a.Value(i).ToTime()) })
	default:
		if col.Type != table.String {
			return fmt.Errorf("unexpected arrow array %T for %s column", arr, col.Type)
		}
		each(func(i int) { col.AppendString(arr.ValueStr(i)) })
	}
	return nil
}
