package writer

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"tlcetl/internal/table"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
)

type avroField struct {
	Name string   `json:"name"`
	Type []string `json:"type"`
}

type avroRecord struct {
	Name   string      `json:"name"`
	Type   string      `json:"type"`
	Fields []avroField `json:"fields"`
}

// avroType maps a column onto an avro primitive. Integer columns holding a
// value outside the 32-bit range are written as long.
func avroType(c *table.Column) string {
	switch c.Type {
	case table.Int:
		for i, v := range c.Ints {
			if !c.IsNull(i) && (v < math.MinInt32 || v > math.MaxInt32) {
				return "long"
			}
		}
		return "int"
	case table.Float:
		return "float"
	case table.Bool:
		return "boolean"
	default:
		return "string"
	}
}

// AvroSchema builds the record schema for t. Every field is a ["null", T]
// union. T is int, float, boolean or string, except that an integer column
// with any value outside the 32-bit range (epoch milliseconds, for one) is
// widened to long. Timestamp columns are written as strings. The returned
// slice holds T per column.
func AvroSchema(name string, t *table.Table) (avro.Schema, []string, error) {
	rec := avroRecord{Name: avroName(name), Type: "record", Fields: make([]avroField, len(t.Columns))}
	types := make([]string, len(t.Columns))
	seen := map[string]bool{}
	for i, c := range t.Columns {
		types[i] = avroType(c)
		fn := avroName(c.Name)
		if seen[fn] {
			return nil, nil, fmt.Errorf("avro field %q (column %q) is not unique", fn, c.Name)
		}
		seen[fn] = true
		rec.Fields[i] = avroField{Name: fn, Type: []string{"null", types[i]}}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, err
	}
	s, err := avro.ParseWithCache(string(b), "", &avro.SchemaCache{})
	if err != nil {
		return nil, nil, fmt.Errorf("avro schema: %w", err)
	}
	return s, types, nil
}

// avroName rewrites s into an avro name: [A-Za-z_][A-Za-z0-9_]*.
func avroName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z'):
			b.WriteRune(r)
		case '0' <= r && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// writeAvro writes the container header with no records, then appends the
// rows chunkRows at a time, reopening the file for every chunk. A failure
// leaves the chunks written so far in place.
func writeAvro(path, name string, t *table.Table, chunkRows int) error {
	schema, types, err := AvroSchema(name, t)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc, err := ocf.NewEncoderWithSchema(schema, f)
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fields := schema.(*avro.RecordSchema).Fields()
	n := t.NumRows()
	for lo := 0; lo < n; lo += chunkRows {
		hi := min(lo+chunkRows, n)
		if err := appendAvroChunk(path, schema, fields, types, t, lo, hi); err != nil {
			return fmt.Errorf("avro rows %d-%d: %w", lo, hi, err)
		}
	}
	return nil
}

func appendAvroChunk(path string, schema avro.Schema, fields []*avro.Field, types []string, t *table.Table, lo, hi int) error {
	rows := make([]map[string]any, 0, hi-lo)
	for i := lo; i < hi; i++ {
		m := make(map[string]any, len(fields))
		for ci, c := range t.Columns {
			m[fields[ci].Name()] = avroValue(c, types[ci], i)
		}
		rows = append(rows, m)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := ocf.NewEncoderWithSchema(schema, f)
	if err != nil {
		return err
	}
	for _, m := range rows {
		if err := enc.Encode(m); err != nil {
			_ = enc.Close()
			return err
		}
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

// avroValue returns row i of c as the Go type the union branch resolves to.
func avroValue(c *table.Column, typ string, i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch typ {
	case "int":
		return int32(c.Ints[i])
	case "long":
		return c.Ints[i]
	case "float":
		return float32(c.Floats[i])
	case "boolean":
		return c.Bools[i]
	default:
		return c.Text(i)
	}
}
