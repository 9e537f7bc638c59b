package storage

import (
	"strings"

	"tlcetl/internal/table"
)

// TableName turns a derived output name such as
// "yellow_green_tripdata_2021-01" into a plain lower-case SQL identifier
// ("yellow_green_tripdata_2021_01"). Names starting with a digit get a "t_"
// prefix.
func TableName(baseName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(baseName)) {
		if r == '_' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || ('0' <= s[0] && s[0] <= '9') {
		s = "t_" + s
	}
	return s
}

// ColumnSpec is one column of a table to create. Every column is nullable.
type ColumnSpec struct {
	Name string
	Type table.Type
}

// Columns describes t's columns for DDL.
func Columns(t *table.Table) []ColumnSpec {
	out := make([]ColumnSpec, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = ColumnSpec{Name: c.Name, Type: c.Type}
	}
	return out
}

// Row fills dst with row i of t as driver values: nil, int64, float64,
// bool, string or time.Time.
func Row(t *table.Table, i int, dst []any) []any {
	dst = dst[:0]
	for _, c := range t.Columns {
		dst = append(dst, c.Value(i))
	}
	return dst
}
