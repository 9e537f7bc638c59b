// Package table is the in-memory columnar model that flows between the
// loaders, the normalizer and the writers.
//
// A Column stores its values in one typed slice chosen by Type; nulls keep a
// zero value in that slice and are tracked in Valid.
package table

import (
	"fmt"
	"strconv"
	"time"
)

// Type is the homogeneous value type of a column.
type Type int

const (
	String Type = iota
	Int
	Float
	Bool
	// Timestamp values are UTC nanoseconds since the epoch, stored in Ints.
	Timestamp
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "boolean"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Column is one named, typed column.
type Column struct {
	Name string
	Type Type

	Ints    []int64 // Int, Timestamp
	Floats  []float64
	Strings []string
	Bools   []bool

	// Valid marks non-null rows. nil means no row is null.
	Valid []bool
}

// NewColumn returns an empty column with room for capHint rows.
func NewColumn(name string, t Type, capHint int) *Column {
	c := &Column{Name: name, Type: t}
	switch t {
	case Int, Timestamp:
		c.Ints = make([]int64, 0, capHint)
	case Float:
		c.Floats = make([]float64, 0, capHint)
	case Bool:
		c.Bools = make([]bool, 0, capHint)
	default:
		c.Strings = make([]string, 0, capHint)
	}
	return c
}

func (c *Column) Len() int {
	switch c.Type {
	case Int, Timestamp:
		return len(c.Ints)
	case Float:
		return len(c.Floats)
	case Bool:
		return len(c.Bools)
	default:
		return len(c.Strings)
	}
}

func (c *Column) IsNull(i int) bool { return c.Valid != nil && !c.Valid[i] }

// NullCount is the number of null rows.
func (c *Column) NullCount() int {
	if c.Valid == nil {
		return 0
	}
	n := 0
	for _, ok := range c.Valid {
		if !ok {
			n++
		}
	}
	return n
}

// AllNull reports whether the column has rows and every one of them is null.
// A column without rows is not all-null.
func (c *Column) AllNull() bool {
	n := c.Len()
	return n > 0 && c.NullCount() == n
}

func (c *Column) markValid(ok bool) {
	if c.Valid == nil {
		if ok {
			return
		}
		n := c.Len()
		c.Valid = make([]bool, n)
		for i := 0; i < n-1; i++ {
			c.Valid[i] = true
		}
		return
	}
	c.Valid = append(c.Valid, ok)
}

// AppendNull appends a null row.
func (c *Column) AppendNull() {
	switch c.Type {
	case Int, Timestamp:
		c.Ints = append(c.Ints, 0)
	case Float:
		c.Floats = append(c.Floats, 0)
	case Bool:
		c.Bools = append(c.Bools, false)
	default:
		c.Strings = append(c.Strings, "")
	}
	c.markValid(false)
}

func (c *Column) AppendInt(v int64) {
	c.Ints = append(c.Ints, v)
	c.markValid(true)
}

// AppendTimestamp appends t as UTC nanoseconds.
func (c *Column) AppendTimestamp(t time.Time) {
	c.Ints = append(c.Ints, t.UnixNano())
	c.markValid(true)
}

func (c *Column) AppendFloat(v float64) {
	c.Floats = append(c.Floats, v)
	c.markValid(true)
}

func (c *Column) AppendString(v string) {
	c.Strings = append(c.Strings, v)
	c.markValid(true)
}

func (c *Column) AppendBool(v bool) {
	c.Bools = append(c.Bools, v)
	c.markValid(true)
}

// Value returns row i as nil, int64, float64, string, bool or time.Time.
func (c *Column) Value(i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch c.Type {
	case Int:
		return c.Ints[i]
	case Timestamp:
		return time.Unix(0, c.Ints[i]).UTC()
	case Float:
		return c.Floats[i]
	case Bool:
		return c.Bools[i]
	default:
		return c.Strings[i]
	}
}

// Text renders row i for text formats. Null renders as "".
func (c *Column) Text(i int) string {
	if c.IsNull(i) {
		return ""
	}
	switch c.Type {
	case Int:
		return strconv.FormatInt(c.Ints[i], 10)
	case Timestamp:
		return time.Unix(0, c.Ints[i]).UTC().Format("2006-01-02 15:04:05")
	case Float:
		return strconv.FormatFloat(c.Floats[i], 'f', -1, 64)
	case Bool:
		if c.Bools[i] {
			return "True"
		}
		return "False"
	default:
		return c.Strings[i]
	}
}

// Clone returns a deep copy.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Type: c.Type}
	if c.Ints != nil {
		out.Ints = append([]int64(nil), c.Ints...)
	}
	if c.Floats != nil {
		out.Floats = append([]float64(nil), c.Floats...)
	}
	if c.Strings != nil {
		out.Strings = append([]string(nil), c.Strings...)
	}
	if c.Bools != nil {
		out.Bools = append([]bool(nil), c.Bools...)
	}
	if c.Valid != nil {
		out.Valid = append([]bool(nil), c.Valid...)
	}
	return out
}

// Table is an ordered set of equally long columns.
type Table struct {
	Columns []*Column
	// Dropped names columns that were removed because every value was null.
	// Concat counts them as present, filled with nulls.
	Dropped []string
}

func New(cols ...*Column) *Table { return &Table{Columns: cols} }

// NumRows is the length of the first column, or 0 for a table without columns.
func (t *Table) NumRows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Column returns the column called name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Check verifies column names are unique and every column has the same length.
func (t *Table) Check() error {
	seen := make(map[string]bool, len(t.Columns))
	n := t.NumRows()
	for _, c := range t.Columns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if c.Len() != n {
			return fmt.Errorf("column %q has %d rows, want %d", c.Name, c.Len(), n)
		}
	}
	return nil
}

func (t *Table) Clone() *Table {
	out := &Table{Columns: make([]*Column, len(t.Columns))}
	for i, c := range t.Columns {
		out.Columns[i] = c.Clone()
	}
	if t.Dropped != nil {
		out.Dropped = append([]string(nil), t.Dropped...)
	}
	return out
}
