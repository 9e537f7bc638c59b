package table

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"tlcetl/internal/tlc"
)

// Policy decides what Concat does with column sets that differ between tables.
type Policy string

const (
	// Strict rejects tables whose column sets differ.
	Strict Policy = "strict"
	// Union keeps every column seen and fills missing ones with nulls.
	Union Policy = "union"
)

// Concat stacks tables vertically, aligning columns by name. Column order
// follows first appearance. Int and Float columns of the same name promote
// to Float; any other type conflict is tlc.ErrNormalization, as is a column
// set mismatch under Strict. A column listed in a table's Dropped counts as
// present in that table and is filled with nulls. The inputs are not modified.
func Concat(tables []*Table, policy Policy) (*Table, error) {
	if len(tables) == 0 {
		return &Table{}, nil
	}

	var (
		order []string
		types = map[string]Type{}
	)
	for ti, t := range tables {
		for _, c := range t.Columns {
			prev, ok := types[c.Name]
			if !ok {
				order = append(order, c.Name)
				types[c.Name] = c.Type
				continue
			}
			merged, ok := promote(prev, c.Type)
			if !ok {
				return nil, fmt.Errorf("%w: column %q is %s in one table and %s in table %d", tlc.ErrNormalization, c.Name, prev, c.Type, ti)
			}
			types[c.Name] = merged
		}
	}

	if policy != Union {
		first := known(tables[0])
		for ti, t := range tables[1:] {
			if missing, extra := diffNames(first, known(t)); len(missing)+len(extra) > 0 {
				return nil, fmt.Errorf("%w: table %d column set differs from table 0: missing [%s], extra [%s]",
					tlc.ErrNormalization, ti+1, strings.Join(missing, ", "), strings.Join(extra, ", "))
			}
		}
	}

	total := 0
	for _, t := range tables {
		total += t.NumRows()
	}

	out := &Table{Columns: make([]*Column, len(order))}
	for i, name := range order {
		dst := NewColumn(name, types[name], total)
		for _, t := range tables {
			if src := t.Column(name); src != nil {
				appendColumn(dst, src)
				continue
			}
			for r := 0; r < t.NumRows(); r++ {
				dst.AppendNull()
			}
		}
		out.Columns[i] = dst
	}

	for _, t := range tables {
		for _, name := range t.Dropped {
			if _, live := types[name]; !live && !slices.Contains(out.Dropped, name) {
				out.Dropped = append(out.Dropped, name)
			}
		}
	}
	sort.Strings(out.Dropped)
	return out, nil
}

// known is every column name t accounts for: its columns plus the ones
// dropped for being all null.
func known(t *Table) []string {
	return append(t.Names(), t.Dropped...)
}

func promote(a, b Type) (Type, bool) {
	switch {
	case a == b:
		return a, true
	case (a == Int && b == Float) || (a == Float && b == Int):
		return Float, true
	default:
		return a, false
	}
}

// diffNames reports which of want are missing from have and which of have
// are not in want, both sorted.
func diffNames(want, have []string) (missing, extra []string) {
	haveSet := make(map[string]bool, len(have))
	for _, n := range have {
		haveSet[n] = true
	}
	wantSet := make(map[string]bool, len(want))
	for _, n := range want {
		wantSet[n] = true
		if !haveSet[n] {
			missing = append(missing, n)
		}
	}
	for _, n := range have {
		if !wantSet[n] {
			extra = append(extra, n)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

// appendColumn appends all of src to dst, converting Int to Float when dst
// was promoted.
func appendColumn(dst, src *Column) {
	n := src.Len()
	base := dst.Len()

	switch {
	case dst.Type == Float && src.Type == Int:
		for _, v := range src.Ints {
			dst.Floats = append(dst.Floats, float64(v))
		}
	case dst.Type == Int || dst.Type == Timestamp:
		dst.Ints = append(dst.Ints, src.Ints...)
	case dst.Type == Float:
		dst.Floats = append(dst.Floats, src.Floats...)
	case dst.Type == Bool:
		dst.Bools = append(dst.Bools, src.Bools...)
	default:
		dst.Strings = append(dst.Strings, src.Strings...)
	}

	switch {
	case src.Valid == nil && dst.Valid == nil:
	case src.Valid == nil:
		for i := 0; i < n; i++ {
			dst.Valid = append(dst.Valid, true)
		}
	default:
		if dst.Valid == nil {
			dst.Valid = make([]bool, base, base+n)
			for i := range dst.Valid {
				dst.Valid[i] = true
			}
		}
		dst.Valid = append(dst.Valid, src.Valid...)
	}
}
