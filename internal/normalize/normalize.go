// Package normalize reshapes a loaded table into the canonical form written
// to disk: no all-null columns, unified column names for merged categories,
// a category tag on merged rows and temporal columns as epoch milliseconds.
package normalize

import (
	"fmt"
	"strings"

	"tlcetl/internal/table"
	"tlcetl/internal/tlc"
)

// CategoryColumn tags each row of a merged table with its raw source category.
const CategoryColumn = "category"

// MergeRule describes how the raw categories collapsed into Merged are
// reconciled. StripPrefixes are removed from the start of column names, so
// "tpep_pickup_datetime" and "lpep_pickup_datetime" both become
// "pickup_datetime".
type MergeRule struct {
	Merged        tlc.Category
	Members       []tlc.Category
	StripPrefixes []string
}

// Rules is the merge table. A new schema variant is a new entry or a new
// prefix here.
var Rules = []MergeRule{
	{
		Merged:        tlc.YellowGreen,
		Members:       []tlc.Category{tlc.Yellow, tlc.Green},
		StripPrefixes: []string{"tpep_", "lpep_"},
	},
}

// RuleFor returns the merge rule for c.
func RuleFor(c tlc.Category) (MergeRule, bool) {
	for _, r := range Rules {
		if r.Merged == c {
			return r, true
		}
	}
	return MergeRule{}, false
}

func (r MergeRule) member(c tlc.Category) bool {
	for _, m := range r.Members {
		if m == c {
			return true
		}
	}
	return false
}

func (r MergeRule) rename(name string) string {
	for _, p := range r.StripPrefixes {
		if strings.HasPrefix(name, p) && len(name) > len(p) {
			return name[len(p):]
		}
	}
	return name
}

// Normalize returns a normalized copy of raw; raw itself is left untouched.
// Applying Normalize to its own output yields an identical table.
func Normalize(raw *table.Table, d tlc.FileDescriptor, requested tlc.Category) (*table.Table, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: %s: nil table", tlc.ErrNormalization, d.Name)
	}
	if err := raw.Check(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", tlc.ErrNormalization, d.Name, err)
	}

	t := dropAllNull(raw.Clone())

	if rule, ok := RuleFor(requested); ok {
		if !rule.member(d.SourceCategory) {
			return nil, fmt.Errorf("%w: %s: source category %q is not part of %q",
				tlc.ErrNormalization, d.Name, d.SourceCategory, requested)
		}
		if err := harmonize(t, rule); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", tlc.ErrNormalization, d.Name, err)
		}
		tag(t, d.SourceCategory)
	}
	pruneDropped(t)

	for _, c := range t.Columns {
		if c.Type == table.Timestamp {
			toEpochMillis(c)
		}
	}
	return t, nil
}

// dropAllNull removes all-null columns and records their names in
// t.Dropped, so a bucket whose other files carry values for them still
// concatenates.
func dropAllNull(t *table.Table) *table.Table {
	kept := t.Columns[:0]
	for _, c := range t.Columns {
		if c.AllNull() {
			t.Dropped = append(t.Dropped, c.Name)
			continue
		}
		kept = append(kept, c)
	}
	t.Columns = kept
	return t
}

func harmonize(t *table.Table, rule MergeRule) error {
	seen := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		name := rule.rename(c.Name)
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("columns %q and %q both map to %q", prev, c.Name, name)
		}
		seen[name] = c.Name
		c.Name = name
	}
	for i, name := range t.Dropped {
		t.Dropped[i] = rule.rename(name)
	}
	return nil
}

// pruneDropped dedupes t.Dropped and removes names that are live columns.
func pruneDropped(t *table.Table) {
	if len(t.Dropped) == 0 {
		return
	}
	seen := make(map[string]bool, len(t.Columns)+len(t.Dropped))
	for _, c := range t.Columns {
		seen[c.Name] = true
	}
	kept := t.Dropped[:0]
	for _, name := range t.Dropped {
		if !seen[name] {
			seen[name] = true
			kept = append(kept, name)
		}
	}
	t.Dropped = kept
}

// tag sets the category column, replacing one that is already present.
func tag(t *table.Table, source tlc.Category) {
	n := t.NumRows()
	col := table.NewColumn(CategoryColumn, table.String, n)
	for i := 0; i < n; i++ {
		col.AppendString(string(source))
	}
	for i, c := range t.Columns {
		if c.Name == CategoryColumn {
			t.Columns[i] = col
			return
		}
	}
	t.Columns = append(t.Columns, col)
}

// toEpochMillis turns a timestamp column (UTC nanoseconds) into an integer
// column of milliseconds, rounding toward negative infinity.
func toEpochMillis(c *table.Column) {
	const nsPerMs = int64(1_000_000)
	for i, v := range c.Ints {
		q := v / nsPerMs
		if v%nsPerMs != 0 && v < 0 {
			q--
		}
		c.Ints[i] = q
	}
	c.Type = table.Int
}
