// Package csv parses delimited text into a typed table.
//
// Values are read as text first; each column's type is then inferred from
// its non-empty values (int, float, boolean, timestamp, otherwise string)
// and the column is converted. Empty cells are null.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tlcetl/internal/table"
	"tlcetl/internal/tlc"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Options tunes the reader. The zero value reads comma-separated text.
type Options struct {
	Comma      rune
	LazyQuotes bool
	// TrimSpace trims leading and trailing white space from every value.
	TrimSpace bool
}

// Parse reads all of r. The first record is the header.
func Parse(ctx context.Context, r io.Reader, opt Options) (*table.Table, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(encoding.Nop.NewDecoder())))
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	line := 1
	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &table.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", tlc.ErrParse, err)
	}
	names := HeaderNames(hdr)

	cols := make([][]string, len(names))
	nulls := make([][]bool, len(names))
	for {
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv line %d: %v", tlc.ErrParse, line, err)
		}
		if len(rec) > len(names) {
			return nil, fmt.Errorf("%w: csv line %d: %d fields, header has %d", tlc.ErrParse, line, len(rec), len(names))
		}
		for i := range names {
			v := ""
			if i < len(rec) {
				v = rec[i]
				if opt.TrimSpace {
					v = strings.TrimSpace(v)
				}
			}
			// ReuseRecord: the backing array is overwritten on the next Read.
			cols[i] = append(cols[i], strings.Clone(v))
			nulls[i] = append(nulls[i], v == "")
		}
	}

	out := &table.Table{Columns: make([]*table.Column, len(names))}
	for i, name := range names {
		out.Columns[i] = buildColumn(name, cols[i], nulls[i])
	}
	return out, nil
}

func buildColumn(name string, vals []string, null []bool) *table.Column {
	typ := inferType(vals, null)
	c := table.NewColumn(name, typ, len(vals))
	for i, v := range vals {
		if null[i] {
			c.AppendNull()
			continue
		}
		switch typ {
		case table.Int:
			n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			c.AppendInt(n)
		case table.Float:
			f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
			c.AppendFloat(f)
		case table.Bool:
			b, _ := parseBool(v)
			c.AppendBool(b)
		case table.Timestamp:
			t, _ := parseTimestamp(v)
			c.AppendTimestamp(t)
		default:
			c.AppendString(v)
		}
	}
	return c
}

// inferType picks the most specific type every non-empty value fits.
// A column without any value is a string column.
func inferType(vals []string, null []bool) table.Type {
	var seen bool
	allInt, allFloat, allBool, allTS := true, true, true, true

	for i, v := range vals {
		if null[i] {
			continue
		}
		seen = true
		v = strings.TrimSpace(v)

		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(v); !ok {
				allBool = false
			}
		}
		if allTS {
			if _, ok := parseTimestamp(v); !ok {
				allTS = false
			}
		}
		if !allInt && !allFloat && !allBool && !allTS {
			return table.String
		}
	}

	switch {
	case !seen:
		return table.String
	case allInt:
		return table.Int
	case allFloat:
		return table.Float
	case allBool:
		return table.Bool
	case allTS:
		return table.Timestamp
	default:
		return table.String
	}
}
