package tlc

import (
	"fmt"
	"strings"
)

// Format is an output encoding the writer can emit.
type Format string

const (
	Parquet Format = "parquet"
	CSV     Format = "csv"
	XLSX    Format = "xlsx"
	Avro    Format = "avro"
)

var allFormats = []Format{Parquet, CSV, XLSX, Avro}

// DefaultFormats is used when a request names no output format.
var DefaultFormats = []Format{Parquet}

func (f Format) Valid() bool {
	for _, k := range allFormats {
		if f == k {
			return true
		}
	}
	return false
}

// Ext returns the file extension (without dot) written for f.
func (f Format) Ext() string { return string(f) }

func (f Format) String() string { return string(f) }

// ParseFormats parses a comma-separated list such as "parquet,csv".
// Duplicates are dropped; order of first appearance is kept.
func ParseFormats(s string) ([]Format, error) {
	var out []Format
	seen := map[Format]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		f := Format(p)
		if !f.Valid() {
			return nil, fmt.Errorf("%w: output format %q must be one or more of {parquet, avro, xlsx, csv}", ErrInvalidRequest, p)
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, nil
}
