// Package loader downloads one catalog file and parses it into a table,
// choosing the parser by the descriptor's file extension.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tlcetl/internal/metrics"
	csvparser "tlcetl/internal/parser/csv"
	pqparser "tlcetl/internal/parser/parquet"
	"tlcetl/internal/table"
	"tlcetl/internal/tlc"
)

// ParseFunc decodes a downloaded file body.
type ParseFunc func(ctx context.Context, body []byte) (*table.Table, error)

var (
	mu      sync.RWMutex
	parsers = map[string]ParseFunc{}
)

func init() {
	Register(".parquet", pqparser.Read)
	Register(".csv", func(ctx context.Context, body []byte) (*table.Table, error) {
		return csvparser.Parse(ctx, bytes.NewReader(body), csvparser.Options{})
	})
}

// Register adds a parser for ext (with the leading dot, case-insensitive).
// Registering the same extension twice panics.
func Register(ext string, p ParseFunc) {
	mu.Lock()
	defer mu.Unlock()

	ext = strings.ToLower(ext)
	if ext == "" || !strings.HasPrefix(ext, ".") {
		panic(fmt.Sprintf("loader: Register called with bad extension %q", ext))
	}
	if p == nil {
		panic("loader: Register called with nil parser")
	}
	if _, exists := parsers[ext]; exists {
		panic(fmt.Sprintf("loader: parser already registered for %q", ext))
	}
	parsers[ext] = p
}

// Extensions lists the registered extensions, sorted.
func Extensions() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(parsers))
	for ext := range parsers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func lookup(ext string) ParseFunc {
	mu.RLock()
	defer mu.RUnlock()
	return parsers[strings.ToLower(ext)]
}

// Getter is the retrieval the loader needs; *source.Client implements it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type Loader struct {
	getter Getter
}

func New(g Getter) *Loader { return &Loader{getter: g} }

// Load fetches d.Link once and parses it. An unknown extension fails with
// tlc.ErrUnsupportedFormat before any network access.
func (l *Loader) Load(ctx context.Context, d tlc.FileDescriptor) (*table.Table, error) {
	parse := lookup(d.Extension)
	if parse == nil {
		return nil, fmt.Errorf("%w: %s%s: extension %q (supported: %s)",
			tlc.ErrUnsupportedFormat, d.Name, d.Extension, d.Extension, strings.Join(Extensions(), ", "))
	}

	body, err := l.getter.Get(ctx, d.Link)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", d.Name, err)
	}

	t, err := parse(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", d.Name, err)
	}
	metrics.RecordRows("loaded", t.NumRows())
	return t, nil
}
