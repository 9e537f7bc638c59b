// Package storage loads bucket tables into a relational database.
//
// Backends register themselves by kind from an init function; import
// tlcetl/internal/storage/all to make every backend available.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tlcetl/internal/table"
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - DSN is passed through to the backend; validation is backend-specific.
//   - Schema, when set, qualifies every table name (postgres and mssql only).
type Config struct {
	Kind   string
	DSN    string
	Schema string
}

// Sink is a backend-agnostic destination for bucket tables.
type Sink interface {
	// Close releases connections. Call once.
	Close()

	// ReplaceTable drops the table called name if it exists, recreates it
	// from t's columns and loads every row of t in one transaction. It
	// returns the number of rows loaded.
	ReplaceTable(ctx context.Context, name string, t *table.Table) (int64, error)
}

// Factory opens a Sink for cfg.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind (e.g. "postgres", "sqlite").
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a Sink using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}
