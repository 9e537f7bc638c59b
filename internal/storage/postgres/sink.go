package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tlcetl/internal/storage"
	"tlcetl/internal/table"
)

// Sink implements storage.Sink for Postgres. Rows are loaded with the COPY
// protocol. Tables go into schema when it is set, which is created if missing.
type Sink struct {
	pool   *pgxpool.Pool
	schema string
}

// New creates a Postgres-backed Sink.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Sink{pool: pool, schema: strings.TrimSpace(cfg.Schema)}, nil
}

// Close closes the connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}

func (s *Sink) ReplaceTable(ctx context.Context, name string, t *table.Table) (int64, error) {
	if len(t.Columns) == 0 {
		return 0, fmt.Errorf("table %s has no columns", name)
	}
	ident := tableIdent(s.schema, name)
	schemaSQL, dropSQL, createSQL := buildReplaceSQL(ident, storage.Columns(t))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, q := range []string{schemaSQL, dropSQL, createSQL} {
		if q == "" {
			continue
		}
		if _, err := tx.Exec(ctx, q); err != nil {
			return 0, fmt.Errorf("%s: %w", q, err)
		}
	}

	n, err := tx.CopyFrom(ctx, ident, t.Names(), pgx.CopyFromSlice(t.NumRows(), func(i int) ([]any, error) {
		return storage.Row(t, i, nil), nil
	}))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func tableIdent(schema, name string) pgx.Identifier {
	if schema == "" {
		return pgx.Identifier{name}
	}
	return pgx.Identifier{schema, name}
}

func pgType(t table.Type) string {
	switch t {
	case table.Int:
		return "BIGINT"
	case table.Float:
		return "DOUBLE PRECISION"
	case table.Bool:
		return "BOOLEAN"
	case table.Timestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// buildReplaceSQL returns the statements that make an empty table ident
// with the given columns. schemaSQL is empty for an unqualified ident.
func buildReplaceSQL(ident pgx.Identifier, cols []storage.ColumnSpec) (schemaSQL, dropSQL, createSQL string) {
	if len(ident) == 2 {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{ident[0]}.Sanitize()
	}
	dropSQL = "DROP TABLE IF EXISTS " + ident.Sanitize()

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + pgType(c.Type)
	}
	createSQL = fmt.Sprintf("CREATE TABLE %s (%s)", ident.Sanitize(), strings.Join(defs, ", "))
	return schemaSQL, dropSQL, createSQL
}
