package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tlcetl/internal/storage"
	"tlcetl/internal/table"
)

// maxVars is the bound-parameter limit of modernc.org/sqlite builds.
const maxVars = 32766

// Sink implements storage.Sink for SQLite.
//
// SQLite has no timestamp type; timestamps are stored as RFC3339Nano text
// and booleans as 0/1 integers.
type Sink struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	if cfg.Schema != "" {
		return nil, fmt.Errorf("sqlite: schema %q is not supported", cfg.Schema)
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Sink{db: db}, nil
}

func (s *Sink) Close() { _ = s.db.Close() }

func (s *Sink) ReplaceTable(ctx context.Context, name string, t *table.Table) (int64, error) {
	if len(t.Columns) == 0 {
		return 0, fmt.Errorf("table %s has no columns", name)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(name)); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateSQL(name, storage.Columns(t))); err != nil {
		return 0, fmt.Errorf("create table %s: %w", name, err)
	}

	n := t.NumRows()
	batch := max(1, maxVars/len(t.Columns))
	row := make([]any, 0, len(t.Columns))
	var loaded int64
	for lo := 0; lo < n; lo += batch {
		hi := min(lo+batch, n)
		q := buildInsertSQL(name, t.Names(), hi-lo)
		args := make([]any, 0, (hi-lo)*len(t.Columns))
		for i := lo; i < hi; i++ {
			for _, v := range storage.Row(t, i, row) {
				args = append(args, sqliteValue(v))
			}
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return loaded, fmt.Errorf("insert %s rows %d-%d: %w", name, lo, hi, err)
		}
		affected, _ := res.RowsAffected()
		loaded += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return loaded, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqliteType(t table.Type) string {
	switch t {
	case table.Int, table.Bool:
		return "INTEGER"
	case table.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

func buildCreateSQL(name string, cols []storage.ColumnSpec) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = sqlIdent(c.Name) + " " + sqliteType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", sqlIdent(name), strings.Join(defs, ", "))
}

// buildInsertSQL builds one multi-row INSERT with ? placeholders.
func buildInsertSQL(name string, columns []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(name))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return b.String()
}

func sqliteValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return formatSQLiteTime(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
