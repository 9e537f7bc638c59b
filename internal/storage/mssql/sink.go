package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"tlcetl/internal/storage"
	"tlcetl/internal/table"
)

// Sink implements storage.Sink for Microsoft SQL Server. Rows are loaded
// with the driver's bulk copy.
type Sink struct {
	db     *sql.DB
	schema string
}

func init() {
	storage.Register("mssql", New)
}

// New opens a SQL Server connection and validates it with PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Sink{db: raw, schema: strings.TrimSpace(cfg.Schema)}, nil
}

// Close releases database resources held by this sink.
func (s *Sink) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *Sink) ReplaceTable(ctx context.Context, name string, t *table.Table) (int64, error) {
	if len(t.Columns) == 0 {
		return 0, fmt.Errorf("table %s has no columns", name)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	ident := mssqlTableIdent(s.schema, name)
	dropSQL, createSQL := buildReplaceSQL(ident, storage.Columns(t))
	if _, err := tx.ExecContext(ctx, dropSQL); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("create table %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(ident, mssql.BulkOptions{}, t.Names()...))
	if err != nil {
		return 0, fmt.Errorf("bulk copy %s: %w", name, err)
	}
	defer stmt.Close()

	row := make([]any, 0, len(t.Columns))
	for i := 0; i < t.NumRows(); i++ {
		if _, err := stmt.ExecContext(ctx, storage.Row(t, i, row)...); err != nil {
			return 0, fmt.Errorf("bulk copy %s row %d: %w", name, i, err)
		}
	}
	// An Exec without arguments flushes the bulk batch.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("bulk copy %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	if err := stmt.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func mssqlType(t table.Type) string {
	switch t {
	case table.Int:
		return "BIGINT"
	case table.Float:
		return "FLOAT"
	case table.Bool:
		return "BIT"
	case table.Timestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// buildReplaceSQL takes an already quoted table identifier.
func buildReplaceSQL(ident string, cols []storage.ColumnSpec) (dropSQL, createSQL string) {
	dropSQL = fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s",
		strings.ReplaceAll(ident, "'", "''"), ident)

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = mssqlIdent(c.Name) + " " + mssqlType(c.Type) + " NULL"
	}
	createSQL = fmt.Sprintf("CREATE TABLE %s (%s)", ident, strings.Join(defs, ", "))
	return dropSQL, createSQL
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes name, qualified by schema when it is set.
//
// Example:
//
//	("dbo", "taxi_zones") -> [dbo].[taxi_zones]
func mssqlTableIdent(schema, name string) string {
	if schema == "" {
		return mssqlIdent(name)
	}
	return mssqlIdent(schema) + "." + mssqlIdent(name)
}
