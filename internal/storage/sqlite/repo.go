package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cafeload/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native timestamp type; modernc.org/sqlite stores whatever
//     affinity the bound value has. Timestamps are therefore bound as
//     RFC3339Nano strings for reliable round-trip behavior and easy debugging.
//   - There is no separate "create database" step: opening the DSN creates
//     the file, so EnsureDatabase is a no-op.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureDatabase(ctx context.Context) error { return nil }

// EnsureSchema creates the loader tables if absent, keeping startup idempotent.
func (r *Repo) EnsureSchema(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx implements storage.Tx over *sql.Tx.
type Tx struct {
	tx *sql.Tx
}

// Insert stages a multi-row insert. With onConflictIgnore it uses
// "INSERT OR IGNORE", which relies on the destination's UNIQUE/PK constraints.
func (t *Tx) Insert(ctx context.Context, table string, columns []string, rows [][]any, onConflictIgnore bool) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	q, args := buildInsertSQL(table, columns, rows, onConflictIgnore)

	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SelectID resolves the single id matching every filter. LIMIT 2 is enough
// to distinguish "exactly one" from "more than one" without scanning further.
func (t *Tx) SelectID(ctx context.Context, table string, idColumn string, match []storage.Match) (string, error) {
	q, args := buildSelectIDSQL(table, idColumn, match)

	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%s (%s): %w", table, storage.MatchString(match), storage.ErrNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%s (%s): %w", table, storage.MatchString(match), storage.ErrAmbiguous)
	}
}

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// sqliteType maps logical column types onto SQLite affinities.
func sqliteType(c storage.ColumnSpec) string {
	switch c.Type {
	case storage.TypeID, storage.TypeText, storage.TypeTimestamp:
		return "TEXT"
	case storage.TypeBool:
		return "BOOLEAN"
	case storage.TypeMoney:
		return "REAL"
	default:
		return "TEXT"
	}
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string
	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), sqliteType(c))
		if c.PrimaryKey {
			col += " PRIMARY KEY"
		} else if !c.Nullable {
			col += " NOT NULL"
		}
		// Enforcement depends on PRAGMA foreign_keys=ON.
		if c.References != "" {
			col += " REFERENCES " + c.References
		}
		parts = append(parts, col)
	}

	for _, u := range t.Uniques {
		cols := make([]string, 0, len(u))
		for _, c := range u {
			cols = append(cols, sqlIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", t.Name, strings.Join(parts, ",\n  ")), nil
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
// Pure and deterministic so statement shape is unit testable without a
// database.
func buildInsertSQL(table string, columns []string, rows [][]any, onConflictIgnore bool) (string, []any) {
	insertPrefix := "INSERT INTO "
	if onConflictIgnore {
		insertPrefix = "INSERT OR IGNORE INTO "
	}

	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString(insertPrefix)
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for _, v := range row {
			args = append(args, bindValue(v))
		}
	}

	return b.String(), args
}

func buildSelectIDSQL(table string, idColumn string, match []storage.Match) (string, []any) {
	parts := make([]string, 0, len(match))
	args := make([]any, 0, len(match))
	for _, m := range match {
		parts = append(parts, fmt.Sprintf("%s = ?", sqlIdent(m.Column)))
		args = append(args, bindValue(m.Value))
	}

	q := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s LIMIT 2`,
		sqlIdent(idColumn), table, strings.Join(parts, " AND "),
	)
	return q, args
}

// bindValue converts Go values the driver handles poorly into stable forms.
// Timestamps are stored as RFC3339Nano strings in UTC.
func bindValue(v any) any {
	if ts, ok := v.(time.Time); ok {
		return ts.UTC().Format(time.RFC3339Nano)
	}
	return v
}
