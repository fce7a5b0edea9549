package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"cafeload/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// SQL Server has no INSERT ... ON CONFLICT / INSERT OR IGNORE. Duplicate-
// tolerant inserts are implemented as an anti-join: insert only rows whose
// duplicate-detection key (the table's unique constraint) does not already
// exist. MERGE is deliberately avoided.
type Repo struct {
	db       *sql.DB
	adminDSN string
	database string
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{db: db, adminDSN: cfg.AdminDSN, database: cfg.Database}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureDatabase creates the target database when it does not exist, using a
// short-lived connection to master. With no admin DSN configured the
// database is assumed to exist already.
func (r *Repo) EnsureDatabase(ctx context.Context) error {
	if r.adminDSN == "" || r.database == "" {
		return nil
	}

	admin, err := sql.Open("sqlserver", r.adminDSN)
	if err != nil {
		return fmt.Errorf("admin connect: %w", err)
	}
	defer func() { _ = admin.Close() }()

	q := fmt.Sprintf(
		"IF DB_ID(N'%s') IS NULL CREATE DATABASE %s",
		strings.ReplaceAll(r.database, "'", "''"),
		mssqlIdent(r.database),
	)
	if _, err := admin.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create database %s: %w", r.database, err)
	}
	return nil
}

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

// Insert stages a multi-row insert. With onConflictIgnore only rows whose
// duplicate key does not already exist are inserted (NOT EXISTS anti-join on
// the table's unique constraint).
//
// Statements are chunked to stay under SQL Server's 2100-parameter limit.
func (t *Tx) Insert(ctx context.Context, table string, columns []string, rows [][]any, onConflictIgnore bool) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var dedupeColumns []string
	if onConflictIgnore {
		spec, ok := storage.TableByName(table)
		if !ok || len(spec.Uniques) == 0 {
			return 0, fmt.Errorf("mssql: table %s has no unique constraint to ignore duplicates on", table)
		}
		dedupeColumns = spec.Uniques[0]
	}

	maxRows := 2000 / max(1, len(columns))
	if maxRows < 1 {
		maxRows = 1
	}

	var total int64
	for start := 0; start < len(rows); start += maxRows {
		end := start + maxRows
		if end > len(rows) {
			end = len(rows)
		}
		part := rows[start:end]

		var q string
		var args []any
		if onConflictIgnore {
			q, args = buildInsertNotExistsSQL(table, columns, part, dedupeColumns)
		} else {
			q, args = buildInsertSQL(table, columns, part)
		}

		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}

	return total, nil
}

// SelectID resolves the single id matching every filter. TOP 2 is enough to
// distinguish "exactly one" from "more than one" without scanning further.
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

func mssqlIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// mssqlType maps logical column types onto SQL Server types.
func mssqlType(c storage.ColumnSpec) string {
	switch c.Type {
	case storage.TypeID:
		return "varchar(36)"
	case storage.TypeText:
		return "nvarchar(255)"
	case storage.TypeBool:
		return "bit"
	case storage.TypeTimestamp:
		return "datetime2"
	case storage.TypeMoney:
		return "decimal(10,2)"
	default:
		return "nvarchar(255)"
	}
}

// buildCreateTableSQL generates idempotent DDL. SQL Server has no CREATE
// TABLE IF NOT EXISTS, so the statement is guarded with OBJECT_ID.
func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string
	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", mssqlIdent(c.Name), mssqlType(c))
		if c.PrimaryKey {
			col += " PRIMARY KEY"
		} else if !c.Nullable {
			col += " NOT NULL"
		}
		if c.References != "" {
			col += " REFERENCES " + c.References
		}
		parts = append(parts, col)
	}

	for _, u := range t.Uniques {
		cols := make([]string, 0, len(u))
		for _, c := range u {
			cols = append(cols, mssqlIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n  %s\n);",
		t.Name, mssqlIdent(t.Name), strings.Join(parts, ",\n  "),
	), nil
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	return b.String(), args
}

// buildInsertNotExistsSQL inserts only rows whose dedupe key is not already
// present, making the statement duplicate-tolerant without MERGE.
func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}

	b.WriteString(") SELECT ")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("v.")
		b.WriteString(mssqlIdent(c))
	}

	b.WriteString(" FROM (VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(") AS v(")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" t WHERE ")

	for i, dc := range dedupeColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("t.")
		b.WriteString(mssqlIdent(dc))
		b.WriteString(" = v.")
		b.WriteString(mssqlIdent(dc))
	}
	b.WriteString(")")

	return b.String(), args
}

func buildSelectIDSQL(table string, idColumn string, match []storage.Match) (string, []any) {
	parts := make([]string, 0, len(match))
	args := make([]any, 0, len(match))
	for i, m := range match {
		parts = append(parts, fmt.Sprintf("%s = @p%d", mssqlIdent(m.Column), i+1))
		args = append(args, m.Value)
	}

	q := fmt.Sprintf(
		`SELECT TOP 2 %s FROM %s WHERE %s`,
		mssqlIdent(idColumn), mssqlIdent(table), strings.Join(parts, " AND "),
	)
	return q, args
}
