package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cafeload/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It provides:
  - database creation (create-if-absent via the admin connection)
  - idempotent schema DDL
  - duplicate-tolerant inserts via ON CONFLICT DO NOTHING
*/
type Repo struct {
	pool     *pgxpool.Pool
	adminDSN string
	database string
}

func init() {
	storage.Register("postgres", New)
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool, adminDSN: cfg.AdminDSN, database: cfg.Database}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureDatabase creates the target database when it does not exist.
//
// It uses a short-lived admin connection because CREATE DATABASE cannot run
// against the database being created. With no admin DSN configured the
// database is assumed to exist already.
func (r *Repo) EnsureDatabase(ctx context.Context) error {
	if r.adminDSN == "" || r.database == "" {
		return nil
	}

	conn, err := pgx.Connect(ctx, r.adminDSN)
	if err != nil {
		return fmt.Errorf("admin connect: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	var exists bool
	err = conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, r.database).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database %s: %w", r.database, err)
	}
	if exists {
		return nil
	}

	// CREATE DATABASE does not accept bind parameters.
	_, err = conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{r.database}.Sanitize())
	if err != nil {
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
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx implements storage.Tx over pgx.Tx.
type Tx struct {
	tx pgx.Tx
}

// Insert stages a multi-row insert. With onConflictIgnore the statement
// carries a bare ON CONFLICT DO NOTHING, which tolerates violations of any
// unique constraint on the destination.
func (t *Tx) Insert(ctx context.Context, table string, columns []string, rows [][]any, onConflictIgnore bool) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	q, args := buildInsertSQL(table, columns, rows, onConflictIgnore)

	cmd, err := t.tx.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// SelectID resolves the single id matching every filter. LIMIT 2 is enough
// to distinguish "exactly one" from "more than one" without scanning further.
func (t *Tx) SelectID(ctx context.Context, table string, idColumn string, match []storage.Match) (string, error) {
	q, args := buildSelectIDSQL(table, idColumn, match)

	rows, err := t.tx.Query(ctx, q, args...)
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

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// pgType maps logical column types onto Postgres types.
func pgType(c storage.ColumnSpec) string {
	switch c.Type {
	case storage.TypeID:
		return "varchar(36)"
	case storage.TypeText:
		return "text"
	case storage.TypeBool:
		return "boolean"
	case storage.TypeTimestamp:
		return "timestamptz"
	case storage.TypeMoney:
		return "numeric(10,2)"
	default:
		return "text"
	}
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string
	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", pgIdent(c.Name), pgType(c))
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
			cols = append(cols, pgIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", t.Name, strings.Join(parts, ",\n  ")), nil
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// Why this exists:
//   - It is pure and deterministic, so placeholder numbering and the
//     ON CONFLICT clause can be unit tested without a database.
func buildInsertSQL(table string, columns []string, rows [][]any, onConflictIgnore bool) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
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
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if onConflictIgnore {
		b.WriteString(" ON CONFLICT DO NOTHING")
	}

	return b.String(), args
}

func buildSelectIDSQL(table string, idColumn string, match []storage.Match) (string, []any) {
	parts := make([]string, 0, len(match))
	args := make([]any, 0, len(match))
	for i, m := range match {
		parts = append(parts, fmt.Sprintf("%s = $%d", pgIdent(m.Column), i+1))
		args = append(args, m.Value)
	}

	q := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s LIMIT 2`,
		pgIdent(idColumn), table, strings.Join(parts, " AND "),
	)
	return q, args
}
