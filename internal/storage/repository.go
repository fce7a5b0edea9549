// Package storage is the backend-agnostic persistence seam: the Repository
// and Tx interfaces, the logical schema, the lookup error sentinels, and the
// factory registry backends attach to from init().
package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to construct a Repository.
//
// DSN connects to the target database. AdminDSN is a server-level connection
// used only by EnsureDatabase; when it is empty the backend assumes the
// database already exists and EnsureDatabase becomes a no-op.
type Config struct {
	Kind     string
	DSN      string
	AdminDSN string
	Database string
}

// Repository is a backend-agnostic handle on the relational store.
//
// IMPORTANT: This interface is intentionally minimal and focused on what the
// loader needs. Each backend implements the semantics in its own idiomatic
// way (Postgres ON CONFLICT, SQLite OR IGNORE, SQL Server NOT EXISTS).
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureDatabase creates the target database if it does not exist.
	// Idempotent and safe to call on every process start.
	EnsureDatabase(ctx context.Context) error

	// EnsureSchema creates the given tables if they do not exist. Idempotent.
	EnsureSchema(ctx context.Context, tables []TableSpec) error

	// Begin opens a transaction. Callers normally go through RunInTx.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one transactional scope. All staged inserts commit atomically or not
// at all.
type Tx interface {
	// Insert stages a multi-row insert. When onConflictIgnore is true, rows
	// violating a duplicate key are silently skipped instead of failing.
	Insert(ctx context.Context, table string, columns []string, rows [][]any, onConflictIgnore bool) (int64, error)

	// SelectID looks up the single idColumn value matching every filter
	// exactly. Zero matches fail with ErrNotFound, more than one with
	// ErrAmbiguous.
	SelectID(ctx context.Context, table string, idColumn string, match []Match) (string, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Match is one equality filter for SelectID. Filters are ordered so that
// statement construction stays deterministic.
type Match struct {
	Column string
	Value  any
}

// MatchString renders filters for error messages, e.g. "name=Latte, size=M".
func MatchString(match []Match) string {
	out := ""
	for i, m := range match {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%v", m.Column, m.Value)
	}
	return out
}

// RunInTx runs fn inside a transaction. On a nil return the transaction is
// committed; on error it is rolled back and the error is returned unchanged.
// The underlying connection is released either way.
func RunInTx(ctx context.Context, repo Repository, fn func(tx Tx) error) error {
	tx, err := repo.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ---- backend factories (backends register themselves from init()) ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Panics on empty kind, nil factory, or duplicate registration. This is
// intentional to fail fast and avoid ambiguous backend selection.
func Register(kind string, f factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

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

// New constructs a Repository using the registered backend factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	factoryMu.RLock()
	f := factories[cfg.Kind]
	factoryMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
