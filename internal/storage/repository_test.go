package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeTx struct {
	commits   int
	rollbacks int
}

func (f *fakeTx) Insert(ctx context.Context, table string, columns []string, rows [][]any, onConflictIgnore bool) (int64, error) {
	return int64(len(rows)), nil
}

func (f *fakeTx) SelectID(ctx context.Context, table string, idColumn string, match []Match) (string, error) {
	return "", fmt.Errorf("%s: %w", table, ErrNotFound)
}

func (f *fakeTx) Commit(ctx context.Context) error   { f.commits++; return nil }
func (f *fakeTx) Rollback(ctx context.Context) error { f.rollbacks++; return nil }

type fakeRepo struct {
	tx       *fakeTx
	beginErr error
}

func (f *fakeRepo) Close()                                                {}
func (f *fakeRepo) EnsureDatabase(ctx context.Context) error              { return nil }
func (f *fakeRepo) EnsureSchema(ctx context.Context, _ []TableSpec) error { return nil }
func (f *fakeRepo) Begin(ctx context.Context) (Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	tx := &fakeTx{}
	repo := &fakeRepo{tx: tx}

	err := RunInTx(context.Background(), repo, func(Tx) error { return nil })
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	if tx.commits != 1 || tx.rollbacks != 0 {
		t.Fatalf("commits=%d rollbacks=%d, want 1/0", tx.commits, tx.rollbacks)
	}
}

func TestRunInTx_RollsBackAndReturnsErrorUnchanged(t *testing.T) {
	tx := &fakeTx{}
	repo := &fakeRepo{tx: tx}
	boom := errors.New("boom")

	err := RunInTx(context.Background(), repo, func(Tx) error { return boom })
	if err != boom {
		t.Fatalf("expected the callback error unchanged, got %v", err)
	}
	if tx.commits != 0 || tx.rollbacks != 1 {
		t.Fatalf("commits=%d rollbacks=%d, want 0/1", tx.commits, tx.rollbacks)
	}
}

func TestRunInTx_BeginFailure(t *testing.T) {
	boom := errors.New("no connection")
	repo := &fakeRepo{beginErr: boom}

	err := RunInTx(context.Background(), repo, func(Tx) error {
		t.Fatalf("callback must not run when Begin fails")
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected begin error, got %v", err)
	}
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(context.Background(), Config{Kind: "oracle"})
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if got := err.Error(); got != "unsupported storage.kind=oracle" {
		t.Fatalf("unexpected error: %q", got)
	}
}

func TestNew_MissingKind(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (Repository, error) { return &fakeRepo{}, nil }

	Register("dup-test", f)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register("dup-test", f)
}

func TestLookupErrors_ShareUmbrella(t *testing.T) {
	if !errors.Is(ErrNotFound, ErrLookup) {
		t.Fatalf("ErrNotFound must wrap ErrLookup")
	}
	if !errors.Is(ErrAmbiguous, ErrLookup) {
		t.Fatalf("ErrAmbiguous must wrap ErrLookup")
	}
	if errors.Is(ErrNotFound, ErrAmbiguous) {
		t.Fatalf("ErrNotFound and ErrAmbiguous must stay distinct")
	}

	wrapped := fmt.Errorf("products (name=Latte): %w", ErrNotFound)
	if !errors.Is(wrapped, ErrLookup) {
		t.Fatalf("wrapped lookup error lost the umbrella")
	}
}

func TestMatchString(t *testing.T) {
	got := MatchString([]Match{
		{Column: "name", Value: "Latte"},
		{Column: "size", Value: "M"},
		{Column: "iced", Value: false},
	})
	want := "name=Latte, size=M, iced=false"
	if got != want {
		t.Fatalf("MatchString=%q, want %q", got, want)
	}
}

func TestTables_Shape(t *testing.T) {
	tables := Tables()
	if len(tables) != 4 {
		t.Fatalf("expected 4 tables, got %d", len(tables))
	}

	products, ok := TableByName(TableProducts)
	if !ok {
		t.Fatalf("products table missing")
	}
	if len(products.Uniques) != 1 || len(products.Uniques[0]) != 4 {
		t.Fatalf("products unique constraint wrong: %#v", products.Uniques)
	}

	locations, ok := TableByName(TableLocations)
	if !ok || len(locations.Uniques) != 1 {
		t.Fatalf("locations unique constraint missing")
	}

	if _, ok := TableByName("widgets"); ok {
		t.Fatalf("unknown table resolved")
	}
}
