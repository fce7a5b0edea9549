package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cafeload/internal/storage"
)

// fakeTx implements storage.Tx for resolver tests. SelectID answers from a
// fixed table of "column=value, ..." keys and counts every call.
type fakeTx struct {
	selectCalls int
	answers     map[string]string
	selectErr   error
}

func (f *fakeTx) Insert(ctx context.Context, table string, columns []string, rows [][]any, onConflictIgnore bool) (int64, error) {
	return int64(len(rows)), nil
}

func (f *fakeTx) SelectID(ctx context.Context, table string, idColumn string, match []storage.Match) (string, error) {
	f.selectCalls++
	if f.selectErr != nil {
		return "", f.selectErr
	}
	key := table + "/" + storage.MatchString(match)
	id, ok := f.answers[key]
	if !ok {
		return "", fmt.Errorf("%s (%s): %w", table, storage.MatchString(match), storage.ErrNotFound)
	}
	return id, nil
}

func (f *fakeTx) Commit(ctx context.Context) error   { return nil }
func (f *fakeTx) Rollback(ctx context.Context) error { return nil }

func TestResolveProductID_QueriesOnceThenCaches(t *testing.T) {
	item := map[string]any{"name": "Latte", "flavour": "Vanilla", "size": "M", "iced": false}
	tx := &fakeTx{answers: map[string]string{
		"products/name=Latte, flavour=Vanilla, size=M, iced=false": "p-1",
	}}
	cache := NewCache()

	id, err := resolveProductID(context.Background(), tx, cache, item)
	if err != nil {
		t.Fatalf("resolveProductID: %v", err)
	}
	if id != "p-1" {
		t.Fatalf("expected p-1, got %q", id)
	}
	if tx.selectCalls != 1 {
		t.Fatalf("expected 1 query, got %d", tx.selectCalls)
	}

	// Second resolution hits the cache; no further query.
	id, err = resolveProductID(context.Background(), tx, cache, item)
	if err != nil {
		t.Fatalf("resolveProductID (cached): %v", err)
	}
	if id != "p-1" {
		t.Fatalf("expected p-1 from cache, got %q", id)
	}
	if tx.selectCalls != 1 {
		t.Fatalf("cache hit issued a query: calls=%d", tx.selectCalls)
	}
}

func TestResolveProductID_NullAttributeMatchesStoredZeroValue(t *testing.T) {
	// A null flavour is stored as "" by the insert path; the lookup must
	// bind the same value, not NULL.
	item := map[string]any{"name": "Espresso", "flavour": nil, "size": "S", "iced": false}
	tx := &fakeTx{answers: map[string]string{
		"products/name=Espresso, flavour=, size=S, iced=false": "p-9",
	}}
	cache := NewCache()

	id, err := resolveProductID(context.Background(), tx, cache, item)
	if err != nil {
		t.Fatalf("resolveProductID: %v", err)
	}
	if id != "p-9" {
		t.Fatalf("expected p-9, got %q", id)
	}

	// An explicitly empty flavour resolves identically.
	empty := map[string]any{"name": "Espresso", "flavour": "", "size": "S", "iced": false}
	id, err = resolveProductID(context.Background(), tx, NewCache(), empty)
	if err != nil {
		t.Fatalf("resolveProductID (empty flavour): %v", err)
	}
	if id != "p-9" {
		t.Fatalf("expected p-9 for empty flavour, got %q", id)
	}
}

func TestResolveProductID_NotFoundPropagates(t *testing.T) {
	tx := &fakeTx{answers: map[string]string{}}
	cache := NewCache()

	_, err := resolveProductID(context.Background(), tx, cache, map[string]any{
		"name": "Ghost", "flavour": "", "size": "S", "iced": false,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, storage.ErrLookup) {
		t.Fatalf("expected ErrLookup umbrella, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("failed lookup must not populate the cache; len=%d", cache.Len())
	}
}

func TestResolveProductID_AmbiguousPropagates(t *testing.T) {
	tx := &fakeTx{selectErr: fmt.Errorf("products: %w", storage.ErrAmbiguous)}
	cache := NewCache()

	_, err := resolveProductID(context.Background(), tx, cache, map[string]any{
		"name": "Latte", "flavour": "Vanilla", "size": "M", "iced": false,
	})
	if !errors.Is(err, storage.ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestResolveLocationID_QueriesOnceThenCaches(t *testing.T) {
	tx := &fakeTx{answers: map[string]string{
		"locations/name=Downtown": "l-1",
	}}
	cache := NewCache()

	for i := 0; i < 3; i++ {
		id, err := resolveLocationID(context.Background(), tx, cache, "Downtown")
		if err != nil {
			t.Fatalf("resolveLocationID: %v", err)
		}
		if id != "l-1" {
			t.Fatalf("expected l-1, got %q", id)
		}
	}
	if tx.selectCalls != 1 {
		t.Fatalf("expected 1 query for 3 resolutions, got %d", tx.selectCalls)
	}
}

func TestProductCacheKey_Deterministic(t *testing.T) {
	a := map[string]any{"name": "Latte", "flavour": "Vanilla", "size": "M", "iced": false}
	b := map[string]any{"iced": false, "size": "M", "flavour": "Vanilla", "name": "Latte"}

	if productCacheKey(a) != productCacheKey(b) {
		t.Fatalf("cache key depends on map order: %q vs %q", productCacheKey(a), productCacheKey(b))
	}

	iced := map[string]any{"name": "Latte", "flavour": "Vanilla", "size": "M", "iced": true}
	if productCacheKey(a) == productCacheKey(iced) {
		t.Fatalf("distinct products share a cache key: %q", productCacheKey(a))
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "string_trimmed", in: "  Latte ", want: "Latte"},
		{name: "bool_true", in: true, want: "true"},
		{name: "bool_false", in: false, want: "false"},
		{name: "int", in: 3, want: "3"},
		{name: "float_whole", in: float64(2), want: "2"},
		{name: "float_fraction", in: 2.5, want: "2.5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeKey(tc.in); got != tc.want {
				t.Fatalf("normalizeKey(%v)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
