package loader

import (
	"context"

	"cafeload/internal/storage"
)

// resolveProductID returns the persisted id for a basket item's product.
//
// On a cache hit no query is issued. On a miss the open transaction is
// queried with an exact match on every identity attribute; the result must
// be exactly one row (storage.ErrNotFound / storage.ErrAmbiguous otherwise)
// and is cached before returning. Lookup failures are not handled here; they
// propagate and abort the enclosing transactional scope.
//
// Filter values are bound through the same decode the insert path uses, so a
// null or absent attribute matches the stored zero value rather than turning
// into a "column = NULL" predicate that matches nothing.
func resolveProductID(ctx context.Context, tx storage.Tx, cache *Cache, item map[string]any) (string, error) {
	key := productCacheKey(item)
	if id, ok := cache.Get(key); ok {
		return id, nil
	}

	p, err := decodeProduct(item)
	if err != nil {
		return "", err
	}

	id, err := tx.SelectID(ctx, storage.TableProducts, "id", []storage.Match{
		{Column: "name", Value: p.Name},
		{Column: "flavour", Value: p.Flavour},
		{Column: "size", Value: p.Size},
		{Column: "iced", Value: p.Iced},
	})
	if err != nil {
		return "", err
	}

	cache.Add(key, id)
	return id, nil
}

// resolveLocationID returns the persisted id for a location name, with the
// same cache-then-query behavior as resolveProductID.
func resolveLocationID(ctx context.Context, tx storage.Tx, cache *Cache, name string) (string, error) {
	key := normalizeKey(name)
	if id, ok := cache.Get(key); ok {
		return id, nil
	}

	id, err := tx.SelectID(ctx, storage.TableLocations, "id", []storage.Match{
		{Column: "name", Value: name},
	})
	if err != nil {
		return "", err
	}

	cache.Add(key, id)
	return id, nil
}
