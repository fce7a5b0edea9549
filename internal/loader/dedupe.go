package loader

import (
	"encoding/json"
	"fmt"

	"cafeload/internal/model"
)

// UniqueProducts flattens every basket in the batch and removes exact
// duplicates, comparing the full attribute mapping structurally. Canonical
// JSON is used as the set key: encoding/json marshals map keys in sorted
// order, so two mappings that differ only in key order collapse to the same
// entry. Each surviving mapping is bound onto a Product with a freshly
// generated identifier.
//
// Output order is not guaranteed. Empty input yields empty output.
func UniqueProducts(batch []model.RawTransaction, newID func() string) ([]model.Product, error) {
	set := make(map[string]struct{})
	for _, txn := range batch {
		for _, item := range txn.Basket {
			b, err := json.Marshal(item)
			if err != nil {
				return nil, fmt.Errorf("encode basket item: %w", err)
			}
			set[string(b)] = struct{}{}
		}
	}

	out := make([]model.Product, 0, len(set))
	for enc := range set {
		var p model.Product
		if err := json.Unmarshal([]byte(enc), &p); err != nil {
			return nil, fmt.Errorf("decode basket item: %w", err)
		}
		p.ID = newID()
		out = append(out, p)
	}
	return out, nil
}

// decodeProduct binds one basket attribute mapping onto a Product. Absent and
// null attributes take the zero value, the same binding the insert path
// applies, so a null flavour and an empty one produce the same row.
func decodeProduct(item map[string]any) (model.Product, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return model.Product{}, fmt.Errorf("encode basket item: %w", err)
	}
	var p model.Product
	if err := json.Unmarshal(b, &p); err != nil {
		return model.Product{}, fmt.Errorf("decode basket item: %w", err)
	}
	return p, nil
}

// ExtractLocations returns one Location per distinct location name in the
// batch, each with a freshly generated identifier. Order is not guaranteed.
func ExtractLocations(batch []model.RawTransaction, newID func() string) []model.Location {
	seen := make(map[string]struct{})
	for _, txn := range batch {
		seen[txn.Location] = struct{}{}
	}

	out := make([]model.Location, 0, len(seen))
	for name := range seen {
		out = append(out, model.Location{ID: newID(), Name: name})
	}
	return out
}
