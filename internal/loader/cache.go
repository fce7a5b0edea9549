package loader

import (
	"fmt"
	"strconv"
	"strings"
)

// Cache memoizes resolved identifiers for one load batch. Callers create one
// per Load invocation and pass it by reference wherever ids are resolved; it
// has no synchronization of its own and is safe only for single-threaded use.
type Cache struct {
	ids map[string]string
}

func NewCache() *Cache {
	return &Cache{ids: make(map[string]string)}
}

func (c *Cache) Get(key string) (string, bool) {
	id, ok := c.ids[key]
	return id, ok
}

func (c *Cache) Add(key, id string) {
	c.ids[key] = id
}

func (c *Cache) Len() int { return len(c.ids) }

// productKeyFields is the fixed attribute order cache keys are built from.
var productKeyFields = []string{"name", "flavour", "size", "iced"}

// productCacheKey builds the deterministic cache key for a basket item.
func productCacheKey(item map[string]any) string {
	parts := make([]string, 0, len(productKeyFields))
	for _, f := range productKeyFields {
		parts = append(parts, normalizeKey(item[f]))
	}
	return strings.Join(parts, ", ")
}

// normalizeKey produces a stable string form for cache keys.
func normalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
