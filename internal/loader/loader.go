// Package loader turns a batch of raw transactions into normalized relational
// rows and persists them in dependency order.
package loader

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"cafeload/internal/metrics"
	"cafeload/internal/model"
	"cafeload/internal/storage"
)

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Loader executes the two-phase load plan:
//   - Phase 1: insert deduplicated products and distinct locations, tolerating
//     rows that already exist, and commit so dependent lookups can see them.
//   - Phase 2: resolve foreign keys through a per-batch cache, build basket
//     items and transactions, insert them, commit.
//
// Each phase is one transactional scope: any failure inside it rolls every
// staged insert back and propagates unchanged.
type Loader struct {
	Repo   storage.Repository
	Logger Logger

	// NewID generates entity identifiers. When nil, random UUIDs are used.
	// Tests inject a deterministic sequence here.
	NewID func() string

	// IgnoreDuplicates is the set of tables whose inserts tolerate
	// duplicate-key rows. When nil, defaults to products and locations.
	IgnoreDuplicates map[string]bool

	// BatchSize caps rows per INSERT statement. When <= 0, defaults to 500.
	BatchSize int
}

// Summary reports how many rows each phase staged.
type Summary struct {
	Products     int
	Locations    int
	BasketItems  int
	Transactions int
}

var productColumns = []string{"id", "name", "flavour", "size", "iced"}
var locationColumns = []string{"id", "name"}
var basketItemColumns = []string{"id", "transaction_id", "product_id"}
var transactionColumns = []string{"id", "datetime", "payment_type", "card_details", "transaction_total", "location_id"}

// Load runs the full plan for one batch. The returned Summary is valid only
// when err is nil.
func (l *Loader) Load(ctx context.Context, batch []model.RawTransaction) (Summary, error) {
	if l.Repo == nil {
		return Summary{}, fmt.Errorf("loader: Repo is required")
	}

	logf := l.logger()
	newID := l.newID()

	products, err := UniqueProducts(batch, newID)
	if err != nil {
		return Summary{}, err
	}
	locations := ExtractLocations(batch, newID)

	var sum Summary
	sum.Products = len(products)
	sum.Locations = len(locations)

	phase1Start := time.Now()
	err = storage.RunInTx(ctx, l.Repo, func(tx storage.Tx) error {
		if err := l.insertChunked(ctx, tx, storage.TableProducts, productColumns, productRows(products)); err != nil {
			return err
		}
		return l.insertChunked(ctx, tx, storage.TableLocations, locationColumns, locationRows(locations))
	})
	l.observeScope("entities", phase1Start, err)
	if err != nil {
		return Summary{}, err
	}
	logf("stage=entities ok products=%d locations=%d duration=%s", len(products), len(locations), durMS(phase1Start))

	metrics.IncCounter("load_records_total", float64(len(products)), metrics.Labels{"kind": "products"})
	metrics.IncCounter("load_records_total", float64(len(locations)), metrics.Labels{"kind": "locations"})

	// One cache per batch; resolution state never outlives the load.
	cache := NewCache()

	phase2Start := time.Now()
	err = storage.RunInTx(ctx, l.Repo, func(tx storage.Tx) error {
		items, err := buildBasketItems(ctx, tx, cache, batch, newID)
		if err != nil {
			return err
		}
		txns, err := buildTransactions(ctx, tx, cache, batch)
		if err != nil {
			return err
		}

		if err := l.insertChunked(ctx, tx, storage.TableBasketItems, basketItemColumns, basketItemRows(items)); err != nil {
			return err
		}
		if err := l.insertChunked(ctx, tx, storage.TableTransactions, transactionColumns, transactionRows(txns)); err != nil {
			return err
		}

		sum.BasketItems = len(items)
		sum.Transactions = len(txns)
		return nil
	})
	l.observeScope("facts", phase2Start, err)
	if err != nil {
		return Summary{}, err
	}
	logf("stage=facts ok basket_items=%d transactions=%d cached_ids=%d duration=%s",
		sum.BasketItems, sum.Transactions, cache.Len(), durMS(phase2Start))

	metrics.IncCounter("load_records_total", float64(sum.BasketItems), metrics.Labels{"kind": "basket_items"})
	metrics.IncCounter("load_records_total", float64(sum.Transactions), metrics.Labels{"kind": "transactions"})

	return sum, nil
}

// buildBasketItems builds one BasketItem per basket entry, resolving each
// product id through the cache or the open transaction.
func buildBasketItems(ctx context.Context, tx storage.Tx, cache *Cache, batch []model.RawTransaction, newID func() string) ([]model.BasketItem, error) {
	var items []model.BasketItem
	for _, txn := range batch {
		for _, entry := range txn.Basket {
			productID, err := resolveProductID(ctx, tx, cache, entry)
			if err != nil {
				return nil, err
			}
			items = append(items, model.BasketItem{
				ID:            newID(),
				TransactionID: txn.ID,
				ProductID:     productID,
			})
		}
	}
	return items, nil
}

// buildTransactions builds one Transaction per raw record, parsing the
// payment type and timestamp and resolving the location id.
func buildTransactions(ctx context.Context, tx storage.Tx, cache *Cache, batch []model.RawTransaction) ([]model.Transaction, error) {
	out := make([]model.Transaction, 0, len(batch))
	for _, raw := range batch {
		pt, err := model.ParsePaymentType(raw.PaymentType)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", raw.ID, err)
		}
		ts, err := model.ParseTimestamp(raw.Datetime)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", raw.ID, err)
		}
		locationID, err := resolveLocationID(ctx, tx, cache, raw.Location)
		if err != nil {
			return nil, err
		}

		out = append(out, model.Transaction{
			ID:               raw.ID,
			Datetime:         ts,
			PaymentType:      pt,
			CardDetails:      raw.CardDetails,
			TransactionTotal: raw.TransactionTotal,
			LocationID:       locationID,
		})
	}
	return out, nil
}

// insertChunked stages rows for table in BatchSize chunks, applying the
// configured conflict-ignore behavior.
func (l *Loader) insertChunked(ctx context.Context, tx storage.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	ignore := l.ignoreDuplicates()[table]

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := tx.Insert(ctx, table, columns, rows[start:end], ignore); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func (l *Loader) ignoreDuplicates() map[string]bool {
	if l.IgnoreDuplicates != nil {
		return l.IgnoreDuplicates
	}
	return map[string]bool{
		storage.TableProducts:  true,
		storage.TableLocations: true,
	}
}

func (l *Loader) newID() func() string {
	if l.NewID != nil {
		return l.NewID
	}
	return uuid.NewString
}

func (l *Loader) logger() func(format string, v ...any) {
	if l.Logger == nil {
		lg := log.New(discardWriter{}, "", 0)
		return lg.Printf
	}
	return l.Logger.Printf
}

func (l *Loader) observeScope(step string, start time.Time, err error) {
	status := "commit"
	if err != nil {
		status = "rollback"
	}
	metrics.IncCounter("load_scopes_total", 1, metrics.Labels{"status": status})
	metrics.ObserveHistogram("load_step_duration_seconds", time.Since(start).Seconds(), metrics.Labels{"step": step, "status": status})
}

func productRows(products []model.Product) [][]any {
	rows := make([][]any, 0, len(products))
	for _, p := range products {
		rows = append(rows, []any{p.ID, p.Name, p.Flavour, p.Size, p.Iced})
	}
	return rows
}

func locationRows(locations []model.Location) [][]any {
	rows := make([][]any, 0, len(locations))
	for _, loc := range locations {
		rows = append(rows, []any{loc.ID, loc.Name})
	}
	return rows
}

func basketItemRows(items []model.BasketItem) [][]any {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{it.ID, it.TransactionID, it.ProductID})
	}
	return rows
}

func transactionRows(txns []model.Transaction) [][]any {
	rows := make([][]any, 0, len(txns))
	for _, t := range txns {
		// Absent card details are stored as NULL, not as an empty string.
		var card any
		if t.CardDetails != "" {
			card = t.CardDetails
		}
		rows = append(rows, []any{t.ID, t.Datetime, t.PaymentType.String(), card, t.TransactionTotal, t.LocationID})
	}
	return rows
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
