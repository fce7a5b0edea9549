package storage

// Schema types live in this package so backends can consume them without
// circular deps. Column types are logical; each backend maps them onto its
// own dialect.

// Logical column types understood by every backend.
const (
	TypeID        = "id"        // generated or upstream identifier, 36 chars
	TypeText      = "text"      // free-form string
	TypeBool      = "bool"      // true/false flag
	TypeTimestamp = "timestamp" // point in time, stored UTC
	TypeMoney     = "money"     // monetary amount
)

type TableSpec struct {
	Name    string
	Columns []ColumnSpec

	// Uniques lists unique constraints beyond the primary key. The first
	// one doubles as the duplicate-detection key for backends that have no
	// native insert-or-ignore (SQL Server).
	Uniques [][]string
}

type ColumnSpec struct {
	Name       string
	Type       string
	PrimaryKey bool
	Nullable   bool
	References string // "table(column)" foreign key target
}

// Table names used throughout the loader.
const (
	TableProducts     = "products"
	TableLocations    = "locations"
	TableBasketItems  = "basket_items"
	TableTransactions = "transactions"
)

// Tables returns the full relational schema of a load target.
func Tables() []TableSpec {
	return []TableSpec{
		{
			Name: TableProducts,
			Columns: []ColumnSpec{
				{Name: "id", Type: TypeID, PrimaryKey: true},
				{Name: "name", Type: TypeText},
				{Name: "flavour", Type: TypeText, Nullable: true},
				{Name: "size", Type: TypeText},
				{Name: "iced", Type: TypeBool},
			},
			Uniques: [][]string{{"name", "flavour", "size", "iced"}},
		},
		{
			Name: TableLocations,
			Columns: []ColumnSpec{
				{Name: "id", Type: TypeID, PrimaryKey: true},
				{Name: "name", Type: TypeText},
			},
			Uniques: [][]string{{"name"}},
		},
		{
			Name: TableBasketItems,
			Columns: []ColumnSpec{
				{Name: "id", Type: TypeID, PrimaryKey: true},
				{Name: "transaction_id", Type: TypeID},
				{Name: "product_id", Type: TypeID, References: "products(id)"},
			},
		},
		{
			Name: TableTransactions,
			Columns: []ColumnSpec{
				{Name: "id", Type: TypeID, PrimaryKey: true},
				{Name: "datetime", Type: TypeTimestamp},
				{Name: "payment_type", Type: TypeText},
				{Name: "card_details", Type: TypeText, Nullable: true},
				{Name: "transaction_total", Type: TypeMoney},
				{Name: "location_id", Type: TypeID, References: "locations(id)"},
			},
		},
	}
}

// TableByName returns the spec for a known table name.
func TableByName(name string) (TableSpec, bool) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}
