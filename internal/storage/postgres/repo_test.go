package postgres

import (
	"strings"
	"testing"

	"cafeload/internal/storage"
)

func TestBuildCreateTableSQL(t *testing.T) {
	spec, _ := storage.TableByName(storage.TableTransactions)
	ddl, err := buildCreateTableSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS transactions",
		`"id" varchar(36) PRIMARY KEY`,
		`"datetime" timestamptz NOT NULL`,
		`"card_details" text`,
		`"transaction_total" numeric(10,2) NOT NULL`,
		`"location_id" varchar(36) NOT NULL REFERENCES locations(id)`,
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q:\n%s", want, ddl)
		}
	}
	if strings.Contains(ddl, `"card_details" text NOT NULL`) {
		t.Fatalf("nullable column must not be NOT NULL:\n%s", ddl)
	}
}

func TestBuildCreateTableSQL_Unique(t *testing.T) {
	spec, _ := storage.TableByName(storage.TableProducts)
	ddl, err := buildCreateTableSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}
	if !strings.Contains(ddl, `UNIQUE ("name", "flavour", "size", "iced")`) {
		t.Fatalf("ddl missing unique constraint:\n%s", ddl)
	}
}

func TestBuildInsertSQL_PlaceholderNumbering(t *testing.T) {
	q, args := buildInsertSQL("locations", []string{"id", "name"}, [][]any{
		{"l-1", "Downtown"},
		{"l-2", "Uptown"},
	}, false)

	want := `INSERT INTO locations ("id", "name") VALUES ($1, $2), ($3, $4)`
	if q != want {
		t.Fatalf("query=%q, want %q", q, want)
	}
	if len(args) != 4 || args[2] != "l-2" {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildInsertSQL_OnConflict(t *testing.T) {
	q, _ := buildInsertSQL("locations", []string{"id", "name"}, [][]any{{"l-1", "Downtown"}}, true)
	if !strings.HasSuffix(q, " ON CONFLICT DO NOTHING") {
		t.Fatalf("missing ON CONFLICT clause: %q", q)
	}

	q, _ = buildInsertSQL("basket_items", []string{"id"}, [][]any{{"b-1"}}, false)
	if strings.Contains(q, "ON CONFLICT") {
		t.Fatalf("unexpected ON CONFLICT clause: %q", q)
	}
}

func TestBuildSelectIDSQL(t *testing.T) {
	q, args := buildSelectIDSQL("products", "id", []storage.Match{
		{Column: "name", Value: "Latte"},
		{Column: "flavour", Value: "Vanilla"},
		{Column: "size", Value: "M"},
		{Column: "iced", Value: false},
	})

	want := `SELECT "id" FROM products WHERE "name" = $1 AND "flavour" = $2 AND "size" = $3 AND "iced" = $4 LIMIT 2`
	if q != want {
		t.Fatalf("query=%q, want %q", q, want)
	}
	if len(args) != 4 || args[0] != "Latte" || args[3] != false {
		t.Fatalf("unexpected args: %#v", args)
	}
}
