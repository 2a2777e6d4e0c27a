package dbconnector

import (
	"reflect"
	"testing"
	"time"
)

func TestQuoteQualified(t *testing.T) {
	quoted, parts, err := quoteQualified("inventory.products", 2, func(s string) string { return "\"" + s + "\"" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quoted != "\"inventory\".\"products\"" {
		t.Fatalf("unexpected quoted value: %s", quoted)
	}
	if !reflect.DeepEqual(parts, []string{"inventory", "products"}) {
		t.Fatalf("unexpected parts: %#v", parts)
	}
}

func TestQuoteQualifiedTooManySegments(t *testing.T) {
	_, _, err := quoteQualified("a.b.c", 2, func(s string) string { return s })
	if err == nil {
		t.Fatalf("expected error for too many segments")
	}
}

func TestQuoteList(t *testing.T) {
	out, err := quoteList([]string{"sku", "stock_quantity"}, func(s string) string { return "`" + s + "`" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "`sku`, `stock_quantity`" {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRebindPlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		query string
		style placeholderStyle
		want  string
	}{
		{
			name:  "question style untouched",
			query: "SELECT sku FROM products WHERE category = ?",
			style: placeholderQuestion,
			want:  "SELECT sku FROM products WHERE category = ?",
		},
		{
			name:  "dollar numbering",
			query: "SELECT sku FROM products WHERE category = ? AND stock_quantity < ?",
			style: placeholderDollar,
			want:  "SELECT sku FROM products WHERE category = $1 AND stock_quantity < $2",
		},
		{
			name:  "at-p numbering",
			query: "SELECT sku FROM products WHERE unit_price BETWEEN ? AND ?",
			style: placeholderAtP,
			want:  "SELECT sku FROM products WHERE unit_price BETWEEN @p1 AND @p2",
		},
		{
			name:  "no placeholders",
			query: "SELECT COUNT(*) FROM products",
			style: placeholderDollar,
			want:  "SELECT COUNT(*) FROM products",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := rebindPlaceholders(tc.query, tc.style)
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeProfileOptions(t *testing.T) {
	opts := normalizeProfileOptions(ProfileOptions{})
	if opts.MaxColumns != defaultMaxColumns {
		t.Fatalf("expected default max columns")
	}
	if opts.SampleLimit != defaultSampleLimit {
		t.Fatalf("expected default sample limit")
	}
}

func TestProfileFromSample(t *testing.T) {
	schema := TableSchema{Columns: []ColumnInfo{
		{Name: "stock_quantity", Type: "int"},
		{Name: "last_restocked", Type: "timestamp"},
		{Name: "supplier", Type: "text", Nullable: true},
	}}
	now := time.Now().UTC().Truncate(time.Second)
	sample := []map[string]any{
		{"stock_quantity": 2, "last_restocked": now.Add(-time.Hour), "supplier": "acme"},
		{"stock_quantity": 5, "last_restocked": now, "supplier": nil},
		{"stock_quantity": 3, "last_restocked": now.Add(-2 * time.Hour), "supplier": "globex"},
	}
	profiles := profileFromSample(schema, sample, 10)
	if len(profiles) != 3 {
		t.Fatalf("expected 3 profiles")
	}
	qtyProfile := profiles[0]
	if qtyProfile.DistinctInSample != 3 {
		t.Fatalf("unexpected distinct count: %d", qtyProfile.DistinctInSample)
	}
	if qtyProfile.Min.(float64) != 2 || qtyProfile.Max.(float64) != 5 {
		t.Fatalf("unexpected min/max: %#v %#v", qtyProfile.Min, qtyProfile.Max)
	}
	supplierProfile := profiles[2]
	if supplierProfile.Nulls != 1 {
		t.Fatalf("unexpected null count: %d", supplierProfile.Nulls)
	}
	if supplierProfile.NullRate <= 0 {
		t.Fatalf("expected null rate > 0")
	}
}

func TestUpdateMinMaxWithTime(t *testing.T) {
	t1 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)
	minVal, maxVal := updateMinMax(nil, nil, t2)
	minVal, maxVal = updateMinMax(minVal, maxVal, t1)
	if minVal.(time.Time) != t1 {
		t.Fatalf("unexpected min time")
	}
	if maxVal.(time.Time) != t2 {
		t.Fatalf("unexpected max time")
	}
}
