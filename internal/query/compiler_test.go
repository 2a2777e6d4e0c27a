package query

import (
	"reflect"
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestCompileAggregationWithGroupBy(t *testing.T) {
	q := ReportQuery{
		Table:   "products",
		Fields:  []ReportField{{Name: "stock_quantity", Aggregation: AggSum, Alias: "total_stock"}},
		GroupBy: []string{"category"},
	}
	sqlText, params, err := Compile(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT SUM(stock_quantity) AS total_stock FROM products GROUP BY category"
	if sqlText != want {
		t.Fatalf("unexpected sql: %s", sqlText)
	}
	if len(params) != 0 {
		t.Fatalf("expected no params, got %#v", params)
	}
}

func TestCompileNeverEmbedsFilterValues(t *testing.T) {
	q := ReportQuery{
		Table:  "products",
		Fields: []ReportField{{Name: "name"}},
		Filters: []ReportFilter{
			{Field: "category", Operator: OpEquals, Value: "electronics"},
			{Field: "name", Operator: OpLike, Value: "%widget%"},
			{Field: "status", Operator: OpIn, Values: []any{"active", "archived"}},
		},
	}
	sqlText, params, err := Compile(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, literal := range []string{"electronics", "widget", "active", "archived"} {
		if strings.Contains(sqlText, literal) {
			t.Fatalf("literal %q leaked into sql: %s", literal, sqlText)
		}
	}
	if len(params) != 4 {
		t.Fatalf("expected 4 params, got %#v", params)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	q := ReportQuery{
		Table:  "stock_transactions",
		Alias:  "st",
		Fields: []ReportField{{Name: "st.quantity"}, {Name: "p.name"}},
		Joins: []ReportJoin{
			{Kind: JoinLeft, Table: "products", Alias: "p", On: "st.product_id = p.id"},
		},
		Filters: []ReportFilter{{Field: "st.quantity", Operator: OpGreaterThan, Value: 0}},
		OrderBy: []ReportOrderBy{{Field: "st.quantity", Direction: Desc}},
		Limit:   intPtr(50),
		Offset:  intPtr(100),
	}
	sql1, params1, err := Compile(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql2, params2, err := Compile(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql1 != sql2 {
		t.Fatalf("sql differs between compilations:\n%s\n%s", sql1, sql2)
	}
	if !reflect.DeepEqual(params1, params2) {
		t.Fatalf("params differ: %#v vs %#v", params1, params2)
	}
	want := "SELECT st.quantity AS quantity, p.name AS name FROM stock_transactions AS st" +
		" LEFT JOIN products AS p ON st.product_id = p.id" +
		" WHERE st.quantity > ? ORDER BY st.quantity DESC LIMIT ? OFFSET ?"
	if sql1 != want {
		t.Fatalf("unexpected sql: %s", sql1)
	}
	if !reflect.DeepEqual(params1, []any{0, 50, 100}) {
		t.Fatalf("unexpected params: %#v", params1)
	}
}

func TestCompileOperators(t *testing.T) {
	tests := []struct {
		name       string
		filter     ReportFilter
		wantClause string
		wantParams int
	}{
		{"equals", ReportFilter{Field: "id", Operator: OpEquals, Value: 1}, "id = ?", 1},
		{"not_equals", ReportFilter{Field: "id", Operator: OpNotEquals, Value: 1}, "id <> ?", 1},
		{"between", ReportFilter{Field: "price", Operator: OpBetween, Values: []any{10, 20}}, "price BETWEEN ? AND ?", 2},
		{"in", ReportFilter{Field: "id", Operator: OpIn, Values: []any{1, 2, 3}}, "id IN (?, ?, ?)", 3},
		{"not_in", ReportFilter{Field: "id", Operator: OpNotIn, Values: []any{1, 2}}, "id NOT IN (?, ?)", 2},
		{"is_null", ReportFilter{Field: "deleted_at", Operator: OpIsNull}, "deleted_at IS NULL", 0},
		{"is_not_null", ReportFilter{Field: "sku", Operator: OpIsNotNull}, "sku IS NOT NULL", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}, Filters: []ReportFilter{tt.filter}}
			sqlText, params, err := Compile(q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(sqlText, "WHERE "+tt.wantClause) {
				t.Fatalf("expected clause %q in %s", tt.wantClause, sqlText)
			}
			if len(params) != tt.wantParams {
				t.Fatalf("expected %d params, got %#v", tt.wantParams, params)
			}
		})
	}
}

func TestCompileWildcardNeverAliased(t *testing.T) {
	q := ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}}
	sqlText, _, err := Compile(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sqlText != "SELECT * FROM products" {
		t.Fatalf("unexpected sql: %s", sqlText)
	}
}

func TestCompileCountDropsPaging(t *testing.T) {
	q := ReportQuery{
		Table:   "products",
		Fields:  []ReportField{{Name: "name"}},
		Filters: []ReportFilter{{Field: "category", Operator: OpEquals, Value: "tools"}},
		GroupBy: []string{"category"},
		OrderBy: []ReportOrderBy{{Field: "name", Direction: Asc}},
		Limit:   intPtr(10),
		Offset:  intPtr(20),
	}
	sqlText, params, err := CompileCount(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sqlText != "SELECT COUNT(*) AS total FROM products WHERE category = ?" {
		t.Fatalf("unexpected count sql: %s", sqlText)
	}
	if len(params) != 1 {
		t.Fatalf("unexpected params: %#v", params)
	}
}

func TestCompileRejectsFreeFormExpressions(t *testing.T) {
	for _, bad := range []string{"1; DROP TABLE products", "name||'x'", "count(*) --", "a.b.c"} {
		q := ReportQuery{Table: "products", Fields: []ReportField{{Name: bad}}}
		if _, _, err := Compile(q); err == nil {
			t.Fatalf("expected compile error for field %q", bad)
		}
	}
}
