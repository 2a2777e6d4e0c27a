package query

import (
	"strings"
	"testing"
)

var knownTables = map[string]struct{}{
	"products":           {},
	"categories":         {},
	"stock_transactions": {},
}

func TestValidateUnknownTable(t *testing.T) {
	q := ReportQuery{Table: "nope", Fields: []ReportField{{Name: "*"}}}
	verr, _ := validateQuery(q, knownTables)
	if verr == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(verr.Error(), "nope") {
		t.Fatalf("error should name the table: %v", verr)
	}
}

func TestValidateRejectsJoinToUnknownTable(t *testing.T) {
	q := ReportQuery{
		Table:  "products",
		Fields: []ReportField{{Name: "*"}},
		Joins:  []ReportJoin{{Kind: JoinInner, Table: "zzz_not_real", On: "products.id = zzz_not_real.product_id"}},
	}
	verr, _ := validateQuery(q, knownTables)
	if verr == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(verr.Error(), "zzz_not_real") {
		t.Fatalf("error should name the join table: %v", verr)
	}
}

func TestValidateUnknownOperator(t *testing.T) {
	q := ReportQuery{
		Table:   "products",
		Fields:  []ReportField{{Name: "name"}},
		Filters: []ReportFilter{{Field: "name", Operator: "sounds_like", Value: "x"}},
	}
	verr, _ := validateQuery(q, knownTables)
	if verr == nil || !strings.Contains(verr.Error(), "sounds_like") {
		t.Fatalf("expected operator violation, got %v", verr)
	}
}

func TestValidateAccumulatesAllViolations(t *testing.T) {
	q := ReportQuery{
		Table:   "nope",
		Fields:  []ReportField{{Name: "name; DROP"}},
		Filters: []ReportFilter{{Field: "id", Operator: "weird"}},
	}
	verr, _ := validateQuery(q, knownTables)
	if verr == nil {
		t.Fatalf("expected validation error")
	}
	if len(verr.Details) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(verr.Details), verr)
	}
}

func TestValidateFilterArity(t *testing.T) {
	tests := []struct {
		name   string
		filter ReportFilter
		wantOK bool
	}{
		{"in without values", ReportFilter{Field: "id", Operator: OpIn}, false},
		{"between with one value", ReportFilter{Field: "id", Operator: OpBetween, Values: []any{1}}, false},
		{"between with two values", ReportFilter{Field: "id", Operator: OpBetween, Values: []any{1, 2}}, true},
		{"is_null without value", ReportFilter{Field: "id", Operator: OpIsNull}, true},
		{"equals without value", ReportFilter{Field: "id", Operator: OpEquals}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}, Filters: []ReportFilter{tt.filter}}
			verr, _ := validateQuery(q, knownTables)
			if tt.wantOK && verr != nil {
				t.Fatalf("unexpected error: %v", verr)
			}
			if !tt.wantOK && verr == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateJoinPredicateGrammar(t *testing.T) {
	q := ReportQuery{
		Table:  "products",
		Fields: []ReportField{{Name: "*"}},
		Joins:  []ReportJoin{{Kind: JoinLeft, Table: "categories", On: "1=1 OR true"}},
	}
	verr, _ := validateQuery(q, knownTables)
	if verr == nil {
		t.Fatalf("expected validation error for free-form predicate")
	}
}

func TestValidatePerformanceWarningsDoNotBlock(t *testing.T) {
	limit := 50000
	q := ReportQuery{
		Table:   "products",
		Fields:  []ReportField{{Name: "*"}},
		GroupBy: []string{"a", "b", "c", "d", "e", "f"},
		Limit:   &limit,
	}
	verr, warnings := validateQuery(q, knownTables)
	if verr != nil {
		t.Fatalf("warnings must not block: %v", verr)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %#v", warnings)
	}
}

func TestValidateRejectsSystemTables(t *testing.T) {
	tables := map[string]struct{}{"products": {}}
	q := ReportQuery{Table: "pg_catalog.pg_class", Fields: []ReportField{{Name: "*"}}}
	verr, _ := validateQuery(q, tables)
	if verr == nil {
		t.Fatalf("expected system table to be rejected")
	}
}
