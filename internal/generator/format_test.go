package generator

import (
	"testing"
	"time"

	"reportengine-backend/internal/query"
	"reportengine-backend/internal/reportcfg"
)

func intPtr(n int) *int { return &n }

func TestDisplayValue(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		format reportcfg.FieldFormat
		want   string
	}{
		{"currency default", 1234.5, reportcfg.FieldFormat{Kind: reportcfg.FormatCurrency}, "$1,234.50"},
		{"currency euro", 99.0, reportcfg.FieldFormat{Kind: reportcfg.FormatCurrency, Symbol: "€", Decimals: intPtr(0)}, "€99"},
		{"number grouping", 1234567.0, reportcfg.FieldFormat{Kind: reportcfg.FormatNumber}, "1,234,567"},
		{"number decimals", 3.14159, reportcfg.FieldFormat{Kind: reportcfg.FormatNumber, Decimals: intPtr(2)}, "3.14"},
		{"percentage", 12.345, reportcfg.FieldFormat{Kind: reportcfg.FormatPercentage, Decimals: intPtr(1)}, "12.3%"},
		{"date", time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC), reportcfg.FieldFormat{Kind: reportcfg.FormatDate}, "2026-03-01"},
		{"date layout", "2026-03-01 15:04:05", reportcfg.FieldFormat{Kind: reportcfg.FormatDate, Layout: "02.01.2006"}, "01.03.2026"},
		{"text passthrough", "hello", reportcfg.FieldFormat{Kind: reportcfg.FormatText}, "hello"},
		{"nil", nil, reportcfg.FieldFormat{Kind: reportcfg.FormatNumber}, ""},
		{"non-numeric currency", "n/a", reportcfg.FieldFormat{Kind: reportcfg.FormatCurrency}, "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := displayValue(tt.value, tt.format)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFormatRowsAttachesTagsWithoutMutating(t *testing.T) {
	rows := []map[string]any{
		{"name": "bolt", "stock_quantity": 0},
		{"name": "nut", "stock_quantity": 25},
	}
	cfg := &reportcfg.ReportConfig{
		Formatting: []reportcfg.FieldFormatRule{
			{Field: "stock_quantity", Format: reportcfg.FieldFormat{Kind: reportcfg.FormatNumber}},
		},
		ConditionalRules: []reportcfg.ConditionalFormat{
			{Field: "stock_quantity", Operator: query.OpEquals, Value: 0, Tag: "out-of-stock"},
			{Field: "stock_quantity", Operator: query.OpGreaterThan, Value: 20, Tag: "well-stocked"},
		},
	}
	formatted := formatRows(rows, cfg)
	if len(formatted) != 2 {
		t.Fatalf("expected 2 formatted rows")
	}
	if tags := formatted[0]["stock_quantity"].Tags; len(tags) != 1 || tags[0] != "out-of-stock" {
		t.Fatalf("unexpected tags: %#v", tags)
	}
	if tags := formatted[1]["stock_quantity"].Tags; len(tags) != 1 || tags[0] != "well-stocked" {
		t.Fatalf("unexpected tags: %#v", tags)
	}
	if rows[0]["stock_quantity"] != 0 {
		t.Fatalf("raw values must never be mutated")
	}
}

func TestFormatRowsSkippedWithoutRules(t *testing.T) {
	rows := []map[string]any{{"a": 1}}
	if out := formatRows(rows, &reportcfg.ReportConfig{}); out != nil {
		t.Fatalf("no rules means no formatted layer")
	}
}
