package reportcfg

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"reportengine-backend/internal/query"
)

// Built-in templates ship under fixed identifiers so fresh deployments have
// working reports. Seeding inserts only when the id is absent; user edits to
// a seeded template are never overwritten.
func builtinTemplates() []ReportTemplate {
	limit100 := 100
	decimals2 := 2
	return []ReportTemplate{
		{
			ID:          "builtin-inventory-overview",
			Name:        "Inventory Overview",
			Description: "Current stock levels across all products.",
			Category:    CategoryInventory,
			Author:      "system",
			IsPublic:    true,
			Tags:        []string{"inventory", "stock"},
			Complexity:  ComplexityLow,
			Config: ReportConfig{
				Query: query.ReportQuery{
					Table:  "products",
					Fields: []query.ReportField{{Name: "name"}, {Name: "sku"}, {Name: "category"}, {Name: "stock_quantity"}, {Name: "price"}},
					OrderBy: []query.ReportOrderBy{
						{Field: "stock_quantity", Direction: query.Asc},
					},
					Limit: &limit100,
				},
				Visualization: VisualizationTable,
				Formatting: []FieldFormatRule{
					{Field: "price", Format: FieldFormat{Kind: FormatCurrency, Symbol: "$", Decimals: &decimals2}},
				},
			},
		},
		{
			ID:          "builtin-low-stock-alert",
			Name:        "Low Stock Alert",
			Description: "Products at or below their reorder point.",
			Category:    CategoryInventory,
			Author:      "system",
			IsPublic:    true,
			Tags:        []string{"inventory", "alert"},
			Complexity:  ComplexityLow,
			Config: ReportConfig{
				Query: query.ReportQuery{
					Table:  "products",
					Fields: []query.ReportField{{Name: "name"}, {Name: "sku"}, {Name: "stock_quantity"}, {Name: "reorder_point"}},
					Filters: []query.ReportFilter{
						{Field: "stock_quantity", Operator: query.OpLessOrEqual, Value: 10, ParamKey: "threshold"},
					},
					OrderBy: []query.ReportOrderBy{{Field: "stock_quantity", Direction: query.Asc}},
				},
				Visualization: VisualizationTable,
				ConditionalRules: []ConditionalFormat{
					{Field: "stock_quantity", Operator: query.OpEquals, Value: 0, Tag: "out-of-stock"},
				},
			},
		},
		{
			ID:          "builtin-stock-movement",
			Name:        "Stock Movement Summary",
			Description: "Transaction volume grouped by category.",
			Category:    CategoryInventory,
			Author:      "system",
			IsPublic:    true,
			Tags:        []string{"inventory", "transactions"},
			Complexity:  ComplexityMedium,
			Config: ReportConfig{
				Query: query.ReportQuery{
					Table: "stock_transactions",
					Alias: "st",
					Fields: []query.ReportField{
						{Name: "p.category", Alias: "category"},
						{Name: "st.quantity", Aggregation: query.AggSum, Alias: "total_quantity"},
						{Name: "st.id", Aggregation: query.AggCount, Alias: "transactions"},
					},
					Joins: []query.ReportJoin{
						{Kind: query.JoinInner, Table: "products", Alias: "p", On: "st.product_id = p.id"},
					},
					GroupBy: []string{"p.category"},
				},
				Visualization: VisualizationChart,
				ChartType:     "bar",
			},
		},
		{
			ID:          "builtin-manufacturing-throughput",
			Name:        "Manufacturing Throughput",
			Description: "Completed production orders per product.",
			Category:    CategoryManufacturing,
			Author:      "system",
			IsPublic:    true,
			Tags:        []string{"manufacturing"},
			Complexity:  ComplexityMedium,
			Config: ReportConfig{
				Query: query.ReportQuery{
					Table: "production_orders",
					Fields: []query.ReportField{
						{Name: "product_id"},
						{Name: "quantity", Aggregation: query.AggSum, Alias: "produced"},
					},
					Filters: []query.ReportFilter{
						{Field: "status", Operator: query.OpEquals, Value: "completed"},
					},
					GroupBy: []string{"product_id"},
				},
				Visualization: VisualizationChart,
				ChartType:     "line",
			},
		},
		{
			ID:          "builtin-data-quality-summary",
			Name:        "Data Quality Summary",
			Description: "Products with incomplete master data.",
			Category:    CategoryQuality,
			Author:      "system",
			IsPublic:    true,
			Tags:        []string{"quality"},
			Complexity:  ComplexityLow,
			Config: ReportConfig{
				Query: query.ReportQuery{
					Table:  "products",
					Fields: []query.ReportField{{Name: "name"}, {Name: "sku"}, {Name: "category"}, {Name: "price"}},
					Filters: []query.ReportFilter{
						{Field: "price", Operator: query.OpIsNull},
					},
				},
				Visualization: VisualizationTable,
			},
		},
	}
}

// SeedBuiltinTemplates is idempotent: each built-in is inserted only when
// its id is absent.
func (m *Manager) SeedBuiltinTemplates(ctx context.Context) error {
	for _, t := range builtinTemplates() {
		t.Version = 1
		t.IsActive = true
		t.CreatedAt = m.now()
		t.UpdatedAt = t.CreatedAt
		inserted, err := m.templates.InsertTemplateIfAbsent(ctx, &t)
		if err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
		if inserted {
			m.logger.Info("seeded builtin template", zap.String("template", t.ID))
		}
	}
	return nil
}
