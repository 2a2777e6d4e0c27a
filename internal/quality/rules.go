package quality

import (
	"fmt"
	"sync"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Category string

const (
	CategoryCompleteness Category = "completeness"
	CategoryAccuracy     Category = "accuracy"
	CategoryConsistency  Category = "consistency"
	CategoryTimeliness   Category = "timeliness"
	CategoryValidity     Category = "validity"
)

// ValidationRule is a declarative data-quality check: a SQL predicate over a
// table that should match zero rows. Predicates come from the static
// registry, never from user input.
type ValidationRule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Table       string   `json:"table"`
	Field       string   `json:"field,omitempty"`
	Predicate   string   `json:"predicate"`
	Severity    Severity `json:"severity"`
	Category    Category `json:"category"`
	Enabled     bool     `json:"enabled"`
	Description string   `json:"description,omitempty"`
}

// Registry holds the rule set. Rules are disabled explicitly, never deleted.
type Registry struct {
	mu    sync.Mutex
	rules []ValidationRule
}

func NewRegistry(rules ...ValidationRule) *Registry {
	r := &Registry{}
	r.rules = append(r.rules, rules...)
	return r
}

func (r *Registry) AddRule(rule ValidationRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

func (r *Registry) SetRuleEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("rule %q not found", id)
}

func (r *Registry) Rules() []ValidationRule {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ValidationRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// BuiltinRules covers the inventory domain the report engine ships with.
func BuiltinRules() []ValidationRule {
	return []ValidationRule{
		{
			ID: "products-missing-price", Name: "Products without a price",
			Table: "products", Field: "price",
			Predicate: "price IS NULL OR price <= 0",
			Severity:  SeverityError, Category: CategoryCompleteness, Enabled: true,
			Description: "Every sellable product needs a positive price.",
		},
		{
			ID: "products-missing-category", Name: "Products without a category",
			Table: "products", Field: "category",
			Predicate: "category IS NULL OR TRIM(category) = ''",
			Severity:  SeverityWarning, Category: CategoryCompleteness, Enabled: true,
		},
		{
			ID: "products-negative-stock", Name: "Negative stock quantities",
			Table: "products", Field: "stock_quantity",
			Predicate: "stock_quantity < 0",
			Severity:  SeverityError, Category: CategoryAccuracy, Enabled: true,
		},
		{
			ID: "products-duplicate-sku", Name: "Duplicate SKUs",
			Table: "products", Field: "sku",
			Predicate: "sku IN (SELECT sku FROM products GROUP BY sku HAVING COUNT(*) > 1)",
			Severity:  SeverityError, Category: CategoryConsistency, Enabled: true,
		},
		{
			ID: "transactions-orphaned", Name: "Stock transactions without a product",
			Table: "stock_transactions", Field: "product_id",
			Predicate: "product_id NOT IN (SELECT id FROM products)",
			Severity:  SeverityError, Category: CategoryConsistency, Enabled: true,
		},
		{
			ID: "transactions-zero-quantity", Name: "Zero-quantity transactions without a reason",
			Table: "stock_transactions", Field: "quantity",
			Predicate: "quantity = 0 AND (reason IS NULL OR TRIM(reason) = '')",
			Severity:  SeverityWarning, Category: CategoryValidity, Enabled: true,
		},
		{
			ID: "transactions-future-dated", Name: "Future-dated transactions",
			Table: "stock_transactions", Field: "created_at",
			Predicate: "created_at > NOW()",
			Severity:  SeverityWarning, Category: CategoryTimeliness, Enabled: true,
		},
		{
			ID: "serials-stale", Name: "Serial numbers unchanged for a year",
			Table: "serial_numbers", Field: "updated_at",
			Predicate: "updated_at < NOW() - INTERVAL '1 year' AND status = 'in_stock'",
			Severity:  SeverityInfo, Category: CategoryTimeliness, Enabled: true,
		},
	}
}
