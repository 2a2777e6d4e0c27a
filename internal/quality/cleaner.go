package quality

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dbconnector "reportengine-backend"
)

type CleaningAction struct {
	ID              string    `json:"id"`
	Table           string    `json:"table"`
	Action          string    `json:"action"`
	Details         string    `json:"details"`
	AffectedRecords int64     `json:"affected_records"`
	PerformedAt     time.Time `json:"performed_at"`
}

// ActionStore persists the cleaning audit trail.
type ActionStore interface {
	InsertCleaningActions(ctx context.Context, actions []CleaningAction) error
}

// category synonyms normalized by the cleaning pass
var categorySynonyms = map[string]string{
	"electronic":  "electronics",
	"electro":     "electronics",
	"mech":        "mechanical",
	"mechanics":   "mechanical",
	"consumable":  "consumables",
	"spare part":  "spare_parts",
	"spare-parts": "spare_parts",
}

type cleaningStep struct {
	table   string
	action  string
	details string
	stmt    dbconnector.Statement
}

func cleaningSteps() []cleaningStep {
	steps := []cleaningStep{
		{
			table: "products", action: "trim_whitespace",
			details: "trimmed leading and trailing whitespace on name and sku",
			stmt: dbconnector.Statement{
				SQL: "UPDATE products SET name = TRIM(name), sku = TRIM(sku) WHERE name <> TRIM(name) OR sku <> TRIM(sku)",
			},
		},
		{
			table: "stock_transactions", action: "remove_degenerate",
			details: "removed zero-quantity transactions without a reason",
			stmt: dbconnector.Statement{
				SQL: "DELETE FROM stock_transactions WHERE quantity = 0 AND (reason IS NULL OR TRIM(reason) = '')",
			},
		},
	}
	synonyms := make([]string, 0, len(categorySynonyms))
	for from := range categorySynonyms {
		synonyms = append(synonyms, from)
	}
	sort.Strings(synonyms)
	for _, from := range synonyms {
		to := categorySynonyms[from]
		steps = append(steps, cleaningStep{
			table: "products", action: "normalize_category",
			details: fmt.Sprintf("normalized category %q to %q", from, to),
			stmt: dbconnector.Statement{
				SQL:    "UPDATE products SET category = ? WHERE LOWER(TRIM(category)) = ?",
				Params: []any{to, from},
			},
		})
	}
	return steps
}

// Clean runs the maintenance pass in one transaction and records every
// change for audit. It is not part of the report read path.
func (e *Engine) Clean(ctx context.Context, store ActionStore) ([]CleaningAction, error) {
	steps := cleaningSteps()
	stmts := make([]dbconnector.Statement, len(steps))
	for i, step := range steps {
		stmts[i] = step.stmt
	}
	results, err := e.connector.ExecuteTransaction(ctx, stmts)
	if err != nil {
		return nil, fmt.Errorf("cleaning transaction: %w", err)
	}

	performedAt := e.now()
	actions := make([]CleaningAction, 0, len(steps))
	for i, step := range steps {
		if results[i].RowsAffected == 0 {
			continue
		}
		actions = append(actions, CleaningAction{
			ID:              uuid.NewString(),
			Table:           step.table,
			Action:          step.action,
			Details:         step.details,
			AffectedRecords: results[i].RowsAffected,
			PerformedAt:     performedAt,
		})
	}
	if store != nil && len(actions) > 0 {
		if err := store.InsertCleaningActions(ctx, actions); err != nil {
			e.logger.Warn("cleaning audit write failed", zap.Error(err))
		}
	}
	return actions, nil
}
