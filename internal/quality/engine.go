package quality

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbconnector "reportengine-backend"
)

const sampleRowLimit = 5

type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
	TierCritical  Tier = "critical"
)

type ValidationResult struct {
	RuleID          string           `json:"rule_id"`
	RuleName        string           `json:"rule_name"`
	Table           string           `json:"table"`
	Field           string           `json:"field,omitempty"`
	Severity        Severity         `json:"severity"`
	Category        Category         `json:"category"`
	AffectedRecords int              `json:"affected_records"`
	SampleRows      []map[string]any `json:"sample_rows,omitempty"`
	Remediation     string           `json:"remediation,omitempty"`
}

type QualityReport struct {
	GeneratedAt    time.Time            `json:"generated_at"`
	TablesChecked  []string             `json:"tables_checked"`
	TotalRecords   int64                `json:"total_records"`
	Issues         int64                `json:"issues"`
	Score          float64              `json:"score"`
	Tier           Tier                 `json:"tier"`
	CategoryScores map[Category]float64 `json:"category_scores"`
	SeverityCounts map[Severity]int     `json:"severity_counts"`
	Results        []ValidationResult   `json:"results"`
	SkippedRules   []string             `json:"skipped_rules,omitempty"`
}

// Connector is the slice of the storage connector the validation engine
// needs.
type Connector interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) (*dbconnector.TableSchema, error)
	ExecuteQuery(ctx context.Context, query string, params []any) (*dbconnector.QueryResult, error)
	ExecuteTransaction(ctx context.Context, stmts []dbconnector.Statement) ([]dbconnector.ExecResult, error)
}

type Engine struct {
	connector Connector
	registry  *Registry
	logger    *zap.Logger
	now       func() time.Time
}

func NewEngine(connector Connector, registry *Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry(BuiltinRules()...)
	}
	return &Engine{
		connector: connector,
		registry:  registry,
		logger:    logger.With(zap.String("component", "quality-engine")),
		now:       time.Now,
	}
}

func (e *Engine) SetNow(now func() time.Time) { e.now = now }

func (e *Engine) Registry() *Registry { return e.registry }

// Validate runs every enabled rule whose table is in scope and scores the
// outcome. An empty scope means every table targeted by a rule. Rules whose
// table or field no longer exists are skipped with a logged warning, not
// failed.
func (e *Engine) Validate(ctx context.Context, tables ...string) (*QualityReport, error) {
	known, err := e.connector.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, t := range known {
		knownSet[t] = struct{}{}
	}
	scope := map[string]struct{}{}
	for _, t := range tables {
		scope[t] = struct{}{}
	}

	report := &QualityReport{
		GeneratedAt:    e.now(),
		CategoryScores: map[Category]float64{},
		SeverityCounts: map[Severity]int{},
		Results:        []ValidationResult{},
	}
	type catTable struct {
		cat   Category
		table string
	}
	schemas := map[string]*dbconnector.TableSchema{}
	checked := map[string]struct{}{}
	categoryIssues := map[Category]int64{}
	categoryRecords := map[Category]int64{}
	countedCatTables := map[catTable]struct{}{}

	for _, rule := range e.registry.Rules() {
		if !rule.Enabled {
			continue
		}
		if len(scope) > 0 {
			if _, ok := scope[rule.Table]; !ok {
				continue
			}
		}
		if _, ok := knownSet[rule.Table]; !ok {
			e.logger.Warn("skipping rule, table missing", zap.String("rule", rule.ID), zap.String("table", rule.Table))
			report.SkippedRules = append(report.SkippedRules, rule.ID)
			continue
		}
		schema, ok := schemas[rule.Table]
		if !ok {
			schema, err = e.connector.DescribeTable(ctx, rule.Table)
			if err != nil {
				e.logger.Warn("skipping rule, describe failed", zap.String("rule", rule.ID), zap.Error(err))
				report.SkippedRules = append(report.SkippedRules, rule.ID)
				continue
			}
			schemas[rule.Table] = schema
		}
		if rule.Field != "" && !hasColumn(schema, rule.Field) {
			e.logger.Warn("skipping rule, field missing", zap.String("rule", rule.ID), zap.String("field", rule.Field))
			report.SkippedRules = append(report.SkippedRules, rule.ID)
			continue
		}

		if _, seen := checked[rule.Table]; !seen {
			checked[rule.Table] = struct{}{}
			report.TablesChecked = append(report.TablesChecked, rule.Table)
			report.TotalRecords += schema.RowCount
		}
		// each table's rows count once per category, no matter how many of
		// the category's rules target it
		if _, counted := countedCatTables[catTable{rule.Category, rule.Table}]; !counted {
			countedCatTables[catTable{rule.Category, rule.Table}] = struct{}{}
			categoryRecords[rule.Category] += schema.RowCount
		}

		affected, err := e.countViolations(ctx, rule)
		if err != nil {
			e.logger.Warn("rule query failed", zap.String("rule", rule.ID), zap.Error(err))
			report.SkippedRules = append(report.SkippedRules, rule.ID)
			continue
		}
		if affected == 0 {
			continue
		}

		result := ValidationResult{
			RuleID:          rule.ID,
			RuleName:        rule.Name,
			Table:           rule.Table,
			Field:           rule.Field,
			Severity:        rule.Severity,
			Category:        rule.Category,
			AffectedRecords: affected,
			SampleRows:      e.sampleViolations(ctx, rule),
			Remediation:     remediationFor(rule.Category),
		}
		report.Results = append(report.Results, result)
		report.Issues += int64(affected)
		report.SeverityCounts[rule.Severity]++
		categoryIssues[rule.Category] += int64(affected)
	}

	report.Score = scoreFor(report.Issues, report.TotalRecords)
	report.Tier = tierFor(report.Score)
	for cat, issues := range categoryIssues {
		report.CategoryScores[cat] = scoreFor(issues, categoryRecords[cat])
	}
	return report, nil
}

func (e *Engine) countViolations(ctx context.Context, rule ValidationRule) (int, error) {
	// predicate text comes from the static registry, not from callers
	countSQL := fmt.Sprintf("SELECT COUNT(*) AS total FROM %s WHERE %s", rule.Table, rule.Predicate)
	qr, err := e.connector.ExecuteQuery(ctx, countSQL, nil)
	if err != nil {
		return 0, err
	}
	if len(qr.Rows) == 0 {
		return 0, nil
	}
	total, _ := asInt(qr.Rows[0]["total"])
	return total, nil
}

func (e *Engine) sampleViolations(ctx context.Context, rule ValidationRule) []map[string]any {
	sampleSQL := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT %d", rule.Table, rule.Predicate, sampleRowLimit)
	qr, err := e.connector.ExecuteQuery(ctx, sampleSQL, nil)
	if err != nil {
		e.logger.Warn("sample query failed", zap.String("rule", rule.ID), zap.Error(err))
		return nil
	}
	return qr.Rows
}

func scoreFor(issues, total int64) float64 {
	if total <= 0 {
		if issues > 0 {
			return 0
		}
		return 100
	}
	score := 100 - float64(issues)/float64(total)*100
	if score < 0 {
		return 0
	}
	return score
}

func tierFor(score float64) Tier {
	switch {
	case score >= 95:
		return TierExcellent
	case score >= 80:
		return TierGood
	case score >= 70:
		return TierFair
	case score >= 50:
		return TierPoor
	default:
		return TierCritical
	}
}

var remediations = map[Category]string{
	CategoryCompleteness: "Add required-field validation at data entry so records cannot be saved incomplete.",
	CategoryAccuracy:     "Add range checks at data entry and reconcile against physical counts.",
	CategoryConsistency:  "Add referential constraints so related records cannot drift apart.",
	CategoryTimeliness:   "Schedule periodic review of stale records and reject future-dated entries.",
	CategoryValidity:     "Tighten input validation so degenerate records are rejected up front.",
}

func remediationFor(cat Category) string {
	return remediations[cat]
}

func hasColumn(schema *dbconnector.TableSchema, name string) bool {
	for _, col := range schema.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		var n int
		if _, err := fmt.Sscanf(t, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}
