package generator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reportengine-backend/internal/query"
	"reportengine-backend/internal/reportcfg"
)

type AlertCondition struct {
	Field       string            `json:"field"`
	Aggregation query.Aggregation `json:"aggregation"`
	Operator    query.Operator    `json:"operator"`
	Value       float64           `json:"value"`
}

type ActionType string

const (
	ActionLog     ActionType = "log"
	ActionNotify  ActionType = "notify"
	ActionWebhook ActionType = "webhook"
	ActionEmail   ActionType = "email"
)

type AlertAction struct {
	Type   ActionType `json:"type"`
	Target string     `json:"target,omitempty"`
}

// ReportAlert is a scheduled re-check of a report query against aggregate
// conditions.
type ReportAlert struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Config        reportcfg.ReportConfig `json:"config"`
	Conditions    []AlertCondition       `json:"conditions"`
	Actions       []AlertAction          `json:"actions"`
	Frequency     time.Duration          `json:"frequency"`
	Enabled       bool                   `json:"enabled"`
	LastChecked   *time.Time             `json:"last_checked,omitempty"`
	LastTriggered *time.Time             `json:"last_triggered,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ReportAlertStore is the durable home of report alerts.
type ReportAlertStore interface {
	ListEnabledReportAlerts(ctx context.Context) ([]ReportAlert, error)
	UpdateReportAlertStatus(ctx context.Context, id string, lastChecked time.Time, lastTriggered *time.Time) error
}

type AlertEvent struct {
	AlertID     string    `json:"alert_id"`
	Name        string    `json:"name"`
	Message     string    `json:"message"`
	Observed    []float64 `json:"observed"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// ActionHandler dispatches one alert action. Handler failures are logged
// and never affect alert state.
type ActionHandler interface {
	Handle(ctx context.Context, action AlertAction, event AlertEvent) error
}

type AlertChecker struct {
	generator *Generator
	store     ReportAlertStore
	handlers  map[ActionType]ActionHandler
	logger    *zap.Logger
	now       func() time.Time
}

func NewAlertChecker(generator *Generator, store ReportAlertStore, handlers map[ActionType]ActionHandler, logger *zap.Logger) *AlertChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handlers == nil {
		handlers = map[ActionType]ActionHandler{}
	}
	if _, ok := handlers[ActionLog]; !ok {
		handlers[ActionLog] = &LogActionHandler{Logger: logger}
	}
	return &AlertChecker{
		generator: generator,
		store:     store,
		handlers:  handlers,
		logger:    logger.With(zap.String("component", "report-alerts")),
		now:       time.Now,
	}
}

func (c *AlertChecker) SetNow(now func() time.Time) { c.now = now }

// CheckAlerts evaluates every enabled alert that is due by its frequency.
// Exported so tests and the scheduler share one body.
func (c *AlertChecker) CheckAlerts(ctx context.Context) error {
	alerts, err := c.store.ListEnabledReportAlerts(ctx)
	if err != nil {
		return fmt.Errorf("list report alerts: %w", err)
	}
	now := c.now()
	for _, alert := range alerts {
		if alert.LastChecked != nil && now.Sub(*alert.LastChecked) < alert.Frequency {
			continue
		}
		triggered := c.check(ctx, alert)
		lastTriggered := alert.LastTriggered
		if triggered {
			t := now
			lastTriggered = &t
		}
		if err := c.store.UpdateReportAlertStatus(ctx, alert.ID, now, lastTriggered); err != nil {
			c.logger.Warn("alert status update failed", zap.String("alert", alert.ID), zap.Error(err))
		}
	}
	return nil
}

// check re-runs the alert's query and evaluates all conditions
// conjunctively.
func (c *AlertChecker) check(ctx context.Context, alert ReportAlert) bool {
	cfg := alert.Config
	result, err := c.generator.Generate(ctx, Request{Config: &cfg})
	if err != nil {
		c.logger.Warn("alert query failed", zap.String("alert", alert.ID), zap.Error(err))
		return false
	}
	if len(alert.Conditions) == 0 {
		return false
	}

	observed := make([]float64, 0, len(alert.Conditions))
	for _, cond := range alert.Conditions {
		value, ok := reduce(result.Data, cond.Field, cond.Aggregation)
		if !ok || !evaluate(cond.Operator, value, cond.Value) {
			return false
		}
		observed = append(observed, value)
	}

	event := AlertEvent{
		AlertID:     alert.ID,
		Name:        alert.Name,
		Message:     fmt.Sprintf("report alert %q triggered", alert.Name),
		Observed:    observed,
		TriggeredAt: c.now(),
	}
	for _, action := range alert.Actions {
		handler, ok := c.handlers[action.Type]
		if !ok {
			c.logger.Warn("no handler for action", zap.String("alert", alert.ID), zap.String("type", string(action.Type)))
			continue
		}
		if err := handler.Handle(ctx, action, event); err != nil {
			c.logger.Warn("alert action failed",
				zap.String("alert", alert.ID),
				zap.String("type", string(action.Type)),
				zap.Error(err))
		}
	}
	return true
}

// reduce collapses the field's values across rows by the condition's
// aggregation.
func reduce(rows []map[string]any, field string, agg query.Aggregation) (float64, bool) {
	if agg == query.AggCount {
		n := 0
		for _, row := range rows {
			if v, ok := row[field]; ok && v != nil {
				n++
			}
		}
		return float64(n), true
	}
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if f, ok := toFloat(row[field]); ok {
			values = append(values, f)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	switch agg {
	case query.AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum, true
	case query.AggAvg:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), true
	case query.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, true
	case query.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, true
	default:
		return 0, false
	}
}

func evaluate(op query.Operator, observed, target float64) bool {
	switch op {
	case query.OpEquals:
		return observed == target
	case query.OpNotEquals:
		return observed != target
	case query.OpGreaterThan:
		return observed > target
	case query.OpLessThan:
		return observed < target
	case query.OpGreaterOrEqual:
		return observed >= target
	case query.OpLessOrEqual:
		return observed <= target
	default:
		return false
	}
}
