package generator

import (
	"context"

	"go.uber.org/zap"

	"reportengine-backend/internal/reportcfg"
)

type Widget struct {
	ID       string                 `json:"id"`
	Title    string                 `json:"title"`
	Config   reportcfg.ReportConfig `json:"config"`
	Position int                    `json:"position"`
}

type Dashboard struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Widgets []Widget `json:"widgets"`
}

type WidgetResult struct {
	WidgetID string  `json:"widget_id"`
	Title    string  `json:"title"`
	Result   *Result `json:"result,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// RefreshDashboard re-runs generation per widget. One widget failing is
// captured on its own result; the dashboard as a whole never fails.
func (g *Generator) RefreshDashboard(ctx context.Context, dashboard Dashboard, userID string) []WidgetResult {
	results := make([]WidgetResult, 0, len(dashboard.Widgets))
	for _, widget := range dashboard.Widgets {
		cfg := widget.Config
		result, err := g.Generate(ctx, Request{Config: &cfg, UserID: userID})
		wr := WidgetResult{WidgetID: widget.ID, Title: widget.Title}
		if err != nil {
			g.logger.Warn("widget refresh failed",
				zap.String("dashboard", dashboard.ID),
				zap.String("widget", widget.ID),
				zap.Error(err))
			wr.Error = err.Error()
		} else {
			wr.Result = result
		}
		results = append(results, wr)
	}
	return results
}
