package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reportengine-backend/internal/monitor"
	"reportengine-backend/internal/quality"
	"reportengine-backend/internal/query"
	"reportengine-backend/internal/reportcfg"
)

const slowReportMs = 5000

// QueryExecutor is the slice of the query engine the generator uses.
type QueryExecutor interface {
	Execute(ctx context.Context, q query.ReportQuery) (*query.Result, error)
}

// QualityChecker produces a data-quality report for the given tables.
type QualityChecker interface {
	Validate(ctx context.Context, tables ...string) (*quality.QualityReport, error)
}

// Recorder receives execution telemetry.
type Recorder interface {
	Record(ctx context.Context, metric monitor.Metric)
}

type Request struct {
	TemplateID string
	InstanceID string
	UserID     string
	// Config is used when no template is referenced (ad-hoc reports).
	Config       *reportcfg.ReportConfig
	Parameters   map[string]any
	ValidateData bool
}

type DataQuality struct {
	Score float64      `json:"score"`
	Tier  quality.Tier `json:"tier"`
}

type Metadata struct {
	TemplateID    string       `json:"template_id,omitempty"`
	InstanceID    string       `json:"instance_id,omitempty"`
	TotalRecords  int          `json:"total_records"`
	ExecutionMs   int64        `json:"execution_ms"`
	DataQuality   *DataQuality `json:"data_quality,omitempty"`
	CompiledQuery string       `json:"compiled_query"`
	Parameters    []any        `json:"parameters"`
	CacheHit      bool         `json:"cache_hit"`
	Timestamp     time.Time    `json:"timestamp"`
}

type FormattedCell struct {
	Display string   `json:"display"`
	Tags    []string `json:"tags,omitempty"`
}

type Result struct {
	Success         bool                       `json:"success"`
	Data            []map[string]any           `json:"data"`
	Formatted       []map[string]FormattedCell `json:"formatted,omitempty"`
	Metadata        Metadata                   `json:"metadata"`
	Warnings        []string                   `json:"warnings,omitempty"`
	Recommendations []string                   `json:"recommendations,omitempty"`
	Error           string                     `json:"error,omitempty"`
}

type Generator struct {
	manager *reportcfg.Manager
	engine  QueryExecutor
	quality QualityChecker
	monitor Recorder
	logger  *zap.Logger
	now     func() time.Time
}

func New(manager *reportcfg.Manager, engine QueryExecutor, qualityChecker QualityChecker, recorder Recorder, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		manager: manager,
		engine:  engine,
		quality: qualityChecker,
		monitor: recorder,
		logger:  logger.With(zap.String("component", "report-generator")),
		now:     time.Now,
	}
}

func (g *Generator) SetNow(now func() time.Time) { g.now = now }

// Generate runs the full pipeline: resolve config, apply parameters,
// validate, optionally check data quality, execute, record telemetry,
// update the instance, and post-process rows. Config and validation errors
// abort before any data-source I/O; execution errors are surfaced and also
// recorded against the instance.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	started := g.now()

	cfg, err := g.resolveConfig(ctx, req)
	if err != nil {
		g.failInstance(ctx, req.InstanceID, err)
		return nil, err
	}

	applyParameters(&cfg.Query, req.Parameters)

	if ok, verr := g.manager.ValidateConfig(*cfg); !ok {
		g.failInstance(ctx, req.InstanceID, verr)
		return nil, verr
	}

	result := &Result{}
	var dq *DataQuality
	if req.ValidateData && g.quality != nil {
		dq = g.checkQuality(ctx, cfg, result)
	}

	execResult, err := g.engine.Execute(ctx, cfg.Query)
	if err != nil {
		g.failInstance(ctx, req.InstanceID, err)
		var verr *query.ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, err
	}

	elapsed := g.now().Sub(started).Milliseconds()
	g.recordMetrics(ctx, req, execResult, result, elapsed)
	g.completeInstance(ctx, req.InstanceID, execResult, elapsed)

	result.Success = true
	result.Warnings = append(result.Warnings, execResult.Warnings...)
	result.Data = execResult.Rows
	result.Formatted = formatRows(execResult.Rows, cfg)
	result.Metadata = Metadata{
		TemplateID:    req.TemplateID,
		InstanceID:    req.InstanceID,
		TotalRecords:  execResult.TotalCount,
		ExecutionMs:   execResult.ExecutionMs,
		DataQuality:   dq,
		CompiledQuery: execResult.SQL,
		Parameters:    execResult.Params,
		CacheHit:      execResult.CacheHit,
		Timestamp:     g.now(),
	}
	g.advise(result, cfg, execResult, dq)
	return result, nil
}

func (g *Generator) resolveConfig(ctx context.Context, req Request) (*reportcfg.ReportConfig, error) {
	if req.TemplateID != "" {
		template, err := g.manager.GetTemplate(ctx, req.TemplateID)
		if err != nil {
			return nil, &reportcfg.ConfigError{Message: fmt.Sprintf("template %q not found", req.TemplateID), Err: err}
		}
		if !template.IsActive {
			return nil, &reportcfg.ConfigError{Message: fmt.Sprintf("template %q is inactive", req.TemplateID)}
		}
		cfg := template.Config
		cfg.Query.Filters = cloneFilters(cfg.Query.Filters)
		return &cfg, nil
	}
	if req.Config == nil {
		return nil, &reportcfg.ConfigError{Message: "request carries neither a template nor a config"}
	}
	cfg := *req.Config
	cfg.Query.Filters = cloneFilters(cfg.Query.Filters)
	return &cfg, nil
}

// cloneFilters detaches the filter slice; the struct copy above still
// shares its backing array, so parameter substitution would otherwise
// write through to the cached template.
func cloneFilters(filters []query.ReportFilter) []query.ReportFilter {
	if len(filters) == 0 {
		return filters
	}
	out := make([]query.ReportFilter, len(filters))
	copy(out, filters)
	return out
}

// applyParameters rewrites filter values by their stable parameter key.
// Unknown keys are ignored.
func applyParameters(q *query.ReportQuery, params map[string]any) {
	if len(params) == 0 {
		return
	}
	for i := range q.Filters {
		key := q.Filters[i].ParamKey
		if key == "" {
			continue
		}
		value, ok := params[key]
		if !ok {
			continue
		}
		if list, isList := value.([]any); isList {
			q.Filters[i].Values = list
		} else {
			q.Filters[i].Value = value
		}
	}
}

// checkQuality runs the data-quality engine for the tables the query
// touches; failures downgrade to warnings.
func (g *Generator) checkQuality(ctx context.Context, cfg *reportcfg.ReportConfig, result *Result) *DataQuality {
	tables := []string{cfg.Query.Table}
	for _, j := range cfg.Query.Joins {
		tables = append(tables, j.Table)
	}
	report, err := g.quality.Validate(ctx, tables...)
	if err != nil {
		g.logger.Warn("data quality check failed", zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("data quality check failed: %v", err))
		return nil
	}
	return &DataQuality{Score: report.Score, Tier: report.Tier}
}

// recordMetrics reports telemetry, one query metric for the data-source
// round trip and one report metric for the whole generation; a monitor
// failure never fails the report.
func (g *Generator) recordMetrics(ctx context.Context, req Request, execResult *query.Result, result *Result, generationMs int64) {
	if g.monitor == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("performance recording panicked", zap.Any("cause", r))
			result.Warnings = append(result.Warnings, "performance telemetry unavailable for this run")
		}
	}()
	g.monitor.Record(ctx, monitor.Metric{
		Kind:       monitor.MetricQuery,
		Name:       req.TemplateID,
		DurationMs: execResult.ExecutionMs,
		UserID:     req.UserID,
		Metadata:   map[string]any{"cache_hit": execResult.CacheHit, "rows": len(execResult.Rows)},
	})
	g.monitor.Record(ctx, monitor.Metric{
		Kind:       monitor.MetricReport,
		Name:       req.TemplateID,
		DurationMs: generationMs,
		UserID:     req.UserID,
		Metadata:   map[string]any{"rows": len(execResult.Rows)},
	})
}

func (g *Generator) failInstance(ctx context.Context, instanceID string, cause error) {
	if instanceID == "" {
		return
	}
	status := reportcfg.StatusFailed
	message := cause.Error()
	patch := reportcfg.InstancePatch{Status: &status, Error: &message}
	if err := g.manager.UpdateInstance(ctx, instanceID, patch); err != nil {
		g.logger.Warn("instance failure update failed", zap.String("instance", instanceID), zap.Error(err))
	}
}

func (g *Generator) completeInstance(ctx context.Context, instanceID string, execResult *query.Result, elapsedMs int64) {
	if instanceID == "" {
		return
	}
	status := reportcfg.StatusCompleted
	count := len(execResult.Rows)
	patch := reportcfg.InstancePatch{Status: &status, ResultCount: &count, GenerationMs: &elapsedMs}
	if err := g.manager.UpdateInstance(ctx, instanceID, patch); err != nil {
		g.logger.Warn("instance completion update failed", zap.String("instance", instanceID), zap.Error(err))
	}
}

// advise derives non-blocking warnings and recommendations from the run.
func (g *Generator) advise(result *Result, cfg *reportcfg.ReportConfig, execResult *query.Result, dq *DataQuality) {
	if execResult.ExecutionMs > slowReportMs {
		result.Warnings = append(result.Warnings, fmt.Sprintf("report took %dms to execute", execResult.ExecutionMs))
		result.Recommendations = append(result.Recommendations, "Narrow the report with filters or a lower limit.")
	}
	if len(execResult.Rows) == 0 {
		result.Warnings = append(result.Warnings, "the report matched no rows")
	}
	if dq != nil && dq.Score < 70 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("underlying data quality is %s (%.0f/100)", dq.Tier, dq.Score))
		result.Recommendations = append(result.Recommendations, "Run the data quality report and address the top issues before trusting totals.")
	}
	if len(cfg.Query.Joins) > 2 {
		result.Recommendations = append(result.Recommendations, "This report joins many tables; consider a pre-aggregated view.")
	}
}
