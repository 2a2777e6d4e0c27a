package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetricStore and AlertStore are the durable side of the monitor.
type MetricStore interface {
	InsertMetrics(ctx context.Context, metrics []Metric) error
	ListMetrics(ctx context.Context, start, end time.Time) ([]Metric, error)
}

type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) error
	ResolveAlert(ctx context.Context, id string, resolvedAt time.Time) error
	ListActiveAlerts(ctx context.Context) ([]Alert, error)
}

// Monitor buffers execution metrics, flushes them in batches, and raises
// threshold alerts with cooldown suppression. Alerts persist immediately;
// metrics wait for the buffer.
type Monitor struct {
	metrics    MetricStore
	alerts     AlertStore
	thresholds Thresholds
	logger     *zap.Logger
	now        func() time.Time

	bufMu  sync.Mutex
	buffer []Metric

	alertMu   sync.Mutex
	active    []Alert
	lastAlert map[AlertKind]time.Time
}

func New(metrics MetricStore, alerts AlertStore, thresholds Thresholds, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if thresholds.SlowQueryMs <= 0 {
		thresholds.SlowQueryMs = DefaultThresholds().SlowQueryMs
	}
	if thresholds.HighMemoryMB <= 0 {
		thresholds.HighMemoryMB = DefaultThresholds().HighMemoryMB
	}
	if thresholds.Cooldown <= 0 {
		thresholds.Cooldown = DefaultThresholds().Cooldown
	}
	if thresholds.BufferSize <= 0 {
		thresholds.BufferSize = DefaultThresholds().BufferSize
	}
	if thresholds.FlushInterval <= 0 {
		thresholds.FlushInterval = DefaultThresholds().FlushInterval
	}
	return &Monitor{
		metrics:    metrics,
		alerts:     alerts,
		thresholds: thresholds,
		logger:     logger.With(zap.String("component", "performance-monitor")),
		now:        time.Now,
		lastAlert:  map[AlertKind]time.Time{},
	}
}

func (m *Monitor) SetNow(now func() time.Time) { m.now = now }

// Record appends the metric to the buffer and evaluates threshold rules
// immediately. A full buffer is flushed inline.
func (m *Monitor) Record(ctx context.Context, metric Metric) {
	if metric.ID == "" {
		metric.ID = uuid.NewString()
	}
	if metric.RecordedAt.IsZero() {
		metric.RecordedAt = m.now()
	}

	m.bufMu.Lock()
	m.buffer = append(m.buffer, metric)
	full := len(m.buffer) >= m.thresholds.BufferSize
	m.bufMu.Unlock()
	if full {
		m.Flush(ctx)
	}

	m.evaluate(ctx, metric)
}

func (m *Monitor) evaluate(ctx context.Context, metric Metric) {
	switch metric.Kind {
	case MetricQuery:
		if metric.DurationMs > m.thresholds.SlowQueryMs {
			m.raise(ctx, AlertSlowQuery, SeverityWarning,
				fmt.Sprintf("query %q took %dms", metric.Name, metric.DurationMs),
				float64(m.thresholds.SlowQueryMs), float64(metric.DurationMs))
		}
	case MetricSystem:
		if metric.Value > m.thresholds.HighMemoryMB {
			m.raise(ctx, AlertHighMemory, SeverityCritical,
				fmt.Sprintf("memory usage at %.0fMB", metric.Value),
				m.thresholds.HighMemoryMB, metric.Value)
		}
	}
}

// raise creates the alert unless one of the same kind was raised within the
// cooldown window.
func (m *Monitor) raise(ctx context.Context, kind AlertKind, severity AlertSeverity, message string, threshold, observed float64) {
	now := m.now()
	m.alertMu.Lock()
	if withinCooldown(now, m.lastAlert[kind], m.thresholds.Cooldown) {
		m.alertMu.Unlock()
		return
	}
	m.lastAlert[kind] = now
	alert := Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Threshold: threshold,
		Observed:  observed,
		CreatedAt: now,
	}
	m.active = append(m.active, alert)
	m.alertMu.Unlock()

	if err := m.alerts.InsertAlert(ctx, alert); err != nil {
		m.logger.Error("alert persist failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	m.logger.Warn("performance alert raised",
		zap.String("kind", string(kind)),
		zap.Float64("threshold", threshold),
		zap.Float64("observed", observed))
}

// Flush drains the buffer under lock and writes the detached batch without
// it; the write is all-or-nothing.
func (m *Monitor) Flush(ctx context.Context) {
	m.bufMu.Lock()
	if len(m.buffer) == 0 {
		m.bufMu.Unlock()
		return
	}
	batch := m.buffer
	m.buffer = nil
	m.bufMu.Unlock()

	if err := m.metrics.InsertMetrics(ctx, batch); err != nil {
		m.logger.Error("metric flush failed", zap.Int("batch", len(batch)), zap.Error(err))
	}
}

// Run owns the periodic flush; cancellation triggers a final flush.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.thresholds.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			m.Flush(flushCtx)
			cancel()
			return
		}
	}
}

func (m *Monitor) GetActiveAlerts(ctx context.Context) ([]Alert, error) {
	return m.alerts.ListActiveAlerts(ctx)
}

func (m *Monitor) ResolveAlert(ctx context.Context, id string) error {
	resolvedAt := m.now()
	if err := m.alerts.ResolveAlert(ctx, id, resolvedAt); err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	m.alertMu.Lock()
	for i := range m.active {
		if m.active[i].ID == id {
			m.active = append(m.active[:i], m.active[i+1:]...)
			break
		}
	}
	m.alertMu.Unlock()
	return nil
}
