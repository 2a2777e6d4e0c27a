package monitor

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu       sync.Mutex
	batches  [][]Metric
	metrics  []Metric
	alerts   []Alert
	resolved map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{resolved: map[string]time.Time{}}
}

func (f *fakeStore) InsertMetrics(ctx context.Context, metrics []Metric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, metrics)
	f.metrics = append(f.metrics, metrics...)
	return nil
}

func (f *fakeStore) ListMetrics(ctx context.Context, start, end time.Time) ([]Metric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Metric
	for _, metric := range f.metrics {
		if !metric.RecordedAt.Before(start) && !metric.RecordedAt.After(end) {
			out = append(out, metric)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, alert Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeStore) ResolveAlert(ctx context.Context, id string, resolvedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved[id] = resolvedAt
	return nil
}

func (f *fakeStore) ListActiveAlerts(ctx context.Context) ([]Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Alert
	for _, alert := range f.alerts {
		if _, ok := f.resolved[alert.ID]; !ok {
			out = append(out, alert)
		}
	}
	return out, nil
}

func newTestMonitor(store *fakeStore) (*Monitor, *time.Time) {
	m := New(store, store, Thresholds{}, nil)
	current := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	m.SetNow(func() time.Time { return current })
	return m, &current
}

func slowQueryMetric(ms int64) Metric {
	return Metric{Kind: MetricQuery, Name: "report", DurationMs: ms}
}

func TestAlertCooldown(t *testing.T) {
	store := newFakeStore()
	m, current := newTestMonitor(store)
	ctx := context.Background()

	m.Record(ctx, slowQueryMetric(5000))
	*current = current.Add(5 * time.Minute)
	m.Record(ctx, slowQueryMetric(6000))
	if len(store.alerts) != 1 {
		t.Fatalf("expected exactly one alert within cooldown, got %d", len(store.alerts))
	}

	*current = current.Add(20 * time.Minute)
	m.Record(ctx, slowQueryMetric(7000))
	if len(store.alerts) != 2 {
		t.Fatalf("expected a second alert after cooldown, got %d", len(store.alerts))
	}
}

func TestCooldownIsPerKind(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestMonitor(store)
	ctx := context.Background()

	m.Record(ctx, slowQueryMetric(5000))
	m.Record(ctx, Metric{Kind: MetricSystem, Name: "memory", Value: 900})
	if len(store.alerts) != 2 {
		t.Fatalf("different kinds must not share a cooldown, got %d alerts", len(store.alerts))
	}
}

func TestFastQueryRaisesNoAlert(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestMonitor(store)
	m.Record(context.Background(), slowQueryMetric(50))
	if len(store.alerts) != 0 {
		t.Fatalf("expected no alert, got %d", len(store.alerts))
	}
}

func TestBufferFlushAtCap(t *testing.T) {
	store := newFakeStore()
	m := New(store, store, Thresholds{BufferSize: 3}, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.Record(ctx, slowQueryMetric(10))
	}
	if len(store.batches) != 1 {
		t.Fatalf("expected one flush at the cap, got %d", len(store.batches))
	}
	if len(store.batches[0]) != 3 {
		t.Fatalf("flush must carry the whole batch, got %d", len(store.batches[0]))
	}
	m.Record(ctx, slowQueryMetric(10))
	if len(store.batches) != 1 {
		t.Fatalf("buffer must start empty after a flush")
	}
}

func TestFlushDrainsBuffer(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestMonitor(store)
	ctx := context.Background()
	m.Record(ctx, slowQueryMetric(10))
	m.Flush(ctx)
	m.Flush(ctx)
	if len(store.batches) != 1 {
		t.Fatalf("empty buffer must not flush, got %d batches", len(store.batches))
	}
}

func TestResolveAlert(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestMonitor(store)
	ctx := context.Background()
	m.Record(ctx, slowQueryMetric(5000))

	active, err := m.GetActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active alert, got %d", len(active))
	}
	if err := m.ResolveAlert(ctx, active[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, err = m.GetActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("resolved alert must leave the active list")
	}
}

func TestGenerateReport(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestMonitor(store)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store.metrics = []Metric{
		{Kind: MetricQuery, DurationMs: 100, UserID: "u1", RecordedAt: day1, Metadata: map[string]any{"cache_hit": false}},
		{Kind: MetricQuery, DurationMs: 300, UserID: "u2", RecordedAt: day1, Metadata: map[string]any{"cache_hit": true}},
		{Kind: MetricQuery, DurationMs: 5000, UserID: "u1", RecordedAt: day2, Metadata: map[string]any{"cache_hit": false}},
		{Kind: MetricReport, DurationMs: 800, UserID: "u1", RecordedAt: day2},
	}

	report, err := m.GenerateReport(ctx, day1.Add(-time.Hour), day2.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalQueries != 3 || report.TotalReports != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if report.SlowQueries != 1 {
		t.Fatalf("expected one slow query, got %d", report.SlowQueries)
	}
	if report.ActiveUsers != 2 {
		t.Fatalf("expected 2 users, got %d", report.ActiveUsers)
	}
	if len(report.DailyTrend) != 2 {
		t.Fatalf("expected 2 trend buckets, got %d", len(report.DailyTrend))
	}
	if report.DailyTrend[0].Date != "2026-03-01" || report.DailyTrend[0].Queries != 2 {
		t.Fatalf("unexpected trend: %+v", report.DailyTrend)
	}
	// hit rate 1/3 triggers the cache recommendation
	if len(report.Recommendations) == 0 {
		t.Fatalf("expected recommendations for low cache hit rate")
	}
}

func TestRunFlushesOnCancel(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestMonitor(store)
	m.Record(context.Background(), slowQueryMetric(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if len(store.metrics) != 1 {
		t.Fatalf("cancellation must trigger a final flush")
	}
}
