package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	dbconnector "reportengine-backend"
)

type fakeConnector struct {
	mu        sync.Mutex
	tables    []string
	rows      []map[string]any
	total     int
	failQuery bool
	failCount bool

	selectCalls int
	countCalls  int
	lastSQL     string
	lastParams  []any
	sawDeadline bool
}

func (f *fakeConnector) ListTables(ctx context.Context) ([]string, error) {
	return f.tables, nil
}

func (f *fakeConnector) ExecuteQuery(ctx context.Context, query string, params []any) (*dbconnector.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); ok {
		f.sawDeadline = true
	}
	if strings.HasPrefix(query, "SELECT COUNT(*)") {
		f.countCalls++
		if f.failCount {
			return nil, errors.New("count failed")
		}
		return &dbconnector.QueryResult{
			Rows:     []map[string]any{{"total": int64(f.total)}},
			Columns:  []string{"total"},
			RowCount: 1,
		}, nil
	}
	f.selectCalls++
	f.lastSQL = query
	f.lastParams = params
	if f.failQuery {
		return nil, errors.New("connection reset")
	}
	return &dbconnector.QueryResult{
		Rows:        f.rows,
		Columns:     []string{"id"},
		RowCount:    len(f.rows),
		ExecutionMs: 3,
	}, nil
}

func newTestEngine(t *testing.T, conn *fakeConnector) *Engine {
	t.Helper()
	e := NewEngine(conn, nil, Config{})
	t.Cleanup(e.Close)
	return e
}

func TestExecuteNeverReachesConnectorOnUnknownTable(t *testing.T) {
	conn := &fakeConnector{tables: []string{"products"}}
	e := newTestEngine(t, conn)
	_, err := e.Execute(context.Background(), ReportQuery{Table: "zzz_not_real", Fields: []ReportField{{Name: "*"}}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(verr.Error(), "zzz_not_real") {
		t.Fatalf("error should name the table: %v", verr)
	}
	if conn.selectCalls != 0 || conn.countCalls != 0 {
		t.Fatalf("connector must not be called on validation failure")
	}
}

func TestExecutePagination(t *testing.T) {
	rows := make([]map[string]any, 10)
	for i := range rows {
		rows[i] = map[string]any{"id": i}
	}
	conn := &fakeConnector{tables: []string{"products"}, rows: rows, total: 55}
	e := newTestEngine(t, conn)
	limit, offset := 10, 20
	result, err := e.Execute(context.Background(), ReportQuery{
		Table:  "products",
		Fields: []ReportField{{Name: "*"}},
		Limit:  &limit,
		Offset: &offset,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(result.Rows))
	}
	if result.TotalCount != 55 {
		t.Fatalf("expected total 55, got %d", result.TotalCount)
	}
	if result.SQL != "SELECT * FROM products LIMIT ? OFFSET ?" {
		t.Fatalf("unexpected sql: %s", result.SQL)
	}
}

func TestExecuteCacheWithinTTL(t *testing.T) {
	conn := &fakeConnector{tables: []string{"products"}, rows: []map[string]any{{"id": 1}}, total: 1}
	e := newTestEngine(t, conn)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.SetNow(func() time.Time { return current })

	q := ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}}
	first, err := e.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.CacheHit {
		t.Fatalf("first execution must not be a cache hit")
	}

	current = current.Add(time.Minute)
	second, err := e.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.CacheHit {
		t.Fatalf("second execution within TTL should hit the cache")
	}
	if conn.selectCalls != 1 {
		t.Fatalf("expected exactly one connector call, got %d", conn.selectCalls)
	}

	current = current.Add(10 * time.Minute)
	third, err := e.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.CacheHit {
		t.Fatalf("execution after TTL expiry should miss the cache")
	}
	if conn.selectCalls != 2 {
		t.Fatalf("expected a second connector call after expiry, got %d", conn.selectCalls)
	}
}

func TestExecuteFailureNotCached(t *testing.T) {
	conn := &fakeConnector{tables: []string{"products"}, failQuery: true}
	e := newTestEngine(t, conn)
	q := ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}}

	_, err := e.Execute(context.Background(), q)
	var xerr *ExecutionError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected execution error, got %v", err)
	}
	if xerr.Unwrap() == nil {
		t.Fatalf("execution error must wrap the cause")
	}

	conn.failQuery = false
	conn.rows = []map[string]any{{"id": 1}}
	result, err := e.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CacheHit {
		t.Fatalf("failed execution must not populate the cache")
	}
	if conn.selectCalls != 2 {
		t.Fatalf("expected retry to reach the connector, got %d calls", conn.selectCalls)
	}
}

func TestExecuteCountFailureReturnsZero(t *testing.T) {
	conn := &fakeConnector{tables: []string{"products"}, rows: []map[string]any{{"id": 1}}, failCount: true}
	e := newTestEngine(t, conn)
	result, err := e.Execute(context.Background(), ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}})
	if err != nil {
		t.Fatalf("count failure must not propagate: %v", err)
	}
	if result.TotalCount != 0 {
		t.Fatalf("expected zero total on count failure, got %d", result.TotalCount)
	}
}

func TestExecuteCarriesValidatorWarnings(t *testing.T) {
	conn := &fakeConnector{tables: []string{"products"}, rows: []map[string]any{{"id": 1}}, total: 1}
	e := newTestEngine(t, conn)
	limit := 20000
	result, err := e.Execute(context.Background(), ReportQuery{
		Table:  "products",
		Fields: []ReportField{{Name: "*"}},
		Limit:  &limit,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "consider pagination") {
		t.Fatalf("unexpected warning text: %s", result.Warnings[0])
	}
}

func TestExecuteTruncatesOversizedResult(t *testing.T) {
	rows := make([]map[string]any, 10)
	for i := range rows {
		rows[i] = map[string]any{"id": i}
	}
	conn := &fakeConnector{tables: []string{"products"}, rows: rows, total: 10}
	e := NewEngine(conn, nil, Config{MaxResultRows: 5})
	t.Cleanup(e.Close)
	result, err := e.Execute(context.Background(), ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 5 {
		t.Fatalf("expected 5 rows after truncation, got %d", len(result.Rows))
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "truncated to 5 rows") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a truncation warning, got %v", result.Warnings)
	}
}

func TestExecuteSetsQueryDeadline(t *testing.T) {
	conn := &fakeConnector{tables: []string{"products"}, rows: []map[string]any{{"id": 1}}, total: 1}
	e := newTestEngine(t, conn)
	if _, err := e.Execute(context.Background(), ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conn.sawDeadline {
		t.Fatalf("connector should be called with a deadline-bearing context")
	}
}

func TestClearCache(t *testing.T) {
	conn := &fakeConnector{tables: []string{"products"}, rows: []map[string]any{{"id": 1}}, total: 1}
	e := newTestEngine(t, conn)
	q := ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}}
	if _, err := e.Execute(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.ClearCache()
	if _, err := e.Execute(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.selectCalls != 2 {
		t.Fatalf("expected cache clear to force re-execution, got %d calls", conn.selectCalls)
	}
}

func TestStats(t *testing.T) {
	conn := &fakeConnector{tables: []string{"products"}, rows: []map[string]any{{"id": 1}}, total: 1}
	e := newTestEngine(t, conn)
	q := ReportQuery{Table: "products", Fields: []ReportField{{Name: "*"}}}
	for i := 0; i < 3; i++ {
		if _, err := e.Execute(context.Background(), q); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	stats := e.Stats()
	if stats.TotalQueries != 3 {
		t.Fatalf("expected 3 queries, got %d", stats.TotalQueries)
	}
	if stats.CacheHits != 2 || stats.CacheMisses != 1 {
		t.Fatalf("unexpected hit/miss counts: %+v", stats)
	}
}
