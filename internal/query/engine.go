package query

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	dbconnector "reportengine-backend"
	"reportengine-backend/internal/security"
)

// Connector is the slice of the storage connector the engine needs.
type Connector interface {
	ListTables(ctx context.Context) ([]string, error)
	ExecuteQuery(ctx context.Context, query string, params []any) (*dbconnector.QueryResult, error)
}

type Config struct {
	CacheTTL             time.Duration
	MaxCacheSize         int
	SchemaTTL            time.Duration
	QueriesPerSecond     int
	MaxQueryDuration     time.Duration
	MaxConcurrentQueries int
	MaxResultRows        int
	Allowlist            security.Allowlist
}

func setConfigDefaults(cfg *Config) {
	limits := security.DefaultLimits()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = 1000
	}
	if cfg.SchemaTTL <= 0 {
		cfg.SchemaTTL = 5 * time.Minute
	}
	if cfg.QueriesPerSecond <= 0 {
		cfg.QueriesPerSecond = limits.QueriesPerSecond
	}
	if cfg.MaxQueryDuration <= 0 {
		cfg.MaxQueryDuration = limits.MaxQueryDuration
	}
	if cfg.MaxConcurrentQueries <= 0 {
		cfg.MaxConcurrentQueries = limits.MaxConcurrentQueries
	}
	if cfg.MaxResultRows <= 0 {
		cfg.MaxResultRows = limits.MaxResultRows
	}
}

type Stats struct {
	TotalQueries int64
	CacheHits    int64
	CacheMisses  int64
	AvgQueryMs   float64
	ErrorCount   int64
	LastQueryAt  time.Time
}

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// Engine validates, compiles, executes, and caches report queries. The
// cache holds immutable entries keyed by a content hash of the query
// description; two structurally different but semantically identical
// queries are distinct entries, an accepted limitation.
type Engine struct {
	connector Connector
	logger    *zap.Logger
	limiter   *rate.Limiter
	sem       chan struct{}
	cfg       Config

	cacheMu sync.RWMutex
	cache   map[string]*cacheEntry

	schemaMu   sync.Mutex
	tables     map[string]struct{}
	tablesAt   time.Time
	statsMu    sync.Mutex
	stats      Stats
	totalMs    int64
	now        func() time.Time
	closeCh    chan struct{}
	closeOnce  sync.Once
	cleanupRun sync.WaitGroup
}

func NewEngine(connector Connector, logger *zap.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	setConfigDefaults(&cfg)
	e := &Engine{
		connector: connector,
		logger:    logger.With(zap.String("component", "query-engine")),
		limiter:   rate.NewLimiter(rate.Limit(cfg.QueriesPerSecond), cfg.QueriesPerSecond),
		sem:       make(chan struct{}, cfg.MaxConcurrentQueries),
		cfg:       cfg,
		cache:     make(map[string]*cacheEntry),
		now:       time.Now,
	}
	e.closeCh = make(chan struct{})
	e.cleanupRun.Add(1)
	go e.runCacheCleanup()
	return e
}

// SetNow overrides the clock, for tests. TTL comparisons are wall-clock
// and therefore sensitive to system clock adjustments.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}

func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closeCh)
	})
	e.cleanupRun.Wait()
}

// Validate checks the query against the live schema without executing it.
func (e *Engine) Validate(ctx context.Context, q ReportQuery) (bool, *ValidationError, []string) {
	tables, err := e.knownTables(ctx)
	if err != nil {
		return false, &ValidationError{
			Message: "schema lookup failed",
			Details: []ErrorDetail{{Field: "table", Problem: err.Error(), Hint: "Check the data source connection"}},
		}, nil
	}
	verr, warnings := validateQuery(q, tables)
	if verr != nil {
		return false, verr, warnings
	}
	if !e.cfg.Allowlist.AllowsTable(q.Table) {
		return false, &ValidationError{
			Message: "report query failed validation",
			Details: []ErrorDetail{{Field: "table", Problem: fmt.Sprintf("table %q is not allowed", q.Table), Hint: "Ask an administrator to allow the table"}},
		}, warnings
	}
	return true, nil, warnings
}

// Execute validates, compiles, and runs the query, serving repeats from the
// result cache within the TTL. Nothing is cached on failure.
func (e *Engine) Execute(ctx context.Context, q ReportQuery) (*Result, error) {
	ok, verr, warnings := e.Validate(ctx, q)
	if !ok {
		return nil, verr
	}

	key, err := cacheKey(q)
	if err != nil {
		return nil, fmt.Errorf("hash query: %w", err)
	}
	if cached, hit := e.cachedResult(key); hit {
		e.recordQuery(cached.ExecutionMs, true, false)
		return cached, nil
	}

	sqlText, params, err := Compile(q)
	if err != nil {
		return nil, &ValidationError{
			Message: "report query failed to compile",
			Details: []ErrorDetail{{Field: "query", Problem: err.Error()}},
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for query slot: %w", ctx.Err())
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.MaxQueryDuration)
	defer cancel()

	qr, err := e.connector.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		e.recordQuery(0, false, true)
		return nil, &ExecutionError{Query: sqlText, Err: err}
	}

	rows := qr.Rows
	if len(rows) > e.cfg.MaxResultRows {
		rows = rows[:e.cfg.MaxResultRows]
		warnings = append(warnings, fmt.Sprintf("result truncated to %d rows", e.cfg.MaxResultRows))
	}

	result := &Result{
		Rows:        rows,
		Columns:     qr.Columns,
		TotalCount:  e.totalCount(ctx, q, qr.RowCount),
		ExecutionMs: qr.ExecutionMs,
		SQL:         sqlText,
		Params:      params,
		Warnings:    warnings,
	}
	e.storeResult(key, result)
	e.recordQuery(qr.ExecutionMs, false, false)
	return result, nil
}

// totalCount runs the COUNT(*) companion; its failure is logged and reported
// as the page's own row count rather than propagated.
func (e *Engine) totalCount(ctx context.Context, q ReportQuery, fallback int) int {
	countSQL, countParams, err := CompileCount(q)
	if err != nil {
		e.logger.Warn("count query compile failed", zap.Error(err))
		return fallback
	}
	qr, err := e.connector.ExecuteQuery(ctx, countSQL, countParams)
	if err != nil {
		e.logger.Warn("count query failed", zap.String("sql", countSQL), zap.Error(err))
		return 0
	}
	if len(qr.Rows) == 0 {
		return 0
	}
	if total, ok := asInt(qr.Rows[0]["total"]); ok {
		return total
	}
	return 0
}

func (e *Engine) cachedResult(key string) (*Result, bool) {
	e.cacheMu.RLock()
	entry, ok := e.cache[key]
	e.cacheMu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.now().Sub(entry.storedAt) > e.cfg.CacheTTL {
		e.cacheMu.Lock()
		delete(e.cache, key)
		e.cacheMu.Unlock()
		return nil, false
	}
	// entries are immutable once inserted; hand out a shallow copy with the
	// hit flag set
	result := entry.result
	result.CacheHit = true
	return &result, true
}

func (e *Engine) storeResult(key string, result *Result) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if len(e.cache) >= e.cfg.MaxCacheSize {
		e.evictOldestLocked()
	}
	e.cache[key] = &cacheEntry{result: *result, storedAt: e.now()}
}

func (e *Engine) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, entry := range e.cache {
		if oldestKey == "" || entry.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = entry.storedAt
		}
	}
	if oldestKey != "" {
		delete(e.cache, oldestKey)
	}
}

func (e *Engine) ClearCache() {
	e.cacheMu.Lock()
	e.cache = make(map[string]*cacheEntry)
	e.cacheMu.Unlock()
}

func (e *Engine) runCacheCleanup() {
	defer e.cleanupRun.Done()
	ticker := time.NewTicker(e.cfg.CacheTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.cacheMu.Lock()
			now := e.now()
			for k, entry := range e.cache {
				if now.Sub(entry.storedAt) > e.cfg.CacheTTL {
					delete(e.cache, k)
				}
			}
			e.cacheMu.Unlock()
		case <-e.closeCh:
			return
		}
	}
}

func (e *Engine) knownTables(ctx context.Context) (map[string]struct{}, error) {
	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()
	if e.tables != nil && e.now().Sub(e.tablesAt) <= e.cfg.SchemaTTL {
		return e.tables, nil
	}
	names, err := e.connector.ListTables(ctx)
	if err != nil {
		if e.tables != nil {
			e.logger.Warn("schema refresh failed, using stale snapshot", zap.Error(err))
			return e.tables, nil
		}
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables := make(map[string]struct{}, len(names))
	for _, name := range names {
		if !security.IsSystemTable(name) {
			tables[name] = struct{}{}
		}
	}
	e.tables = tables
	e.tablesAt = e.now()
	return tables, nil
}

// InvalidateSchema drops the cached table snapshot so the next validation
// re-reads the live schema.
func (e *Engine) InvalidateSchema() {
	e.schemaMu.Lock()
	e.tables = nil
	e.schemaMu.Unlock()
}

func (e *Engine) recordQuery(durationMs int64, cacheHit, failed bool) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats.TotalQueries++
	if cacheHit {
		e.stats.CacheHits++
	} else {
		e.stats.CacheMisses++
	}
	if failed {
		e.stats.ErrorCount++
	} else {
		e.totalMs += durationMs
		executed := e.stats.TotalQueries - e.stats.ErrorCount
		if executed > 0 {
			e.stats.AvgQueryMs = float64(e.totalMs) / float64(executed)
		}
	}
	e.stats.LastQueryAt = e.now()
}

func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// cacheKey is a content hash over the canonical JSON serialization of the
// query description.
func cacheKey(q ReportQuery) (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("query_%x", sum), nil
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
