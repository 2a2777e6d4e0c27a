package monitor

import "time"

type MetricKind string

const (
	MetricQuery        MetricKind = "query"
	MetricReport       MetricKind = "report"
	MetricSystem       MetricKind = "system"
	MetricUserBehavior MetricKind = "user_behavior"
)

// Metric is one execution sample. Append-only: buffered in memory, flushed
// to durable storage in batches.
type Metric struct {
	ID         string         `json:"id"`
	Kind       MetricKind     `json:"kind"`
	Name       string         `json:"name"`
	DurationMs int64          `json:"duration_ms"`
	Value      float64        `json:"value,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

type AlertKind string

const (
	AlertSlowQuery   AlertKind = "slow_query"
	AlertHighMemory  AlertKind = "high_memory"
	AlertCacheMiss   AlertKind = "cache_miss"
	AlertUserError   AlertKind = "user_error"
	AlertSystemError AlertKind = "system_error"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type Alert struct {
	ID         string        `json:"id"`
	Kind       AlertKind     `json:"kind"`
	Severity   AlertSeverity `json:"severity"`
	Message    string        `json:"message"`
	Threshold  float64       `json:"threshold"`
	Observed   float64       `json:"observed"`
	CreatedAt  time.Time     `json:"created_at"`
	Resolved   bool          `json:"resolved"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

type Thresholds struct {
	SlowQueryMs   int64
	HighMemoryMB  float64
	Cooldown      time.Duration
	BufferSize    int
	FlushInterval time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		SlowQueryMs:   3000,
		HighMemoryMB:  512,
		Cooldown:      15 * time.Minute,
		BufferSize:    1000,
		FlushInterval: 60 * time.Second,
	}
}

type TrendBucket struct {
	Date    string  `json:"date"`
	Queries int     `json:"queries"`
	AvgMs   float64 `json:"avg_ms"`
}

type PerformanceReport struct {
	PeriodStart     time.Time     `json:"period_start"`
	PeriodEnd       time.Time     `json:"period_end"`
	TotalQueries    int           `json:"total_queries"`
	AvgQueryMs      float64       `json:"avg_query_ms"`
	SlowQueries     int           `json:"slow_queries"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	TotalReports    int           `json:"total_reports"`
	AvgReportMs     float64       `json:"avg_report_ms"`
	ActiveUsers     int           `json:"active_users"`
	DailyTrend      []TrendBucket `json:"daily_trend"`
	Recommendations []string      `json:"recommendations"`
}
