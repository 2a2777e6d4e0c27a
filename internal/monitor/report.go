package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// GenerateReport aggregates stored metrics over the window into the shape
// consumed by the performance dashboard.
func (m *Monitor) GenerateReport(ctx context.Context, start, end time.Time) (*PerformanceReport, error) {
	metrics, err := m.metrics.ListMetrics(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}

	report := &PerformanceReport{PeriodStart: start, PeriodEnd: end}
	var queryMs, reportMs int64
	var cacheHits, cacheLookups int
	users := map[string]struct{}{}
	type bucket struct {
		queries int
		totalMs int64
	}
	days := map[string]*bucket{}

	for _, metric := range metrics {
		if metric.UserID != "" {
			users[metric.UserID] = struct{}{}
		}
		switch metric.Kind {
		case MetricQuery:
			report.TotalQueries++
			queryMs += metric.DurationMs
			if metric.DurationMs > m.thresholds.SlowQueryMs {
				report.SlowQueries++
			}
			if hit, ok := metric.Metadata["cache_hit"].(bool); ok {
				cacheLookups++
				if hit {
					cacheHits++
				}
			}
			day := metric.RecordedAt.Format("2006-01-02")
			b, ok := days[day]
			if !ok {
				b = &bucket{}
				days[day] = b
			}
			b.queries++
			b.totalMs += metric.DurationMs
		case MetricReport:
			report.TotalReports++
			reportMs += metric.DurationMs
		}
	}

	if report.TotalQueries > 0 {
		report.AvgQueryMs = float64(queryMs) / float64(report.TotalQueries)
	}
	if report.TotalReports > 0 {
		report.AvgReportMs = float64(reportMs) / float64(report.TotalReports)
	}
	if cacheLookups > 0 {
		report.CacheHitRate = float64(cacheHits) / float64(cacheLookups)
	}
	report.ActiveUsers = len(users)

	dates := make([]string, 0, len(days))
	for day := range days {
		dates = append(dates, day)
	}
	sort.Strings(dates)
	for _, day := range dates {
		b := days[day]
		report.DailyTrend = append(report.DailyTrend, TrendBucket{
			Date:    day,
			Queries: b.queries,
			AvgMs:   float64(b.totalMs) / float64(b.queries),
		})
	}

	report.Recommendations = recommendationsFor(report, cacheLookups)
	return report, nil
}

func recommendationsFor(report *PerformanceReport, cacheLookups int) []string {
	if report.TotalQueries == 0 && report.TotalReports == 0 {
		return nil
	}
	var recs []string
	if cacheLookups > 0 && report.CacheHitRate < 0.5 {
		recs = append(recs, "Cache hit rate is below 50%; consider a larger cache or more stable query definitions.")
	}
	if report.AvgQueryMs > 1000 {
		recs = append(recs, "Average query time exceeds 1s; review indexes on reported tables and add limits to wide reports.")
	}
	if report.SlowQueries > 10 {
		recs = append(recs, "More than 10 slow queries in the period; review the heaviest report definitions.")
	}
	return recs
}
