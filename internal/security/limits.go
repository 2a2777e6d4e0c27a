package security

import "time"

type Limits struct {
	MaxQueryDuration     time.Duration
	MaxConcurrentQueries int
	MaxResultRows        int
	QueriesPerSecond     int
}

func DefaultLimits() Limits {
	return Limits{
		MaxQueryDuration:     30 * time.Second,
		MaxConcurrentQueries: 8,
		MaxResultRows:        10000,
		QueriesPerSecond:     25,
	}
}
