package generator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"reportengine-backend/internal/reportcfg"
)

const (
	defaultAlertCheckInterval = 5 * time.Minute
	defaultCleanupInterval    = time.Hour
)

// Scheduler owns the two background tasks: the periodic alert check and the
// hourly expired-instance cleanup. The task bodies live on AlertChecker and
// Manager so tests run them synchronously.
type Scheduler struct {
	checker         *AlertChecker
	manager         *reportcfg.Manager
	logger          *zap.Logger
	AlertInterval   time.Duration
	CleanupInterval time.Duration
}

func NewScheduler(checker *AlertChecker, manager *reportcfg.Manager, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		checker:         checker,
		manager:         manager,
		logger:          logger.With(zap.String("component", "scheduler")),
		AlertInterval:   defaultAlertCheckInterval,
		CleanupInterval: defaultCleanupInterval,
	}
}

// Run blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	alertTicker := time.NewTicker(s.AlertInterval)
	defer alertTicker.Stop()
	cleanupTicker := time.NewTicker(s.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-alertTicker.C:
			if err := s.checker.CheckAlerts(ctx); err != nil {
				s.logger.Warn("alert check failed", zap.Error(err))
			}
		case <-cleanupTicker.C:
			n, err := s.manager.CleanupExpiredInstances(ctx)
			if err != nil {
				s.logger.Warn("instance cleanup failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("expired instances cleaned up", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
