package core

import (
	"context"
	"fmt"
	"time"
)

// RetryScheduler drains the retry queue: it claims due retrying rows
// and hands each one to the delivery worker. Claiming is conditional at
// the store, so overlapping scheduler instances never double-send.
type RetryScheduler struct {
	logs    DeliveryLogStore
	worker  *DeliveryWorker
	config  Config
	logger  Logger
	metrics MetricsRecorder
	now     NowFunc
}

func NewRetryScheduler(logs DeliveryLogStore, worker *DeliveryWorker, cfg Config, logger Logger) *RetryScheduler {
	return &RetryScheduler{
		logs:    logs,
		worker:  worker,
		config:  cfg,
		logger:  logger,
		metrics: NopMetricsRecorder{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *RetryScheduler) WithMetricsRecorder(recorder MetricsRecorder) *RetryScheduler {
	if s != nil && recorder != nil {
		s.metrics = recorder
	}
	return s
}

func (s *RetryScheduler) WithNow(now NowFunc) *RetryScheduler {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

// ProcessDue claims up to limit due rows and attempts each one
// sequentially. It returns per-pass statistics; attempt errors are
// logged and counted, not propagated, so one bad row never stalls the
// queue.
func (s *RetryScheduler) ProcessDue(ctx context.Context, limit int) (DispatchStats, error) {
	if s == nil {
		return DispatchStats{}, fmt.Errorf("core: retry scheduler is nil")
	}
	if limit < 1 {
		limit = s.config.Scheduler.BatchSize
	}
	if limit < 1 {
		limit = 50
	}

	stats := DispatchStats{}
	records, err := s.logs.ClaimDue(ctx, s.now(), limit)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(records)

	for _, record := range records {
		report, err := s.worker.AttemptClaimed(ctx, record)
		if err != nil {
			stats.Skipped++
			s.logSchedulerError(ctx, record.ID, err)
			continue
		}
		switch {
		case report.Rescheduled:
			stats.Skipped++
		case report.Status == DeliveryStatusDelivered:
			stats.Delivered++
		case report.Status == DeliveryStatusRetrying:
			stats.Retried++
		case report.Status == DeliveryStatusFailed:
			stats.Failed++
		default:
			stats.Skipped++
		}
	}

	s.recordStats(ctx, stats)
	return stats, nil
}

// Run executes ProcessDue on the configured interval until ctx is
// canceled. An immediate first pass runs before the ticker starts.
func (s *RetryScheduler) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: retry scheduler is nil")
	}
	interval := time.Duration(s.config.Scheduler.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	if _, err := s.ProcessDue(ctx, s.config.Scheduler.BatchSize); err != nil {
		s.logSchedulerError(ctx, "", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ProcessDue(ctx, s.config.Scheduler.BatchSize); err != nil {
				s.logSchedulerError(ctx, "", err)
			}
		}
	}
}

func (s *RetryScheduler) recordStats(ctx context.Context, stats DispatchStats) {
	if s.metrics == nil || stats.Claimed == 0 {
		return
	}
	tags := map[string]string{"component": "retry_scheduler"}
	s.metrics.IncCounter(ctx, "integrations.scheduler.claimed", int64(stats.Claimed), tags)
	s.metrics.IncCounter(ctx, "integrations.scheduler.delivered", int64(stats.Delivered), tags)
	s.metrics.IncCounter(ctx, "integrations.scheduler.retried", int64(stats.Retried), tags)
	s.metrics.IncCounter(ctx, "integrations.scheduler.failed", int64(stats.Failed), tags)
}

func (s *RetryScheduler) logSchedulerError(ctx context.Context, logID string, err error) {
	if s.logger == nil || err == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("retry queue pass failed",
		"delivery_log_id", logID,
		"error", err.Error(),
	)
}

var _ RetryDispatcher = (*RetryScheduler)(nil)
