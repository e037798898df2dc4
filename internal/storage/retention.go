package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// RetentionJob periodically deletes layout history older than a retention window
type RetentionJob struct {
	logger    *zap.Logger
	history   LayoutHistoryStorage
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// NewRetentionJob schedules cleanup of history with the given cron expression
// (six fields, seconds first)
func NewRetentionJob(history LayoutHistoryStorage, schedule string, retention time.Duration, logger *zap.Logger) (*RetentionJob, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}

	named := logger.Named("retention")
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(&cronLogger{logger: named})),
	)

	job := &RetentionJob{
		logger:    named,
		history:   history,
		retention: retention,
		cron:      c,
		now:       time.Now,
	}

	if _, err := c.AddFunc(schedule, func() {
		if _, err := job.RunOnce(context.Background()); err != nil {
			job.logger.Error("Failed to clean up layout history", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule: %w", err)
	}

	return job, nil
}

// Start starts the cron scheduler
func (j *RetentionJob) Start() {
	j.cron.Start()
	j.logger.Info("Retention job started", zap.Duration("retention", j.retention))
}

// Stop stops the scheduler and waits for a running cleanup to finish
func (j *RetentionJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// RunOnce deletes every record older than the retention window
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	return j.history.DeleteBefore(ctx, cutoff)
}
