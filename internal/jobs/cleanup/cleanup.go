package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval   = 30 * time.Minute
	defaultLeaseGrace = time.Hour
)

// LeaseCleaner removes candidate leases that expired before the cutoff.
type LeaseCleaner interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	Interval   time.Duration
	LeaseGrace time.Duration
}

// Job prunes expired candidate leases. Lease expiry is always checked on read, so the
// job only keeps the table small.
type Job struct {
	leases   LeaseCleaner
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func New(leases LeaseCleaner, cfg Config, logger *zap.Logger) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.LeaseGrace < 0 {
		cfg.LeaseGrace = defaultLeaseGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		leases:   leases,
		interval: cfg.Interval,
		grace:    cfg.LeaseGrace,
		now:      time.Now,
		logger:   logger,
	}
}

// Run performs one cleanup pass.
func (j *Job) Run(ctx context.Context) error {
	if j.leases == nil {
		return nil
	}

	cutoff := j.now().UTC().Add(-j.grace)
	deleted, err := j.leases.DeleteExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired leases: %w", err)
	}
	if deleted > 0 {
		j.logger.Info("cleanup expired leases completed", zap.Int64("deleted", deleted))
	}
	return nil
}

// Start runs a pass every interval until ctx is done.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("cleanup pass failed", zap.Error(err))
			}
		}
	}
}
