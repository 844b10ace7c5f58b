package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/bastionlabs/bastion/internal/ratelimit"
)

const (
	sweepInterval = 5 * time.Minute
	idleCutoff    = 10 * time.Minute
)

// WindowSweeper periodically evicts rate-limit windows that have gone idle,
// bounding limiter memory when clients come and go.
type WindowSweeper struct {
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	interval time.Duration
	cutoff   time.Duration
}

// NewWindowSweeper creates a sweeper over limiter with default cadence.
func NewWindowSweeper(limiter *ratelimit.Limiter, logger *slog.Logger) *WindowSweeper {
	return &WindowSweeper{
		limiter:  limiter,
		logger:   logger,
		interval: sweepInterval,
		cutoff:   idleCutoff,
	}
}

// Run sweeps until ctx is cancelled.
func (s *WindowSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.limiter.EvictIdle(time.Now().Add(-s.cutoff)); n > 0 {
				s.logger.Debug("evicted idle rate-limit windows", slog.Int("count", n))
			}
		}
	}
}
