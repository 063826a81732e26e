package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/latchkey-auth/latchkey/internal/repositories"
)

// Sweeper periodically clears pending two-factor secrets that were staged
// but never confirmed. A swept enrollment simply starts over; nothing a
// user confirmed is ever touched.
type Sweeper struct {
	records    repositories.TwoFactorRepository
	logger     *slog.Logger
	interval   time.Duration
	pendingTTL time.Duration
	stopCh     chan struct{}
}

// NewSweeper creates a new pending-secret sweeper
func NewSweeper(
	records repositories.TwoFactorRepository,
	logger *slog.Logger,
	interval time.Duration,
	pendingTTL time.Duration,
) *Sweeper {
	return &Sweeper{
		records:    records,
		logger:     logger,
		interval:   interval,
		pendingTTL: pendingTTL,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic sweep task
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopCh:
			s.logger.Info("pending secret sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("pending secret sweeper context cancelled")
			return
		}
	}
}

// runSweep clears stale pending secrets from the database
func (s *Sweeper) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsSwept, err := s.records.DeleteStalePending(sweepCtx, s.pendingTTL)
	if err != nil {
		s.logger.Error("failed to sweep stale pending secrets", slog.Any("error", err))
		return
	}

	if rowsSwept > 0 {
		s.logger.Info("stale pending secrets swept", slog.Int64("rows_swept", rowsSwept))
	}
}

// Stop signals the sweeper to stop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
