package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SweepBatchSize caps how many sessions one sweep finalizes per kind.
const SweepBatchSize = 100

// Sweeper finalizes abandoned sessions and reports how many it closed.
type Sweeper func(ctx context.Context, limit int) (int, error)

// ExpiryWorker periodically finalizes overdue exams and stale simulations so
// abandoned sessions end even when the user never comes back.
type ExpiryWorker struct {
	interval time.Duration
	sweepers map[string]Sweeper
	log      zerolog.Logger
}

// NewExpiryWorker creates an ExpiryWorker. sweepers are keyed by a name used
// in logs, e.g. "exams" -> ExamService.SweepOverdue.
func NewExpiryWorker(interval time.Duration, sweepers map[string]Sweeper, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		interval: interval,
		sweepers: sweepers,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start sweeps every interval until ctx is cancelled. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs every sweeper until a batch comes back short.
func (w *ExpiryWorker) sweep(ctx context.Context) {
	for name, sweep := range w.sweepers {
		total := 0
		for ctx.Err() == nil {
			n, err := sweep(ctx, SweepBatchSize)
			if err != nil {
				w.log.Error().Err(err).Str("kind", name).Msg("Sweep failed")
				break
			}
			total += n
			if n < SweepBatchSize {
				break
			}
		}
		if total > 0 {
			w.log.Info().Str("kind", name).Int("count", total).Msg("Finalized abandoned sessions")
		}
	}
}
