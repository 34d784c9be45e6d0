package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/rs/zerolog"
)

const (
	JourneyPollTimeout = time.Second
	JourneyRetryDelay  = 5 * time.Second
)

// Queue is the subset of the Redis client the worker uses.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LPop(ctx context.Context, key string) *redis.StringCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// JourneyApplier records an event on the user's active payment.
type JourneyApplier interface {
	ApplyJourneyEvent(ctx context.Context, ev model.JourneyEvent) error
}

// JourneyWorker consumes journey_events_queue and folds each event into the
// journey metadata of the user's active payment.
type JourneyWorker struct {
	queue      Queue
	applier    JourneyApplier
	key        string
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewJourneyWorker creates a new JourneyWorker.
func NewJourneyWorker(queue Queue, applier JourneyApplier, log zerolog.Logger) *JourneyWorker {
	return &JourneyWorker{
		queue:      queue,
		applier:    applier,
		key:        config.WorkerKey.JourneyEventsQueue,
		retryDelay: JourneyRetryDelay,
		log:        log.With().Str("component", "journey_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled, then drains the queue.
// Call in a goroutine.
func (w *JourneyWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.WithoutCancel(ctx))
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *JourneyWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or the poll timeout passes.
	result, err := w.queue.BLPop(ctx, JourneyPollTimeout, w.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.apply(ctx, result[1]); err != nil {
		w.log.Error().Err(err).Msg("Apply error, retrying later")
		// Push back to queue for retry.
		if err := w.queue.RPush(ctx, w.key, result[1]).Err(); err != nil {
			w.log.Error().Err(err).Str("payload", result[1]).Msg("Requeue failed, event lost")
		}
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
}

// apply decodes and applies one payload. Malformed payloads are dropped.
func (w *JourneyWorker) apply(ctx context.Context, raw string) error {
	var ev model.JourneyEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		w.log.Error().Err(err).Str("payload", raw).Msg("Dropping malformed journey event")
		return nil
	}

	if err := w.applier.ApplyJourneyEvent(ctx, ev); err != nil {
		return err
	}
	w.log.Debug().Int("user_id", ev.UserID).Str("stage", string(ev.Stage)).Msg("Journey event applied")
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *JourneyWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.queue.LPop(ctx, w.key).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				w.log.Error().Err(err).Msg("Drain pop error")
			}
			break
		}

		if err := w.apply(ctx, raw); err != nil {
			w.log.Error().Err(err).Msg("Drain apply error")
			_ = w.queue.RPush(ctx, w.key, raw).Err()
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
