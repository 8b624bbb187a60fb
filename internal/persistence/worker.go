package persistence

import (
	"context"
	"database/sql"
	"time"

	"PerpTrade/internal/event"
	"PerpTrade/internal/observability"

	"github.com/rs/zerolog"
)

// Worker drains the event channel and batch-writes to Postgres. It runs
// independently from the engines; the channel uses BLOCKING sends, so if
// the worker falls behind, engines stall instead of losing events.
type Worker struct {
	db           *sql.DB
	writer       *EventLogWriter
	input        chan EventRow
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Worker {
	return &Worker{
		db:           db,
		writer:       NewEventLogWriter(),
		input:        make(chan EventRow, batchSize*4),
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          logger,
	}
}

// Sink returns an engine sink that enqueues envelopes for persistence.
func (w *Worker) Sink() *WorkerSink {
	return &WorkerSink{worker: w, log: w.log}
}

// WorkerSink adapts the worker's input channel to the engine sink interface.
type WorkerSink struct {
	worker *Worker
	log    zerolog.Logger
}

// Emit enqueues the envelope. The send blocks when the worker is saturated:
// backpressure propagates to the calling engine.
func (s *WorkerSink) Emit(env *event.Envelope) {
	row, err := RowFromEnvelope(env)
	if err != nil {
		s.log.Error().Err(err).Int64("sequence", env.Sequence).Msg("drop unmarshalable envelope")
		return
	}
	s.worker.input <- row
}

// Run starts the batching loop. It flushes either when the batch is full or
// the flush timeout expires. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]EventRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				// Final flush with a background context so the batch survives
				// shutdown.
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case row := <-w.input:
			batch = append(batch, row)
			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// batch: it retries until the write succeeds or shutdown forces a final
// attempt.
func (w *Worker) flushWithRetry(ctx context.Context, batch []EventRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(batch)).
				Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}

			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, batch); err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []EventRow) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.persistError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, batch); err != nil {
		w.persistError("write_events")
		return err
	}

	if err := tx.Commit(); err != nil {
		w.persistError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(batch)))
		w.metrics.PersistEventsWritten.Add(float64(len(batch)))
		w.metrics.PersistLastSequence.Set(float64(batch[len(batch)-1].Sequence))
	}
	return nil
}

func (w *Worker) persistError(kind string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
