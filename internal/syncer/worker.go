// Package syncer archives readings that the sensor service has queued while
// the advisor ran without a database connection.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"krishi/internal/sensors"
	"krishi/internal/types"
)

// Queue is the sensor service's pending-reading bookkeeping.
type Queue interface {
	PendingReadings(limit int) []sensors.PendingReading
	DrainPending(throughSeq uint64) int
	MarkSynced(at time.Time)
	RecordSyncError(err error)
}

// Archive persists readings. InsertBatch must be idempotent for readings
// already stored.
type Archive interface {
	InsertBatch(ctx context.Context, readings []types.SensorReading) (int, error)
}

// Observer records batch outcomes.
type Observer interface {
	ObserveSync(archived int, err error)
}

// Config wires a Worker.
type Config struct {
	Interval  time.Duration
	BatchSize int
	Clock     types.Clock
	Observer  Observer
	Logger    *slog.Logger
}

// Worker periodically moves pending readings into the archive.
type Worker struct {
	queue     Queue
	archive   Archive
	interval  time.Duration
	batchSize int
	clock     types.Clock
	observer  Observer
	logger    *slog.Logger
}

// NewWorker builds a Worker.
func NewWorker(queue Queue, archive Archive, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{
		queue:     queue,
		archive:   archive,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		clock:     cfg.Clock,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
	}
}

// Run syncs every interval until ctx is cancelled. A final sync is attempted
// on shutdown with a short grace period.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(ctx)
			return nil
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.logger.Warn("sync failed, readings stay queued", "error", err)
			}
		}
	}
}

// SyncOnce archives queued readings in batches until the queue is empty or a
// batch fails. Readings are drained only after the archive accepted them.
func (w *Worker) SyncOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		batch := w.queue.PendingReadings(w.batchSize)
		if len(batch) == 0 {
			break
		}
		readings := make([]types.SensorReading, len(batch))
		for i, p := range batch {
			readings[i] = p.Reading
		}

		inserted, err := w.archive.InsertBatch(ctx, readings)
		if err != nil {
			w.queue.RecordSyncError(err)
			w.observe(0, err)
			return total, err
		}
		w.queue.DrainPending(batch[len(batch)-1].Seq)
		w.observe(inserted, nil)
		total += len(batch)

		if len(batch) < w.batchSize || ctx.Err() != nil {
			break
		}
	}

	w.queue.MarkSynced(w.clock.Now())
	if total > 0 {
		w.logger.Info("readings archived", "count", total)
	}
	return total, nil
}

func (w *Worker) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := w.SyncOnce(ctx); err != nil {
		w.logger.Warn("final sync failed", "error", err)
	}
}

func (w *Worker) observe(archived int, err error) {
	if w.observer != nil {
		w.observer.ObserveSync(archived, err)
	}
}
