package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"pycomplete/internal/data/history"
	"pycomplete/internal/data/queue"
	"pycomplete/internal/shared/observability"
)

const (
	journalCapacity      = 256
	journalBatchSize     = 32
	journalFlushInterval = 200 * time.Millisecond
)

// journal writes parse entries to the history store off the request path.
// Entries that do not fit into the queue are dropped.
type journal struct {
	store     *history.Store
	queue     *queue.MemoryQueue[history.Entry]
	retention int
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func newJournal(store *history.Store, retention int, logger *slog.Logger) *journal {
	ctx, cancel := context.WithCancel(context.Background())
	j := &journal{
		store:     store,
		queue:     queue.NewMemoryQueue[history.Entry](journalCapacity),
		retention: retention,
		logger:    logger,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go j.run(ctx)
	return j
}

func (j *journal) record(entry history.Entry) {
	switch j.queue.Enqueue(entry) {
	case queue.EnqueueAccepted:
		observability.JournalQueueDepth.Set(float64(j.queue.Len()))
	default:
		observability.JournalEntriesTotal.WithLabelValues("dropped").Inc()
		j.logger.Debug("journal queue full, entry dropped", "path", entry.Path)
	}
}

func (j *journal) run(ctx context.Context) {
	defer close(j.done)
	for {
		batch, err := j.queue.DequeueBatch(ctx, journalBatchSize, journalFlushInterval)
		if len(batch) > 0 {
			j.flush(batch)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			j.logger.Warn("journal dequeue failed", "error", err)
		}
	}
}

func (j *journal) flush(batch []history.Entry) {
	observability.JournalQueueDepth.Set(float64(j.queue.Len()))
	if err := j.store.RecordBatch(batch); err != nil {
		observability.JournalEntriesTotal.WithLabelValues("failed").Add(float64(len(batch)))
		j.logger.Warn("journal write failed", "error", err, "batch_size", len(batch))
		return
	}
	observability.JournalEntriesTotal.WithLabelValues("written").Add(float64(len(batch)))
	if j.retention > 0 {
		if n, err := j.store.Prune(j.retention); err != nil {
			j.logger.Warn("journal prune failed", "error", err)
		} else if n > 0 {
			j.logger.Debug("journal pruned", "deleted", n)
		}
	}
}

// close stops accepting entries, writes what is queued and waits for the
// writer, bounded by ctx.
func (j *journal) close(ctx context.Context) error {
	if err := j.queue.Close(); err != nil {
		return err
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		j.cancel()
		return ctx.Err()
	}
	j.cancel()
	return nil
}
