package queue

import (
	"context"
	"io"
	"testing"
	"time"
)

type job struct {
	path string
}

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue[job](2)
	t.Cleanup(func() { _ = q.Close() })

	if got := q.Enqueue(job{path: "a.py"}); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if got := q.Enqueue(job{path: "b.py"}); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}

	batch, err := q.DequeueBatch(context.Background(), 2, time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 items, got %d", len(batch))
	}
	if batch[0].path != "a.py" || batch[1].path != "b.py" {
		t.Fatalf("unexpected order: %#v", batch)
	}
}

func TestMemoryQueue_FullQueueDrops(t *testing.T) {
	q := NewMemoryQueue[job](1)
	t.Cleanup(func() { _ = q.Close() })

	if got := q.Enqueue(job{path: "a.py"}); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if got := q.Enqueue(job{path: "b.py"}); got != EnqueueDropped {
		t.Fatalf("expected enqueue dropped, got %s", got)
	}
}

func TestMemoryQueue_WaitTimesOut(t *testing.T) {
	q := NewMemoryQueue[job](1)
	t.Cleanup(func() { _ = q.Close() })

	batch, err := q.DequeueBatch(context.Background(), 1, 5*time.Millisecond)
	if err != nil || len(batch) != 0 {
		t.Fatalf("expected empty batch without error, got %v, %v", batch, err)
	}
}

func TestMemoryQueue_ContextCancel(t *testing.T) {
	q := NewMemoryQueue[job](1)
	t.Cleanup(func() { _ = q.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.DequeueBatch(ctx, 1, time.Second); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryQueue_CloseReturnsEOFWhenDrained(t *testing.T) {
	q := NewMemoryQueue[job](1)
	if got := q.Enqueue(job{path: "a.py"}); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := q.Enqueue(job{path: "b.py"}); got != EnqueueDropped {
		t.Fatalf("expected enqueue on closed queue to drop, got %s", got)
	}

	batch, err := q.DequeueBatch(context.Background(), 2, 0)
	if len(batch) != 1 {
		t.Fatalf("expected 1 item after close, got %d", len(batch))
	}
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	batch, err = q.DequeueBatch(context.Background(), 1, 0)
	if err != io.EOF {
		t.Fatalf("expected io.EOF on empty closed queue, got %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected 0 items, got %d", len(batch))
	}
}
