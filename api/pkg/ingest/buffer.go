package ingest

import (
	"context"
	"sync"

	"github.com/fleetlog/telemetryhub/api/pkg/types"
)

// FlushFunc persists a drained batch. It is called outside the
// buffer's lock so a slow store cannot block concurrent Append calls
// from unrelated goroutines, per spec.md §9's "release before the
// batch-commit I/O" design note.
type FlushFunc func(ctx context.Context, frames []types.Frame) error

// FrameBuffer accumulates frames for one session and flushes a batch
// at a time. Append is O(1); Flush is a single batch insert of the
// drained slice. There is no background timer - the flush on
// threshold crossing happens synchronously in the calling goroutine,
// which is what gives ingestion its back-pressure.
type FrameBuffer struct {
	mu        sync.Mutex
	pending   []types.Frame
	batchSize int

	flushCount int
}

// NewFrameBuffer returns an empty buffer flushing every batchSize
// frames (default 60 when batchSize <= 0).
func NewFrameBuffer(batchSize int) *FrameBuffer {
	if batchSize <= 0 {
		batchSize = 60
	}
	return &FrameBuffer{batchSize: batchSize}
}

// Append adds frame to the buffer and, if the threshold is crossed,
// drains and flushes via flush. The returned error is the flush
// error, if any; a nil error with flushed=false means the frame was
// buffered without triggering a flush.
func (b *FrameBuffer) Append(ctx context.Context, frame types.Frame, flush FlushFunc) (flushed bool, err error) {
	b.mu.Lock()
	b.pending = append(b.pending, frame)
	var batch []types.Frame
	if len(b.pending) >= b.batchSize {
		batch = b.pending
		b.pending = nil
	}
	b.mu.Unlock()

	if batch == nil {
		return false, nil
	}

	if err := flush(ctx, batch); err != nil {
		return true, err
	}

	b.mu.Lock()
	b.flushCount++
	b.mu.Unlock()
	return true, nil
}

// Drain removes and returns whatever is currently buffered, without
// calling flush. Used for the graceful-close residual flush.
func (b *FrameBuffer) Drain() []types.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.pending
	b.pending = nil
	return batch
}

// Clear discards whatever is buffered without persisting it, used on
// the commit-error path where the spec calls for dropping the current
// batch and resuming ingestion.
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// Len reports the number of frames currently buffered.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// FlushCount reports how many threshold-triggered flushes have
// succeeded so far (excludes the final residual flush on close).
func (b *FrameBuffer) FlushCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushCount
}
