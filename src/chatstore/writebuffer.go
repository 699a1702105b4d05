package chatstore

import (
	"sync"
)

// WriteBuffer holds at most one staged snapshot waiting to be written.
// Writes happen in the order snapshots were staged; a newer snapshot always
// replaces an older pending one. Scheduling of Flush is left to the caller.
type WriteBuffer struct {
	mu      sync.Mutex
	pending []byte
	staged  bool
	write   func(data []byte) error
}

// NewWriteBuffer creates a buffer that persists snapshots with write.
func NewWriteBuffer(write func(data []byte) error) *WriteBuffer {
	return &WriteBuffer{write: write}
}

// Stage replaces the pending snapshot.
func (b *WriteBuffer) Stage(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = data
	b.staged = true
}

// Pending reports whether a staged snapshot has not been written yet.
func (b *WriteBuffer) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.staged
}

// Flush writes the pending snapshot, if any.
func (b *WriteBuffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// WriteNow discards any pending snapshot and writes data immediately.
func (b *WriteBuffer) WriteNow(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.staged = false
	return b.write(data)
}

// FlushBeforeDestroy writes whatever is pending before the owner discards
// the data the snapshot was taken from.
func (b *WriteBuffer) FlushBeforeDestroy() error {
	return b.Flush()
}

func (b *WriteBuffer) flushLocked() error {
	if !b.staged {
		return nil
	}
	data := b.pending
	b.pending = nil
	b.staged = false
	return b.write(data)
}
