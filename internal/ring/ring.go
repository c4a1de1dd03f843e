// Package ring implements the bounded stdout/stderr capture used by the
// Runner (spec.md §4.3): a fixed-capacity circular byte buffer that drops
// the oldest bytes on overflow, keeping the most recent capacity bytes
// available via Tail. This differs from a simple truncating writer (which
// keeps the oldest bytes and stops accepting more) — xchecker needs the
// newest bytes for stderr_tail.
package ring

import "sync"

// Buffer is a fixed-capacity, goroutine-safe circular byte buffer.
type Buffer struct {
	mu        sync.Mutex
	data      []byte
	cap       int
	start     int // index of the oldest byte in data
	size      int // number of valid bytes currently stored
	total     int64
	truncated bool
}

// New creates a Buffer that retains at most capacity bytes.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{data: make([]byte, capacity), cap: capacity}
}

// Write appends p, dropping the oldest bytes first if p would overflow
// capacity. Always returns (len(p), nil) — a ring buffer never rejects a
// write, only evicts.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))

	if len(p) >= b.cap {
		// p alone fills or overflows capacity: keep only its tail.
		copy(b.data, p[len(p)-b.cap:])
		b.start = 0
		b.size = b.cap
		b.truncated = b.truncated || len(p) > b.cap || b.total > int64(b.cap)
		return len(p), nil
	}

	// Evict oldest bytes if needed to make room.
	freeSpace := b.cap - b.size
	if len(p) > freeSpace {
		evict := len(p) - freeSpace
		b.start = (b.start + evict) % b.cap
		b.size -= evict
		b.truncated = true
	}

	writePos := (b.start + b.size) % b.cap
	n := copy(b.data[writePos:], p)
	if n < len(p) {
		copy(b.data[0:], p[n:])
	}
	b.size += len(p)
	return len(p), nil
}

// Tail returns the most recent min(n, stored) bytes.
func (b *Buffer) Tail(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	startIdx := (b.start + b.size - n) % b.cap
	for i := 0; i < n; i++ {
		out[i] = b.data[(startIdx+i)%b.cap]
	}
	return out
}

// Bytes returns a copy of all currently retained bytes, oldest first.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tailLocked(b.size)
}

func (b *Buffer) tailLocked(n int) []byte {
	if n > b.size {
		n = b.size
	}
	out := make([]byte, n)
	startIdx := (b.start + b.size - n) % b.cap
	for i := 0; i < n; i++ {
		out[i] = b.data[(startIdx+i)%b.cap]
	}
	return out
}

// TotalWritten returns the cumulative number of bytes ever written,
// including evicted ones.
func (b *Buffer) TotalWritten() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Truncated reports whether any bytes have been evicted.
func (b *Buffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
