// Package logring provides a fixed-capacity line buffer for captured
// plugin output. Appends never block and never grow memory past the
// configured bound; once full, the oldest lines are overwritten.
package logring

import "sync"

const defaultCapacity = 1000

// Buffer is a bounded ring of log lines. Safe for concurrent use: the
// supervisor's stream readers write while API readers snapshot.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	head  int
	count int
}

// New creates a Buffer holding at most capacity lines (defaults to 1000).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest once the buffer is full.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[(b.head+b.count)%len(b.lines)] = line
	if b.count == len(b.lines) {
		b.head = (b.head + 1) % len(b.lines)
	} else {
		b.count++
	}
}

// Tail returns up to n of the most recent lines, oldest first, as an
// independent snapshot.
func (b *Buffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	out := make([]string, n)
	start := b.head + b.count - n
	for i := 0; i < n; i++ {
		out[i] = b.lines[(start+i)%len(b.lines)]
	}
	return out
}

// Len reports how many lines are currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Reset discards all lines. Called when a new process epoch begins so the
// buffer only ever holds output from the current run.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}
