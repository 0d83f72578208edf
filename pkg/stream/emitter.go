// Package stream serializes orchestrator events onto a single outbound SSE
// channel to one client connection, in call order. Each frame is written as
// a "data: {json}" event; the stream ends with exactly one "[DONE]" sentinel.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrClosed is returned by Emit after the stream has been closed.
var ErrClosed = errors.New("stream closed")

// Emitter writes frames to a single outbound writer. All writes are
// serialized through one mutex so event ordering as observed by the client
// matches call order even when the keep-alive ticker is running.
type Emitter struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool

	stopKeepAlive chan struct{}
	keepAliveOnce sync.Once
}

// NewEmitter creates an Emitter writing SSE frames to w. Writers backed by
// an io.Pipe give per-frame backpressure against the client connection.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		w:             w,
		stopKeepAlive: make(chan struct{}),
	}
}

// Emit appends one frame to the outbound channel. Emitting after Close
// returns ErrClosed. A write error (typically a disconnected client) closes
// the emitter so no further writes are attempted.
func (e *Emitter) Emit(f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		e.closed = true
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close writes the terminal sentinel and ends the channel. Only the first
// call writes the sentinel; later calls are no-ops. No frame may be emitted
// after Close.
func (e *Emitter) Close() error {
	e.keepAliveOnce.Do(func() { close(e.stopKeepAlive) })

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", Sentinel); err != nil {
		return fmt.Errorf("writing sentinel: %w", err)
	}
	return nil
}

// Closed reports whether the stream has ended (sentinel written or the
// client connection failed).
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// StartKeepAlive emits a periodic SSE comment line independent of
// orchestrator events, keeping long-idle connections open while a model
// call is pending. The goroutine stops when the emitter closes.
func (e *Emitter) StartKeepAlive(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.stopKeepAlive:
				return
			case <-ticker.C:
				e.mu.Lock()
				if e.closed {
					e.mu.Unlock()
					return
				}
				// Comment lines are invisible to SSE event parsing.
				if _, err := io.WriteString(e.w, ": ping\n\n"); err != nil {
					e.closed = true
					e.mu.Unlock()
					return
				}
				e.mu.Unlock()
			}
		}
	}()
}
