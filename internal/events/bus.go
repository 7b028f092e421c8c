package events

import (
	"log/slog"
	"sync"
)

// Sink receives a copy of every published event before it reaches the
// outbound channel. Used for the persistent event log.
type Sink interface {
	WriteEvent(*Event) error
}

// Bus is the engine's single outbound event channel. Publishers block
// when the buffer is full, so a collaborator must keep draining
// Events() for the lifetime of the session.
type Bus struct {
	logger *slog.Logger
	ch     chan Event

	mu     sync.RWMutex
	sinks  []Sink
	closed bool
}

// NewBus creates a bus with the given channel buffer.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		logger: logger,
		ch:     make(chan Event, buffer),
	}
}

// AddSink registers a sink, called synchronously on every publish.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish delivers evt to all sinks and the outbound channel. Events
// published after Close are dropped with a warning rather than panicking,
// since executors may still be winding down during an abort.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("event published after bus closed", "type", evt.Type, "message_id", evt.MessageID)
		return
	}

	for _, s := range b.sinks {
		if err := s.WriteEvent(&evt); err != nil {
			b.logger.Warn("event sink write failed", "type", evt.Type, "error", err)
		}
	}

	b.ch <- evt
}

// Events returns the outbound channel. It is closed after the terminal
// session event has been delivered.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close closes the outbound channel. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
