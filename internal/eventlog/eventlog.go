// Package eventlog persists every engine event to an append-only NDJSON
// file, one file per run. The log is the audit trail for partial
// completion: it records exactly what was attempted and how it ended.
package eventlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/weftworks/weft/internal/events"
	"github.com/weftworks/weft/internal/ndjson"
)

// EventLog appends events to an NDJSON file. Safe for concurrent use.
type EventLog struct {
	mu      sync.Mutex
	file    *os.File
	encoder *ndjson.Encoder
}

// Open creates or appends to the log at path.
func Open(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &EventLog{file: file, encoder: ndjson.NewEncoder(file)}, nil
}

// WriteEvent appends one event. Implements events.Sink.
func (l *EventLog) WriteEvent(evt *events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encoder.Encode(evt)
}

// Close flushes and closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Read decodes all events from an existing log.
func Read(path string) ([]events.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer file.Close()

	var out []events.Event
	dec := ndjson.NewDecoder(file)
	for {
		var evt events.Event
		if err := dec.Decode(&evt); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
}
