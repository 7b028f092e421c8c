// Package ndjson reads and writes newline-delimited JSON records, the
// on-disk format of the engine's event log.
package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// MaxRecordSize bounds a single record (1 MiB). Shell output attached
// to failure events is the largest thing we serialize.
const MaxRecordSize = 1024 * 1024

// Encoder writes one JSON document per line, flushing after each record
// so the log is durable as events happen.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode appends v as a single line.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if len(data) > MaxRecordSize {
		return fmt.Errorf("record size %d exceeds limit %d", len(data), MaxRecordSize)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return e.w.Flush()
}

// Decoder reads records line by line.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxRecordSize)
	return &Decoder{scanner: scanner}
}

// Decode reads the next record into v, skipping blank lines. Returns
// io.EOF at the end of the stream.
func (d *Decoder) Decode(v any) error {
	for d.scanner.Scan() {
		d.line++
		data := d.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshal line %d: %w", d.line, err)
		}
		return nil
	}
	if err := d.scanner.Err(); err != nil {
		return fmt.Errorf("scan line %d: %w", d.line, err)
	}
	return io.EOF
}
