// Package streambuf accumulates raw model-output chunks into a single
// growing buffer that the parser can scan with a resumable cursor.
package streambuf

// Buffer is an append-only byte sequence. Chunk boundaries disappear on
// append: callers index the buffer with absolute offsets, so a marker
// split across two chunks is seen whole once both chunks have arrived.
type Buffer struct {
	data []byte
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append adds a chunk to the end of the buffer.
func (b *Buffer) Append(chunk []byte) {
	b.data = append(b.data, chunk...)
}

// AppendString adds a text chunk to the end of the buffer.
func (b *Buffer) AppendString(chunk string) {
	b.data = append(b.data, chunk...)
}

// Len returns the total number of bytes received so far.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes exposes the underlying buffer without copying. Callers must not
// mutate the returned slice.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Tail returns the unconsumed portion starting at cursor, without
// copying already-scanned data. A cursor at or past the end yields an
// empty slice.
func (b *Buffer) Tail(cursor int) []byte {
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(b.data) {
		return nil
	}
	return b.data[cursor:]
}

// Slice returns the text between two absolute offsets, clamped to the
// buffer bounds.
func (b *Buffer) Slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(b.data) {
		end = len(b.data)
	}
	if start >= end {
		return ""
	}
	return string(b.data[start:end])
}
