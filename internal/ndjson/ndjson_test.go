package ndjson

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(record{Name: "first", N: 1}))
	require.NoError(t, enc.Encode(record{Name: "second", N: 2}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2, "one record per line")

	dec := NewDecoder(&buf)
	var r record
	require.NoError(t, dec.Decode(&r))
	assert.Equal(t, "first", r.Name)
	require.NoError(t, dec.Decode(&r))
	assert.Equal(t, 2, r.N)
	assert.Equal(t, io.EOF, dec.Decode(&r))
}

func TestDecodeSkipsBlankLines(t *testing.T) {
	input := "{\"name\":\"a\",\"n\":1}\n\n{\"name\":\"b\",\"n\":2}\n"
	dec := NewDecoder(strings.NewReader(input))

	var r record
	require.NoError(t, dec.Decode(&r))
	require.NoError(t, dec.Decode(&r))
	assert.Equal(t, "b", r.Name)
	assert.Equal(t, io.EOF, dec.Decode(&r))
}

func TestDecodeReportsLineNumber(t *testing.T) {
	input := "{\"name\":\"a\"}\nnot json\n"
	dec := NewDecoder(strings.NewReader(input))

	var r record
	require.NoError(t, dec.Decode(&r))
	err := dec.Decode(&r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestEncodeRejectsOversizedRecord(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	huge := record{Name: strings.Repeat("x", MaxRecordSize)}
	err := enc.Encode(huge)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
	assert.Zero(t, buf.Len(), "nothing written for a rejected record")
}
