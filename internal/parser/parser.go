// Package parser recognizes action envelopes embedded in a model output
// stream. It scans incrementally: each call resumes from the cursor and
// phase saved by the previous call, so marker text split across chunk
// boundaries is handled by waiting for more input rather than failing.
package parser

import (
	"bytes"
	"fmt"

	"github.com/weftworks/weft/internal/action"
	"github.com/weftworks/weft/internal/streambuf"
)

const (
	openToken  = "<action"
	closeToken = "</action>"
)

// maxRawSpan caps the amount of offending text attached to a ParseError.
const maxRawSpan = 200

type phase int

const (
	phaseProse phase = iota
	phaseOpenMarker
	phasePayload
)

// ParseError describes a single malformed or unterminated envelope.
// It is scoped to the offending span; the session keeps going.
type ParseError struct {
	Span   action.Span
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at [%d,%d): %s", e.Span.Start, e.Span.End, e.Reason)
}

// Result is one parser emission: exactly one of Action or Err is set.
type Result struct {
	Action *action.Action
	Err    *ParseError
}

// Parser is the incremental envelope scanner. It never re-emits or
// mutates an action once announced, and it never consumes bytes it
// might need to re-interpret when more input arrives.
type Parser struct {
	buf    *streambuf.Buffer
	cursor int
	phase  phase
	seq    int
	done   bool

	// state carried across chunks while an envelope is open
	markerStart  int
	payloadStart int
	pendingKind  action.Kind
	pendingPath  string
}

// New creates a parser reading from buf.
func New(buf *streambuf.Buffer) *Parser {
	return &Parser{buf: buf}
}

// Cursor returns the current parse position.
func (p *Parser) Cursor() int {
	return p.cursor
}

// Scan consumes as much of the buffer as can be interpreted
// unambiguously and returns completed actions and parse errors in
// stream order. Call it after every append.
func (p *Parser) Scan() []Result {
	return p.scan(false)
}

// Finish flushes the parser at end-of-stream. An envelope still open at
// this point is a parse error for that span only. The parser accepts no
// further input afterwards.
func (p *Parser) Finish() []Result {
	out := p.scan(true)
	p.done = true
	return out
}

func (p *Parser) scan(atEOF bool) []Result {
	if p.done {
		return nil
	}

	var out []Result
	data := p.buf.Bytes()

	for {
		switch p.phase {
		case phaseProse:
			idx, hold := findOpenMarker(data, p.cursor, atEOF)
			if idx < 0 {
				// consume confirmed prose; hold marks where a marker may
				// still begin once more input arrives
				if hold > p.cursor {
					p.cursor = hold
				}
				return out
			}
			p.markerStart = idx
			p.cursor = idx + len(openToken)
			p.phase = phaseOpenMarker

		case phaseOpenMarker:
			gt := indexByteFrom(data, p.cursor, '>')
			if gt < 0 {
				if !atEOF {
					return out
				}
				out = append(out, p.errorResult(p.markerStart, len(data), "unterminated opening marker"))
				p.cursor = len(data)
				p.phase = phaseProse
				return out
			}

			kind, path, err := parseAttributes(string(data[p.markerStart+len(openToken) : gt]))
			if err != nil {
				// resynchronize: everything after the malformed marker is
				// prose again
				out = append(out, p.errorResult(p.markerStart, gt+1, err.Error()))
				p.cursor = gt + 1
				p.phase = phaseProse
				continue
			}

			p.pendingKind = kind
			p.pendingPath = path
			p.payloadStart = gt + 1
			p.cursor = gt + 1
			p.phase = phasePayload

		case phasePayload:
			closeIdx := indexFrom(data, p.cursor, closeToken)
			nestedIdx, nestedHold := findOpenMarker(data, p.cursor, atEOF)

			if closeIdx >= 0 && (nestedIdx < 0 || closeIdx < nestedIdx) {
				payload := bytes.TrimSpace(data[p.payloadStart:closeIdx])
				end := closeIdx + len(closeToken)
				p.seq++
				out = append(out, Result{Action: action.New(
					p.seq, p.markerStart, end, p.pendingKind, p.pendingPath, string(payload),
				)})
				p.cursor = end
				p.phase = phaseProse
				continue
			}

			if nestedIdx >= 0 && (closeIdx < 0 || nestedIdx < closeIdx) {
				// overlapping envelope: abort the outer action and rescan
				// the inner marker as a fresh envelope
				out = append(out, p.errorResult(p.markerStart, nestedIdx, "nested action marker inside payload"))
				p.cursor = nestedIdx
				p.phase = phaseProse
				continue
			}

			if !atEOF {
				// neither marker complete yet: consume payload bytes that
				// cannot be part of either token and wait for more input
				hold := nestedHold
				if h := partialSuffixStart(data, closeToken); h >= 0 && h < hold {
					hold = h
				}
				if hold > p.cursor {
					p.cursor = hold
				}
				return out
			}

			out = append(out, p.errorResult(p.markerStart, len(data), "action not closed before end of stream"))
			p.cursor = len(data)
			p.phase = phaseProse
			return out
		}
	}
}

func (p *Parser) errorResult(start, end int, reason string) Result {
	raw := p.buf.Slice(start, end)
	if len(raw) > maxRawSpan {
		raw = raw[:maxRawSpan] + "..."
	}
	return Result{Err: &ParseError{
		Span:   action.Span{Start: start, End: end},
		Raw:    raw,
		Reason: reason,
	}}
}

// findOpenMarker locates the next confirmed opening marker at or after
// from. A marker is "<action" followed by whitespace or '>'; something
// like "<actionable" is prose. When no confirmed marker exists, hold is
// the lowest offset that might still become one as input arrives (the
// end of the buffer when nothing can).
func findOpenMarker(data []byte, from int, atEOF bool) (idx int, hold int) {
	i := from
	for {
		cand := indexFrom(data, i, openToken)
		if cand < 0 {
			if !atEOF {
				if h := partialSuffixStart(data, openToken); h >= from {
					return -1, h
				}
			}
			return -1, len(data)
		}

		after := cand + len(openToken)
		if after >= len(data) {
			if atEOF {
				return -1, len(data)
			}
			return -1, cand
		}

		switch data[after] {
		case ' ', '\t', '\n', '\r', '>':
			return cand, cand
		default:
			i = cand + 1
		}
	}
}

// partialSuffixStart returns the start offset of the longest buffer
// suffix that is a proper prefix of token, or -1 when the buffer tail
// cannot begin the token.
func partialSuffixStart(data []byte, token string) int {
	max := len(token) - 1
	if max > len(data) {
		max = len(data)
	}
	for l := max; l > 0; l-- {
		if string(data[len(data)-l:]) == token[:l] {
			return len(data) - l
		}
	}
	return -1
}

func indexFrom(data []byte, from int, token string) int {
	if from >= len(data) {
		return -1
	}
	idx := bytes.Index(data[from:], []byte(token))
	if idx < 0 {
		return -1
	}
	return from + idx
}

func indexByteFrom(data []byte, from int, c byte) int {
	if from >= len(data) {
		return -1
	}
	idx := bytes.IndexByte(data[from:], c)
	if idx < 0 {
		return -1
	}
	return from + idx
}
