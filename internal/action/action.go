package action

import (
	"fmt"
)

// Kind is the closed set of directives the engine knows how to execute.
type Kind string

const (
	KindFileWrite    Kind = "file-write"
	KindShellCommand Kind = "shell-command"
	KindServerStart  Kind = "server-start"
)

// ParseKind maps an envelope attribute value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindFileWrite, KindShellCommand, KindServerStart:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown action kind %q", s)
	}
}

// Status tracks an action through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Span locates an envelope inside the session buffer, in byte offsets.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Action is one fully parsed directive extracted from the stream.
// Everything except Status is immutable once the closing marker has
// been recognized; only the scheduler and executors move Status.
type Action struct {
	ID      string
	Kind    Kind
	Path    string // workspace-relative target, file-write only
	Payload string // file content or command line
	Status  Status
	Span    Span
}

// New creates a pending action. The ID is stable for a given stream:
// it encodes the emission ordinal and the byte offset of the opening
// marker, so re-parsing the same stream yields the same IDs no matter
// how the stream was chunked.
func New(seq, start, end int, kind Kind, path, payload string) *Action {
	return &Action{
		ID:      fmt.Sprintf("a%03d-o%d", seq, start),
		Kind:    kind,
		Path:    path,
		Payload: payload,
		Status:  StatusPending,
		Span:    Span{Start: start, End: end},
	}
}

// Transition moves the action to a new status, enforcing the
// pending → running → {succeeded, failed} state machine.
func (a *Action) Transition(to Status) error {
	allowed := false
	switch a.Status {
	case StatusPending:
		allowed = to == StatusRunning || to == StatusFailed
	case StatusRunning:
		allowed = to == StatusSucceeded || to == StatusFailed
	}
	if !allowed {
		return fmt.Errorf("action %s: invalid status transition %s -> %s", a.ID, a.Status, to)
	}
	a.Status = to
	return nil
}
