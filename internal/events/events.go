// Package events defines the engine's outbound lifecycle events and the
// bus that relays them to the collaborator (UI, CLI, logs).
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/weftworks/weft/internal/action"
	"github.com/weftworks/weft/internal/fsutil"
)

// Type identifies a lifecycle event.
type Type string

const (
	TypeActionStarted    Type = "action.started"
	TypeActionSucceeded  Type = "action.succeeded"
	TypeActionFailed     Type = "action.failed"
	TypeActionCancelled  Type = "action.cancelled"
	TypeParseError       Type = "parse.error"
	TypeSessionCompleted Type = "session.completed"
	TypeSessionAborted   Type = "session.aborted"
)

// ErrorKind classifies action failures for the collaborator.
type ErrorKind string

const (
	ErrorKindParse       ErrorKind = "parse"
	ErrorKindLockTimeout ErrorKind = "lock_timeout"
	ErrorKindExecution   ErrorKind = "execution"
	ErrorKindEnvironment ErrorKind = "environment"
)

// ActionRef snapshots the identifying fields of an action at event
// time. File content is deliberately absent; the artifact metadata
// stands in for it.
type ActionRef struct {
	ID      string      `json:"id"`
	Kind    action.Kind `json:"kind"`
	Path    string      `json:"path,omitempty"`
	Command string      `json:"command,omitempty"`
}

// Ref builds an ActionRef from an action.
func Ref(a *action.Action) *ActionRef {
	ref := &ActionRef{ID: a.ID, Kind: a.Kind, Path: a.Path}
	if a.Kind == action.KindShellCommand || a.Kind == action.KindServerStart {
		ref.Command = a.Payload
	}
	return ref
}

// Summary itemizes how a session ended: which actions succeeded, which
// failed, and which were never attempted.
type Summary struct {
	Succeeded   []string `json:"succeeded"`
	Failed      []string `json:"failed"`
	Unattempted []string `json:"unattempted"`
	ParseErrors int      `json:"parse_errors"`
}

// Event is the single message type flowing out of the engine. Exactly
// one terminal event fires per dispatched action, and exactly one of
// session.completed / session.aborted fires per session.
type Event struct {
	Type       Type             `json:"type"`
	MessageID  string           `json:"message_id"`
	RunID      string           `json:"run_id"`
	Action     *ActionRef       `json:"action,omitempty"`
	Artifact   *fsutil.Artifact `json:"artifact,omitempty"`
	ExitCode   *int             `json:"exit_code,omitempty"`
	Output     string           `json:"output,omitempty"`
	PID        int              `json:"pid,omitempty"`
	ErrorKind  ErrorKind        `json:"error_kind,omitempty"`
	Error      string           `json:"error,omitempty"`
	RawSpan    string           `json:"raw_span,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Summary    *Summary         `json:"summary,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// New stamps a fresh event with identity and time.
func New(runID string, typ Type) Event {
	return Event{
		Type:       typ,
		MessageID:  uuid.New().String(),
		RunID:      runID,
		OccurredAt: time.Now().UTC(),
	}
}
