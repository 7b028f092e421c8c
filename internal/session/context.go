package session

import (
	"log/slog"

	"github.com/weftworks/weft/internal/events"
	"github.com/weftworks/weft/internal/lockmgr"
	"github.com/weftworks/weft/internal/sandbox"
)

// ExecutionContext bundles the per-session collaborators: the lock
// manager, the event bus, and the sandbox the workspace is reached
// through. It is created at session start, owned by that session, and
// never shared across sessions of different projects.
type ExecutionContext struct {
	Locks  *lockmgr.Manager
	Bus    *events.Bus
	Box    sandbox.Sandbox
	Logger *slog.Logger
}

// NewExecutionContext assembles a context around a sandbox. Sinks (such
// as the event log) may be added to the bus before the first Feed.
func NewExecutionContext(box sandbox.Sandbox, eventBuffer int, logger *slog.Logger) *ExecutionContext {
	return &ExecutionContext{
		Locks:  lockmgr.New(),
		Bus:    events.NewBus(eventBuffer, logger),
		Box:    box,
		Logger: logger,
	}
}
