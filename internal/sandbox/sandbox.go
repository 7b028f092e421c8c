// Package sandbox defines the primitive surface the engine mutates a
// workspace through, and a local implementation of it. The engine never
// touches the filesystem or spawns processes except via a Sandbox.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/weftworks/weft/internal/fsutil"
)

// EnvironmentError reports that the sandbox primitives themselves are
// unavailable, such as the workspace root disappearing mid-session.
// Unlike a per-action execution failure, it is fatal to the session.
type EnvironmentError struct {
	Op  string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment fault during %s: %v", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

// ExecResult carries the outcome of one terminal command.
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output"` // combined stdout and stderr
	Duration time.Duration `json:"duration"`
}

// Process is a handle to a long-lived process started in the sandbox,
// such as a dev server.
type Process interface {
	PID() int
	// Stop terminates the process. Safe to call more than once.
	Stop() error
}

// Sandbox exposes the three primitives actions are executed with.
// WriteFile must be all-or-nothing; Exec runs one command line to
// completion in the workspace terminal; Start launches a process
// without waiting for it to exit.
type Sandbox interface {
	WriteFile(ctx context.Context, relative string, content []byte) (fsutil.Artifact, error)
	Exec(ctx context.Context, commandLine string) (*ExecResult, error)
	Start(ctx context.Context, commandLine string) (Process, error)
}
