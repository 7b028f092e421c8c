// Package executor performs the side effects of parsed actions against
// the sandbox: exclusive-locked atomic file writes, serialized shell
// commands, and server starts.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weftworks/weft/internal/action"
	"github.com/weftworks/weft/internal/fsutil"
	"github.com/weftworks/weft/internal/lockmgr"
	"github.com/weftworks/weft/internal/sandbox"
)

// LockTimeoutError reports that a write waited longer than the bounded
// lock wait. Not expected under FIFO fairness unless a sandbox write
// never returns.
type LockTimeoutError struct {
	Path     string
	ActionID string
	Waited   time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("action %s timed out after %s waiting for lock on %s", e.ActionID, e.Waited, e.Path)
}

// ExitError reports a shell command that ran but exited non-zero. The
// captured output travels with it for diagnostics.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// FileWriter applies file-write actions. Lock reservation is split from
// the write so the scheduler can reserve in emission order and let the
// writes themselves run concurrently.
type FileWriter struct {
	locks       *lockmgr.Manager
	box         sandbox.Sandbox
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewFileWriter creates a file-write executor.
func NewFileWriter(locks *lockmgr.Manager, box sandbox.Sandbox, lockTimeout time.Duration, logger *slog.Logger) *FileWriter {
	return &FileWriter{locks: locks, box: box, lockTimeout: lockTimeout, logger: logger}
}

// Reserve enqueues act for its path lock. Must be called in emission
// order so same-path writes apply in the order the model produced them.
func (w *FileWriter) Reserve(act *action.Action) (<-chan struct{}, error) {
	return w.locks.Acquire(act.Path, act.ID)
}

// AwaitLock blocks until the reserved lock is granted. The ctx ending
// or the bounded wait elapsing while still queued withdraws the
// reservation.
func (w *FileWriter) AwaitLock(ctx context.Context, act *action.Action, grant <-chan struct{}) error {
	timer := time.NewTimer(w.lockTimeout)
	defer timer.Stop()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		w.locks.Abandon(act.Path, act.ID)
		return ctx.Err()
	case <-timer.C:
		w.locks.Abandon(act.Path, act.ID)
		return &LockTimeoutError{Path: act.Path, ActionID: act.ID, Waited: w.lockTimeout}
	}
}

// WriteLocked performs the atomic write and releases the lock. Call
// only after AwaitLock succeeds. Once the lock is held the write runs
// to completion even during an abort, so no half-written file is ever
// visible.
func (w *FileWriter) WriteLocked(ctx context.Context, act *action.Action) (fsutil.Artifact, error) {
	defer w.locks.Release(act.Path, act.ID)

	w.logger.Debug("writing file", "action", act.ID, "path", act.Path)

	return w.box.WriteFile(context.WithoutCancel(ctx), act.Path, []byte(act.Payload))
}

// ShellRunner executes shell-command and server-start actions. The
// scheduler guarantees only one call is in flight at a time.
type ShellRunner struct {
	box     sandbox.Sandbox
	timeout time.Duration // zero means no limit
	logger  *slog.Logger
}

// NewShellRunner creates a shell executor.
func NewShellRunner(box sandbox.Sandbox, timeout time.Duration, logger *slog.Logger) *ShellRunner {
	return &ShellRunner{box: box, timeout: timeout, logger: logger}
}

// Run executes act's command line to completion. A non-zero exit comes
// back as an *ExitError with the result still attached; a nil result
// with an error means the command never ran.
func (r *ShellRunner) Run(ctx context.Context, act *action.Action) (*sandbox.ExecResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.logger.Debug("running command", "action", act.ID, "command", act.Payload)

	res, err := r.box.Exec(ctx, act.Payload)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return res, &ExitError{Code: res.ExitCode, Output: res.Output}
	}
	return res, nil
}

// Start launches act's command line without waiting for it to exit.
// Success means the process spawned.
func (r *ShellRunner) Start(ctx context.Context, act *action.Action) (sandbox.Process, error) {
	r.logger.Debug("starting server", "action", act.ID, "command", act.Payload)
	return r.box.Start(ctx, act.Payload)
}
