package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/weftworks/weft/internal/fsutil"
)

// default cap on a single generated file, overridable via Option
const defaultMaxWriteBytes = 8 * 1024 * 1024

// Local is a Sandbox backed by the host filesystem and /bin/sh, rooted
// at a workspace directory.
type Local struct {
	root          string
	logger        *slog.Logger
	maxWriteBytes int64
}

// Option configures a Local sandbox.
type Option func(*Local)

// WithMaxWriteBytes caps the size of a single file write.
func WithMaxWriteBytes(n int64) Option {
	return func(l *Local) {
		if n > 0 {
			l.maxWriteBytes = n
		}
	}
}

// NewLocal creates a sandbox rooted at root. The root must already
// exist; a missing workspace is an environment fault, not something the
// engine can recover per action.
func NewLocal(root string, logger *slog.Logger, opts ...Option) (*Local, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}

	l := &Local{
		root:          root,
		logger:        logger,
		maxWriteBytes: defaultMaxWriteBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Root returns the workspace root directory.
func (l *Local) Root() string {
	return l.root
}

// checkRoot verifies the workspace root is still reachable. A root that
// vanishes mid-session is an environment fault, not an action failure.
func (l *Local) checkRoot(op string) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return &EnvironmentError{Op: op, Err: err}
	}
	if !info.IsDir() {
		return &EnvironmentError{Op: op, Err: fmt.Errorf("workspace root %s is not a directory", l.root)}
	}
	return nil
}

// WriteFile atomically writes content at relative inside the workspace.
func (l *Local) WriteFile(ctx context.Context, relative string, content []byte) (fsutil.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return fsutil.Artifact{}, err
	}
	if err := l.checkRoot("write " + relative); err != nil {
		return fsutil.Artifact{}, err
	}
	if int64(len(content)) > l.maxWriteBytes {
		return fsutil.Artifact{}, fmt.Errorf("content size %d exceeds limit %d", len(content), l.maxWriteBytes)
	}

	art, err := fsutil.WriteWorkspaceFile(l.root, relative, content)
	if err != nil {
		return fsutil.Artifact{}, err
	}

	l.logger.Debug("wrote workspace file", "path", relative, "size", art.Size)
	return art, nil
}

// Exec runs commandLine with /bin/sh -c in the workspace root and waits
// for it to finish. A non-zero exit is not an error here: the result
// carries the exit code and the caller decides. A non-nil error means
// the command could not be run at all or the context ended it.
func (l *Local) Exec(ctx context.Context, commandLine string) (*ExecResult, error) {
	if err := l.checkRoot("exec"); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", commandLine)
	cmd.Dir = l.root

	start := time.Now()
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExecResult{
				ExitCode: exitErr.ExitCode(),
				Output:   string(out),
				Duration: elapsed,
			}, nil
		}
		return nil, fmt.Errorf("spawn failed: %w", err)
	}

	return &ExecResult{ExitCode: 0, Output: string(out), Duration: elapsed}, nil
}

// Start launches commandLine with /bin/sh -c in the workspace root and
// returns without waiting. The returned handle outlives ctx: a started
// server keeps running until Stop is called or it exits on its own.
func (l *Local) Start(ctx context.Context, commandLine string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.checkRoot("start"); err != nil {
		return nil, err
	}

	cmd := exec.Command("/bin/sh", "-c", commandLine)
	cmd.Dir = l.root

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn failed: %w", err)
	}

	p := &localProcess{cmd: cmd, done: make(chan struct{})}
	// reap the child so it never lingers as a zombie
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	l.logger.Info("started process", "pid", cmd.Process.Pid, "command", commandLine)
	return p, nil
}

type localProcess struct {
	cmd     *exec.Cmd
	once    sync.Once
	done    chan struct{}
	waitErr error
}

func (p *localProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *localProcess) Stop() error {
	var err error
	p.once.Do(func() {
		err = p.cmd.Process.Kill()
		select {
		case <-p.done:
		case <-time.After(5 * time.Second):
			err = fmt.Errorf("process %d did not exit after kill", p.PID())
		}
	})
	return err
}
