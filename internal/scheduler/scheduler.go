// Package scheduler dispatches parsed actions to executors in strict
// emission order, relaxing it only for file writes to distinct paths,
// which may run as a concurrent wave. Shell commands and server starts
// are barriers: everything before them finishes first, and nothing
// after them starts until they are done.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weftworks/weft/internal/action"
	"github.com/weftworks/weft/internal/events"
	"github.com/weftworks/weft/internal/executor"
	"github.com/weftworks/weft/internal/fsutil"
	"github.com/weftworks/weft/internal/sandbox"
)

const queueBuffer = 64

// Scheduler consumes the ordered action queue fed by the parser.
type Scheduler struct {
	runID  string
	writer *executor.FileWriter
	shell  *executor.ShellRunner
	bus    *events.Bus
	logger *slog.Logger

	// when false (default), a failed shell command halts dispatch and
	// later actions are left unattempted
	continueOnShellError bool
	maxParallelWrites    int

	qmu         sync.RWMutex
	queue       chan *action.Action
	queueClosed bool
	done        chan struct{}

	mu      sync.Mutex
	halted  bool
	fatal   bool
	servers []sandbox.Process
}

// New creates a scheduler. Call Run in its own goroutine, then Enqueue
// actions in emission order and CloseQueue when the stream ends.
func New(runID string, writer *executor.FileWriter, shell *executor.ShellRunner, bus *events.Bus, logger *slog.Logger, continueOnShellError bool, maxParallelWrites int) *Scheduler {
	if maxParallelWrites <= 0 {
		maxParallelWrites = 4
	}
	return &Scheduler{
		runID:                runID,
		writer:               writer,
		shell:                shell,
		bus:                  bus,
		logger:               logger,
		continueOnShellError: continueOnShellError,
		maxParallelWrites:    maxParallelWrites,
		queue:                make(chan *action.Action, queueBuffer),
		done:                 make(chan struct{}),
	}
}

// Enqueue hands a parsed action to the dispatch loop. Actions must
// arrive in the order their closing markers completed parsing. Returns
// false once the queue is closed; the action then stays pending.
func (s *Scheduler) Enqueue(act *action.Action) bool {
	s.qmu.RLock()
	defer s.qmu.RUnlock()
	if s.queueClosed {
		return false
	}
	s.queue <- act
	return true
}

// CloseQueue signals that no further actions will arrive. Idempotent.
func (s *Scheduler) CloseQueue() {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if s.queueClosed {
		return
	}
	s.queueClosed = true
	close(s.queue)
}

// Wait blocks until the dispatch loop has drained the queue and all
// in-flight work has finished.
func (s *Scheduler) Wait() {
	<-s.done
}

// Servers returns handles of processes launched by server-start
// actions, for teardown at session close.
func (s *Scheduler) Servers() []sandbox.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sandbox.Process, len(s.servers))
	copy(out, s.servers)
	return out
}

// Run is the dispatch loop. It returns once the queue is closed and
// drained; cancellation of ctx discards still-pending actions while
// letting in-flight writes finish atomically.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	wave := &errgroup.Group{}
	wave.SetLimit(s.maxParallelWrites)

	for act := range s.queue {
		if ctx.Err() != nil || s.isHalted() {
			// discarded: stays pending, itemized as unattempted
			continue
		}

		switch act.Kind {
		case action.KindFileWrite:
			s.dispatchWrite(ctx, wave, act)
		case action.KindShellCommand:
			wave.Wait() // barrier: prior writes must land first
			// a write in the wave may have halted the run
			if ctx.Err() != nil || s.isHalted() {
				continue
			}
			s.runShell(ctx, act)
		case action.KindServerStart:
			wave.Wait()
			if ctx.Err() != nil || s.isHalted() {
				continue
			}
			s.runServerStart(ctx, act)
		}
	}

	wave.Wait()
}

func (s *Scheduler) isHalted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

func (s *Scheduler) halt() {
	s.mu.Lock()
	s.halted = true
	s.mu.Unlock()
}

// Fatal reports whether an environment fault ended dispatch. The
// session reports such a run as aborted, not completed.
func (s *Scheduler) Fatal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *Scheduler) haltFatal() {
	s.mu.Lock()
	s.halted = true
	s.fatal = true
	s.mu.Unlock()
}

// classify maps an executor error to the reported error kind.
func classify(err error) events.ErrorKind {
	var envErr *sandbox.EnvironmentError
	if errors.As(err, &envErr) {
		return events.ErrorKindEnvironment
	}
	return events.ErrorKindExecution
}

// dispatchWrite reserves the path lock synchronously, preserving FIFO
// order for same-path writes, then performs the write inside the wave.
func (s *Scheduler) dispatchWrite(ctx context.Context, wave *errgroup.Group, act *action.Action) {
	grant, err := s.writer.Reserve(act)
	if err != nil {
		s.fail(act, events.ErrorKindExecution, err)
		return
	}

	wave.Go(func() error {
		if err := s.writer.AwaitLock(ctx, act, grant); err != nil {
			if errors.Is(err, context.Canceled) {
				s.cancelAction(act)
				return nil
			}
			kind := events.ErrorKindExecution
			var lte *executor.LockTimeoutError
			if errors.As(err, &lte) {
				kind = events.ErrorKindLockTimeout
			}
			s.fail(act, kind, err)
			return nil
		}

		// lock held: the action is running from here on
		if err := act.Transition(action.StatusRunning); err != nil {
			s.logger.Error("file write dispatch", "action", act.ID, "error", err)
			return nil
		}
		s.publishStarted(act)

		art, err := s.writer.WriteLocked(ctx, act)
		if err != nil {
			s.fail(act, classify(err), err)
			return nil
		}
		s.succeedWrite(act, art)
		return nil
	})
}

func (s *Scheduler) runShell(ctx context.Context, act *action.Action) {
	if err := act.Transition(action.StatusRunning); err != nil {
		s.logger.Error("shell dispatch", "action", act.ID, "error", err)
		return
	}
	s.publishStarted(act)

	res, err := s.shell.Run(ctx, act)
	if err == nil {
		s.mustTransition(act, action.StatusSucceeded)
		evt := events.New(s.runID, events.TypeActionSucceeded)
		evt.Action = events.Ref(act)
		evt.ExitCode = &res.ExitCode
		evt.Output = res.Output
		s.bus.Publish(evt)
		return
	}

	if errors.Is(err, context.Canceled) {
		s.cancelAction(act)
		return
	}

	kind := classify(err)
	s.mustTransition(act, action.StatusFailed)
	evt := events.New(s.runID, events.TypeActionFailed)
	evt.Action = events.Ref(act)
	evt.ErrorKind = kind
	evt.Error = err.Error()
	if res != nil {
		evt.ExitCode = &res.ExitCode
		evt.Output = res.Output
	}
	s.bus.Publish(evt)

	if kind == events.ErrorKindEnvironment {
		s.logger.Error("environment fault; run cannot continue", "action", act.ID, "error", err)
		s.haltFatal()
		return
	}
	if !s.continueOnShellError {
		s.logger.Warn("halting after failed command; later actions will not run",
			"action", act.ID, "error", err)
		s.halt()
	}
}

func (s *Scheduler) runServerStart(ctx context.Context, act *action.Action) {
	if err := act.Transition(action.StatusRunning); err != nil {
		s.logger.Error("server dispatch", "action", act.ID, "error", err)
		return
	}
	s.publishStarted(act)

	proc, err := s.shell.Start(ctx, act)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.cancelAction(act)
			return
		}
		s.fail(act, classify(err), err)
		return
	}

	s.mu.Lock()
	s.servers = append(s.servers, proc)
	s.mu.Unlock()

	s.mustTransition(act, action.StatusSucceeded)
	evt := events.New(s.runID, events.TypeActionSucceeded)
	evt.Action = events.Ref(act)
	evt.PID = proc.PID()
	s.bus.Publish(evt)
}

func (s *Scheduler) publishStarted(act *action.Action) {
	evt := events.New(s.runID, events.TypeActionStarted)
	evt.Action = events.Ref(act)
	s.bus.Publish(evt)
}

func (s *Scheduler) succeedWrite(act *action.Action, art fsutil.Artifact) {
	s.mustTransition(act, action.StatusSucceeded)
	evt := events.New(s.runID, events.TypeActionSucceeded)
	evt.Action = events.Ref(act)
	evt.Artifact = &art
	s.bus.Publish(evt)
}

func (s *Scheduler) fail(act *action.Action, kind events.ErrorKind, err error) {
	s.mustTransition(act, action.StatusFailed)
	evt := events.New(s.runID, events.TypeActionFailed)
	evt.Action = events.Ref(act)
	evt.ErrorKind = kind
	evt.Error = err.Error()
	s.bus.Publish(evt)

	if kind == events.ErrorKindEnvironment {
		s.logger.Error("environment fault; run cannot continue", "action", act.ID, "error", err)
		s.haltFatal()
	}
}

// cancelAction reports an in-flight action ended by an abort. The
// cancellation event is terminal but distinct from failure.
func (s *Scheduler) cancelAction(act *action.Action) {
	s.mustTransition(act, action.StatusFailed)
	evt := events.New(s.runID, events.TypeActionCancelled)
	evt.Action = events.Ref(act)
	s.bus.Publish(evt)
}

func (s *Scheduler) mustTransition(act *action.Action, to action.Status) {
	if err := act.Transition(to); err != nil {
		s.logger.Error("status transition", "action", act.ID, "error", err)
	}
}
