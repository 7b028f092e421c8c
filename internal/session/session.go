// Package session runs one streamed model response end to end: chunks
// in through Feed, actions out through the scheduler, lifecycle events
// out through the bus, one terminal session event at the end.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weftworks/weft/internal/action"
	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/events"
	"github.com/weftworks/weft/internal/executor"
	"github.com/weftworks/weft/internal/parser"
	"github.com/weftworks/weft/internal/scheduler"
	"github.com/weftworks/weft/internal/streambuf"
)

// State of a session.
type State string

const (
	StateOpen      State = "open"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Session owns one generation turn. Feed may be called from a single
// goroutine; End and Abort are mutually exclusive and each may be
// called once.
type Session struct {
	runID  string
	cfg    *config.Config
	ec     *ExecutionContext
	buf    *streambuf.Buffer
	parser *parser.Parser
	sched  *scheduler.Scheduler
	cancel context.CancelFunc

	startedAt time.Time

	mu        sync.Mutex
	state     State
	actions   []*action.Action
	parseErrs []*parser.ParseError
}

// NewRunID mints an identifier for a run, used in events and as the
// stem for that run's files on disk.
func NewRunID() string {
	return fmt.Sprintf("run-%s", uuid.New().String()[:8])
}

// New starts a session under runID: the scheduler's dispatch loop
// begins consuming immediately, so execution overlaps with the
// still-arriving stream.
func New(ctx context.Context, runID string, cfg *config.Config, ec *ExecutionContext) *Session {
	ctx, cancel := context.WithCancel(ctx)

	writer := executor.NewFileWriter(ec.Locks, ec.Box, cfg.Policy.LockTimeout(), ec.Logger)
	shell := executor.NewShellRunner(ec.Box, cfg.Policy.ShellTimeout(), ec.Logger)
	sched := scheduler.New(runID, writer, shell, ec.Bus, ec.Logger,
		cfg.Policy.ContinueOnShellError, cfg.Policy.MaxParallelWrites)

	buf := streambuf.New()
	s := &Session{
		runID:     runID,
		cfg:       cfg,
		ec:        ec,
		buf:       buf,
		parser:    parser.New(buf),
		sched:     sched,
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		state:     StateOpen,
	}

	go sched.Run(ctx)
	return s
}

// RunID identifies this session in events and on disk.
func (s *Session) RunID() string {
	return s.runID
}

// StartedAt is when the session was created.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// ParseErrorCount returns how many spans failed to parse.
func (s *Session) ParseErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parseErrs)
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Actions returns every action parsed so far, in emission order.
func (s *Session) Actions() []*action.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*action.Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// Feed appends one stream chunk and dispatches whatever the parser can
// complete. Chunk boundaries may fall anywhere, including inside
// markers.
func (s *Session) Feed(chunk string) error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return fmt.Errorf("session %s is %s, cannot feed", s.runID, s.state)
	}
	s.mu.Unlock()

	s.buf.AppendString(chunk)
	s.dispatch(s.parser.Scan())
	return nil
}

// End signals end-of-stream, waits for all dispatched work to finish,
// and fires the session.completed event carrying the itemized summary.
func (s *Session) End() (*events.Summary, error) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s already %s", s.runID, s.state)
	}
	s.mu.Unlock()

	s.dispatch(s.parser.Finish())
	s.sched.CloseQueue()
	s.sched.Wait()

	// an environment fault tore dispatch down mid-run; that session
	// ended aborted no matter how the stream finished
	state, typ := StateCompleted, events.TypeSessionCompleted
	if s.sched.Fatal() {
		state, typ = StateAborted, events.TypeSessionAborted
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	summary := s.summarize()
	evt := events.New(s.runID, typ)
	evt.Summary = summary
	s.ec.Bus.Publish(evt)
	s.ec.Bus.Close()
	return summary, nil
}

// Abort cancels the session: the parser emits nothing further, pending
// actions are discarded unexecuted, in-flight file writes land
// atomically, and an in-flight shell command is terminated and
// reported as cancelled. Fires the session.aborted event.
func (s *Session) Abort() (*events.Summary, error) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s already %s", s.runID, s.state)
	}
	s.state = StateAborted
	s.mu.Unlock()

	s.cancel()
	s.sched.CloseQueue()
	s.sched.Wait()

	summary := s.summarize()
	evt := events.New(s.runID, events.TypeSessionAborted)
	evt.Summary = summary
	s.ec.Bus.Publish(evt)
	s.ec.Bus.Close()
	return summary, nil
}

// Close tears the session down after End or Abort: any server processes
// started by server-start actions are stopped.
func (s *Session) Close() error {
	var firstErr error
	for _, proc := range s.sched.Servers() {
		if err := proc.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Session) dispatch(results []parser.Result) {
	for _, res := range results {
		if res.Err != nil {
			s.mu.Lock()
			s.parseErrs = append(s.parseErrs, res.Err)
			s.mu.Unlock()

			evt := events.New(s.runID, events.TypeParseError)
			evt.ErrorKind = events.ErrorKindParse
			evt.RawSpan = res.Err.Raw
			evt.Reason = res.Err.Reason
			s.ec.Bus.Publish(evt)
			continue
		}

		s.mu.Lock()
		s.actions = append(s.actions, res.Action)
		s.mu.Unlock()
		s.sched.Enqueue(res.Action)
	}
}

// summarize itemizes the outcome of every parsed action. Actions still
// pending were never attempted.
func (s *Session) summarize() *events.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := &events.Summary{ParseErrors: len(s.parseErrs)}
	for _, act := range s.actions {
		switch act.Status {
		case action.StatusSucceeded:
			sum.Succeeded = append(sum.Succeeded, act.ID)
		case action.StatusFailed:
			sum.Failed = append(sum.Failed, act.ID)
		default:
			sum.Unattempted = append(sum.Unattempted, act.ID)
		}
	}
	return sum
}
