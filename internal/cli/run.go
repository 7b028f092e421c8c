package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/eventlog"
	"github.com/weftworks/weft/internal/events"
	"github.com/weftworks/weft/internal/runstate"
	"github.com/weftworks/weft/internal/sandbox"
	"github.com/weftworks/weft/internal/session"
	"github.com/weftworks/weft/internal/transcript"
	"github.com/weftworks/weft/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Feed a model output stream through the engine",
	Long: `Read a recorded model output stream from --input (or stdin) and
execute the embedded actions against the workspace. The stream is fed
in fixed-size chunks; envelope markers may straddle chunk boundaries.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("input", "i", "", "Stream file to replay (default: stdin)")
	runCmd.Flags().Int("chunk-size", 4096, "Bytes fed to the engine per chunk")
	runCmd.Flags().BoolP("verbose", "v", false, "Show engine logs on stderr")
}

func runRun(cmd *cobra.Command, args []string) error {
	root, err := cmd.Flags().GetString("workspace")
	if err != nil {
		return err
	}
	inputPath, err := cmd.Flags().GetString("input")
	if err != nil {
		return err
	}
	chunkSize, err := cmd.Flags().GetInt("chunk-size")
	if err != nil {
		return err
	}
	if chunkSize <= 0 {
		return fmt.Errorf("chunk-size must be positive")
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	// the config may point the project root below the config directory
	projRoot := filepath.Join(root, cfg.Workspace)
	if err := workspace.Initialize(projRoot); err != nil {
		return fmt.Errorf("initialize workspace: %w", err)
	}

	input, closeInput, err := openInput(cmd, inputPath)
	if err != nil {
		return err
	}
	defer closeInput()

	out := cmd.OutOrStdout()

	runID := session.NewRunID()
	logger, logFile, err := newRunLogger(workspace.LogPath(projRoot, runID), slog.LevelInfo, verbose)
	if err != nil {
		return err
	}
	defer logFile.Close()

	box, err := sandbox.NewLocal(projRoot, logger, sandbox.WithMaxWriteBytes(cfg.Policy.MaxWriteBytes))
	if err != nil {
		return err
	}

	ec := session.NewExecutionContext(box, cfg.Policy.EventBuffer, logger)
	log, err := eventlog.Open(workspace.EventLogPath(projRoot, runID))
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer log.Close()
	ec.Bus.AddSink(log)

	sess := session.New(cmd.Context(), runID, cfg, ec)
	logger.Info("run started", "run_id", runID, "workspace", projRoot)

	// stream transcript lines while the engine works
	formatter := transcript.NewFormatter()
	var drain sync.WaitGroup
	drain.Add(1)
	go func() {
		defer drain.Done()
		for evt := range ec.Bus.Events() {
			if line := formatter.FormatEvent(&evt); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}()

	// Ctrl-C aborts the session instead of killing the process
	sigCh := make(chan os.Signal, 1)
	defer close(sigCh)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	aborted := make(chan struct{})
	go func() {
		if _, ok := <-sigCh; ok {
			close(aborted)
		}
	}()

	summary, outcome, err := feedStream(sess, input, chunkSize, aborted)
	if err != nil {
		return err
	}
	drain.Wait()

	if err := sess.Close(); err != nil {
		logger.Warn("server teardown", "error", err)
	}

	rec := runstate.Build(sess.RunID(), outcome, sess.StartedAt(), sess.Actions(), sess.ParseErrorCount())
	if err := runstate.Save(rec, workspace.RunStatePath(projRoot, sess.RunID())); err != nil {
		logger.Warn("persist run record", "error", err)
	}

	printSummary(out, sess, summary)

	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d action(s) failed", len(summary.Failed))
	}
	return nil
}

type streamChunk struct {
	data []byte
	err  error
}

// feedStream pumps input into the session chunk by chunk. Reads run in
// their own goroutine so an abort lands immediately even while the
// source is quiet. Returns the session summary and the run outcome.
func feedStream(sess *session.Session, input io.Reader, chunkSize int, aborted <-chan struct{}) (*events.Summary, runstate.Outcome, error) {
	quit := make(chan struct{})
	defer close(quit)

	chunks := make(chan streamChunk)
	go func() {
		for {
			buf := make([]byte, chunkSize)
			n, err := input.Read(buf)
			select {
			case chunks <- streamChunk{data: buf[:n], err: err}:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-aborted:
			sum, err := sess.Abort()
			return sum, runstate.OutcomeAborted, err

		case c := <-chunks:
			if len(c.data) > 0 {
				if err := sess.Feed(string(c.data)); err != nil {
					return nil, "", err
				}
			}
			if c.err == io.EOF {
				sum, err := sess.End()
				outcome := runstate.OutcomeCompleted
				if sess.State() == session.StateAborted {
					outcome = runstate.OutcomeAborted
				}
				return sum, outcome, err
			}
			if c.err != nil {
				// the stream source died; what already parsed still ran
				sum, err := sess.Abort()
				return sum, runstate.OutcomeAborted, err
			}
		}
	}
}

func loadConfig(root string) (*config.Config, error) {
	cfgPath := filepath.Join(root, config.FileName)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.GenerateDefault()
		return cfg, cfg.Validate()
	}
	return config.Load(cfgPath)
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func printSummary(out io.Writer, sess *session.Session, summary *events.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"ID", "Kind", "Target", "Status"})
	for _, act := range sess.Actions() {
		target := act.Path
		if target == "" {
			target = act.Payload
			if len(target) > 48 {
				target = target[:45] + "..."
			}
		}
		t.AppendRow(table.Row{act.ID, act.Kind, target, act.Status})
	}
	t.AppendFooter(table.Row{"", "", "parse errors", summary.ParseErrors})
	t.Render()
}
