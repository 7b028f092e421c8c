package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/eventlog"
	"github.com/weftworks/weft/internal/events"
	"github.com/weftworks/weft/internal/runstate"
	"github.com/weftworks/weft/internal/sandbox"
	"github.com/weftworks/weft/internal/session"
	"github.com/weftworks/weft/internal/workspace"
)

// execute runs the CLI with args and returns captured stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInitCreatesConfigAndEngineDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "proj")

	out, err := execute(t, "init", "--workspace", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized weft workspace")

	cfg, err := config.Load(filepath.Join(root, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, "1.0", cfg.Version)
	assert.True(t, workspace.IsInitialized(root))
}

func TestInitRefusesExistingConfig(t *testing.T) {
	root := t.TempDir()

	_, err := execute(t, "init", "--workspace", root)
	require.NoError(t, err)

	_, err = execute(t, "init", "--workspace", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRunExecutesStreamFile(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "init", "--workspace", root)
	require.NoError(t, err)

	streamPath := filepath.Join(t.TempDir(), "stream.txt")
	stream := `Adding a file. <action kind="file-write" path="hello.txt">hi there</action> Then: <action kind="shell-command">echo done</action>`
	require.NoError(t, os.WriteFile(streamPath, []byte(stream), 0o644))

	out, err := execute(t, "run", "--workspace", root, "--input", streamPath)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(data))

	assert.Contains(t, out, "file-write hello.txt")
	assert.Contains(t, out, "session completed")

	// one event log and one run record were written
	logs, err := filepath.Glob(filepath.Join(root, workspace.EngineDir, "events", "run-*.ndjson"))
	require.NoError(t, err)
	require.Len(t, logs, 1)

	evts, err := eventlog.Read(logs[0])
	require.NoError(t, err)
	var terminal int
	for _, evt := range evts {
		if evt.Type == events.TypeSessionCompleted {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)

	recs, err := filepath.Glob(filepath.Join(root, workspace.EngineDir, "state", "run-*.json"))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRunFailsWhenAnActionFails(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "init", "--workspace", root)
	require.NoError(t, err)

	streamPath := filepath.Join(t.TempDir(), "stream.txt")
	require.NoError(t, os.WriteFile(streamPath, []byte(`<action kind="shell-command">exit 3</action>`), 0o644))

	out, err := execute(t, "run", "--workspace", root, "--input", streamPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.True(t, strings.Contains(out, "✘") || strings.Contains(out, "failed"))
}

func TestRunHonorsConfiguredWorkspace(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "init", "--workspace", root)
	require.NoError(t, err)

	// point the project root below the config directory
	cfgPath := filepath.Join(root, config.FileName)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.Workspace = "proj"
	require.NoError(t, cfg.Save(cfgPath))

	streamPath := filepath.Join(t.TempDir(), "stream.txt")
	require.NoError(t, os.WriteFile(streamPath, []byte(`<action kind="file-write" path="a.txt">nested</action>`), 0o644))

	_, err = execute(t, "run", "--workspace", root, "--input", streamPath)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "proj", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))

	_, err = os.Stat(filepath.Join(root, "a.txt"))
	assert.True(t, os.IsNotExist(err), "the flag directory itself stays untouched")

	// engine state follows the project root too
	recs, err := filepath.Glob(filepath.Join(root, "proj", workspace.EngineDir, "state", "run-*.json"))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestFeedStreamAbortsWhileReadBlocked(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	box, err := sandbox.NewLocal(root, logger)
	require.NoError(t, err)
	cfg := config.GenerateDefault()
	require.NoError(t, cfg.Validate())

	ec := session.NewExecutionContext(box, cfg.Policy.EventBuffer, logger)
	sess := session.New(context.Background(), session.NewRunID(), cfg, ec)
	go func() {
		for range ec.Bus.Events() {
		}
	}()

	// a pipe nobody writes to keeps Read blocked indefinitely
	pr, pw := io.Pipe()
	defer pw.Close()

	aborted := make(chan struct{})
	time.AfterFunc(50*time.Millisecond, func() { close(aborted) })

	type result struct {
		outcome runstate.Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		_, outcome, err := feedStream(sess, pr, 4096, aborted)
		done <- result{outcome, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, runstate.OutcomeAborted, res.outcome)
		assert.Equal(t, session.StateAborted, sess.State())
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not interrupt a blocked read")
	}
}

func TestRunReadsStdinByDefault(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "init", "--workspace", root)
	require.NoError(t, err)

	rootCmd.SetIn(strings.NewReader(`<action kind="file-write" path="a.txt">via stdin</action>`))
	defer rootCmd.SetIn(nil)

	// flag values persist across Execute calls, so reset --input explicitly
	_, err = execute(t, "run", "--workspace", root, "--input", "")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "via stdin", string(data))
}
