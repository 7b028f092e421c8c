package runstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/action"
)

func TestBuild(t *testing.T) {
	started := time.Now().Add(-time.Minute)

	ok := action.New(1, 0, 40, action.KindFileWrite, "a.txt", "x")
	require.NoError(t, ok.Transition(action.StatusRunning))
	require.NoError(t, ok.Transition(action.StatusSucceeded))

	bad := action.New(2, 50, 90, action.KindShellCommand, "", "make build")
	require.NoError(t, bad.Transition(action.StatusRunning))
	require.NoError(t, bad.Transition(action.StatusFailed))

	never := action.New(3, 100, 140, action.KindFileWrite, "b.txt", "y")

	rec := Build("run-abc", OutcomeCompleted, started, []*action.Action{ok, bad, never}, 2)

	assert.Equal(t, "run-abc", rec.RunID)
	assert.Equal(t, OutcomeCompleted, rec.Outcome)
	assert.Equal(t, 2, rec.ParseErrors)
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))

	require.Len(t, rec.Actions, 3)
	assert.Equal(t, action.StatusSucceeded, rec.Actions[0].Status)
	assert.Equal(t, action.StatusFailed, rec.Actions[1].Status)
	assert.Equal(t, action.StatusPending, rec.Actions[2].Status, "unattempted actions persist as pending")
	assert.Equal(t, "a.txt", rec.Actions[0].Path)
	assert.Empty(t, rec.Actions[1].Path)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-abc.json")

	act := action.New(1, 0, 40, action.KindFileWrite, "a.txt", "x")
	rec := Build("run-abc", OutcomeAborted, time.Now(), []*action.Action{act}, 0)
	require.NoError(t, Save(rec, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rec.RunID, loaded.RunID)
	assert.Equal(t, OutcomeAborted, loaded.Outcome)
	require.Len(t, loaded.Actions, 1)
	assert.Equal(t, act.ID, loaded.Actions[0].ID)
}

func TestLoadMissingRecord(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
