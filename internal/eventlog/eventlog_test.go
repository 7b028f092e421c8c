package eventlog

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/events"
)

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "run-1.ndjson")

	log, err := Open(path)
	require.NoError(t, err)

	started := events.New("run-1", events.TypeActionStarted)
	done := events.New("run-1", events.TypeSessionCompleted)
	require.NoError(t, log.WriteEvent(&started))
	require.NoError(t, log.WriteEvent(&done))
	require.NoError(t, log.Close())

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.TypeActionStarted, got[0].Type)
	assert.Equal(t, started.MessageID, got[0].MessageID)
	assert.Equal(t, events.TypeSessionCompleted, got[1].Type)
}

func TestOpenAppendsToExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-1.ndjson")

	log, err := Open(path)
	require.NoError(t, err)
	first := events.New("run-1", events.TypeActionStarted)
	require.NoError(t, log.WriteEvent(&first))
	require.NoError(t, log.Close())

	log, err = Open(path)
	require.NoError(t, err)
	second := events.New("run-1", events.TypeActionSucceeded)
	require.NoError(t, log.WriteEvent(&second))
	require.NoError(t, log.Close())

	got, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-1.ndjson")

	log, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evt := events.New("run-1", events.TypeActionStarted)
			assert.NoError(t, log.WriteEvent(&evt))
		}()
	}
	wg.Wait()
	require.NoError(t, log.Close())

	got, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, got, 10, "interleaved writers never corrupt lines")
}

func TestReadMissingLog(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.ndjson"))
	assert.Error(t, err)
}
