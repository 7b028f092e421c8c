// Package runstate persists the final, itemized outcome of a run so a
// collaborator can see exactly which actions succeeded, which failed
// and why, and which were never attempted.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/weftworks/weft/internal/action"
	"github.com/weftworks/weft/internal/fsutil"
)

// Outcome is the overall result of a run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
)

// ActionRecord is the persisted view of one action.
type ActionRecord struct {
	ID     string        `json:"id"`
	Kind   action.Kind   `json:"kind"`
	Path   string        `json:"path,omitempty"`
	Status action.Status `json:"status"`
}

// Record is the persisted state of one run.
type Record struct {
	RunID       string         `json:"run_id"`
	Outcome     Outcome        `json:"outcome"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Actions     []ActionRecord `json:"actions"`
	ParseErrors int            `json:"parse_errors"`
}

// Build assembles a record from the session's actions.
func Build(runID string, outcome Outcome, startedAt time.Time, actions []*action.Action, parseErrors int) *Record {
	rec := &Record{
		RunID:       runID,
		Outcome:     outcome,
		StartedAt:   startedAt.UTC(),
		FinishedAt:  time.Now().UTC(),
		ParseErrors: parseErrors,
	}
	for _, act := range actions {
		rec.Actions = append(rec.Actions, ActionRecord{
			ID:     act.ID,
			Kind:   act.Kind,
			Path:   act.Path,
			Status: act.Status,
		})
	}
	return rec
}

// Save writes the record atomically.
func Save(rec *Record, path string) error {
	return fsutil.AtomicWriteJSON(path, rec)
}

// Load reads a record back.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse run record: %w", err)
	}
	return &rec, nil
}
