// Package workspace lays out the engine's private directory inside a
// project: .weft/ holds event logs, run records, and engine logs, kept
// apart from the generated project files.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// EngineDir is the engine's directory inside the workspace root.
const EngineDir = ".weft"

func requiredDirs() []string {
	return []string{
		filepath.Join(EngineDir, "events"), // run-<id>.ndjson event logs
		filepath.Join(EngineDir, "state"),  // run-<id>.json run records
		filepath.Join(EngineDir, "logs"),   // engine slog output per run
	}
}

// Initialize creates the engine directories. Idempotent.
func Initialize(root string) error {
	for _, dir := range requiredDirs() {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// IsInitialized reports whether all engine directories exist.
func IsInitialized(root string) bool {
	for _, dir := range requiredDirs() {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// EventLogPath returns the NDJSON event log path for a run.
func EventLogPath(root, runID string) string {
	return filepath.Join(root, EngineDir, "events", runID+".ndjson")
}

// RunStatePath returns the run record path for a run.
func RunStatePath(root, runID string) string {
	return filepath.Join(root, EngineDir, "state", runID+".json")
}

// LogPath returns the engine log path for a run.
func LogPath(root, runID string) string {
	return filepath.Join(root, EngineDir, "logs", runID+".log")
}
