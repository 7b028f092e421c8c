// Package config models weft.json, the per-workspace engine settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/weftworks/weft/internal/fsutil"
)

// FileName is the config file looked for in the workspace root.
const FileName = "weft.json"

// Config is the engine configuration for one workspace.
type Config struct {
	Version   string `json:"version"`
	Workspace string `json:"workspace"` // project root, relative to the config file
	Policy    Policy `json:"policy"`
}

// Policy tunes execution behavior.
type Policy struct {
	LockTimeoutS         int   `json:"lock_timeout_s"`
	ShellTimeoutS        int   `json:"shell_timeout_s"` // 0 disables the limit
	MaxParallelWrites    int   `json:"max_parallel_writes"`
	MaxWriteBytes        int64 `json:"max_write_bytes"`
	EventBuffer          int   `json:"event_buffer"`
	ContinueOnShellError bool  `json:"continue_on_shell_error"`
}

// LockTimeout returns the bounded lock wait as a duration.
func (p Policy) LockTimeout() time.Duration {
	return time.Duration(p.LockTimeoutS) * time.Second
}

// ShellTimeout returns the per-command limit; zero means unlimited.
func (p Policy) ShellTimeout() time.Duration {
	return time.Duration(p.ShellTimeoutS) * time.Second
}

// GenerateDefault returns the configuration written by `weft init`.
func GenerateDefault() *Config {
	return &Config{
		Version:   "1.0",
		Workspace: ".",
		Policy: Policy{
			LockTimeoutS:         30,
			ShellTimeoutS:        600,
			MaxParallelWrites:    4,
			MaxWriteBytes:        8 * 1024 * 1024,
			EventBuffer:          256,
			ContinueOnShellError: false,
		},
	}
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config atomically.
func (c *Config) Save(path string) error {
	return fsutil.AtomicWriteJSON(path, c)
}

// Validate checks structural requirements and fills safe defaults for
// omitted numeric fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if c.Policy.LockTimeoutS < 0 || c.Policy.ShellTimeoutS < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Policy.LockTimeoutS == 0 {
		c.Policy.LockTimeoutS = 30
	}
	if c.Policy.MaxParallelWrites <= 0 {
		c.Policy.MaxParallelWrites = 4
	}
	if c.Policy.MaxWriteBytes <= 0 {
		c.Policy.MaxWriteBytes = 8 * 1024 * 1024
	}
	if c.Policy.EventBuffer <= 0 {
		c.Policy.EventBuffer = 256
	}
	return nil
}
