package cli

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// newRunLogger fans engine logs out to stderr (text, for humans) and a
// per-run log file (JSON, for later inspection). The returned closer
// owns the file.
func newRunLogger(logPath string, level slog.Level, verbose bool) (*slog.Logger, io.Closer, error) {
	consoleLevel := level
	if !verbose {
		consoleLevel = slog.LevelWarn
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: consoleLevel}),
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		// a missing log file should not stop a run
		return slog.New(handlers[0]), noopCloser{}, nil
	}
	handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))

	return slog.New(slogmulti.Fanout(handlers...)), file, nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }
