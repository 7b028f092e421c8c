// Package transcript renders engine events as one-line console output.
package transcript

import (
	"fmt"
	"strings"

	"github.com/weftworks/weft/internal/events"
)

// Formatter formats events for console display.
type Formatter struct{}

// NewFormatter creates a formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatEvent renders one event, or "" for events with no console form.
func (f *Formatter) FormatEvent(evt *events.Event) string {
	switch evt.Type {
	case events.TypeActionStarted:
		return fmt.Sprintf("→ %s %s", evt.Action.Kind, f.target(evt))

	case events.TypeActionSucceeded:
		details := ""
		switch {
		case evt.Artifact != nil:
			details = fmt.Sprintf(" (%s)", f.formatSize(evt.Artifact.Size))
		case evt.PID != 0:
			details = fmt.Sprintf(" (pid %d)", evt.PID)
		case evt.ExitCode != nil:
			details = fmt.Sprintf(" (exit %d)", *evt.ExitCode)
		}
		return fmt.Sprintf("✔ %s %s%s", evt.Action.Kind, f.target(evt), details)

	case events.TypeActionFailed:
		line := fmt.Sprintf("✘ %s %s: %s", evt.Action.Kind, f.target(evt), evt.Error)
		if out := strings.TrimSpace(evt.Output); out != "" {
			line += "\n" + indent(out)
		}
		return line

	case events.TypeActionCancelled:
		return fmt.Sprintf("∅ %s %s: cancelled", evt.Action.Kind, f.target(evt))

	case events.TypeParseError:
		return fmt.Sprintf("✘ parse error: %s (near %q)", evt.Reason, evt.RawSpan)

	case events.TypeSessionCompleted:
		return "session completed" + f.formatSummary(evt.Summary)

	case events.TypeSessionAborted:
		return "session aborted" + f.formatSummary(evt.Summary)
	}
	return ""
}

func (f *Formatter) target(evt *events.Event) string {
	if evt.Action == nil {
		return ""
	}
	if evt.Action.Path != "" {
		return evt.Action.Path
	}
	return abbreviate(evt.Action.Command, 60)
}

func (f *Formatter) formatSummary(sum *events.Summary) string {
	if sum == nil {
		return ""
	}
	return fmt.Sprintf(": %d succeeded, %d failed, %d not attempted",
		len(sum.Succeeded), len(sum.Failed), len(sum.Unattempted))
}

func (f *Formatter) formatSize(size int64) string {
	switch {
	case size >= 1024*1024:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1024*1024))
	case size >= 1024:
		return fmt.Sprintf("%.1f KiB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func abbreviate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
