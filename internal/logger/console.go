// Package logger provides run-progress logging for the Juno control loop.
//
// The console logger reports cycle, team, grading and scaling events with
// [HH:MM:SS] timestamps and level filtering. Implementations are safe for
// concurrent use. Color output is enabled automatically when writing to a
// terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// ConsoleLogger writes timestamped run events to a writer. A nil writer
// discards everything.
type ConsoleLogger struct {
	writer   io.Writer
	level    int
	useColor bool
	mu       sync.Mutex
}

// NewConsoleLogger creates a logger over the writer at the given level.
// Valid levels are debug, info, warn and error; anything else means info.
func NewConsoleLogger(writer io.Writer, level string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:   writer,
		level:    parseLevel(level),
		useColor: isTerminal(writer),
	}
}

func parseLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// isTerminal reports whether the writer is a TTY that supports color.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (cl *ConsoleLogger) log(level int, line string) {
	if cl.writer == nil || level < cl.level {
		return
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	fmt.Fprintf(cl.writer, "[%s] %s\n", time.Now().Format("15:04:05"), line)
}

// Debugf logs a debug-level message.
func (cl *ConsoleLogger) Debugf(format string, args ...any) {
	cl.log(levelDebug, fmt.Sprintf(format, args...))
}

// Infof logs an info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...any) {
	cl.log(levelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a warn-level message.
func (cl *ConsoleLogger) Warnf(format string, args ...any) {
	if cl.useColor {
		cl.log(levelWarn, color.New(color.FgYellow).Sprintf(format, args...))
		return
	}
	cl.log(levelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs an error-level message.
func (cl *ConsoleLogger) Errorf(format string, args ...any) {
	if cl.useColor {
		cl.log(levelError, color.New(color.FgRed).Sprintf(format, args...))
		return
	}
	cl.log(levelError, fmt.Sprintf(format, args...))
}

// CycleStart reports a new cycle and its task.
func (cl *ConsoleLogger) CycleStart(cycle int, task string) {
	header := fmt.Sprintf("Cycle %d", cycle)
	if cl.useColor {
		header = color.New(color.Bold).Sprint(header)
	}
	cl.log(levelInfo, fmt.Sprintf("%s: %s", header, truncate(task, 80)))
}

// TeamResult reports a team finishing its work on the current task.
func (cl *ConsoleLogger) TeamResult(team string, success bool, duration time.Duration) {
	status := "done"
	if !success {
		status = "failed"
	}
	if cl.useColor {
		c := color.New(color.FgGreen)
		if !success {
			c = color.New(color.FgRed)
		}
		status = c.Sprint(status)
	}
	cl.log(levelInfo, fmt.Sprintf("team %s %s (%s)", team, status, formatDuration(duration)))
}

// Grade reports a team's score for the current task.
func (cl *ConsoleLogger) Grade(team string, score float64, deadlineMet bool) {
	line := fmt.Sprintf("team %s graded %.2f", team, score)
	if !deadlineMet {
		miss := "deadline missed"
		if cl.useColor {
			miss = color.New(color.FgRed).Sprint(miss)
		}
		line += ", " + miss
	}
	cl.log(levelInfo, line)
}

// Escalation reports a team being routed to the improvement pipeline.
func (cl *ConsoleLogger) Escalation(team, reason string) {
	line := fmt.Sprintf("escalating team %s: %s", team, reason)
	if cl.useColor {
		line = color.New(color.FgYellow).Sprint(line)
	}
	cl.log(levelWarn, line)
}

// ResourceChange reports an applied capacity change.
func (cl *ConsoleLogger) ResourceChange(team string, from, to int) {
	cl.log(levelInfo, fmt.Sprintf("team %s scaled %d -> %d agents", team, from, to))
}

// RunSummary reports the end-of-run totals.
func (cl *ConsoleLogger) RunSummary(cycles, tasks, missedDeadlines int, duration time.Duration) {
	if cl.writer == nil || cl.level > levelInfo {
		return
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	header := "=== Run Summary ==="
	if cl.useColor {
		header = color.New(color.Bold).Sprint(header)
	}
	fmt.Fprintf(cl.writer, "[%s] %s\n", ts, header)
	fmt.Fprintf(cl.writer, "[%s] Cycles: %d\n", ts, cycles)
	fmt.Fprintf(cl.writer, "[%s] Tasks completed: %d\n", ts, tasks)
	if missedDeadlines > 0 && cl.useColor {
		fmt.Fprintf(cl.writer, "[%s] %s\n", ts, color.New(color.FgRed).Sprintf("Deadlines missed: %d", missedDeadlines))
	} else {
		fmt.Fprintf(cl.writer, "[%s] Deadlines missed: %d\n", ts, missedDeadlines)
	}
	fmt.Fprintf(cl.writer, "[%s] Duration: %s\n", ts, formatDuration(duration))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatDuration renders a duration as 5s, 1m30s or 2h15m3s.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		h := d / time.Hour
		m := (d % time.Hour) / time.Minute
		s := (d % time.Minute) / time.Second
		if m == 0 && s == 0 {
			return fmt.Sprintf("%dh", h)
		}
		if s == 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	case d >= time.Minute:
		m := d / time.Minute
		s := (d % time.Minute) / time.Second
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger discards all events. Useful in tests.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (n *NoOpLogger) Debugf(format string, args ...any)                  {}
func (n *NoOpLogger) Infof(format string, args ...any)                   {}
func (n *NoOpLogger) Warnf(format string, args ...any)                   {}
func (n *NoOpLogger) Errorf(format string, args ...any)                  {}
func (n *NoOpLogger) CycleStart(cycle int, task string)                  {}
func (n *NoOpLogger) TeamResult(team string, ok bool, d time.Duration)   {}
func (n *NoOpLogger) Grade(team string, score float64, deadlineMet bool) {}
func (n *NoOpLogger) Escalation(team, reason string)                     {}
func (n *NoOpLogger) ResourceChange(team string, from, to int)           {}
func (n *NoOpLogger) RunSummary(cycles, tasks, missed int, d time.Duration) {
}

// Logger is the event surface the run loop reports through.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	CycleStart(cycle int, task string)
	TeamResult(team string, success bool, duration time.Duration)
	Grade(team string, score float64, deadlineMet bool)
	Escalation(team, reason string)
	ResourceChange(team string, from, to int)
	RunSummary(cycles, tasks, missedDeadlines int, duration time.Duration)
}
