// Package logger provides the leveled, namespaced logger used by every percy
// command.
//
// Informational and debug lines are written to the standard output channel,
// warnings and errors to the standard error channel. Every line carries a
// "[percy]" prefix; debug lines also carry their namespace, for example
// "[percy:config] loaded .percy.yml".
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pterm/pterm"
)

// Level is the minimum severity a logger writes.
type Level int

const (
	// LevelDebug writes everything, including namespaced diagnostics.
	LevelDebug Level = iota
	// LevelInfo is the default level.
	LevelInfo
	// LevelWarn hides informational output.
	LevelWarn
	// LevelError only writes errors.
	LevelError
	// LevelSilent writes nothing.
	LevelSilent
)

// String returns the lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelSilent:
		return "silent"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name as accepted by PERCY_LOGLEVEL.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "silent":
		return LevelSilent, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// shared is the state every namespaced copy of a logger points at.
type shared struct {
	mu     sync.Mutex
	level  Level
	color  bool
	stdout io.Writer
	stderr io.Writer
}

// Logger writes percy log lines.
type Logger struct {
	namespace string
	s         *shared
}

// New creates a logger writing to the given channels at LevelInfo.
func New(stdout, stderr io.Writer) *Logger {
	return &Logger{
		s: &shared{
			level:  LevelInfo,
			stdout: stdout,
			stderr: stderr,
		},
	}
}

// SetLevel changes the level of this logger and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.level = level
}

// Level returns the current level.
func (l *Logger) Level() Level {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.level
}

// SetColor enables or disables colored prefixes.
func (l *Logger) SetColor(enabled bool) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.color = enabled
}

// Namespace returns a logger sharing output and level whose debug lines are
// tagged with ns.
func (l *Logger) Namespace(ns string) *Logger {
	return &Logger{namespace: ns, s: l.s}
}

// Stdout returns the raw standard output channel, for command results that
// must not carry a prefix.
func (l *Logger) Stdout() io.Writer {
	return l.s.stdout
}

// Debug logs a diagnostic line. It is only written at LevelDebug.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

// Info logs an informational line.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Enabled reports whether a line at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

func (l *Logger) log(level Level, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	if level < l.s.level || l.s.level == LevelSilent {
		return
	}

	w := l.s.stdout
	if level >= LevelWarn {
		w = l.s.stderr
	}

	for _, line := range strings.Split(msg, "\n") {
		_, _ = fmt.Fprintf(w, "%s %s\n", l.prefix(level), l.paint(level, line))
	}
}

func (l *Logger) prefix(level Level) string {
	label := "percy"
	if level == LevelDebug && l.namespace != "" {
		label = "percy:" + l.namespace
	}
	label = "[" + label + "]"

	if !l.s.color {
		return label
	}
	if level == LevelDebug {
		return pterm.Gray(label)
	}
	return pterm.Magenta(label)
}

func (l *Logger) paint(level Level, msg string) string {
	if !l.s.color {
		return msg
	}
	switch level {
	case LevelError:
		return pterm.Red(msg)
	case LevelWarn:
		return pterm.Yellow(msg)
	default:
		return msg
	}
}
