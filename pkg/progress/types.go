// Package progress shows a terminal spinner while a command waits on the
// Percy process.
package progress

import (
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// Config configures progress indicators.
type Config struct {
	// Enabled determines if progress indicators are shown.
	Enabled bool

	// Writer is where to write progress output.
	Writer io.Writer

	// RefreshRate is how often the spinner is redrawn.
	RefreshRate time.Duration
}

// DefaultConfig returns the default progress configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Writer:      os.Stderr,
		RefreshRate: 100 * time.Millisecond,
	}
}

// Detect returns a configuration writing to w that is only enabled when w is
// a terminal and quiet is false.
func Detect(w io.Writer, quiet bool) *Config {
	config := DefaultConfig()
	config.Writer = w
	config.Enabled = !quiet && IsTerminal(w)
	return config
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
