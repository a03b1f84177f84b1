package progress

import (
	"sync"

	"github.com/briandowns/spinner"
)

// Spinner is a single-line spinner. A disabled spinner does nothing.
type Spinner struct {
	config *Config

	mu      sync.Mutex
	spinner *spinner.Spinner
}

// NewSpinner creates a spinner.
func NewSpinner(config *Config) *Spinner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Spinner{config: config}
}

// Start shows the spinner with message. Starting an active spinner only
// changes its message.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Enabled {
		return
	}
	if s.spinner != nil {
		s.spinner.Lock()
		s.spinner.Suffix = " " + message
		s.spinner.Unlock()
		return
	}

	sp := spinner.New(spinner.CharSets[14], s.config.RefreshRate, spinner.WithWriter(s.config.Writer))
	sp.Suffix = " " + message
	sp.Start()
	s.spinner = sp
}

// Stop removes the spinner.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spinner == nil {
		return
	}
	s.spinner.Stop()
	s.spinner = nil
}

// IsActive returns true if the spinner is active.
func (s *Spinner) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spinner != nil
}
