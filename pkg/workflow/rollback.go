package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/CliForge/percy/pkg/logger"
)

// CleanupAction is a function run when a workflow is unwound.
type CleanupAction struct {
	Name string
	Fn   func(ctx context.Context) error
}

// CleanupStack holds the cleanup actions of one run. Actions run in reverse
// order of registration, and every action runs even when an earlier one
// fails.
type CleanupStack struct {
	mu      sync.Mutex
	actions []*CleanupAction
}

// Push registers a cleanup action.
func (s *CleanupStack) Push(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, &CleanupAction{Name: name, Fn: fn})
}

// Len returns the number of registered actions.
func (s *CleanupStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// CleanupStatus represents the outcome of running a cleanup stack.
type CleanupStatus struct {
	TotalActions      int
	ExecutedActions   int
	SuccessfulActions int
	FailedActions     int
	Errors            []error
}

// Run pops and runs every action in LIFO order. Failures are logged at debug
// and collected in the status; they never stop the unwinding.
func (s *CleanupStack) Run(ctx context.Context, log *logger.Logger) *CleanupStatus {
	s.mu.Lock()
	actions := s.actions
	s.actions = nil
	s.mu.Unlock()

	status := &CleanupStatus{
		TotalActions: len(actions),
		Errors:       make([]error, 0),
	}

	for i := len(actions) - 1; i >= 0; i-- {
		action := actions[i]
		status.ExecutedActions++

		if action.Fn == nil {
			status.SuccessfulActions++
			continue
		}

		if err := runCleanup(ctx, action); err != nil {
			status.FailedActions++
			status.Errors = append(status.Errors, fmt.Errorf("cleanup %s failed: %w", action.Name, err))
			log.Debug("Cleanup %s failed: %v", action.Name, err)
			continue
		}
		status.SuccessfulActions++
	}

	return status
}

func runCleanup(ctx context.Context, action *CleanupAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action.Fn(ctx)
}
