package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/CliForge/percy/pkg/logger"
	"github.com/CliForge/percy/pkg/percy"
	"github.com/google/uuid"
)

// DefaultCleanupTimeout bounds the cleanup stack of a run.
const DefaultCleanupTimeout = 30 * time.Second

// Engine drives workflow bodies.
type Engine struct {
	log            *logger.Logger
	cleanupTimeout time.Duration

	mu        sync.Mutex
	observers []Observer
	last      *ExecutionState
}

// Option configures an Engine.
type Option func(*Engine)

// WithCleanupTimeout bounds the time cleanup actions may take.
func WithCleanupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.cleanupTimeout = d
	}
}

// NewEngine creates a workflow engine.
func NewEngine(log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:            log.Namespace("workflow"),
		cleanupTimeout: DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Observe registers an observer for every resolved step.
func (e *Engine) Observe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// LastState returns the execution record of the most recent run.
func (e *Engine) LastState() *ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Run runs fn to completion or until it is aborted, then unwinds the cleanup
// stack of rc.
//
// Run returns nil on success and on an exit with code 0. Steps never run
// concurrently: the body is suspended while its step runs, and only resumed
// once observers have seen the result.
func (e *Engine) Run(ctx context.Context, rc *RunContext, fn Func) error {
	state := &ExecutionState{
		ID:        uuid.NewString(),
		Command:   rc.Command,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
		Steps:     make([]*StepResult, 0),
	}
	e.mu.Lock()
	e.last = state
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	rc.ctx = ctx

	if rc.Percy != nil {
		// registered first so that it unwinds last
		rc.cleanup.Push("stop percy", forceStop(rc.Percy))
	}

	var bodyErr error
	steps := func(yield func(*Step) bool) {
		bodyErr = fn(rc, yield)
	}
	next, stop := iter.Pull(steps)

	var err error
	for {
		step, ok := next()
		if !ok {
			err = bodyErr
			break
		}

		if ctx.Err() != nil {
			err = interrupted(ctx)
			break
		}

		result := e.resolve(ctx, step)
		state.Steps = append(state.Steps, result)
		if ctx.Err() != nil {
			err = interrupted(ctx)
			break
		}

		if oerr := e.notify(observers, step); oerr != nil {
			err = oerr
			break
		}
		if step.err != nil && step.Kind == KindLifecycle {
			err = step.err
			break
		}
	}
	// resumes a suspended body with yield returning false so that its own
	// deferred calls run before the cleanup stack
	stop()

	e.cleanup(ctx, rc)
	return e.finish(state, err)
}

// resolve runs the step in its own goroutine so that cancellation of ctx is
// observed even while the step blocks.
func (e *Engine) resolve(ctx context.Context, step *Step) *StepResult {
	result := &StepResult{
		Step:      step.Name,
		Kind:      step.Kind,
		StartTime: time.Now(),
	}

	if step.Run != nil {
		type outcome struct {
			value any
			err   error
		}
		done := make(chan outcome, 1)
		go func() {
			var o outcome
			defer func() {
				if r := recover(); r != nil {
					o.err = fmt.Errorf("step %s panicked: %v", step.Name, r)
				}
				done <- o
			}()
			o.value, o.err = step.Run(ctx)
		}()

		select {
		case o := <-done:
			step.result, step.err = o.value, o.err
		case <-ctx.Done():
			step.err = interrupted(ctx)
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = step.err == nil
	result.Error = step.err

	switch {
	case step.err != nil:
		e.log.Debug("Step %s (%s) failed after %s: %v", step.Name, step.Kind, result.Duration, step.err)
	case step.Kind == KindLifecycle:
		e.log.Debug("Step %s (%s) done in %s", step.Name, step.Kind, result.Duration)
	default:
		e.log.Debug("Step %s done in %s", step.Name, result.Duration)
	}
	return result
}

func (e *Engine) notify(observers []Observer, step *Step) error {
	for _, o := range observers {
		if err := o(step); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) cleanup(ctx context.Context, rc *RunContext) {
	if rc.cleanup.Len() == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cleanupTimeout)
	defer cancel()

	status := rc.cleanup.Run(cctx, e.log)
	e.log.Debug("Cleanup ran %d of %d actions, %d failed",
		status.ExecutedActions, status.TotalActions, status.FailedActions)
}

func (e *Engine) finish(state *ExecutionState, err error) error {
	var exit *ExitError
	switch {
	case err == nil:
		state.Status = ExecutionStatusCompleted
	case errors.As(err, &exit):
		state.Status = ExecutionStatusAborted
		if exit.Code == 0 {
			state.Status = ExecutionStatusCompleted
		}
		if exit.Message != "" {
			if exit.Code == 0 {
				e.log.Info("%s", exit.Message)
			} else {
				e.log.Error("%s", exit.Message)
			}
		}
		if exit.Code == 0 {
			err = nil
		}
	case errors.Is(err, ErrInterrupted):
		state.Status = ExecutionStatusInterrupted
	default:
		state.Status = ExecutionStatusFailed
	}
	state.Error = err

	e.log.Debug("Run %s of %q %s after %d steps in %s",
		state.ID, state.Command, state.Status, len(state.Steps), time.Since(state.StartTime))
	return err
}

func interrupted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}

func forceStop(p *percy.Controller) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		switch p.State() {
		case percy.StateIdle, percy.StateStopped:
			return nil
		}
		return p.Stop(ctx, true)
	}
}
