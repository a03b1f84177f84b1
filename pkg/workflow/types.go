// Package workflow runs percy commands as interruptible workflows.
//
// A command body is an ordinary function that hands each asynchronous step to
// the engine through a yield callback instead of running it directly. The
// engine runs the step, lets observers see or replace its result, and then
// resumes the body with that result. Because the body only ever makes
// progress inside yield, the engine can stop it at any step boundary: on a
// signal, a failed lifecycle step, an observer error or an exit request. It
// then unwinds the cleanup stack, which always includes forcing the Percy
// process to stop.
//
// # Writing a Workflow
//
//	func ping(rc *workflow.RunContext, yield workflow.Yield) error {
//	    health, err := workflow.Await[*percy.Health](yield, workflow.Info("healthcheck",
//	        func(ctx context.Context) (any, error) {
//	            return rc.Client.Healthcheck(ctx)
//	        }))
//	    if err != nil {
//	        return rc.Exit(1, "Percy is not running")
//	    }
//	    rc.Log.Info("Percy is running")
//	    return nil
//	}
//
// # Step Kinds
//
//   - info: the step's error is handed back to the body, which may recover
//   - lifecycle: the step drives the Percy process; its error aborts the
//     workflow
package workflow

import (
	"context"
	"time"
)

// Func is a workflow body.
type Func func(rc *RunContext, yield Yield) error

// Yield hands a step to the engine and suspends the body until the step has
// been resolved. It returns false when the workflow is being aborted; the
// body must then return promptly.
type Yield func(step *Step) bool

// Observer sees every resolved step in order. It may replace the result with
// Step.SetResult, or abort the workflow by returning an error.
type Observer func(step *Step) error

// StepKind defines how a step failure is handled.
type StepKind string

const (
	// KindInfo steps report their error back to the body.
	KindInfo StepKind = "info"
	// KindLifecycle steps abort the workflow when they fail.
	KindLifecycle StepKind = "lifecycle"
)

// Step is a unit of asynchronous work yielded by a workflow.
type Step struct {
	Name string
	Kind StepKind
	Run  func(ctx context.Context) (any, error)

	result any
	err    error
}

// Info creates an informational step.
func Info(name string, run func(ctx context.Context) (any, error)) *Step {
	return &Step{Name: name, Kind: KindInfo, Run: run}
}

// Lifecycle creates a lifecycle step.
func Lifecycle(name string, run func(ctx context.Context) (any, error)) *Step {
	return &Step{Name: name, Kind: KindLifecycle, Run: run}
}

// Result returns the resolved value of the step.
func (s *Step) Result() any {
	return s.result
}

// Err returns the error the step resolved with.
func (s *Step) Err() error {
	return s.err
}

// SetResult replaces the resolved value of the step.
func (s *Step) SetResult(v any) {
	s.result = v
}

// StepResult records one resolved step.
type StepResult struct {
	Step      string
	Kind      StepKind
	Success   bool
	Error     error
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// ExecutionState represents the state of one workflow run.
type ExecutionState struct {
	ID        string
	Command   string
	StartTime time.Time
	Status    ExecutionStatus
	Steps     []*StepResult
	Error     error
}

// ExecutionStatus defines the status of workflow execution.
type ExecutionStatus string

const (
	// ExecutionStatusPending indicates the workflow is waiting to start.
	ExecutionStatusPending ExecutionStatus = "pending"
	// ExecutionStatusRunning indicates the workflow is currently executing.
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates the workflow completed successfully.
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates the workflow failed.
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusAborted indicates the workflow exited early.
	ExecutionStatusAborted ExecutionStatus = "aborted"
	// ExecutionStatusInterrupted indicates the workflow was cancelled.
	ExecutionStatusInterrupted ExecutionStatus = "interrupted"
)
