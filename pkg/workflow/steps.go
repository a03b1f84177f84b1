package workflow

import (
	"context"
	"fmt"

	"github.com/CliForge/percy/pkg/percy"
)

// Await yields step and returns its result as T.
//
// It returns the step's error for failed info steps, and ErrInterrupted when
// the engine is aborting the workflow.
func Await[T any](yield Yield, step *Step) (T, error) {
	var zero T
	if !yield(step) {
		return zero, ErrInterrupted
	}
	if step.err != nil {
		return zero, step.err
	}
	if step.result == nil {
		return zero, nil
	}
	v, ok := step.result.(T)
	if !ok {
		return zero, fmt.Errorf("step %s resolved to %T, expected %T", step.Name, step.result, zero)
	}
	return v, nil
}

// Do yields step and discards its result.
func Do(yield Yield, step *Step) error {
	if !yield(step) {
		return ErrInterrupted
	}
	return step.err
}

// StartStep starts the Percy process.
func StartStep(p *percy.Controller) *Step {
	return Lifecycle("percy:start", func(ctx context.Context) (any, error) {
		if err := p.Start(ctx); err != nil {
			return nil, err
		}
		return p.Build(), nil
	})
}

// StopStep stops the Percy process, waiting for queued jobs unless force is
// set.
func StopStep(p *percy.Controller, force bool) *Step {
	return Lifecycle("percy:stop", func(ctx context.Context) (any, error) {
		return nil, p.Stop(ctx, force)
	})
}

// SnapshotStep submits a snapshot and waits for the process to accept it.
func SnapshotStep(p *percy.Controller, payload map[string]any) *Step {
	return Lifecycle("percy:snapshot", func(ctx context.Context) (any, error) {
		return nil, p.Snapshot(ctx, payload)
	})
}

// UploadStep queues an upload.
func UploadStep(p *percy.Controller, payload map[string]any) *Step {
	return Lifecycle("percy:upload", func(ctx context.Context) (any, error) {
		return nil, p.Upload(payload)
	})
}
