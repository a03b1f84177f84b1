package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CliForge/percy/pkg/logger"
	"github.com/CliForge/percy/pkg/percy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCollaborator is a Percy process that is always listening.
type stubCollaborator struct {
	mu        sync.Mutex
	startErr  error
	block     chan struct{}
	jobs      []percy.Job
	stopCalls int
}

func (s *stubCollaborator) Healthcheck(ctx context.Context) (*percy.Health, error) {
	return &percy.Health{Success: true, Build: &percy.Build{ID: "42", Number: 7}}, nil
}

func (s *stubCollaborator) Start(ctx context.Context, opts percy.StartOptions) error {
	return s.startErr
}

func (s *stubCollaborator) SubmitJob(ctx context.Context, job percy.Job) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubCollaborator) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	return nil
}

func newTestController(collab percy.Collaborator, log *logger.Logger) *percy.Controller {
	return percy.NewController(percy.Options{
		Collaborator: collab,
		Logger:       log,
		StartTimeout: time.Second,
	})
}

func TestSteps_StartSnapshotStop(t *testing.T) {
	log, mem := logger.NewMemory()
	collab := &stubCollaborator{}
	p := newTestController(collab, log)
	engine := NewEngine(log)

	var kinds []StepKind
	engine.Observe(func(step *Step) error {
		kinds = append(kinds, step.Kind)
		return nil
	})

	var build *percy.Build
	err := engine.Run(context.Background(), &RunContext{Percy: p}, func(rc *RunContext, yield Yield) error {
		var err error
		if build, err = Await[*percy.Build](yield, StartStep(rc.Percy)); err != nil {
			return err
		}
		if err := Do(yield, SnapshotStep(rc.Percy, map[string]any{"name": "Home"})); err != nil {
			return err
		}
		if err := Do(yield, UploadStep(rc.Percy, map[string]any{"name": "logo.png"})); err != nil {
			return err
		}
		return Do(yield, StopStep(rc.Percy, false))
	})

	require.NoError(t, err)
	require.NotNil(t, build)
	assert.Equal(t, "42", string(build.ID))
	assert.Equal(t, percy.StateStopped, p.State())
	assert.Len(t, collab.jobs, 2)
	assert.Equal(t, 1, collab.stopCalls)
	assert.Equal(t, []StepKind{KindLifecycle, KindLifecycle, KindLifecycle, KindLifecycle}, kinds)
	assert.Equal(t, []string{
		"[percy] Percy has started!",
		"[percy] Stopping percy...",
		"[percy] Percy has stopped",
	}, mem.Stdout())
}

func TestSteps_ForcedStopOnInterrupt(t *testing.T) {
	log, _ := logger.NewMemory()
	collab := &stubCollaborator{block: make(chan struct{})}
	p := newTestController(collab, log)
	engine := NewEngine(log)

	ctx, cancel := context.WithCancel(context.Background())
	err := engine.Run(ctx, &RunContext{Percy: p}, func(rc *RunContext, yield Yield) error {
		if err := Do(yield, StartStep(rc.Percy)); err != nil {
			return err
		}
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		return Do(yield, SnapshotStep(rc.Percy, map[string]any{"name": "Home"}))
	})

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, percy.StateStopped, p.State())
	assert.Equal(t, 1, collab.stopCalls)
	assert.Empty(t, collab.jobs)
}

func TestSteps_StartFailureLeavesFailed(t *testing.T) {
	log, _ := logger.NewMemory()
	collab := &stubCollaborator{startErr: errors.New("port in use")}
	p := newTestController(collab, log)
	engine := NewEngine(log)

	var bodyContinued bool
	err := engine.Run(context.Background(), &RunContext{Percy: p}, func(rc *RunContext, yield Yield) error {
		if err := Do(yield, StartStep(rc.Percy)); err != nil {
			return err
		}
		bodyContinued = true
		return nil
	})

	var startup *percy.StartupError
	require.ErrorAs(t, err, &startup)
	assert.False(t, bodyContinued)
	assert.Equal(t, percy.StateFailed, p.State())
	assert.Equal(t, 0, collab.stopCalls)
}

func TestSteps_ExitBeforeStartLeavesIdle(t *testing.T) {
	log, mem := logger.NewMemory()
	collab := &stubCollaborator{}
	p := newTestController(collab, log)
	engine := NewEngine(log)

	err := engine.Run(context.Background(), &RunContext{Percy: p}, func(rc *RunContext, yield Yield) error {
		return rc.Exit(1, "No matching files found in './missing'")
	})

	assert.Equal(t, 1, ExitCode(err))
	assert.Equal(t, percy.StateIdle, p.State())
	assert.Equal(t, 0, collab.stopCalls)
	assert.Equal(t, []string{"[percy] No matching files found in './missing'"}, mem.Stderr())
}
