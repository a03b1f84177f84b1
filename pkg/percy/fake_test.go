package percy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeCollaborator is an in-memory Percy process.
type fakeCollaborator struct {
	mu sync.Mutex

	// listenAfter is the number of Start calls refused before the process
	// accepts connections. Negative means never.
	listenAfter int
	startDelay  time.Duration
	// unready keeps the healthcheck reporting no build once listening.
	unready     bool
	startErr    error
	submitErr   error
	stopErr     error
	submitDelay time.Duration

	startCalls  atomic.Int32
	stopCalls   atomic.Int32
	started     bool
	jobs        []Job
	maxInFlight int
	inFlight    int
}

func (f *fakeCollaborator) Healthcheck(ctx context.Context) (*Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return nil, ErrNotListening
	}
	if f.unready {
		return &Health{Success: false}, nil
	}
	return &Health{Success: true, Build: &Build{ID: "123", Number: 1, URL: "https://percy.io/b/123"}}, nil
}

func (f *fakeCollaborator) Start(ctx context.Context, opts StartOptions) error {
	n := f.startCalls.Add(1)
	if f.startDelay > 0 {
		select {
		case <-time.After(f.startDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.listenAfter < 0 || int(n) <= f.listenAfter {
		return ErrNotListening
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeCollaborator) SubmitJob(ctx context.Context, job Job) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.submitDelay > 0 {
		select {
		case <-time.After(f.submitDelay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.submitErr != nil {
		return f.submitErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeCollaborator) Stop(ctx context.Context) error {
	f.stopCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return f.stopErr
}

func (f *fakeCollaborator) submitted() []Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Job(nil), f.jobs...)
}
