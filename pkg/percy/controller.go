package percy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CliForge/percy/pkg/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Default controller settings.
const (
	DefaultStartTimeout = 10 * time.Second
	DefaultConcurrency  = 5
)

// Indicator shows that the controller is waiting on the Percy process.
type Indicator interface {
	Start(message string)
	Stop()
}

// Options configures a Controller.
type Options struct {
	Collaborator Collaborator
	Logger       *logger.Logger

	// StartOptions are sent to the Percy process on start.
	StartOptions StartOptions

	// StartTimeout bounds the wait for the process to become ready.
	StartTimeout time.Duration

	// Concurrency bounds the number of jobs submitted at once.
	Concurrency int

	// DryRun logs jobs instead of submitting them.
	DryRun bool

	// Registerer receives the controller metrics. May be nil.
	Registerer prometheus.Registerer

	// Indicator is shown while waiting for the process. May be nil.
	Indicator Indicator
}

// Controller owns the lifecycle state of the Percy process for one
// invocation. All methods are safe for concurrent use; concurrent Start or
// Stop calls collapse into the transition already in flight.
type Controller struct {
	collab    Collaborator
	log       *logger.Logger
	opts      Options
	metrics   *Metrics
	indicator Indicator

	flight singleflight.Group

	mu          sync.Mutex
	state       State
	concurrency int
	build       *Build
	attempt     int
	startCancel context.CancelFunc
	jobs        *errgroup.Group
	jobsCtx     context.Context
	jobsCancel  context.CancelFunc
	pending     sync.WaitGroup
	submitted   int
}

// NewController creates a controller in the Idle state.
func NewController(opts Options) *Controller {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	log := opts.Logger
	if log == nil {
		log = logger.New(nil, nil)
		log.SetLevel(logger.LevelSilent)
	}

	return &Controller{
		collab:      opts.Collaborator,
		log:         log.Namespace("core"),
		opts:        opts,
		metrics:     newMetrics(opts.Registerer),
		indicator:   opts.Indicator,
		state:       StateIdle,
		concurrency: opts.Concurrency,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Build returns the build reported by the process once it is running.
func (c *Controller) Build() *Build {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.build
}

// Submitted returns the number of jobs queued since the last start.
func (c *Controller) Submitted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

// Metrics returns the controller counters.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// SetConcurrency changes the job concurrency. It is only allowed before the
// first start.
func (c *Controller) SetConcurrency(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return &InvalidStateError{Op: "change concurrency", State: c.state}
	}
	if n < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", n)
	}
	c.concurrency = n
	return nil
}

// Start starts the Percy process and waits until it is ready. It returns
// immediately when the process is already running.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateRunning:
		return nil
	case StateStopping:
		return &InvalidStateError{Op: "start", State: state}
	}

	_, err, _ := c.flight.Do("start", func() (any, error) {
		return nil, c.start(ctx)
	})
	return err
}

func (c *Controller) start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.attempt++
	attempt := c.attempt
	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.startCancel = cancel
	c.build = nil
	c.submitted = 0
	c.setStateLocked(StateStarting)
	c.mu.Unlock()

	if c.indicator != nil {
		c.indicator.Start("Waiting for Percy to start...")
	}
	health, started, err := c.waitReady(startCtx)
	if c.indicator != nil {
		c.indicator.Stop()
	}

	c.mu.Lock()
	// A forced stop, and possibly a newer start, took over this attempt.
	if c.attempt != attempt || c.state != StateStarting {
		if c.attempt == attempt {
			c.startCancel = nil
		}
		c.mu.Unlock()
		return &StartupError{Err: errStartAborted}
	}
	c.startCancel = nil

	if err != nil {
		c.setStateLocked(StateFailed)
		c.mu.Unlock()
		if started {
			c.release(ctx)
		}
		return &StartupError{Err: err}
	}
	defer c.mu.Unlock()

	c.build = health.Build
	c.jobsCtx, c.jobsCancel = context.WithCancel(context.WithoutCancel(ctx))
	c.jobs = &errgroup.Group{}
	c.jobs.SetLimit(c.concurrency)
	c.setStateLocked(StateRunning)

	c.log.Info("Percy has started!")
	if health.Build != nil && health.Build.URL != "" {
		c.log.Debug("Build #%d: %s", health.Build.Number, health.Build.URL)
	}
	return nil
}

// waitReady asks the process to start and polls its healthcheck until it
// reports a build. Both requests are retried while the process is not
// listening yet. started reports whether the process accepted Start.
func (c *Controller) waitReady(ctx context.Context) (health *Health, started bool, err error) {
	op := func() (*Health, error) {
		if !started {
			if err := c.collab.Start(ctx, c.opts.StartOptions); err != nil {
				return nil, retryable(err)
			}
			started = true
		}

		health, err := c.collab.Healthcheck(ctx)
		if err != nil {
			return nil, retryable(err)
		}
		if !health.Success {
			return nil, errNotReady
		}
		return health, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	health, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.opts.StartTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Debug("Waiting for percy (%v), retrying in %s", err, next)
		}),
	)
	return health, started, err
}

// release asks a process that accepted Start but never became ready to shut
// down.
func (c *Controller) release(ctx context.Context) {
	c.log.Debug("Stopping percy after a failed start")
	if err := c.collab.Stop(context.WithoutCancel(ctx)); err != nil {
		c.log.Debug("Ignoring error while stopping percy: %v", err)
	}
}

func retryable(err error) error {
	if errors.Is(err, ErrNotListening) {
		return err
	}
	return backoff.Permanent(err)
}

// Snapshot submits a snapshot job and waits for the process to accept it.
func (c *Controller) Snapshot(ctx context.Context, payload map[string]any) error {
	done, err := c.enqueue(JobSnapshot, payload, true)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Upload queues an upload job. Failures are reported by Stop.
func (c *Controller) Upload(payload map[string]any) error {
	_, err := c.enqueue(JobUpload, payload, false)
	return err
}

// drain blocks until every queued job has been submitted and returns the
// first upload failure. Callers must have left the Running state.
func (c *Controller) drain() error {
	c.mu.Lock()
	group := c.jobs
	c.mu.Unlock()

	c.pending.Wait()
	if group == nil {
		return nil
	}
	return group.Wait()
}

func (c *Controller) enqueue(kind JobKind, payload map[string]any, wait bool) (<-chan error, error) {
	c.mu.Lock()
	if c.state != StateRunning {
		state := c.state
		c.mu.Unlock()
		return nil, &InvalidStateError{Op: "submit " + string(kind), State: state}
	}
	job := Job{ID: uuid.NewString(), Kind: kind, Payload: payload}
	group, ctx := c.jobs, c.jobsCtx
	c.submitted++
	c.pending.Add(1)
	c.mu.Unlock()

	c.metrics.JobsSubmitted.WithLabelValues(string(kind)).Inc()

	done := make(chan error, 1)
	group.Go(func() error {
		err := c.submit(ctx, job)
		done <- err
		if wait {
			return nil
		}
		return err
	})
	c.pending.Done()
	return done, nil
}

func (c *Controller) submit(ctx context.Context, job Job) error {
	if c.opts.DryRun {
		c.log.Info("Dry run %s: %s", job.Kind, job.Name())
		return nil
	}

	c.log.Debug("Submitting %s %s (%s)", job.Kind, job.Name(), job.ID)
	if err := c.collab.SubmitJob(ctx, job); err != nil {
		c.metrics.JobFailures.WithLabelValues(string(job.Kind)).Inc()
		return fmt.Errorf("failed to submit %s %s: %w", job.Kind, job.Name(), err)
	}
	return nil
}

// Stop stops the Percy process.
//
// A graceful stop waits for every queued job, then asks the process to
// finalize the build. A forced stop transitions immediately, cancels pending
// work and notifies the process on a best-effort basis; it never fails.
// Stopping an idle or stopped controller does nothing.
func (c *Controller) Stop(ctx context.Context, force bool) error {
	if force {
		c.forceStop(ctx)
		return nil
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateIdle, StateStopped, StateFailed:
		return nil
	case StateStarting:
		return &InvalidStateError{Op: "stop", State: state}
	}

	_, err, _ := c.flight.Do("stop", func() (any, error) {
		return nil, c.stop(ctx)
	})
	return err
}

func (c *Controller) stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateStopping)
	submitted := c.submitted
	c.mu.Unlock()

	c.log.Info("Stopping percy...")
	if c.indicator != nil {
		c.indicator.Start("Finalizing build...")
	}
	jobErr := c.drain()
	if submitted == 0 {
		c.log.Warn("Build not created")
	}
	stopErr := c.collab.Stop(ctx)
	if c.indicator != nil {
		c.indicator.Stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStopping {
		return nil
	}
	c.jobsCancel()

	if err := errors.Join(jobErr, stopErr); err != nil {
		c.setStateLocked(StateFailed)
		return err
	}
	c.setStateLocked(StateStopped)
	c.log.Info("Percy has stopped")
	return nil
}

func (c *Controller) forceStop(ctx context.Context) {
	c.mu.Lock()
	prev := c.state
	if prev == StateIdle || prev == StateStopped {
		c.mu.Unlock()
		return
	}
	if prev != StateFailed {
		c.setStateLocked(StateStopped)
	}
	if c.startCancel != nil {
		c.startCancel()
	}
	if prev == StateStarting {
		c.flight.Forget("start")
	}
	if c.jobsCancel != nil {
		c.jobsCancel()
	}
	c.mu.Unlock()

	if prev == StateFailed {
		return
	}

	c.log.Debug("Forcing percy to stop from %s", prev)
	if err := c.collab.Stop(ctx); err != nil {
		c.log.Debug("Ignoring error while forcing stop: %v", err)
	}
}

func (c *Controller) setStateLocked(to State) {
	from := c.state
	c.state = to
	c.metrics.Transitions.WithLabelValues(from.String(), to.String()).Inc()
	c.log.Debug("State %s -> %s", from, to)
}
