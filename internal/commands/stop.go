package commands

import (
	"context"
	"errors"
	"time"

	"github.com/CliForge/percy/internal/command"
	"github.com/CliForge/percy/pkg/percy"
	"github.com/CliForge/percy/pkg/workflow"
	"github.com/cenkalti/backoff/v5"
)

// stopPollInterval is how often the healthcheck is polled after asking the
// process to stop.
var stopPollInterval = 100 * time.Millisecond

var errStillRunning = errors.New("percy is still running")

// Stop stops a Percy process running in another terminal or job.
func Stop() *command.Spec {
	return &command.Spec{
		Name:        "stop",
		Description: "Stops a locally running Percy process",
		Flags:       []*command.Flag{command.PortFlag},
		Percy:       &command.PercyOptions{},
		Run:         stop,
	}
}

func stop(rc *workflow.RunContext, yield workflow.Yield) error {
	if rc.Client == nil {
		return rc.Exit(0, msgDisabled)
	}

	err := workflow.Do(yield, workflow.Info("percy:request-stop", func(ctx context.Context) (any, error) {
		return nil, rc.Client.Stop(ctx)
	}))
	if err != nil {
		rc.Log.Debug("%v", err)
		return rc.Exit(1, "Percy is not running")
	}

	err = workflow.Do(yield, workflow.Info("percy:wait-stopped", func(ctx context.Context) (any, error) {
		return nil, waitStopped(ctx, rc.Client)
	}))
	if err != nil {
		return err
	}

	rc.Log.Info("Percy has stopped")
	return nil
}

// waitStopped polls the healthcheck until it fails.
func waitStopped(ctx context.Context, c percy.Collaborator) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if _, err := c.Healthcheck(ctx); err != nil {
			return struct{}{}, nil
		}
		return struct{}{}, errStillRunning
	}, backoff.WithBackOff(backoff.NewConstantBackOff(stopPollInterval)))
	return err
}
