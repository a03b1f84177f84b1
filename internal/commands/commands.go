// Package commands implements the percy commands.
package commands

import (
	"context"

	"github.com/CliForge/percy/internal/command"
	"github.com/CliForge/percy/pkg/percy"
	"github.com/CliForge/percy/pkg/workflow"
)

// All returns every top-level command, in the order they are listed in help.
func All() []*command.Spec {
	return []*command.Spec{
		Ping(),
		Stop(),
		Build(),
		Snapshot(),
		Upload(),
		Config(),
	}
}

const msgDisabled = "Percy is disabled"

// healthcheck asks a running Percy process for its health.
func healthcheck(c percy.Collaborator) *workflow.Step {
	return workflow.Info("percy:healthcheck", func(ctx context.Context) (any, error) {
		return c.Healthcheck(ctx)
	})
}
