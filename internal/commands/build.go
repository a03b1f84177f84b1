package commands

import (
	"fmt"

	"github.com/CliForge/percy/internal/command"
	"github.com/CliForge/percy/pkg/percy"
	"github.com/CliForge/percy/pkg/workflow"
)

// Build groups the build commands.
func Build() *command.Spec {
	return &command.Spec{
		Name:        "build",
		Description: "Inspect Percy builds",
		Commands:    []*command.Spec{BuildID()},
	}
}

// BuildID prints the ID of the build of a running Percy process.
func BuildID() *command.Spec {
	return &command.Spec{
		Name:        "id",
		Description: "Prints the build ID from a locally running Percy process",
		Flags:       []*command.Flag{command.PortFlag},
		Percy:       &command.PercyOptions{},
		Run:         buildID,
	}
}

func buildID(rc *workflow.RunContext, yield workflow.Yield) error {
	if rc.Client == nil {
		return rc.Exit(0, msgDisabled)
	}

	health, err := workflow.Await[*percy.Health](yield, healthcheck(rc.Client))
	if err != nil {
		rc.Log.Debug("%v", err)
		return rc.Exit(1, "Percy is not running")
	}

	if health == nil || health.Build == nil || health.Build.ID == "" {
		return rc.Exit(1, "Unable to find local build information")
	}
	_, err = fmt.Fprint(rc.Log.Stdout(), health.Build.ID)
	return err
}
