package commands

import (
	"github.com/CliForge/percy/internal/command"
	"github.com/CliForge/percy/pkg/percy"
	"github.com/CliForge/percy/pkg/workflow"
)

// Ping checks that a Percy process is running.
func Ping() *command.Spec {
	return &command.Spec{
		Name:        "ping",
		Description: "Pings a locally running Percy process",
		Flags:       []*command.Flag{command.PortFlag},
		Percy:       &command.PercyOptions{},
		Run:         ping,
	}
}

func ping(rc *workflow.RunContext, yield workflow.Yield) error {
	if rc.Client == nil {
		return rc.Exit(0, msgDisabled)
	}

	if _, err := workflow.Await[*percy.Health](yield, healthcheck(rc.Client)); err != nil {
		rc.Log.Debug("%v", err)
		return rc.Exit(1, "Percy is not running")
	}

	rc.Log.Info("Percy is running")
	return nil
}
