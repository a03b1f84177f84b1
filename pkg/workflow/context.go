package workflow

import (
	"context"

	"github.com/CliForge/percy/pkg/config"
	"github.com/CliForge/percy/pkg/logger"
	"github.com/CliForge/percy/pkg/percy"
)

// RunContext is what a workflow body runs with.
type RunContext struct {
	// Command is the full name of the running command, e.g. "build id".
	Command string

	// Args holds positional arguments by name. Arguments with an attribute
	// function are stored under the attribute they resolved to.
	Args map[string]string

	// Flags holds the value of every flag of the command, set or not.
	Flags map[string]any

	// Config is the resolved and validated configuration.
	Config config.Object

	// Env holds the PERCY_* environment.
	Env *config.Env

	// Schema is the combined config registry, for commands that inspect or
	// migrate config documents.
	Schema *config.Registry

	// Loader locates config files. ConfigPath is the file Config was read
	// from, or "".
	Loader     *config.Loader
	ConfigPath string

	// Percy controls the Percy process. It is nil for commands that do not
	// need one, and when Percy is disabled.
	Percy *percy.Controller

	// Client talks to an already running Percy process. It is set whenever
	// Percy is.
	Client percy.Collaborator

	// Log is the command logger.
	Log *logger.Logger

	ctx     context.Context
	cleanup CleanupStack
}

// Context returns the context of the current run. It is cancelled when the
// run is interrupted.
func (rc *RunContext) Context() context.Context {
	if rc.ctx == nil {
		return context.Background()
	}
	return rc.ctx
}

// Exit requests an early exit. The returned error must be returned from the
// workflow body. Code 0 is a deliberate, successful skip.
func (rc *RunContext) Exit(code int, message string) error {
	return &ExitError{Code: code, Message: message}
}

// Defer registers a cleanup action that runs when the workflow ends, however
// it ends.
func (rc *RunContext) Defer(name string, fn func(ctx context.Context) error) {
	rc.cleanup.Push(name, fn)
}

// Arg returns the positional argument stored under name.
func (rc *RunContext) Arg(name string) string {
	return rc.Args[name]
}

// Flag returns the value of the named flag.
func (rc *RunContext) Flag(name string) any {
	return rc.Flags[name]
}
