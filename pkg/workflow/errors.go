package workflow

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned when a workflow is cancelled before it
// finishes, and by Await when the engine is aborting the workflow.
var ErrInterrupted = errors.New("workflow interrupted")

// ExitError is a deliberate early exit requested with RunContext.Exit.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps the error returned by Engine.Run to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return 1
}
