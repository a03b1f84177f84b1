package percy

import (
	"errors"
	"fmt"
)

// ErrNotListening is returned by a Collaborator when nothing accepts
// connections at the Percy address yet.
var ErrNotListening = errors.New("percy is not listening")

var errNotReady = errors.New("percy has not created a build yet")

var errStartAborted = errors.New("start aborted")

// StartupError is returned when the Percy process could not be started or did
// not become ready in time.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start percy: %v", e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Guidance returns a hint shown with the error.
func (e *StartupError) Guidance() string {
	if errors.Is(e.Err, ErrNotListening) {
		return "Is the Percy process running? Check PERCY_SERVER_ADDRESS or the --port flag."
	}
	return ""
}

// InvalidStateError is returned when an operation is requested in a state
// that does not allow it.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while percy is %s", e.Op, e.State)
}

// HTTPError is a non-2xx response from the Percy process.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
}
