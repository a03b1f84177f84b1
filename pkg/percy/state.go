// Package percy controls the lifecycle of the Percy process a command talks
// to.
//
// A Controller owns the process state for one invocation. It starts the
// process and waits for it to become ready, queues snapshot and upload jobs
// with bounded concurrency, and stops the process either gracefully, after
// every queued job has been submitted, or forcibly when a command is
// interrupted.
//
//	ctl := percy.NewController(percy.Options{Collaborator: client, Logger: log})
//	if err := ctl.Start(ctx); err != nil {
//	    return err
//	}
//	defer ctl.Stop(ctx, true)
//
//	_ = ctl.Upload(map[string]any{"name": "home.png"})
//	return ctl.Stop(ctx, false)
package percy

// State is the lifecycle state of the Percy process.
type State int

// Lifecycle states.
//
//	Idle --Start--> Starting --ready--> Running
//	Running --Stop--> Stopping --drained--> Stopped
//	any state --failure--> Failed
//	Stopped, Failed --Start--> Starting
const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no process is running in this state.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateStopped || s == StateFailed
}
