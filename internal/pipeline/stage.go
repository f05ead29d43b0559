package pipeline

import "fmt"

// Stage identifies where in the staged startup sequence a failure
// occurred. Each stage maps to a distinct process exit code so service
// managers can tell a missing device from a missing port.
type Stage int

const (
	StageSynthInit Stage = iota
	StageDaemonize
	StageConsumerStart
	StageDeviceOpen
	StageSourceOpen
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageSynthInit:
		return "synth-init"
	case StageDaemonize:
		return "daemonize"
	case StageConsumerStart:
		return "consumer-start"
	case StageDeviceOpen:
		return "device-open"
	case StageSourceOpen:
		return "source-open"
	default:
		return "unknown"
	}
}

// StageError wraps a startup failure with the stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements error.
func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *StageError) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit code for the failed stage.
func (e *StageError) ExitCode() int {
	switch e.Stage {
	case StageSynthInit:
		return 2
	case StageDaemonize:
		return 3
	case StageConsumerStart:
		return 4
	case StageDeviceOpen:
		return 5
	case StageSourceOpen:
		return 6
	default:
		return 1
	}
}
