package process

import (
	"fmt"
	"strconv"
)

// State represents the lifecycle state of a supervised process.
type State int

// Supervisor states.
const (
	StateSpawning State = iota // created, process not yet running
	StateRunning               // process running
	StateExited                // process exited or never spawned
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ExitStatus describes how a supervised process ended.
type ExitStatus struct {
	Code   int    // -1 when the process was terminated by a signal
	Signal string // empty unless terminated by a signal
	Err    error  // spawn or wait error, if any
}

// Signaled reports whether the process had no exit code.
func (e ExitStatus) Signaled() bool {
	return e.Code < 0
}

// String formats the status as "exited with code: C and signal: S".
func (e ExitStatus) String() string {
	code, signal := "none", "none"
	if e.Code >= 0 {
		code = strconv.Itoa(e.Code)
	}
	if e.Signal != "" {
		signal = e.Signal
	}
	return fmt.Sprintf("exited with code: %s and signal: %s", code, signal)
}
