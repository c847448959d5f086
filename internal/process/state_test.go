package process

import (
	"log/slog"
	"testing"
	"time"
)

func TestExitStatusString(t *testing.T) {
	tests := []struct {
		status ExitStatus
		want   string
	}{
		{ExitStatus{Code: 0}, "exited with code: 0 and signal: none"},
		{ExitStatus{Code: 1}, "exited with code: 1 and signal: none"},
		{ExitStatus{Code: -1, Signal: "SIGKILL"}, "exited with code: none and signal: SIGKILL"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateSpawning: "spawning",
		StateRunning:  "running",
		StateExited:   "exited",
		State(42):     "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestLatencyLevel(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    slog.Level
	}{
		{0, slog.LevelDebug},
		{4999 * time.Millisecond, slog.LevelDebug},
		{5 * time.Second, slog.LevelWarn},
		{21 * time.Second, slog.LevelWarn},
		{22 * time.Second, slog.LevelError},
		{time.Minute, slog.LevelError},
	}
	for _, tt := range tests {
		if got := LatencyLevel(tt.elapsed); got != tt.want {
			t.Errorf("LatencyLevel(%v) = %v, want %v", tt.elapsed, got, tt.want)
		}
	}
}
