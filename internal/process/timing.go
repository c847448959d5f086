package process

import (
	"log/slog"
	"time"
)

// Latency thresholds shared by stream startup and snapshot fetches.
const (
	FastThreshold = 5 * time.Second
	SlowThreshold = 22 * time.Second
)

// LatencyLevel grades an elapsed time: debug below FastThreshold, warn
// below SlowThreshold, error otherwise.
func LatencyLevel(elapsed time.Duration) slog.Level {
	switch {
	case elapsed < FastThreshold:
		return slog.LevelDebug
	case elapsed < SlowThreshold:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
