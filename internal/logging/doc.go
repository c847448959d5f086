// Package logging wraps log/slog with per-module levels and a short in-memory
// history.
//
// Every logger writes to stdout, to the systemd journal when journald is
// reachable, and to a ring buffer that backs the /api/logs endpoints. When
// stdout is itself a journald stream only the native journal output is used.
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"streaming": "debug"},
//	})
//	logger := logging.GetLogger("streaming").With("session_id", id)
//
// Loggers may be obtained before Initialize; they log at info level until it
// runs and pick up their configured level afterwards.
//
// Camera loggers come from [ForCamera]. Journal fields are the upper-cased
// attribute keys:
//
//	journalctl -t camstream MODULE=camera CAMERA=porch
package logging
