package logging

import "log/slog"

// CameraModule is the module name carried by camera-scoped loggers.
const CameraModule = "camera"

// ForCamera returns a logger tagged with the camera name. With debug set it
// logs at debug level whatever the camera module is configured to, which
// lets one noisy camera be inspected on its own.
func ForCamera(name string, debug bool) *slog.Logger {
	if !debug {
		return GetLogger(CameraModule).With("camera", name)
	}

	std.mu.RLock()
	handler := std.handlerFor(slog.LevelDebug)
	std.mu.RUnlock()
	return slog.New(handler).With("module", CameraModule, "camera", name)
}
