package cameras

import (
	"fmt"
	"time"

	"github.com/smazurov/camstream/internal/config"
)

// Watch loads the cameras file, applies it and keeps applying it whenever
// the file changes. Invalid edits are logged and the running cameras stay
// as they are. The returned watcher must be stopped by the caller.
func (m *Manager) Watch(path string, debounce time.Duration) (*config.Watcher[*config.CamerasConfig], error) {
	cfg, err := config.LoadCameras(path)
	if err != nil {
		return nil, err
	}
	m.Apply(cfg)

	watcher, err := config.Watch(path, config.WatchOptions[*config.CamerasConfig]{
		Load: config.LoadCameras,
		Apply: func(cfg *config.CamerasConfig) {
			m.Apply(cfg)
		},
		OnError: func(err error) {
			m.logger.Error("Ignoring invalid cameras file", "path", path, "error", err)
		},
		Debounce: debounce,
		Logger:   m.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return watcher, nil
}
