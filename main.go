package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/camstream/cmd"
	"github.com/smazurov/camstream/internal/api"
	"github.com/smazurov/camstream/internal/cameras"
	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/logging"
	"github.com/smazurov/camstream/internal/metrics"
	"github.com/smazurov/camstream/internal/metrics/exporters"
	"github.com/smazurov/camstream/internal/version"
	"golang.org/x/sys/unix"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port            string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSAllowOrigin string `help:"Access-Control-Allow-Origin value" default:"*" toml:"server.cors_allow_origin" env:"SERVER_CORS_ALLOW_ORIGIN"`
	StartTimeout    string `help:"How long a start request waits for the first transcoder output" default:"30s" toml:"server.start_timeout" env:"SERVER_START_TIMEOUT"`

	// Camera settings
	CamerasFile     string `help:"Camera definitions file" default:"cameras.toml" toml:"cameras.config_file" env:"CAMERAS_CONFIG_FILE"`
	CamerasDebounce string `help:"Delay before applying a changed cameras file" default:"500ms" toml:"cameras.reload_debounce" env:"CAMERAS_RELOAD_DEBOUNCE"`

	// Metrics settings
	MetricsPrometheusEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSEEnabled        bool `help:"Publish session metrics on /api/metrics" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera    string `help:"Per-camera transcoder logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingStreaming string `help:"Session logging level" default:"info" toml:"logging.streaming" env:"LOGGING_STREAMING"`
	LoggingSnapshot  string `help:"Snapshot logging level" default:"info" toml:"logging.snapshot" env:"LOGGING_SNAPSHOT"`
	LoggingCameras   string `help:"Camera registry logging level" default:"info" toml:"logging.cameras" env:"LOGGING_CAMERAS"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP      string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func parseDuration(logger *slog.Logger, name, value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid duration, using default", "option", name, "value", value, "default", fallback)
		return fallback
	}
	return d
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Module levels from the file that have no dedicated flag still apply.
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		for module, level := range map[string]string{
			logging.CameraModule: opts.LoggingCamera,
			"streaming":          opts.LoggingStreaming,
			"snapshot":           opts.LoggingSnapshot,
			"cameras":            opts.LoggingCameras,
			"api":                opts.LoggingAPI,
			"http":               opts.LoggingHTTP,
		} {
			loggingConfig.Modules[module] = level
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")
		logger.Info("camstream starting", "version", version.String())

		eventBus := events.New()
		logging.SetLogCallback(api.NewLogForwarder(eventBus))
		unsubscribeMetrics := metrics.SubscribeToEvents(eventBus)

		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSEEnabled {
			sseExporter = exporters.NewSSEExporter(eventBus)
		}

		manager := cameras.NewManager(cameras.Options{Events: eventBus})

		apiOpts := &api.Options{
			AuthUsername:    opts.AuthUsername,
			AuthPassword:    opts.AuthPassword,
			Cameras:         manager,
			EventBus:        eventBus,
			CORSAllowOrigin: opts.CORSAllowOrigin,
			StartTimeout:    parseDuration(logger, "server.start_timeout", opts.StartTimeout, 30*time.Second),
		}
		if opts.MetricsPrometheusEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		var watcher *config.Watcher[*config.CamerasConfig]
		hangup := make(chan os.Signal, 1)

		hooks.OnStart(func() {
			debounce := parseDuration(logger, "cameras.reload_debounce", opts.CamerasDebounce, 500*time.Millisecond)
			w, err := manager.Watch(opts.CamerasFile, debounce)
			if err != nil {
				logger.Error("Failed to load cameras", "path", opts.CamerasFile, "error", err)
				os.Exit(1)
			}
			watcher = w
			logger.Info("Cameras loaded", "path", opts.CamerasFile, "count", len(manager.List()))

			signal.Notify(hangup, unix.SIGHUP)
			go func() {
				for range hangup {
					logger.Info("SIGHUP received, reloading cameras", "path", opts.CamerasFile)
					_ = w.Reload()
				}
			}()

			if sseExporter != nil {
				sseExporter.Start(context.Background())
			}

			if ok, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			} else if ok {
				logger.Debug("Notified systemd of readiness")
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if stopErr := server.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			signal.Stop(hangup)
			close(hangup)
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping cameras watcher", "error", stopErr)
				}
			}

			// Stops every transcoder after the API stopped taking requests.
			logger.Info("Stopping all camera sessions")
			manager.Close()

			if sseExporter != nil {
				sseExporter.Stop()
			}
			unsubscribeMetrics()
			logging.SetLogCallback(nil)
		})
	})

	cli.Root().Use = "camstream"
	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateSnapshotCmd())
	cli.Root().AddCommand(cmd.CreateArgsCmd())

	cli.Run()
}
