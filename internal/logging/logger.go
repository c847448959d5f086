package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
)

const historySize = 1000

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type moduleLogger struct {
	level  *slog.LevelVar
	logger *slog.Logger
}

// registry owns every module logger along with the shared history and callback.
type registry struct {
	mu       sync.RWMutex
	cfg      Config
	ready    bool
	root     slog.LevelVar
	modules  map[string]*moduleLogger
	history  *RingBuffer
	callback LogCallback
}

func newRegistry() *registry {
	return &registry{modules: make(map[string]*moduleLogger)}
}

var std = newRegistry()

// Initialize applies cfg. Loggers handed out earlier keep working: their
// levels are updated in place and they start feeding the history buffer.
func Initialize(cfg Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.cfg = cfg
	std.ready = true
	std.history = NewRingBuffer(historySize)
	std.root.Set(std.levelFor(""))

	for name, m := range std.modules {
		m.level.Set(std.levelFor(name))
		m.logger = slog.New(std.handlerFor(m.level)).With("module", name)
	}

	slog.SetDefault(slog.New(std.handlerFor(&std.root)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	m, ok := std.modules[module]
	std.mu.RUnlock()
	if ok {
		return m.logger
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if m, ok := std.modules[module]; ok {
		return m.logger
	}

	m = &moduleLogger{level: &slog.LevelVar{}}
	m.level.Set(std.levelFor(module))
	m.logger = slog.New(std.handlerFor(m.level)).With("module", module)
	std.modules[module] = m
	return m.logger
}

// GetBuffer returns the log history, or nil before Initialize.
func GetBuffer() *RingBuffer {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.history
}

// SetLogCallback registers fn to receive every entry after it is stored in
// the history. Pass nil to remove it.
func SetLogCallback(fn LogCallback) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.callback = fn
}

// ParseLevel maps debug, info, warn (or warning) and error to slog levels.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// levelFor resolves the level of module; the empty name means the global level.
// Callers hold mu.
func (r *registry) levelFor(module string) slog.Level {
	if !r.ready {
		return slog.LevelInfo
	}
	level, _ := ParseLevel(r.cfg.Level)
	if override, ok := r.cfg.Modules[module]; ok && module != "" {
		if l, valid := ParseLevel(override); valid {
			level = l
		}
	}
	return level
}

// handlerFor builds the output chain: stdout, the journal when present and
// the in-memory history. Callers hold mu.
func (r *registry) handlerFor(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var chain fanout
	if stdoutUsable() {
		if r.cfg.Format == "json" {
			chain = append(chain, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			chain = append(chain, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if IsJournalAvailable() {
		chain = append(chain, newJournalHandler(level))
	}
	chain = append(chain, newHistoryHandler(level))

	if len(chain) == 1 {
		return chain[0]
	}
	return chain
}

// stdoutUsable is false when stdout is closed or is a journald stream, since
// the journal handler already writes there.
func stdoutUsable() bool {
	if captured, err := journal.StdoutIsJournalStream(); err == nil && captured {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode.IsRegular() || mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0
}
