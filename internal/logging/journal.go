package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry written by this process.
const SyslogIdentifier = "camstream"

// journalHandler writes records as native journal entries. Attributes become
// upper-case fields, so `journalctl CAMERA=porch` works.
type journalHandler struct {
	scope
}

func newJournalHandler(level slog.Leveler) *journalHandler {
	return &journalHandler{scope{level: level}}
}

func (h *journalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.enabled(level)
}

func (h *journalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": SyslogIdentifier}
	h.walk(r, func(path []string, v slog.Value) {
		key := journalField(path)
		if key == "" {
			return
		}
		if v.Kind() == slog.KindTime {
			fields[key] = v.Time().Format(time.RFC3339Nano)
			return
		}
		fields[key] = v.String()
	})
	return journal.Send(r.Message, journalPriority(r.Level), fields)
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &journalHandler{h.withAttrs(attrs)}
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	return &journalHandler{h.withGroup(name)}
}

// journalField turns a key path into a journal field name. Field names may
// only hold A-Z, 0-9 and underscores and must not start with an underscore,
// which is reserved for trusted fields.
func journalField(path []string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, strings.Join(path, "_"))
	return strings.TrimLeft(name, "_")
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	}
	return journal.PriDebug
}

// IsJournalAvailable reports whether the journald socket is reachable.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
