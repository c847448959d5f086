package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetRegistry(t *testing.T) {
	t.Helper()
	prev := std
	std = newRegistry()
	t.Cleanup(func() { std = prev })
}

func TestModuleLevelOverride(t *testing.T) {
	resetRegistry(t)
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"streaming": "debug",
			"api":       "warn",
			"snapshot":  "bogus",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"streaming", true, true, true},
		{"api", false, false, true},
		{"snapshot", false, true, true},
		{"other", false, true, true},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetRegistry(t)

	before := GetLogger("process")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}
	if GetBuffer() != nil {
		t.Error("history should not exist before Initialize")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"process": "debug"}})

	after := GetLogger("process")
	if !after.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger should follow the module level after Initialize")
	}
	if GetLogger("process") != after {
		t.Error("GetLogger should return the cached logger")
	}

	after.Debug("recorded")
	entries := GetBuffer().ReadAll()
	if len(entries) != 1 || entries[0].Module != "process" || entries[0].Level != "debug" {
		t.Errorf("history = %+v", entries)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{" info ", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"invalid", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestFanout(t *testing.T) {
	var buf bytes.Buffer
	debug := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	info := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(fanout{debug, info}).With("module", "test")
	logger.Debug("debug only")
	logger.Info("both")

	out := buf.String()
	if n := strings.Count(out, "debug only"); n != 1 {
		t.Errorf("debug record written %d times:\n%s", n, out)
	}
	if n := strings.Count(out, "both"); n != 2 {
		t.Errorf("info record written %d times:\n%s", n, out)
	}
	if n := strings.Count(out, "module=test"); n != 3 {
		t.Errorf("module attr written %d times:\n%s", n, out)
	}

	f := fanout{info, failingHandler{info}}
	err := f.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelWarn, "x", 0))
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Errorf("Handle error = %v, want sink down", err)
	}
}

func TestHistoryAttributes(t *testing.T) {
	resetRegistry(t)
	Initialize(Config{Level: "debug"})

	logger := slog.New(newHistoryHandler(slog.LevelDebug)).With("module", "api").WithGroup("req")
	logger.Warn("failed",
		"id", 7,
		slog.Group("peer", "addr", "10.0.0.2"),
		slog.Group("", "inline", true),
		"error", errors.New("boom"),
	)

	entries := GetBuffer().ReadAll()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Module != "api" || e.Level != "warn" || e.Seq != 1 {
		t.Errorf("entry = %+v", e)
	}
	want := map[string]any{
		"req.id":        int64(7),
		"req.peer.addr": "10.0.0.2",
		"req.inline":    true,
		"req.error":     "boom",
	}
	for k, v := range want {
		if e.Attributes[k] != v {
			t.Errorf("attr %s = %#v, want %#v", k, e.Attributes[k], v)
		}
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	if rb.ReadAll() != nil {
		t.Error("empty buffer should read nil")
	}
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		rb.Write(LogEntry{Message: msg})
	}

	got := rb.ReadAll()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Message != want || got[i].Seq != uint64(i+3) {
			t.Errorf("entry %d = %s/%d, want %s/%d", i, got[i].Message, got[i].Seq, want, i+3)
		}
	}
}

func TestJournalField(t *testing.T) {
	tests := map[string][]string{
		"CAMERA":        {"camera"},
		"REQ_PEER_ADDR": {"req", "peer", "addr"},
		"SESSION_ID":    {"session-id"},
		"PRIVATE":       {"_private"},
		"":              {"__"},
		"WIDTH_1080":    {"width.1080"},
	}
	for want, path := range tests {
		if got := journalField(path); got != want {
			t.Errorf("journalField(%v) = %q, want %q", path, got, want)
		}
	}
}
