package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestForCameraDebugOverride(t *testing.T) {
	resetRegistry(t)
	Initialize(Config{Level: "info", Format: "text"})

	quiet := ForCamera("porch", false)
	if quiet.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("camera without debug flag should follow the info level")
	}

	loud := ForCamera("garage", true)
	if !loud.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("camera with debug flag should log debug records")
	}
}

func TestCameraEntriesReachCallback(t *testing.T) {
	resetRegistry(t)
	Initialize(Config{Level: "debug", Format: "text"})

	var seen []LogEntry
	SetLogCallback(func(entry LogEntry) { seen = append(seen, entry) })

	ForCamera("porch", false).Info("snapshot ready", "bytes", 42)

	entries := GetBuffer().ReadAll()
	if len(entries) == 0 {
		t.Fatal("expected buffered entry")
	}
	last := entries[len(entries)-1]
	if last.Module != CameraModule {
		t.Errorf("Module = %q, want %q", last.Module, CameraModule)
	}
	if last.Attributes["camera"] != "porch" {
		t.Errorf("camera attr = %v, want porch", last.Attributes["camera"])
	}
	if len(seen) == 0 || seen[len(seen)-1].Seq != last.Seq {
		t.Errorf("callback did not receive the stored entry: %+v", seen)
	}
}
