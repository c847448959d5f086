package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCameras(t *testing.T, dir, processor string) string {
	t.Helper()
	content := `video_processor = "` + processor + `"

[[cameras]]
name = "porch"

[cameras.video]
source = "-i rtsp://porch.local/live"
max_width = 640
return_audio_target = "-f alsa default"
`
	path := filepath.Join(dir, "cameras.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestArgsCommand(t *testing.T) {
	path := writeCameras(t, t.TempDir(), "ffmpeg")

	var out bytes.Buffer
	cmd := CreateArgsCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"porch", "--cameras", path, "--width", "1920", "--height", "1080"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := out.String()
	if !strings.HasPrefix(got, "# libx264 640x") {
		t.Errorf("expected capped width in summary, got %q", got)
	}
	if !strings.Contains(got, "ffmpeg -i rtsp://porch.local/live") {
		t.Errorf("missing transcoder command: %q", got)
	}
	if !strings.Contains(got, "srtp://192.168.1.20:52000") {
		t.Errorf("missing video output: %q", got)
	}
	if !strings.Contains(got, "m=audio 40002 RTP/AVP 110") {
		t.Errorf("missing two-way audio description: %q", got)
	}
}

func TestArgsCommandUnknownCamera(t *testing.T) {
	path := writeCameras(t, t.TempDir(), "ffmpeg")

	cmd := CreateArgsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"attic", "--cameras", path})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "attic") {
		t.Fatalf("expected unknown camera error, got %v", err)
	}
}

func TestSnapshotCommand(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "fake-ffmpeg")
	script := `#!/bin/sh
if [ "$1" = "-i" ] && [ "$2" = "pipe:" ]; then
  cat
  exit 0
fi
printf 'JPEG'
`
	if err := os.WriteFile(exe, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	path := writeCameras(t, dir, exe)
	output := filepath.Join(dir, "out.jpg")

	cmd := CreateSnapshotCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"porch", "--cameras", path, "-o", output})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "JPEG" {
		t.Errorf("snapshot = %q", data)
	}
}
