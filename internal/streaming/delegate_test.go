package streaming

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/process"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// logBuffer is a goroutine-safe sink for the delegate's logger.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeTranscoder writes a shell script standing in for the transcoder. The
// two-way leg (recognised by "-f sdp") copies its stdin into sdpPath.
func writeTranscoder(t *testing.T, mainBody string) (exe, sdpPath string) {
	t.Helper()
	dir := t.TempDir()
	sdpPath = filepath.Join(dir, "return.sdp")
	script := `#!/bin/sh
case "$*" in
  *"-f sdp"*)
    cat > ` + sdpPath + `
    exec sleep 30
    ;;
esac
` + mainBody + "\n"
	exe = filepath.Join(dir, "fake-ffmpeg")
	if err := os.WriteFile(exe, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return exe, sdpPath
}

const runningTranscoder = `echo "[info] Stream mapping" >&2
exec sleep 30`

type fakeController struct {
	mu    sync.Mutex
	calls []string
}

func (c *fakeController) ForceStopStreamingSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, id)
}

func (c *fakeController) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type startResult struct {
	ch chan error
}

func newStartResult() *startResult {
	return &startResult{ch: make(chan error, 4)}
}

func (r *startResult) fn(err error) {
	r.ch <- err
}

func (r *startResult) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("start callback not invoked")
		return nil
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestDelegate(t *testing.T, camera, exe string, cfg config.VideoConfig, ctrl Controller) *Delegate {
	t.Helper()
	if cfg.Source == "" {
		cfg.Source = "-i rtsp://" + camera + ".local/live"
	}
	d := NewDelegate(Options{
		Camera:     camera,
		Executable: exe,
		Config:     cfg,
		Controller: ctrl,
		Logger:     testLogger(),
	})
	t.Cleanup(d.Close)
	return d
}

func testPrepare(id string) PrepareRequest {
	return PrepareRequest{
		SessionID:      id,
		TargetAddress:  "127.0.0.1",
		AddressVersion: AddressIPv4,
		Video: MediaEndpoint{
			Port:     5000,
			SRTPKey:  bytes.Repeat([]byte{0x01}, 16),
			SRTPSalt: bytes.Repeat([]byte{0x02}, 14),
		},
		Audio: MediaEndpoint{
			Port:     5002,
			SRTPKey:  bytes.Repeat([]byte{0x03}, 16),
			SRTPSalt: bytes.Repeat([]byte{0x04}, 14),
		},
	}
}

func startRequest(id string) StartRequest {
	req := testStart()
	req.SessionID = id
	return req
}

func TestPrepareStream(t *testing.T) {
	d := newTestDelegate(t, "prepare-cam", "/bin/false", config.VideoConfig{}, nil)
	req := testPrepare("s1")

	resp, err := d.PrepareStream(t.Context(), req)
	if err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}

	if resp.Video.Port == 0 || resp.Audio.Port == 0 || resp.Video.Port == resp.Audio.Port {
		t.Errorf("expected two distinct return ports, got %d and %d", resp.Video.Port, resp.Audio.Port)
	}
	if resp.Video.SSRC == 0 || resp.Audio.SSRC == 0 || resp.Video.SSRC == resp.Audio.SSRC {
		t.Errorf("expected two distinct non-zero ssrcs, got %d and %d", resp.Video.SSRC, resp.Audio.SSRC)
	}
	if !bytes.Equal(resp.Video.SRTPKey, req.Video.SRTPKey) || !bytes.Equal(resp.Audio.SRTPSalt, req.Audio.SRTPSalt) {
		t.Error("SRTP material should be echoed back")
	}

	sessions := d.Sessions()
	if len(sessions) != 1 || sessions[0].State != "pending" || sessions[0].VideoReturnPort != resp.Video.Port {
		t.Errorf("unexpected sessions %+v", sessions)
	}
	if got := testutil.ToFloat64(pendingSessions.WithLabelValues("prepare-cam")); got != 1 {
		t.Errorf("pending gauge = %v, want 1", got)
	}
}

func TestPrepareStreamInvalidSRTP(t *testing.T) {
	d := newTestDelegate(t, "srtp-cam", "/bin/false", config.VideoConfig{}, nil)
	req := testPrepare("s1")
	req.Video.SRTPKey = []byte{0x01, 0x02}

	_, err := d.PrepareStream(t.Context(), req)
	if !errors.Is(err, ErrInvalidSRTP) {
		t.Fatalf("expected ErrInvalidSRTP, got %v", err)
	}
	var streamErr *StreamError
	if !errors.As(err, &streamErr) || streamErr.Code != ErrCodeInvalidSRTP {
		t.Errorf("expected StreamError with %s, got %v", ErrCodeInvalidSRTP, err)
	}
	if len(d.Sessions()) != 0 {
		t.Error("rejected prepare must not register a session")
	}
}

func TestPrepareStreamOtherSuiteAccepted(t *testing.T) {
	d := newTestDelegate(t, "suite-cam", "/bin/false", config.VideoConfig{}, nil)
	req := testPrepare("s1")
	req.Audio = MediaEndpoint{Port: 5002, SRTPCryptoSuite: SuiteNone}

	if _, err := d.PrepareStream(t.Context(), req); err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}
}

func TestStartStreamWithoutPrepare(t *testing.T) {
	d := newTestDelegate(t, "missing-cam", "/bin/false", config.VideoConfig{}, nil)
	result := newStartResult()

	d.StartStream(startRequest("nope"), result.fn)

	err := result.wait(t)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if len(d.Sessions()) != 0 {
		t.Error("no session should exist")
	}
}

func TestStopStreamPendingAndUnknown(t *testing.T) {
	d := newTestDelegate(t, "stop-cam", "/bin/false", config.VideoConfig{}, nil)
	if _, err := d.PrepareStream(t.Context(), testPrepare("s1")); err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}

	d.StopStream("s1")
	d.StopStream("s1")
	d.StopStream("never-existed")

	if len(d.Sessions()) != 0 {
		t.Errorf("expected no sessions, got %+v", d.Sessions())
	}

	result := newStartResult()
	d.StartStream(startRequest("s1"), result.fn)
	if err := result.wait(t); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("start after stop should fail with ErrSessionNotFound, got %v", err)
	}
}

func TestStartAndStopStream(t *testing.T) {
	exe, _ := writeTranscoder(t, runningTranscoder)
	bus := events.New()
	started := make(chan events.SessionStartedEvent, 1)
	stopped := make(chan events.SessionStoppedEvent, 1)
	defer bus.Subscribe(func(e events.SessionStartedEvent) { started <- e })()
	defer bus.Subscribe(func(e events.SessionStoppedEvent) { stopped <- e })()

	errorLog := &logBuffer{}
	d := NewDelegate(Options{
		Camera:     "start-cam",
		Executable: exe,
		Config:     config.VideoConfig{Source: "-i rtsp://start-cam.local/live"},
		Logger:     slog.New(slog.NewTextHandler(errorLog, &slog.HandlerOptions{Level: slog.LevelError})),
		Events:     bus,
	})
	defer d.Close()

	resp, err := d.PrepareStream(t.Context(), testPrepare("s1"))
	if err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}

	result := newStartResult()
	d.StartStream(startRequest("s1"), result.fn)
	if err := result.wait(t); err != nil {
		t.Fatalf("start callback: %v", err)
	}

	select {
	case ev := <-started:
		if ev.SessionID != "s1" || ev.Codec != "libx264" || ev.Width != 1280 {
			t.Errorf("unexpected started event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no started event")
	}

	sessions := d.Sessions()
	if len(sessions) != 1 || sessions[0].State != "active" {
		t.Fatalf("expected one active session, got %+v", sessions)
	}
	if d.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", d.ActiveCount())
	}
	if got := testutil.ToFloat64(sessionStarts.WithLabelValues("start-cam", StartOK)); got != 1 {
		t.Errorf("start counter = %v, want 1", got)
	}

	// The watchdog holds the video return port while the session runs.
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(resp.Video.Port))
	if conn, err := net.ListenPacket("udp4", addr); err == nil {
		conn.Close()
		t.Fatal("video return port should be bound by the watchdog")
	}

	d.StopStream("s1")

	select {
	case ev := <-stopped:
		if ev.Pending {
			t.Error("active session reported as pending")
		}
	case <-time.After(time.Second):
		t.Fatal("no stopped event")
	}
	if len(d.Sessions()) != 0 {
		t.Error("session should be removed")
	}
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		t.Fatalf("video return port should be released: %v", err)
	}
	conn.Close()

	// A second stop of the same session releases nothing twice.
	d.StopStream("s1")
	select {
	case ev := <-stopped:
		t.Fatalf("second stop published another event %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
	if got := errorLog.String(); got != "" {
		t.Errorf("unexpected error logs:\n%s", got)
	}
}

func TestSessionIDReuseWhileActive(t *testing.T) {
	exe, _ := writeTranscoder(t, runningTranscoder)
	d := newTestDelegate(t, "reuse-cam", exe, config.VideoConfig{}, nil)

	resp, err := d.PrepareStream(t.Context(), testPrepare("s1"))
	if err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}
	first := newStartResult()
	d.StartStream(startRequest("s1"), first.fn)
	if err := first.wait(t); err != nil {
		t.Fatalf("start callback: %v", err)
	}

	if _, err := d.PrepareStream(t.Context(), testPrepare("s1")); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("prepare of an active id: expected ErrSessionActive, got %v", err)
	}

	// A pending entry racing an active one under the same id is dropped.
	d.mu.Lock()
	d.pending["s1"] = &pendingSession{target: d.active["s1"].target, preparedAt: time.Now()}
	d.mu.Unlock()
	second := newStartResult()
	d.StartStream(startRequest("s1"), second.fn)
	if err := second.wait(t); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("start of an active id: expected ErrSessionActive, got %v", err)
	}

	sessions := d.Sessions()
	if len(sessions) != 1 || sessions[0].State != "active" {
		t.Fatalf("expected the original session only, got %+v", sessions)
	}
	original := func() *process.Supervisor {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.active["s1"].main
	}()

	d.StopStream("s1")

	select {
	case <-original.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("original transcoder still running after stop")
	}
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(resp.Video.Port))
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		t.Fatalf("video return port should be released: %v", err)
	}
	conn.Close()
	if d.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", d.ActiveCount())
	}
}

func TestStartStreamMaxStreams(t *testing.T) {
	exe, _ := writeTranscoder(t, runningTranscoder)
	d := newTestDelegate(t, "max-cam", exe, config.VideoConfig{MaxStreams: 1}, nil)

	for _, id := range []string{"s1", "s2"} {
		if _, err := d.PrepareStream(t.Context(), testPrepare(id)); err != nil {
			t.Fatalf("PrepareStream %s: %v", id, err)
		}
	}

	first := newStartResult()
	d.StartStream(startRequest("s1"), first.fn)
	if err := first.wait(t); err != nil {
		t.Fatalf("first start: %v", err)
	}

	second := newStartResult()
	d.StartStream(startRequest("s2"), second.fn)
	if err := second.wait(t); !errors.Is(err, ErrTooManyStreams) {
		t.Fatalf("expected ErrTooManyStreams, got %v", err)
	}
}

func TestStartStreamSpawnFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	d := newTestDelegate(t, "spawn-cam", missing, config.VideoConfig{}, nil)
	if _, err := d.PrepareStream(t.Context(), testPrepare("s1")); err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}

	result := newStartResult()
	d.StartStream(startRequest("s1"), result.fn)
	if err := result.wait(t); !errors.Is(err, process.ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
	if len(d.Sessions()) != 0 {
		t.Errorf("failed spawn should tear the session down, got %+v", d.Sessions())
	}
}

func TestTranscoderExitBeforeOutputFailsStart(t *testing.T) {
	exe, _ := writeTranscoder(t, "exit 1")
	ctrl := &fakeController{}
	d := newTestDelegate(t, "exit-cam", exe, config.VideoConfig{}, ctrl)
	if _, err := d.PrepareStream(t.Context(), testPrepare("s1")); err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}

	result := newStartResult()
	d.StartStream(startRequest("s1"), result.fn)
	err := result.wait(t)
	if err == nil || !strings.Contains(err.Error(), "exited with code: 1") {
		t.Fatalf("expected exit error, got %v", err)
	}

	eventually(t, "session teardown", func() bool { return len(d.Sessions()) == 0 })
	if ctrl.count() != 0 {
		t.Error("a failed start is reported through the callback, not a force stop")
	}
}

func TestTranscoderCrashAfterStartForceStops(t *testing.T) {
	exe, _ := writeTranscoder(t, `echo "[info] Stream mapping" >&2
sleep 0.2
echo "[error] Connection refused" >&2
exit 1`)
	ctrl := &fakeController{}
	d := newTestDelegate(t, "crash-cam", exe, config.VideoConfig{}, ctrl)
	if _, err := d.PrepareStream(t.Context(), testPrepare("s1")); err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}

	result := newStartResult()
	d.StartStream(startRequest("s1"), result.fn)
	if err := result.wait(t); err != nil {
		t.Fatalf("start callback: %v", err)
	}

	eventually(t, "controller force stop", func() bool { return ctrl.count() == 1 })
	eventually(t, "session teardown", func() bool { return len(d.Sessions()) == 0 })
	if got := testutil.ToFloat64(forceStops.WithLabelValues("crash-cam")); got != 1 {
		t.Errorf("force stop counter = %v, want 1", got)
	}
}

func TestWatchdogExpiryForceStops(t *testing.T) {
	exe, _ := writeTranscoder(t, runningTranscoder)
	ctrl := &fakeController{}
	d := NewDelegate(Options{
		Camera:       "silent-cam",
		Executable:   exe,
		Config:       config.VideoConfig{Source: "-i rtsp://silent-cam.local/live"},
		Controller:   ctrl,
		Logger:       testLogger(),
		WatchdogUnit: time.Millisecond,
	})
	defer d.Close()

	if _, err := d.PrepareStream(t.Context(), testPrepare("s1")); err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}
	req := startRequest("s1")
	req.Video.RTCPInterval = 40 // 200ms with a millisecond unit

	result := newStartResult()
	d.StartStream(req, result.fn)
	if err := result.wait(t); err != nil {
		t.Fatalf("start callback: %v", err)
	}

	eventually(t, "watchdog force stop", func() bool { return ctrl.count() == 1 })
	eventually(t, "session teardown", func() bool { return len(d.Sessions()) == 0 })
	if got := testutil.ToFloat64(watchdogExpirations.WithLabelValues("silent-cam")); got != 1 {
		t.Errorf("watchdog counter = %v, want 1", got)
	}
}

func TestTwoWayAudioReceivesSessionDescription(t *testing.T) {
	exe, sdpPath := writeTranscoder(t, runningTranscoder)
	d := newTestDelegate(t, "talk-cam", exe, config.VideoConfig{ReturnAudioTarget: "-f null -"}, nil)

	resp, err := d.PrepareStream(t.Context(), testPrepare("s1"))
	if err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}

	result := newStartResult()
	d.StartStream(startRequest("s1"), result.fn)
	if err := result.wait(t); err != nil {
		t.Fatalf("start callback: %v", err)
	}

	var sdp string
	eventually(t, "session description on stdin", func() bool {
		data, err := os.ReadFile(sdpPath)
		if err != nil {
			return false
		}
		sdp = string(data)
		return strings.HasSuffix(sdp, "\r\n") && strings.Contains(sdp, "a=crypto:")
	})

	if !strings.Contains(sdp, "m=audio "+strconv.Itoa(resp.Audio.Port)+" RTP/AVP 110") {
		t.Errorf("description should target the audio return port:\n%s", sdp)
	}
	sessions := d.Sessions()
	if len(sessions) != 1 || !sessions[0].TwoWay {
		t.Errorf("expected a two-way session, got %+v", sessions)
	}
}

func TestHandleStreamRequest(t *testing.T) {
	d := newTestDelegate(t, "dispatch-cam", "/bin/false", config.VideoConfig{}, nil)
	if _, err := d.PrepareStream(t.Context(), testPrepare("s1")); err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}

	tests := []struct {
		name    string
		req     StreamRequest
		wantErr error
	}{
		{"reconfigure", StreamRequest{Type: RequestReconfigure, SessionID: "s1"}, nil},
		{"stop", StreamRequest{Type: RequestStop, SessionID: "s1"}, nil},
		{"start after stop", StreamRequest{Type: RequestStart, SessionID: "s1"}, ErrSessionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newStartResult()
			d.HandleStreamRequest(tt.req, result.fn)
			if err := result.wait(t); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	result := newStartResult()
	d.HandleStreamRequest(StreamRequest{Type: "pause", SessionID: "s1"}, result.fn)
	if err := result.wait(t); err == nil {
		t.Fatal("unknown request type should fail")
	}
}

func TestCloseStopsAllSessions(t *testing.T) {
	exe, _ := writeTranscoder(t, runningTranscoder)
	d := NewDelegate(Options{
		Camera:     "close-cam",
		Executable: exe,
		Config:     config.VideoConfig{Source: "-i x"},
		Logger:     testLogger(),
	})

	for _, id := range []string{"s1", "s2"} {
		if _, err := d.PrepareStream(t.Context(), testPrepare(id)); err != nil {
			t.Fatalf("PrepareStream %s: %v", id, err)
		}
	}
	result := newStartResult()
	d.StartStream(startRequest("s1"), result.fn)
	if err := result.wait(t); err != nil {
		t.Fatalf("start callback: %v", err)
	}

	d.Close()

	if len(d.Sessions()) != 0 {
		t.Errorf("Close should stop everything, got %+v", d.Sessions())
	}
	if _, err := d.PrepareStream(t.Context(), testPrepare("s3")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}
