package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionMetricsCache(t *testing.T) {
	camera, sessionID := "porch", "test-session-1"
	DeleteSessionMetrics(camera, sessionID)

	if m := GetSessionMetrics(sessionID); m != nil {
		t.Error("expected nil for unknown session")
	}

	SetSessionProgress(camera, sessionID, Progress{Frame: 120, FPS: 30, Bitrate: 812.5, DropFrames: 5, DupFrames: 2, Speed: 1.5})

	m := GetSessionMetrics(sessionID)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.Camera != camera || m.Frames != 120 || m.FPS != 30 || m.Bitrate != 812.5 {
		t.Errorf("unexpected metrics %+v", m)
	}
	if m.DroppedFrames != 5 || m.DuplicateFrames != 2 || m.Speed != 1.5 {
		t.Errorf("unexpected metrics %+v", m)
	}

	// Returned copy is independent
	m.FPS = 999
	if again := GetSessionMetrics(sessionID); again.FPS != 30 {
		t.Errorf("cache was modified, FPS = %v", again.FPS)
	}

	if got := testutil.ToFloat64(transcoderFPS.WithLabelValues(camera, sessionID)); got != 30 {
		t.Errorf("fps gauge = %v, want 30", got)
	}

	DeleteSessionMetrics(camera, sessionID)
	if GetSessionMetrics(sessionID) != nil {
		t.Error("expected nil after delete")
	}
	if n := testutil.CollectAndCount(transcoderFPS, "camstream_transcoder_fps"); n != 0 {
		t.Errorf("expected fps series to be deleted, %d left", n)
	}
}

func TestGetAllSessionMetrics(t *testing.T) {
	DeleteSessionMetrics("porch", "session-a")
	DeleteSessionMetrics("garage", "session-b")

	SetSessionProgress("porch", "session-a", Progress{FPS: 25})
	SetSessionProgress("garage", "session-b", Progress{FPS: 60})

	all := GetAllSessionMetrics()
	if all["session-a"] == nil || all["session-a"].FPS != 25 {
		t.Errorf("session-a = %+v, want FPS 25", all["session-a"])
	}
	if all["session-b"] == nil || all["session-b"].Camera != "garage" {
		t.Errorf("session-b = %+v, want camera garage", all["session-b"])
	}

	all["session-a"].FPS = 999
	if fresh := GetAllSessionMetrics(); fresh["session-a"].FPS != 25 {
		t.Error("cache was modified")
	}

	DeleteSessionMetrics("porch", "session-a")
	DeleteSessionMetrics("garage", "session-b")
}

func TestSessionMetricsConcurrency(t *testing.T) {
	sessionID := "concurrent-session"
	DeleteSessionMetrics("porch", sessionID)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			SetSessionProgress("porch", sessionID, Progress{Frame: val, FPS: float64(val)})
			_ = GetSessionMetrics(sessionID)
			_ = GetAllSessionMetrics()
		}(i)
	}
	wg.Wait()

	if GetSessionMetrics(sessionID) == nil {
		t.Error("expected non-nil metrics after concurrent access")
	}
	DeleteSessionMetrics("porch", sessionID)
}
