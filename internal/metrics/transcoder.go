// Package metrics provides Prometheus metrics for transcoder sessions and
// snapshot fetches.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transcoderFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "transcoder",
		Name:      "fps",
		Help:      "Current encoding FPS",
	}, []string{"camera", "session_id"})

	transcoderFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "transcoder",
		Name:      "frames",
		Help:      "Frames encoded since the session started",
	}, []string{"camera", "session_id"})

	transcoderBitrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "transcoder",
		Name:      "bitrate_kbps",
		Help:      "Current output bitrate in kbit/s",
	}, []string{"camera", "session_id"})

	transcoderDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "transcoder",
		Name:      "dropped_frames_total",
		Help:      "Total dropped frames",
	}, []string{"camera", "session_id"})

	transcoderDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "transcoder",
		Name:      "duplicate_frames_total",
		Help:      "Total duplicate frames",
	}, []string{"camera", "session_id"})

	transcoderSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "transcoder",
		Name:      "processing_speed",
		Help:      "Processing speed multiplier",
	}, []string{"camera", "session_id"})

	// Local cache for SSE exporter access.
	sessionCache   = make(map[string]*SessionMetrics)
	sessionCacheMu sync.RWMutex
)

// SessionMetrics holds the latest progress values for a session.
type SessionMetrics struct {
	Camera          string
	Frames          float64
	FPS             float64
	Bitrate         float64
	DroppedFrames   float64
	DuplicateFrames float64
	Speed           float64
}

// Progress is one transcoder progress report.
type Progress struct {
	Frame      int
	FPS        float64
	Bitrate    float64
	DropFrames int
	DupFrames  int
	Speed      float64
}

// SetSessionProgress records a progress report for a session.
func SetSessionProgress(camera, sessionID string, p Progress) {
	transcoderFrames.WithLabelValues(camera, sessionID).Set(float64(p.Frame))
	transcoderFPS.WithLabelValues(camera, sessionID).Set(p.FPS)
	transcoderBitrate.WithLabelValues(camera, sessionID).Set(p.Bitrate)
	transcoderDroppedFrames.WithLabelValues(camera, sessionID).Set(float64(p.DropFrames))
	transcoderDuplicateFrames.WithLabelValues(camera, sessionID).Set(float64(p.DupFrames))
	transcoderSpeed.WithLabelValues(camera, sessionID).Set(p.Speed)

	sessionCacheMu.Lock()
	sessionCache[sessionID] = &SessionMetrics{
		Camera:          camera,
		Frames:          float64(p.Frame),
		FPS:             p.FPS,
		Bitrate:         p.Bitrate,
		DroppedFrames:   float64(p.DropFrames),
		DuplicateFrames: float64(p.DupFrames),
		Speed:           p.Speed,
	}
	sessionCacheMu.Unlock()
}

// DeleteSessionMetrics removes all metrics for a session.
func DeleteSessionMetrics(camera, sessionID string) {
	transcoderFrames.DeleteLabelValues(camera, sessionID)
	transcoderFPS.DeleteLabelValues(camera, sessionID)
	transcoderBitrate.DeleteLabelValues(camera, sessionID)
	transcoderDroppedFrames.DeleteLabelValues(camera, sessionID)
	transcoderDuplicateFrames.DeleteLabelValues(camera, sessionID)
	transcoderSpeed.DeleteLabelValues(camera, sessionID)

	sessionCacheMu.Lock()
	delete(sessionCache, sessionID)
	sessionCacheMu.Unlock()
}

// GetSessionMetrics returns current metric values for a session.
func GetSessionMetrics(sessionID string) *SessionMetrics {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	if m, ok := sessionCache[sessionID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllSessionMetrics returns metrics for all sessions that reported progress.
func GetAllSessionMetrics() map[string]*SessionMetrics {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	result := make(map[string]*SessionMetrics, len(sessionCache))
	for id, m := range sessionCache {
		dup := *m
		result[id] = &dup
	}
	return result
}
