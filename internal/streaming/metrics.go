package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session gauges.
	activeSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "streaming",
		Name:      "active_sessions",
		Help:      "Number of sessions with a running transcoder",
	}, []string{"camera"})

	pendingSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "streaming",
		Name:      "pending_sessions",
		Help:      "Number of prepared sessions waiting for a start request",
	}, []string{"camera"})

	// Lifecycle counters.
	sessionStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camstream",
		Subsystem: "streaming",
		Name:      "session_starts_total",
		Help:      "Start requests by result",
	}, []string{"camera", "result"})

	forceStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camstream",
		Subsystem: "streaming",
		Name:      "force_stops_total",
		Help:      "Sessions ended by the service rather than the viewer",
	}, []string{"camera"})

	// Return port traffic.
	returnPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camstream",
		Subsystem: "streaming",
		Name:      "return_packets_total",
		Help:      "Datagrams received on video return ports by kind",
	}, []string{"camera", "kind"})

	returnBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camstream",
		Subsystem: "streaming",
		Name:      "return_bytes_total",
		Help:      "Bytes received on video return ports",
	}, []string{"camera"})

	watchdogExpirations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camstream",
		Subsystem: "streaming",
		Name:      "watchdog_expirations_total",
		Help:      "Sessions stopped because the viewer went silent",
	}, []string{"camera"})
)

// Start results.
const (
	StartOK       = "ok"
	StartNotFound = "not_found"
	StartRejected = "rejected"
	StartFailed   = "failed"
)

func setSessionCounts(camera string, pending, active int) {
	pendingSessions.WithLabelValues(camera).Set(float64(pending))
	activeSessions.WithLabelValues(camera).Set(float64(active))
}

func recordStart(camera, result string) {
	sessionStarts.WithLabelValues(camera, result).Inc()
}

func recordForceStop(camera string) {
	forceStops.WithLabelValues(camera).Inc()
}

func recordReturnPacket(camera, kind string, size int) {
	returnPackets.WithLabelValues(camera, kind).Inc()
	returnBytes.WithLabelValues(camera).Add(float64(size))
}

func recordWatchdogExpiration(camera string) {
	watchdogExpirations.WithLabelValues(camera).Inc()
}

// DeleteCameraMetrics removes all series for a camera that was removed.
func DeleteCameraMetrics(camera string) {
	labels := prometheus.Labels{"camera": camera}
	activeSessions.DeletePartialMatch(labels)
	pendingSessions.DeletePartialMatch(labels)
	sessionStarts.DeletePartialMatch(labels)
	forceStops.DeletePartialMatch(labels)
	returnPackets.DeletePartialMatch(labels)
	returnBytes.DeletePartialMatch(labels)
	watchdogExpirations.DeletePartialMatch(labels)
}
