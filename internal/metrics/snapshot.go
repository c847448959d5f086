package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "camstream",
		Subsystem: "snapshot",
		Name:      "fetch_seconds",
		Help:      "Time taken to fetch a still image from the source",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 22, 30},
	}, []string{"camera"})

	snapshotFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camstream",
		Subsystem: "snapshot",
		Name:      "fetches_total",
		Help:      "Still image fetches by result",
	}, []string{"camera", "result"})

	snapshotBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "snapshot",
		Name:      "last_size_bytes",
		Help:      "Size of the most recent still image",
	}, []string{"camera"})

	cameraReloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camstream",
		Subsystem: "config",
		Name:      "camera_reloads_total",
		Help:      "Times the cameras file was applied",
	})

	configuredCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camstream",
		Subsystem: "config",
		Name:      "cameras",
		Help:      "Number of configured cameras",
	})
)

// ObserveSnapshot records one still-image fetch.
func ObserveSnapshot(camera string, seconds float64, size int, failed bool) {
	snapshotDuration.WithLabelValues(camera).Observe(seconds)
	if failed {
		snapshotFetches.WithLabelValues(camera, "error").Inc()
		return
	}
	snapshotFetches.WithLabelValues(camera, "ok").Inc()
	snapshotBytes.WithLabelValues(camera).Set(float64(size))
}

// RecordCameraReload counts an applied cameras file.
func RecordCameraReload() {
	cameraReloads.Inc()
}

// SetCameraCount sets the number of configured cameras.
func SetCameraCount(n int) {
	configuredCameras.Set(float64(n))
}

// DeleteSnapshotMetrics removes the series of a removed camera.
func DeleteSnapshotMetrics(camera string) {
	labels := prometheus.Labels{"camera": camera}
	snapshotDuration.DeletePartialMatch(labels)
	snapshotFetches.DeletePartialMatch(labels)
	snapshotBytes.DeletePartialMatch(labels)
}
