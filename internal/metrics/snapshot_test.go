package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSnapshot(t *testing.T) {
	camera := "snapshot-test-cam"
	DeleteSnapshotMetrics(camera)

	ObserveSnapshot(camera, 0.8, 2048, false)
	ObserveSnapshot(camera, 3.2, 0, true)

	if got := testutil.ToFloat64(snapshotFetches.WithLabelValues(camera, "ok")); got != 1 {
		t.Errorf("ok fetches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(snapshotFetches.WithLabelValues(camera, "error")); got != 1 {
		t.Errorf("failed fetches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(snapshotBytes.WithLabelValues(camera)); got != 2048 {
		t.Errorf("last size = %v, want 2048", got)
	}

	DeleteSnapshotMetrics(camera)
	if got := testutil.ToFloat64(snapshotFetches.WithLabelValues(camera, "ok")); got != 0 {
		t.Errorf("fetch counter should restart after delete, got %v", got)
	}
}

func TestCameraGauges(t *testing.T) {
	before := testutil.ToFloat64(cameraReloads)
	RecordCameraReload()
	if got := testutil.ToFloat64(cameraReloads); got != before+1 {
		t.Errorf("reloads = %v, want %v", got, before+1)
	}

	SetCameraCount(3)
	if got := testutil.ToFloat64(configuredCameras); got != 3 {
		t.Errorf("cameras = %v, want 3", got)
	}
}
