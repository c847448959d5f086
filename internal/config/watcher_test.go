package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type sample struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadSample(path string) (sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sample{}, err
	}
	var s sample
	if err := toml.Unmarshal(data, &s); err != nil {
		return sample{}, err
	}
	if s.Name == "" {
		return sample{}, errors.New("name is required")
	}
	return s, nil
}

func writeSample(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// startWatch watches a fresh sample file and returns the channel of applied values.
func startWatch(t *testing.T, debounce time.Duration, onError func(error)) (string, *Watcher[sample], <-chan sample) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.toml")
	writeSample(t, path, "name = \"initial\"\nvalue = 1\n")

	applied := make(chan sample, 16)
	w, err := Watch(path, WatchOptions[sample]{
		Load:     loadSample,
		Apply:    func(s sample) { applied <- s },
		OnError:  onError,
		Debounce: debounce,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return path, w, applied
}

func next(t *testing.T, ch <-chan sample) sample {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload")
		return sample{}
	}
}

func TestWatchRequiresCallbacks(t *testing.T) {
	if _, err := Watch("x.toml", WatchOptions[sample]{Load: loadSample}); err == nil {
		t.Fatal("expected error without Apply")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path, _, applied := startWatch(t, 30*time.Millisecond, nil)

	writeSample(t, path, "name = \"updated\"\nvalue = 2\n")
	if got := next(t, applied); got != (sample{Name: "updated", Value: 2}) {
		t.Errorf("applied %+v", got)
	}

	writeSample(t, path, "name = \"again\"\nvalue = 3\n")
	if got := next(t, applied); got.Value != 3 {
		t.Errorf("second reload applied %+v", got)
	}
}

func TestWatchInvalidFileGoesToOnError(t *testing.T) {
	errs := make(chan error, 4)
	path, _, applied := startWatch(t, 30*time.Millisecond, func(err error) { errs <- err })

	writeSample(t, path, "value = 9\n")
	select {
	case err := <-errs:
		if err.Error() != "name is required" {
			t.Errorf("error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for load error")
	}

	select {
	case s := <-applied:
		t.Errorf("invalid file was applied: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchDebounceCoalesces(t *testing.T) {
	path, _, applied := startWatch(t, 200*time.Millisecond, nil)

	for i := range 5 {
		writeSample(t, path, "name = \"burst\"\nvalue = "+string(rune('1'+i))+"\n")
		time.Sleep(20 * time.Millisecond)
	}

	if got := next(t, applied); got.Value != 5 {
		t.Errorf("applied %+v, want the last write", got)
	}
	select {
	case s := <-applied:
		t.Errorf("burst produced a second reload: %+v", s)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatchAtomicReplace(t *testing.T) {
	path, _, applied := startWatch(t, 30*time.Millisecond, nil)
	dir := filepath.Dir(path)

	// Other files in the directory are ignored.
	writeSample(t, filepath.Join(dir, "other.toml"), "name = \"other\"\n")

	tmp := filepath.Join(dir, "sample.toml.swp")
	writeSample(t, tmp, "name = \"replaced\"\nvalue = 7\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	if got := next(t, applied); got != (sample{Name: "replaced", Value: 7}) {
		t.Errorf("applied %+v", got)
	}
}

func TestWatchReload(t *testing.T) {
	path, w, applied := startWatch(t, time.Hour, nil)
	writeSample(t, path, "name = \"manual\"\nvalue = 4\n")

	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := next(t, applied); got.Name != "manual" {
		t.Errorf("applied %+v", got)
	}

	writeSample(t, path, "value = 1\n")
	if err := w.Reload(); err == nil {
		t.Error("Reload of an invalid file should fail")
	}
}

func TestWatchStop(t *testing.T) {
	var calls atomic.Int32
	path := filepath.Join(t.TempDir(), "sample.toml")
	writeSample(t, path, "name = \"a\"\n")

	w, err := Watch(path, WatchOptions[sample]{
		Load:     loadSample,
		Apply:    func(sample) { calls.Add(1) },
		Debounce: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}

	writeSample(t, path, "name = \"b\"\n")
	time.Sleep(150 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("Apply called %d times after Stop", n)
	}
}
