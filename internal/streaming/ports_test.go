package streaming

import (
	"context"
	"errors"
	"testing"
)

func TestAllocatePortsDistinct(t *testing.T) {
	ports, err := allocatePorts(t.Context(), 4, false)
	if err != nil {
		t.Fatalf("allocatePorts: %v", err)
	}
	seen := map[int]bool{}
	for _, p := range ports {
		if p <= 0 || p > 65535 {
			t.Errorf("invalid port %d", p)
		}
		if seen[p] {
			t.Errorf("duplicate port %d", p)
		}
		seen[p] = true
	}
}

func TestAllocatePortsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := allocatePorts(ctx, 2, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPickPortsSkipsExcluded(t *testing.T) {
	candidates := []int{5000, 40000, 40000, 5001, 40002}
	next := func() (int, error) {
		p := candidates[0]
		candidates = candidates[1:]
		return p, nil
	}
	ports, err := pickPorts(t.Context(), 2, []int{5000, 5001}, next)
	if err != nil {
		t.Fatalf("pickPorts: %v", err)
	}
	if len(ports) != 2 || ports[0] != 40000 || ports[1] != 40002 {
		t.Fatalf("ports = %v, want [40000 40002]", ports)
	}
	if len(candidates) != 0 {
		t.Errorf("%d candidates left unused", len(candidates))
	}
}

func TestPickPortsBindError(t *testing.T) {
	boom := errors.New("no sockets")
	_, err := pickPorts(t.Context(), 1, nil, func() (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected bind error, got %v", err)
	}
}

func TestGenerateSSRCs(t *testing.T) {
	for range 50 {
		ssrcs, err := generateSSRCs(2)
		if err != nil {
			t.Fatalf("generateSSRCs: %v", err)
		}
		if ssrcs[0] == 0 || ssrcs[1] == 0 {
			t.Fatal("ssrc must be non-zero")
		}
		if ssrcs[0] == ssrcs[1] {
			t.Fatal("ssrcs must be distinct")
		}
	}
}
