package streaming

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
)

// allocatePorts finds n distinct local UDP ports that are currently free,
// skipping any port listed in exclude. The ports are probed by binding and
// releasing them, so another process may still claim one before the session
// binds it.
func allocatePorts(ctx context.Context, n int, ipv6 bool, exclude ...int) ([]int, error) {
	network, host := "udp4", "0.0.0.0:0"
	if ipv6 {
		network, host = "udp6", "[::]:0"
	}

	var lc net.ListenConfig
	return pickPorts(ctx, n, exclude, func() (int, error) {
		conn, err := lc.ListenPacket(ctx, network, host)
		if err != nil {
			return 0, fmt.Errorf("probe %s port: %w", network, err)
		}
		defer conn.Close()
		return conn.LocalAddr().(*net.UDPAddr).Port, nil
	})
}

// pickPorts collects n distinct ports from next. Repeats and excluded
// ports are discarded.
func pickPorts(ctx context.Context, n int, exclude []int, next func() (int, error)) ([]int, error) {
	seen := make(map[int]bool, n+len(exclude))
	for _, p := range exclude {
		seen[p] = true
	}
	ports := make([]int, 0, n)
	for len(ports) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		port, err := next()
		if err != nil {
			return nil, err
		}
		if seen[port] {
			continue
		}
		seen[port] = true
		ports = append(ports, port)
	}
	return ports, nil
}

// generateSSRCs returns n distinct non-zero random synchronization sources.
func generateSSRCs(n int) ([]uint32, error) {
	seen := make(map[uint32]bool, n)
	out := make([]uint32, 0, n)
	var buf [4]byte
	for len(out) < n {
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("generate ssrc: %w", err)
		}
		ssrc := binary.BigEndian.Uint32(buf[:])
		if ssrc == 0 || seen[ssrc] {
			continue
		}
		seen[ssrc] = true
		out = append(out, ssrc)
	}
	return out, nil
}
