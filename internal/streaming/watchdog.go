package streaming

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

const (
	// watchdogMultiplier is the number of missed RTCP intervals tolerated
	// before a session is considered abandoned.
	watchdogMultiplier = 5

	defaultRTCPInterval = 0.5
	maxDatagramSize     = 1500
)

// Datagram kinds reported for the video return port.
const (
	KindSenderReport      = "sender_report"
	KindReceiverReport    = "receiver_report"
	KindSourceDescription = "source_description"
	KindGoodbye           = "goodbye"
	KindFeedback          = "feedback"
	KindRTCP              = "rtcp"
	KindRTP               = "rtp"
	KindUnknown           = "unknown"
)

type watchdogOptions struct {
	IPv6     bool
	Port     int
	Timeout  time.Duration
	Logger   *slog.Logger
	OnPacket func(kind string, size int)
	OnExpire func()
	OnError  func(error)
}

// watchdog listens on a session's video return port. Every datagram re-arms
// the inactivity timer; when it fires the session is treated as abandoned.
type watchdog struct {
	opts watchdogOptions
	conn net.PacketConn

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

func watchdogTimeout(rtcpInterval float64, unit time.Duration) time.Duration {
	if rtcpInterval <= 0 {
		rtcpInterval = defaultRTCPInterval
	}
	if unit <= 0 {
		unit = time.Second
	}
	return time.Duration(rtcpInterval * watchdogMultiplier * float64(unit))
}

func startWatchdog(opts watchdogOptions) (*watchdog, error) {
	network, host := "udp4", "0.0.0.0"
	if opts.IPv6 {
		network, host = "udp6", "::"
	}
	conn, err := net.ListenPacket(network, net.JoinHostPort(host, strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("bind return port %d: %w", opts.Port, err)
	}

	w := &watchdog{opts: opts, conn: conn}
	w.timer = time.AfterFunc(opts.Timeout, w.expire)
	go w.read()
	return w, nil
}

func (w *watchdog) read() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := w.conn.ReadFrom(buf)
		if err != nil {
			w.mu.Lock()
			closed := w.closed
			w.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			w.opts.Logger.Error("Socket error", "port", w.opts.Port, "error", err)
			if w.opts.OnError != nil {
				w.opts.OnError(err)
			}
			return
		}

		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.timer.Reset(w.opts.Timeout)
		w.mu.Unlock()

		kind := classifyDatagram(buf[:n])
		if kind == KindGoodbye {
			w.opts.Logger.Debug("Viewer sent RTCP BYE", "port", w.opts.Port)
		}
		if w.opts.OnPacket != nil {
			w.opts.OnPacket(kind, n)
		}
	}
}

func (w *watchdog) expire() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	if w.opts.OnExpire != nil {
		w.opts.OnExpire()
	}
}

// Stop cancels the timer and closes the socket. Safe to call repeatedly.
func (w *watchdog) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.timer.Stop()
	w.mu.Unlock()

	return w.conn.Close()
}

// classifyDatagram tells RTCP from RTP on a muxed port. Payload types
// 192-223 in the second byte are RTCP. SRTCP headers are sent in the clear,
// so the RTCP header can be read without the session keys.
func classifyDatagram(pkt []byte) string {
	if len(pkt) < 2 {
		return KindUnknown
	}
	if pkt[1] >= 192 && pkt[1] <= 223 {
		var header rtcp.Header
		if err := header.Unmarshal(pkt); err != nil {
			return KindUnknown
		}
		switch header.Type {
		case rtcp.TypeSenderReport:
			return KindSenderReport
		case rtcp.TypeReceiverReport:
			return KindReceiverReport
		case rtcp.TypeSourceDescription:
			return KindSourceDescription
		case rtcp.TypeGoodbye:
			return KindGoodbye
		case rtcp.TypeTransportSpecificFeedback, rtcp.TypePayloadSpecificFeedback:
			return KindFeedback
		default:
			return KindRTCP
		}
	}

	var header rtp.Header
	if _, err := header.Unmarshal(pkt); err != nil {
		return KindUnknown
	}
	return KindRTP
}
