package events

// Event type constants for kelindar/event.
const (
	TypeSessionPrepared uint32 = iota + 1
	TypeSessionStarted
	TypeSessionStopped
	TypeSessionForceStopped
	TypeSessionProgress
	TypeWatchdogPacket
	TypeSnapshotFetched
	TypeCamerasReloaded
	TypeSessionMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionPreparedEvent is published when a session has been negotiated.
type SessionPreparedEvent struct {
	Camera          string `json:"camera" example:"porch" doc:"Camera name"`
	SessionID       string `json:"session_id" doc:"Protocol session identifier"`
	VideoReturnPort int    `json:"video_return_port" example:"51234" doc:"Local UDP port receiving RTCP"`
	AudioReturnPort int    `json:"audio_return_port" example:"51235" doc:"Local UDP port receiving return audio"`
	Timestamp       string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionPreparedEvent.
func (e SessionPreparedEvent) Type() uint32 { return TypeSessionPrepared }

// SessionStartedEvent is published once the transcoder for a session was spawned.
type SessionStartedEvent struct {
	Camera    string `json:"camera" example:"porch" doc:"Camera name"`
	SessionID string `json:"session_id" doc:"Protocol session identifier"`
	Codec     string `json:"codec" example:"libx264" doc:"Video codec"`
	Width     int    `json:"width" example:"1280" doc:"Output width, 0 for native"`
	Height    int    `json:"height" example:"720" doc:"Output height, 0 for native"`
	FPS       int    `json:"fps" example:"30" doc:"Output frame rate, 0 for native"`
	Bitrate   int    `json:"bitrate" example:"299" doc:"Video bitrate in kbit/s, 0 for unset"`
	Audio     bool   `json:"audio" doc:"Whether an audio leg is streamed"`
	TwoWay    bool   `json:"two_way" doc:"Whether a return audio leg is running"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStartedEvent.
func (e SessionStartedEvent) Type() uint32 { return TypeSessionStarted }

// SessionStoppedEvent is published after a session has been torn down.
type SessionStoppedEvent struct {
	Camera    string `json:"camera" example:"porch" doc:"Camera name"`
	SessionID string `json:"session_id" doc:"Protocol session identifier"`
	Pending   bool   `json:"pending" doc:"True when the session was discarded before it started"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStoppedEvent.
func (e SessionStoppedEvent) Type() uint32 { return TypeSessionStopped }

// SessionForceStoppedEvent is published when the service ends a session the
// viewer still considers running (transcoder crash or watchdog expiry).
type SessionForceStoppedEvent struct {
	Camera    string `json:"camera" example:"porch" doc:"Camera name"`
	SessionID string `json:"session_id" doc:"Protocol session identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionForceStoppedEvent.
func (e SessionForceStoppedEvent) Type() uint32 { return TypeSessionForceStopped }

// SessionProgressEvent carries one transcoder progress report.
type SessionProgressEvent struct {
	Camera     string  `json:"camera"`
	SessionID  string  `json:"session_id"`
	Frame      int     `json:"frame"`
	FPS        float64 `json:"fps"`
	Bitrate    float64 `json:"bitrate"`
	DropFrames int     `json:"drop_frames"`
	DupFrames  int     `json:"dup_frames"`
	Speed      float64 `json:"speed"`
}

// Type returns the event type identifier for SessionProgressEvent.
func (e SessionProgressEvent) Type() uint32 { return TypeSessionProgress }

// WatchdogPacketEvent is published for every datagram received on a
// session's return port.
type WatchdogPacketEvent struct {
	Camera    string `json:"camera"`
	SessionID string `json:"session_id"`
	Kind      string `json:"kind" example:"receiver_report" doc:"RTCP packet type, rtp or unknown"`
	Bytes     int    `json:"bytes"`
}

// Type returns the event type identifier for WatchdogPacketEvent.
func (e WatchdogPacketEvent) Type() uint32 { return TypeWatchdogPacket }

// SnapshotFetchedEvent is published after every still-image fetch.
type SnapshotFetchedEvent struct {
	Camera    string  `json:"camera" example:"porch" doc:"Camera name"`
	Seconds   float64 `json:"seconds" example:"1.2" doc:"Fetch duration"`
	Bytes     int     `json:"bytes" doc:"Image size"`
	Error     string  `json:"error,omitempty" doc:"Failure description"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SnapshotFetchedEvent.
func (e SnapshotFetchedEvent) Type() uint32 { return TypeSnapshotFetched }

// CamerasReloadedEvent is published after the cameras file was applied.
type CamerasReloadedEvent struct {
	Added     []string `json:"added" doc:"Cameras created"`
	Removed   []string `json:"removed" doc:"Cameras closed"`
	Replaced  []string `json:"replaced" doc:"Cameras recreated with a new configuration"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CamerasReloadedEvent.
func (e CamerasReloadedEvent) Type() uint32 { return TypeCamerasReloaded }

// SessionMetricsEvent is the periodic per-session summary sent to SSE clients.
type SessionMetricsEvent struct {
	EventType       string `json:"type"`
	Camera          string `json:"camera"`
	SessionID       string `json:"session_id"`
	FPS             string `json:"fps"`
	DroppedFrames   string `json:"dropped_frames"`
	DuplicateFrames string `json:"duplicate_frames"`
}

// Type returns the event type identifier for SessionMetricsEvent.
func (e SessionMetricsEvent) Type() uint32 { return TypeSessionMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
