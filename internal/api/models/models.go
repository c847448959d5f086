package models

import (
	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/streaming"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Cameras int    `json:"cameras" example:"2" doc:"Number of configured cameras"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Camera models
type CameraData struct {
	Name           string `json:"name" example:"Driveway" doc:"Camera name"`
	Codec          string `json:"codec" example:"libx264" doc:"Video encoder used for live sessions"`
	Audio          bool   `json:"audio" doc:"Whether audio is transcoded"`
	TwoWay         bool   `json:"two_way" doc:"Whether a return audio target is configured"`
	Unbridge       bool   `json:"unbridge" doc:"Whether the camera is exposed outside the bridge"`
	MaxStreams     int    `json:"max_streams" example:"2" doc:"Maximum concurrent sessions"`
	ActiveSessions int    `json:"active_sessions" example:"1" doc:"Sessions currently streaming"`
}

type CameraListData struct {
	Cameras []CameraData `json:"cameras" doc:"Configured cameras"`
	Count   int          `json:"count" example:"2" doc:"Number of cameras"`
}

type CameraListResponse struct {
	Body CameraListData
}

type CameraPath struct {
	Camera string `path:"camera" minLength:"1" example:"Driveway" doc:"Camera name"`
}

// Snapshot models
type SnapshotRequest struct {
	Camera string `path:"camera" minLength:"1" example:"Driveway" doc:"Camera name"`
	Width  int    `query:"width" minimum:"0" example:"640" doc:"Requested width, 0 for native"`
	Height int    `query:"height" minimum:"0" example:"360" doc:"Requested height, 0 for native"`
}

type SnapshotResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// Session models
type PrepareSessionRequest struct {
	Camera string `path:"camera" minLength:"1" example:"Driveway" doc:"Camera name"`
	Body   streaming.PrepareRequest
}

type PrepareSessionData struct {
	SessionID string                     `json:"session_id" doc:"Session identifier, generated when the request left it empty"`
	Video     streaming.EndpointResponse `json:"video"`
	Audio     streaming.EndpointResponse `json:"audio"`
}

type PrepareSessionResponse struct {
	Body PrepareSessionData
}

type SessionPath struct {
	Camera    string `path:"camera" minLength:"1" example:"Driveway" doc:"Camera name"`
	SessionID string `path:"session_id" minLength:"1" doc:"Session identifier"`
}

type StartSessionData struct {
	Video streaming.VideoRequest `json:"video"`
	Audio streaming.AudioRequest `json:"audio" required:"false"`
}

type StartSessionRequest struct {
	Camera    string `path:"camera" minLength:"1" example:"Driveway" doc:"Camera name"`
	SessionID string `path:"session_id" minLength:"1" doc:"Session identifier"`
	Body      StartSessionData
}

type ReconfigureSessionData struct {
	Video streaming.VideoRequest `json:"video"`
}

type ReconfigureSessionRequest struct {
	Camera    string `path:"camera" minLength:"1" example:"Driveway" doc:"Camera name"`
	SessionID string `path:"session_id" minLength:"1" doc:"Session identifier"`
	Body      ReconfigureSessionData
}

type SessionStatusData struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Status    string `json:"status" example:"streaming" doc:"Result of the operation"`
}

type SessionStatusResponse struct {
	Status int
	Body   SessionStatusData
}

type SessionListData struct {
	Camera   string                  `json:"camera" example:"Driveway" doc:"Camera name"`
	Sessions []streaming.SessionInfo `json:"sessions" doc:"Pending and active sessions"`
	Count    int                     `json:"count" example:"1" doc:"Number of sessions"`
}

type SessionListResponse struct {
	Body SessionListData
}

// Log models
type LogsRequest struct {
	Level  string `query:"level" example:"warn" doc:"Minimum level to return (debug, info, warn, error)"`
	Module string `query:"module" example:"streaming" doc:"Only return entries from this module"`
}

type LogsData struct {
	Entries []events.LogEntryEvent `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int                    `json:"count" example:"42" doc:"Number of entries"`
}

type LogsResponse struct {
	Body LogsData
}
