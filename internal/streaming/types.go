package streaming

// AddressVersion is the IP family of the viewer.
type AddressVersion string

const (
	AddressIPv4 AddressVersion = "ipv4"
	AddressIPv6 AddressVersion = "ipv6"
)

// SRTPCryptoSuite identifies the SRTP suite negotiated for one stream.
type SRTPCryptoSuite int

const (
	SuiteAESCM128HMACSHA180 SRTPCryptoSuite = 0
	SuiteAES256CMHMACSHA180 SRTPCryptoSuite = 1
	SuiteNone               SRTPCryptoSuite = 2
)

func (s SRTPCryptoSuite) String() string {
	switch s {
	case SuiteAESCM128HMACSHA180:
		return "AES_CM_128_HMAC_SHA1_80"
	case SuiteAES256CMHMACSHA180:
		return "AES_256_CM_HMAC_SHA1_80"
	case SuiteNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// MediaEndpoint describes where the viewer expects one stream.
type MediaEndpoint struct {
	Port            int             `json:"port" example:"52000" doc:"Viewer UDP port"`
	SRTPCryptoSuite SRTPCryptoSuite `json:"srtp_crypto_suite" doc:"0 = AES_CM_128_HMAC_SHA1_80"`
	SRTPKey         []byte          `json:"srtp_key" doc:"SRTP master key (base64 in JSON)"`
	SRTPSalt        []byte          `json:"srtp_salt" doc:"SRTP master salt (base64 in JSON)"`
}

// PrepareRequest negotiates a session before it is started.
type PrepareRequest struct {
	SessionID      string         `json:"session_id" required:"false" doc:"Protocol session identifier"`
	TargetAddress  string         `json:"target_address" example:"192.168.1.20" doc:"Viewer address"`
	AddressVersion AddressVersion `json:"address_version" required:"false" enum:"ipv4,ipv6" doc:"Viewer IP family"`
	Video          MediaEndpoint  `json:"video"`
	Audio          MediaEndpoint  `json:"audio"`
}

// EndpointResponse is the local side of one negotiated stream.
type EndpointResponse struct {
	Port     int    `json:"port" doc:"Local return port"`
	SSRC     uint32 `json:"ssrc" doc:"Synchronization source for outbound RTP"`
	SRTPKey  []byte `json:"srtp_key"`
	SRTPSalt []byte `json:"srtp_salt"`
}

// PrepareResponse answers a PrepareRequest.
type PrepareResponse struct {
	Video EndpointResponse `json:"video"`
	Audio EndpointResponse `json:"audio"`
}

// VideoRequest carries the viewer's requested video parameters.
type VideoRequest struct {
	Width        int     `json:"width" example:"1280"`
	Height       int     `json:"height" example:"720"`
	FPS          int     `json:"fps" example:"30"`
	MaxBitRate   int     `json:"max_bit_rate" example:"299" doc:"kbit/s"`
	PT           int     `json:"pt" required:"false" example:"99" doc:"RTP payload type"`
	RTCPInterval float64 `json:"rtcp_interval" required:"false" example:"0.5" doc:"Seconds between viewer RTCP reports"`
}

// AudioCodec is the audio codec requested by the viewer.
type AudioCodec string

const (
	AudioCodecOpus   AudioCodec = "OPUS"
	AudioCodecAACELD AudioCodec = "AAC-eld"
)

// AudioRequest carries the viewer's requested audio parameters.
type AudioRequest struct {
	Codec      AudioCodec `json:"codec" example:"OPUS"`
	SampleRate int        `json:"sample_rate" example:"16" doc:"kHz"`
	MaxBitRate int        `json:"max_bit_rate" example:"24" doc:"kbit/s"`
	Channel    int        `json:"channel" example:"1"`
	PT         int        `json:"pt" example:"110"`
}

// StartRequest starts a prepared session.
type StartRequest struct {
	SessionID string       `json:"session_id"`
	Video     VideoRequest `json:"video"`
	Audio     AudioRequest `json:"audio"`
}

// ReconfigureRequest asks a running session to change its video parameters.
type ReconfigureRequest struct {
	SessionID string       `json:"session_id"`
	Video     VideoRequest `json:"video"`
}

// RequestType selects the StreamRequest operation.
type RequestType string

const (
	RequestStart       RequestType = "start"
	RequestReconfigure RequestType = "reconfigure"
	RequestStop        RequestType = "stop"
)

// StreamRequest is the combined start/reconfigure/stop message.
type StreamRequest struct {
	Type      RequestType  `json:"type" enum:"start,reconfigure,stop"`
	SessionID string       `json:"session_id"`
	Video     VideoRequest `json:"video"`
	Audio     AudioRequest `json:"audio"`
}

// Controller is the protocol layer that owns the viewer sessions.
type Controller interface {
	ForceStopStreamingSession(sessionID string)
}

// Leg is one negotiated outbound stream.
type Leg struct {
	Port        int // viewer port
	ReturnPort  int // local port
	SSRC        uint32
	Key         []byte
	Salt        []byte
	CryptoSuite SRTPCryptoSuite
}

// Target is the negotiated peer of a session.
type Target struct {
	Address string
	IPv6    bool
	Video   Leg
	Audio   Leg
}

// SessionInfo is a read-only view of one session.
type SessionInfo struct {
	SessionID       string `json:"session_id"`
	State           string `json:"state" enum:"pending,active"`
	Address         string `json:"address"`
	VideoReturnPort int    `json:"video_return_port"`
	AudioReturnPort int    `json:"audio_return_port"`
	TwoWay          bool   `json:"two_way"`
}
