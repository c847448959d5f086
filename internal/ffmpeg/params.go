package ffmpeg

import (
	"encoding/base64"
	"fmt"
)

// DefaultExecutable is used when no video processor is configured.
const DefaultExecutable = "ffmpeg"

// Codec and transport defaults.
const (
	CodecCopy         = "copy"    // passthrough, no re-encode
	DefaultVideoCodec = "libx264" // software H.264
	DefaultPacketSize = 1316      // video RTP payload size
	AudioPacketSize   = 188       // audio RTP payload size

	// LowLatencyOptions applies when the default codec runs without explicit encoder options.
	LowLatencyOptions = "-preset ultrafast -tune zerolatency"

	// SRTPSuite is the only crypto suite emitted for outbound streams.
	SRTPSuite = "AES_CM_128_HMAC_SHA1_80"
)

// LogLevel returns the -loglevel value that prefixes every diagnostic line
// with its severity tag.
func LogLevel(verbose bool) string {
	if verbose {
		return "level+verbose"
	}
	return "level"
}

// SRTPParams encodes key and salt as the base64 blob expected by -srtp_out_params.
func SRTPParams(key, salt []byte) string {
	buf := make([]byte, 0, len(key)+len(salt))
	buf = append(buf, key...)
	buf = append(buf, salt...)
	return base64.StdEncoding.EncodeToString(buf)
}

// SRTPURL builds an srtp:// output whose RTCP port equals the data port.
func SRTPURL(address string, port, packetSize int, ipv6 bool) string {
	host := address
	if ipv6 {
		host = "[" + address + "]"
	}
	return fmt.Sprintf("srtp://%s:%d?rtcpport=%d&pkt_size=%d", host, port, port, packetSize)
}
