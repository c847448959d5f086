package streaming

import (
	"fmt"

	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/resolution"
)

// Settings is the effective output of a start request after the camera caps
// were applied.
type Settings struct {
	Codec   string
	Width   int // 0 = native
	Height  int // 0 = native
	FPS     int // 0 = native
	Bitrate int // kbit/s, 0 = unset
	Filter  string

	Audio            bool
	UnsupportedAudio AudioCodec
}

// Negotiate applies the camera caps to a video request.
func Negotiate(cfg config.VideoConfig, video VideoRequest) Settings {
	codec := cfg.VCodec
	if codec == "" {
		codec = ffmpeg.DefaultVideoCodec
	}

	res := resolution.Resolve(video.Width, video.Height, cfg, false)
	settings := Settings{
		Codec:   codec,
		Width:   res.Width,
		Height:  res.Height,
		FPS:     resolution.Cap(video.FPS, cfg.MaxFPS, cfg.ForceMax),
		Bitrate: resolution.Cap(video.MaxBitRate, cfg.MaxBitrate, cfg.ForceMax),
		Filter:  res.VideoFilter,
	}

	if codec == ffmpeg.CodecCopy {
		settings.Width = 0
		settings.Height = 0
		settings.FPS = 0
		settings.Bitrate = 0
		settings.Filter = ""
	}

	return settings
}

// BuildArgs assembles the main transcoder invocation for a started session.
func BuildArgs(cfg config.VideoConfig, target Target, req StartRequest) (*ffmpeg.Args, Settings) {
	settings := Negotiate(cfg, req.Video)

	packetSize := cfg.PacketSize
	if packetSize <= 0 {
		packetSize = ffmpeg.DefaultPacketSize
	}
	encoderOptions := cfg.EncoderOptions
	if encoderOptions == "" && settings.Codec == ffmpeg.DefaultVideoCodec {
		encoderOptions = ffmpeg.LowLatencyOptions
	}

	args := ffmpeg.NewArgs().Raw(cfg.Source)
	if cfg.MapVideo != "" {
		args.Opt("-map", cfg.MapVideo)
	} else {
		args.Flag("-an", "-sn", "-dn")
	}
	args.Opt("-codec:v", settings.Codec).
		Opt("-pix_fmt", "yuv420p").
		Opt("-color_range", "mpeg").
		OptIf(settings.FPS > 0, "-r", settings.FPS).
		Opt("-f", "rawvideo").
		Raw(encoderOptions).
		OptIf(settings.Filter != "", "-filter:v", settings.Filter).
		OptIf(settings.Bitrate > 0, "-b:v", fmt.Sprintf("%dk", settings.Bitrate)).
		Opt("-payload_type", req.Video.PT)
	srtpOutput(args, target, target.Video, packetSize)

	if cfg.Audio {
		switch req.Audio.Codec {
		case AudioCodecOpus, AudioCodecAACELD:
			settings.Audio = true
			audioArgs(args, cfg, req.Audio)
			srtpOutput(args, target, target.Audio, ffmpeg.AudioPacketSize)
		default:
			settings.UnsupportedAudio = req.Audio.Codec
		}
	}

	args.Opt("-loglevel", ffmpeg.LogLevel(cfg.Debug)).
		Opt("-progress", "pipe:1")

	return args, settings
}

func audioArgs(args *ffmpeg.Args, cfg config.VideoConfig, audio AudioRequest) {
	if cfg.MapAudio != "" {
		args.Opt("-map", cfg.MapAudio)
	} else {
		args.Flag("-vn", "-sn", "-dn")
	}
	if audio.Codec == AudioCodecOpus {
		args.Opt("-codec:a", "libopus").Opt("-application", "lowdelay")
	} else {
		args.Opt("-codec:a", "libfdk_aac").Opt("-profile:a", "aac_eld")
	}
	args.Opt("-flags", "+global_header").
		Opt("-f", "null").
		Opt("-ar", fmt.Sprintf("%dk", audio.SampleRate)).
		Opt("-b:a", fmt.Sprintf("%dk", audio.MaxBitRate)).
		Opt("-ac", audio.Channel).
		Opt("-payload_type", audio.PT)
}

func srtpOutput(args *ffmpeg.Args, target Target, leg Leg, packetSize int) {
	args.Opt("-ssrc", leg.SSRC).
		Opt("-f", "rtp").
		Opt("-srtp_out_suite", ffmpeg.SRTPSuite).
		Opt("-srtp_out_params", ffmpeg.SRTPParams(leg.Key, leg.Salt)).
		Output(ffmpeg.SRTPURL(target.Address, leg.Port, packetSize, target.IPv6))
}

// ReturnAudioArgs assembles the two-way audio invocation. The session
// description is written to the process stdin.
func ReturnAudioArgs(cfg config.VideoConfig) *ffmpeg.Args {
	return ffmpeg.NewArgs().
		Flag("-hide_banner").
		Opt("-protocol_whitelist", "pipe,udp,rtp,file,crypto").
		Opt("-f", "sdp").
		Opt("-c:a", "libfdk_aac").
		Opt("-i", "pipe:").
		Raw(cfg.ReturnAudioTarget).
		Opt("-loglevel", ffmpeg.LogLevel(cfg.DebugReturn))
}
