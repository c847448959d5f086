package cmd

import (
	"bytes"
	"fmt"
	"net/netip"

	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/streaming"
	"github.com/spf13/cobra"
)

// CreateArgsCmd creates the args command.
func CreateArgsCmd() *cobra.Command {
	var camerasFile string
	var address string
	var width, height, fps, bitrate int
	var audioCodec string

	cmd := &cobra.Command{
		Use:   "args [camera]",
		Short: "Print the transcoder invocation for a sample session",
		Long: `Negotiates a sample live session against the named camera and prints the command line ` +
			`that would be run, followed by the two-way audio command when one is configured. ` +
			`SRTP keys, ports and SSRCs are placeholders.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCameras(camerasFile)
			if err != nil {
				return err
			}
			cam, ok := cfg.Camera(args[0])
			if !ok {
				return fmt.Errorf("camera %q not found in %s", args[0], camerasFile)
			}

			addr, err := netip.ParseAddr(address)
			if err != nil {
				return fmt.Errorf("invalid address %q: %w", address, err)
			}

			target := sampleTarget(addr)
			req := streaming.StartRequest{
				SessionID: "sample",
				Video: streaming.VideoRequest{
					Width:        width,
					Height:       height,
					FPS:          fps,
					MaxBitRate:   bitrate,
					PT:           99,
					RTCPInterval: 0.5,
				},
				Audio: streaming.AudioRequest{
					Codec:      streaming.AudioCodec(audioCodec),
					SampleRate: 16,
					MaxBitRate: 24,
					Channel:    1,
					PT:         110,
				},
			}

			argv, settings := streaming.BuildArgs(cam.Video, target, req)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s %dx%d@%d %dkbps\n", settings.Codec, settings.Width, settings.Height, settings.FPS, settings.Bitrate)
			fmt.Fprintln(out, cfg.VideoProcessor+" "+argv.String())

			if cam.Video.ReturnAudioTarget != "" {
				sdp, err := streaming.BuildReturnAudioSDP(target)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "# two-way audio, session description on stdin:")
				fmt.Fprintln(out, cfg.VideoProcessor+" "+streaming.ReturnAudioArgs(cam.Video).String())
				fmt.Fprint(out, sdp)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&camerasFile, "cameras", "cameras.toml", "Camera definitions file")
	cmd.Flags().StringVar(&address, "address", "192.168.1.20", "Viewer address")
	cmd.Flags().IntVar(&width, "width", 1280, "Requested width")
	cmd.Flags().IntVar(&height, "height", 720, "Requested height")
	cmd.Flags().IntVar(&fps, "fps", 30, "Requested frame rate")
	cmd.Flags().IntVar(&bitrate, "bitrate", 299, "Requested bitrate in kbit/s")
	cmd.Flags().StringVar(&audioCodec, "audio-codec", string(streaming.AudioCodecOpus), "Requested audio codec (OPUS, AAC-eld)")

	return cmd
}

// AES_CM_128_HMAC_SHA1_80 master key and salt sizes.
const (
	sampleKeyLen  = 16
	sampleSaltLen = 14
)

func sampleTarget(addr netip.Addr) streaming.Target {
	leg := func(port, returnPort int, ssrc uint32) streaming.Leg {
		return streaming.Leg{
			Port:        port,
			ReturnPort:  returnPort,
			SSRC:        ssrc,
			Key:         bytes.Repeat([]byte{0xA5}, sampleKeyLen),
			Salt:        bytes.Repeat([]byte{0x5A}, sampleSaltLen),
			CryptoSuite: streaming.SuiteAESCM128HMACSHA180,
		}
	}
	return streaming.Target{
		Address: addr.String(),
		IPv6:    addr.Is6() && !addr.Is4In6(),
		Video:   leg(52000, 40000, 1111),
		Audio:   leg(52002, 40002, 2222),
	}
}
