package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/logging"
	"github.com/smazurov/camstream/internal/snapshot"
	"github.com/spf13/cobra"
)

// CreateSnapshotCmd creates the snapshot command.
func CreateSnapshotCmd() *cobra.Command {
	var camerasFile string
	var output string
	var width, height int
	var timeout time.Duration
	var debug bool

	cmd := &cobra.Command{
		Use:   "snapshot [camera]",
		Short: "Fetch a still image from a camera",
		Long: `Runs the snapshot pipeline once for the named camera from the cameras file and ` +
			`writes the JPEG to the output file, or to stdout when the output is "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if debug {
				level = "debug"
			}
			logging.Initialize(logging.Config{Level: level, Format: "text"})

			cfg, err := config.LoadCameras(camerasFile)
			if err != nil {
				return err
			}
			cam, ok := cfg.Camera(args[0])
			if !ok {
				return fmt.Errorf("camera %q not found in %s", args[0], camerasFile)
			}

			pipeline := snapshot.New(snapshot.Options{
				Camera:     cam.Name,
				Executable: cfg.VideoProcessor,
				Config:     cam.Video,
				Unbridge:   cam.Unbridge,
				Logger:     logging.ForCamera(cam.Name, debug || cam.Video.Debug),
			})
			defer pipeline.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			image, err := pipeline.HandleSnapshotRequest(ctx, width, height)
			if err != nil {
				return err
			}

			if output == "-" {
				_, err = cmd.OutOrStdout().Write(image)
				return err
			}
			if err := os.WriteFile(output, image, 0o644); err != nil {
				return fmt.Errorf("failed to write snapshot: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(image), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&camerasFile, "cameras", "cameras.toml", "Camera definitions file")
	cmd.Flags().StringVarP(&output, "output", "o", "snapshot.jpg", "Output file, - for stdout")
	cmd.Flags().IntVar(&width, "width", 0, "Requested width, 0 for native")
	cmd.Flags().IntVar(&height, "height", 0, "Requested height, 0 for native")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log the transcoder invocation and diagnostics")

	return cmd
}
