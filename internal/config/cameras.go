package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/camstream/internal/ffmpeg"
)

// DefaultMaxStreams is the number of concurrent viewers a camera accepts
// when max_streams is not set.
const DefaultMaxStreams = 2

// VideoConfig holds the per-camera transcoding settings.
// Zero numeric caps mean "unset".
type VideoConfig struct {
	Source            string `toml:"source" json:"source"`
	StillImageSource  string `toml:"still_image_source,omitempty" json:"still_image_source,omitempty"`
	ReturnAudioTarget string `toml:"return_audio_target,omitempty" json:"return_audio_target,omitempty"`

	MaxStreams int  `toml:"max_streams,omitempty" json:"max_streams,omitempty"`
	MaxWidth   int  `toml:"max_width,omitempty" json:"max_width,omitempty"`
	MaxHeight  int  `toml:"max_height,omitempty" json:"max_height,omitempty"`
	MaxFPS     int  `toml:"max_fps,omitempty" json:"max_fps,omitempty"`
	MaxBitrate int  `toml:"max_bitrate,omitempty" json:"max_bitrate,omitempty"` // kbit/s
	ForceMax   bool `toml:"force_max,omitempty" json:"force_max,omitempty"`

	VCodec         string `toml:"vcodec,omitempty" json:"vcodec,omitempty"`
	PacketSize     int    `toml:"packet_size,omitempty" json:"packet_size,omitempty"`
	VideoFilter    string `toml:"video_filter,omitempty" json:"video_filter,omitempty"`
	EncoderOptions string `toml:"encoder_options,omitempty" json:"encoder_options,omitempty"`
	MapVideo       string `toml:"map_video,omitempty" json:"map_video,omitempty"`
	MapAudio       string `toml:"map_audio,omitempty" json:"map_audio,omitempty"`

	Audio       bool `toml:"audio,omitempty" json:"audio,omitempty"`
	Debug       bool `toml:"debug,omitempty" json:"debug,omitempty"`
	DebugReturn bool `toml:"debug_return,omitempty" json:"debug_return,omitempty"`
}

// CameraConfig represents a single camera definition.
type CameraConfig struct {
	Name     string      `toml:"name" json:"name"`
	Unbridge bool        `toml:"unbridge,omitempty" json:"unbridge,omitempty"`
	Video    VideoConfig `toml:"video" json:"video"`
}

// CamerasConfig represents the complete cameras configuration file.
type CamerasConfig struct {
	VideoProcessor string         `toml:"video_processor,omitempty" json:"video_processor,omitempty"`
	Cameras        []CameraConfig `toml:"cameras" json:"cameras"`
}

// LoadCameras reads, defaults and validates a cameras file.
func LoadCameras(path string) (*CamerasConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cameras file: %w", err)
	}
	return ParseCameras(data)
}

// ParseCameras decodes cameras TOML, applies defaults and validates the result.
func ParseCameras(data []byte) (*CamerasConfig, error) {
	var cfg CamerasConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse cameras TOML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *CamerasConfig) applyDefaults() {
	if c.VideoProcessor == "" {
		c.VideoProcessor = ffmpeg.DefaultExecutable
	}
	for i := range c.Cameras {
		if c.Cameras[i].Video.MaxStreams == 0 {
			c.Cameras[i].Video.MaxStreams = DefaultMaxStreams
		}
	}
}

// Validate checks every camera definition and returns all problems found.
func (c *CamerasConfig) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Cameras))

	for i, cam := range c.Cameras {
		if cam.Name == "" {
			errs = append(errs, fmt.Errorf("camera %d: name is required", i))
			continue
		}
		if seen[cam.Name] {
			errs = append(errs, fmt.Errorf("camera %q: duplicate name", cam.Name))
		}
		seen[cam.Name] = true

		if cam.Video.Source == "" {
			errs = append(errs, fmt.Errorf("camera %q: video source is required", cam.Name))
		}

		v := cam.Video
		for field, value := range map[string]int{
			"max_streams": v.MaxStreams,
			"max_width":   v.MaxWidth,
			"max_height":  v.MaxHeight,
			"max_fps":     v.MaxFPS,
			"max_bitrate": v.MaxBitrate,
			"packet_size": v.PacketSize,
		} {
			if value < 0 {
				errs = append(errs, fmt.Errorf("camera %q: %s must not be negative", cam.Name, field))
			}
		}
	}

	return errors.Join(errs...)
}

// Camera returns the camera with the given name.
func (c *CamerasConfig) Camera(name string) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.Name == name {
			return cam, true
		}
	}
	return CameraConfig{}, false
}
