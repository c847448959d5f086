package ffmpeg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ProgressMarker starts every report written by -progress.
const ProgressMarker = "frame="

// ErrNotProgress is returned for text that is not a progress report.
var ErrNotProgress = errors.New("not a progress report")

// Progress is one decoded -progress report.
type Progress struct {
	Frame      int
	FPS        float64
	StreamQ    float64
	Bitrate    float64 // kbit/s
	TotalSize  int64
	OutTimeUS  int64
	OutTime    string
	DupFrames  int
	DropFrames int
	Speed      float64
	Phase      string // "continue" or "end"
}

// ParseProgress decodes a report made of newline separated key=value pairs.
// The text must begin with the frame= marker and carry a progress= line.
func ParseProgress(text string) (*Progress, error) {
	if !strings.HasPrefix(text, ProgressMarker) {
		return nil, ErrNotProgress
	}

	values := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	frame, err := strconv.Atoi(values["frame"])
	if err != nil {
		return nil, fmt.Errorf("invalid frame count: %w", err)
	}
	phase, ok := values["progress"]
	if !ok {
		return nil, errors.New("missing progress marker")
	}

	return &Progress{
		Frame:      frame,
		FPS:        parseFloat(values["fps"]),
		StreamQ:    parseFloat(values["stream_0_0_q"]),
		Bitrate:    parseFloat(strings.TrimSuffix(values["bitrate"], "kbits/s")),
		TotalSize:  parseInt(values["total_size"]),
		OutTimeUS:  parseInt(values["out_time_us"]),
		OutTime:    values["out_time"],
		DupFrames:  int(parseInt(values["dup_frames"])),
		DropFrames: int(parseInt(values["drop_frames"])),
		Speed:      parseFloat(strings.TrimSuffix(values["speed"], "x")),
		Phase:      phase,
	}, nil
}

// ScanProgress reads -progress output and calls fn for every well formed
// report. Lines outside a report and malformed reports are dropped.
func ScanProgress(r io.Reader, fn func(*Progress)) error {
	scanner := bufio.NewScanner(r)
	var block strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, ProgressMarker) {
			block.Reset()
		}
		if block.Len() == 0 && !strings.HasPrefix(line, ProgressMarker) {
			continue
		}

		block.WriteString(line)
		block.WriteByte('\n')

		if strings.HasPrefix(line, "progress=") {
			if p, err := ParseProgress(block.String()); err == nil {
				fn(p)
			}
			block.Reset()
		}
	}

	return scanner.Err()
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int64 {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return i
}
