package ffmpeg

import "strings"

// LogLine is one diagnostic line printed by a transcoder run with
// "-loglevel level". Lines look like "[info] message" or, for messages
// from a muxer or codec, "[h264 @ 0x55d1c0] [warning] message". A nested
// context prints its parent first: "[mpegts @ 0x1] [h264 @ 0x2] [error] ...".
type LogLine struct {
	Level     string // ffmpeg level name, "info" when the line carries none
	Component string // e.g. "h264 @ 0x55d1c0", empty for global messages
	Message   string
}

// ParseLogLine splits a diagnostic line into its parts. The level is the
// first leading bracket that names one; the brackets before it form the
// component. Lines without a level come back whole as an info message.
func ParseLogLine(line string) LogLine {
	var components []string
	rest := line
	for {
		tag, next, ok := cutTag(rest)
		if !ok {
			return LogLine{Level: "info", Message: line}
		}
		if isLogLevel(tag) {
			return LogLine{Level: tag, Component: strings.Join(components, "] ["), Message: next}
		}
		components = append(components, tag)
		rest = next
	}
}

// String puts the component back in front of the message.
func (l LogLine) String() string {
	if l.Component == "" {
		return l.Message
	}
	return "[" + l.Component + "] " + l.Message
}

// Severe reports panic, fatal and error lines. They are surfaced whether or
// not the camera runs in debug mode.
func (l LogLine) Severe() bool {
	switch l.Level {
	case "panic", "fatal", "error":
		return true
	}
	return false
}

// cutTag splits "[tag] rest" into tag and rest. A tag ending the line
// leaves rest empty.
func cutTag(s string) (tag, rest string, ok bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	end := strings.IndexByte(s, ']')
	if end <= 1 {
		return "", s, false
	}
	tag, rest = s[1:end], s[end+1:]
	switch {
	case rest == "":
		return tag, "", true
	case rest[0] == ' ':
		return tag, rest[1:], true
	}
	return "", s, false
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}
