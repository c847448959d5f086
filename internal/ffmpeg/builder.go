package ffmpeg

import (
	"strconv"
	"strings"
)

// Args accumulates transcoder arguments as flag/value tokens and serializes
// them once. The transcoder receives the serialized line split on whitespace,
// so no token may rely on shell quoting.
type Args struct {
	tokens []string
}

// NewArgs creates an empty argument list.
func NewArgs() *Args {
	return &Args{}
}

// Raw appends a user supplied fragment such as a source expression or
// encoder options. The fragment is split on whitespace.
func (a *Args) Raw(fragment string) *Args {
	a.tokens = append(a.tokens, strings.Fields(fragment)...)
	return a
}

// Flag appends a bare flag, e.g. "-an".
func (a *Args) Flag(names ...string) *Args {
	a.tokens = append(a.tokens, names...)
	return a
}

// Opt appends a flag followed by its value.
func (a *Args) Opt(name string, value any) *Args {
	a.tokens = append(a.tokens, name, formatValue(value))
	return a
}

// OptIf appends the flag and value only when cond holds.
func (a *Args) OptIf(cond bool, name string, value any) *Args {
	if cond {
		a.Opt(name, value)
	}
	return a
}

// Output appends an output target (a URL or "-").
func (a *Args) Output(target string) *Args {
	a.tokens = append(a.tokens, target)
	return a
}

// Len returns the number of tokens.
func (a *Args) Len() int {
	return len(a.tokens)
}

// Tokens returns a copy of the accumulated tokens.
func (a *Args) Tokens() []string {
	out := make([]string, len(a.tokens))
	copy(out, a.tokens)
	return out
}

// String returns the argument line with single spaces between tokens.
func (a *Args) String() string {
	return strings.Join(a.tokens, " ")
}

// Tokenize splits an argument line the same way the transcoder receives it.
func Tokenize(line string) []string {
	return strings.Fields(line)
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []byte:
		return string(v)
	default:
		return ""
	}
}
