package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetUsesStampedValues(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldVersion, oldCommit, oldDate })

	Version, GitCommit, BuildDate = "1.4.0", "0123456789abcdef", "2026-01-02"

	info := Get()
	if info.Version != "1.4.0" || info.GitCommit != "0123456789abcdef" || info.BuildDate != "2026-01-02" {
		t.Errorf("Get() = %+v", info)
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH || info.GoVersion != runtime.Version() {
		t.Errorf("runtime fields = %+v", info)
	}
	if got := String(); got != "1.4.0 (0123456)" {
		t.Errorf("String() = %q", got)
	}
}

func TestShortCommit(t *testing.T) {
	tests := map[string]string{
		"abc":                    "abc",
		"0123456789":             "0123456",
		"0123456-dirty":          "0123456-dirty",
		"0123456789abcdef-dirty": "0123456-dirty",
	}
	for in, want := range tests {
		if got := shortCommit(in); got != want {
			t.Errorf("shortCommit(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStringWithoutCommit(t *testing.T) {
	if s := String(); !strings.HasPrefix(s, Get().Version) {
		t.Errorf("String() = %q should start with the version", s)
	}
}
