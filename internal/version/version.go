// Package version reports what binary is running. Release builds stamp the
// variables below through -ldflags "-X"; other builds fall back to the VCS
// data the Go toolchain embeds.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Name is the product name shown in the API documentation.
const Name = "camstream"

const unknown = "unknown"

// Set with -ldflags "-X github.com/smazurov/camstream/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = unknown
	BuildDate = unknown
	BuildID   = unknown
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// Get returns version and build information.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	fillFromBuildInfo(&info)
	return info
}

// String returns the version with the short commit when it is known,
// e.g. "1.2.0 (abc1234)".
func String() string {
	info := Get()
	if info.GitCommit == unknown {
		return info.Version
	}
	return info.Version + " (" + shortCommit(info.GitCommit) + ")"
}

func fillFromBuildInfo(info *Info) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	dirty := false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == unknown {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == unknown {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && GitCommit == unknown && info.GitCommit != unknown {
		info.GitCommit += "-dirty"
	}
}

func shortCommit(commit string) string {
	hash, suffix, dirty := strings.Cut(commit, "-")
	if len(hash) > 7 {
		hash = hash[:7]
	}
	if dirty {
		return hash + "-" + suffix
	}
	return hash
}
