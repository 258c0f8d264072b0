// Package version reports which build of medgraph is running.
//
// Version, GitCommit and BuildTime can be set with
// -ldflags "-X github.com/medgraph/medgraph/internal/version.Version=...".
// When they are not, commit and time fall back to the VCS stamp the go tool
// embeds in the binary.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

const unknown = "unknown"

// BuildInfo is what /debug and error reports show about the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// Info merges the ldflags values with the embedded VCS settings.
func Info() BuildInfo {
	var settings []debug.BuildSetting
	if bi, ok := debug.ReadBuildInfo(); ok {
		settings = bi.Settings
	}
	return resolve(settings)
}

func resolve(settings []debug.BuildSetting) BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = shortCommit(s.Value)
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if info.GitCommit == "" {
		info.GitCommit = unknown
	}
	if info.BuildTime == "" {
		info.BuildTime = unknown
	}
	return info
}

// Release is the identifier used for error reports, e.g. "medgraph@1.2.0+3f2a9c1".
func (b BuildInfo) Release() string {
	r := "medgraph@" + b.Version
	if b.GitCommit != unknown {
		r += "+" + b.GitCommit
	}
	return r
}

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
