// Package version carries build metadata injected at link time.
package version

import "time"

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
	// BuildTime is the build timestamp (set via -ldflags).
	BuildTime = ""
)

type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Resolve returns the link-time info, falling back to the build timestamp or
// the current time when no version was stamped.
func Resolve() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
	if info.Version == "" {
		info.Version = info.BuildTime
	}
	if info.Version == "" {
		info.Version = time.Now().UTC().Format("20060102T150405Z")
	}
	return info
}

// String renders "version (commit)" for CLI output.
func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	commit := info.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return info.Version + " (" + commit + ")"
}
