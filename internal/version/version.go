// Package version reports build metadata injected at link time, falling
// back to what the Go toolchain recorded for module installs.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/rbright/colloquy/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// String renders "colloquy <version> (commit=..., date=..., go=...)".
func String() string {
	v, commit, date := resolve()
	return fmt.Sprintf("colloquy %s (commit=%s, date=%s, go=%s)", v, commit, date, runtime.Version())
}

// resolve fills unset link-time values from the embedded build info.
func resolve() (string, string, string) {
	v, commit, date := Version, Commit, Date
	info, ok := readBuildInfo()
	if !ok {
		return v, commit, date
	}
	if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && commit == "none":
			commit = s.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case s.Key == "vcs.time" && date == "unknown":
			date = s.Value
		}
	}
	return v, commit, date
}
