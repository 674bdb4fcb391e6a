package utils

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is set at build time with -ldflags "-X .../utils.Version=x.y.z".
//
//nolint:gochecknoglobals // Set by the linker
var Version = "0.0.0"

const unknown = "unknown"

// GetVersionShort returns "v<version> (<commit>)", with a -dirty suffix for modified trees.
func GetVersionShort() string {
	commit, _, modified := getVCSInfo()
	if modified == "true" {
		commit += "-dirty"
	}

	return fmt.Sprintf("v%s (%s)", Version, commit)
}

// GetBuildInfo returns version metadata for the health endpoint.
func GetBuildInfo() map[string]string {
	commit, buildTime, modified := getVCSInfo()

	return map[string]string{
		"version":    Version,
		"commit":     commit,
		"build_time": buildTime,
		"modified":   modified,
		"go_version": runtime.Version(),
	}
}

func getVCSInfo() (string, string, string) {
	commit, buildTime, modified := unknown, unknown, "false"

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, buildTime, modified
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
			if len(commit) > 7 {
				commit = commit[:7]
			}
		case "vcs.time":
			buildTime = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}

	return commit, buildTime, modified
}
