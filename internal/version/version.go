// Package version reports the esp32ctl build, shown by `esp32ctl version`
// and sent to devices in the User-Agent header.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Set by release builds:
//
//	-ldflags "-X github.com/muurk/esp32ctl/internal/version.Version=v0.3.0"
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		version, commit := fromBuildInfo()
		if Version == "" {
			Version = version
		}
		if Commit == "" {
			Commit = commit
		}
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo derives a dev version from the VCS stamp of a local build
func fromBuildInfo() (version, commit string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		version = v
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if rev := settings["vcs.revision"]; rev != "" {
		commit = rev[:min(len(rev), 7)]
		if settings["vcs.modified"] == "true" {
			commit += "-dirty"
		}
	}
	if version == "" {
		if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
			version = "dev-" + t.UTC().Format("20060102")
		}
	}
	return version, commit
}

// Full returns the version with its commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent returns the User-Agent header value sent to devices
func UserAgent() string {
	return "esp32ctl/" + Version
}
