// Package version reports the airscout build.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Set at link time:
//
//	go build -ldflags="-X github.com/muurk/airscout/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/airscout/internal/version.Commit=abc123"
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			Version, Commit = fromBuildInfo(info, Version, Commit)
		}
	}
	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo fills whichever of version and commit is empty. A tagged
// module version (go install ...@v1.2.3) wins over the VCS date.
func fromBuildInfo(info *debug.BuildInfo, version, commit string) (string, string) {
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if commit == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if len(rev) > 7 {
				rev = rev[:7]
			}
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			commit = rev
		}
	}

	if version == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			version = v
		} else if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
			version = "dev-" + t.Format("20060102")
		}
	}
	return version, commit
}

// Full returns the version with its commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent is sent with every request made to a sensor node
func UserAgent() string {
	return "airscout/" + Version
}
