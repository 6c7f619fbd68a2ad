package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/muurk/midealan/protocol"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/muurk/midealan/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/midealan/internal/version.Commit=abc123"
//
// If not set, they will be populated from git info at runtime (if available),
// or fall back to "dev" with a timestamp.
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the git commit hash
	Commit = ""
)

func init() {
	// If version wasn't set via ldflags, try to get it from build info
	if Version == "" || Commit == "" {
		populateFromBuildInfo()
	}

	// Final fallback if we still don't have values
	if Version == "" {
		Version = fmt.Sprintf("dev-%s", time.Now().Format("20060102-150405"))
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// populateFromBuildInfo attempts to read version info from Go's build info.
// This includes VCS information when built from a git repository. Unlike a
// firmware-flashing tool, midea-probe has no notion of a build being
// "dirty" worth reporting back to a device — a LAN control client either
// speaks the protocol correctly or it doesn't, so the commit hash alone is
// recorded, without a vcs.modified suffix.
func populateFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	var vcsRevision, vcsTime string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			vcsRevision = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		}
	}

	if Commit == "" && vcsRevision != "" {
		if len(vcsRevision) > 7 {
			Commit = vcsRevision[:7]
		} else {
			Commit = vcsRevision
		}
	}

	// For version, we don't have git tags in build info, so use a dev version
	// with the commit time if available
	if Version == "" {
		if vcsTime != "" {
			if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
				Version = fmt.Sprintf("dev-%s", t.Format("20060102"))
			}
		}
	}
}

// Full returns the full version string including commit, the Go toolchain
// it was built with, and the protocol version sessions negotiate by
// default — the one fact most likely to matter when a session from an
// older build won't handshake against a newer one.
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s, default protocol: %d)", Version, Commit, runtime.Version(), protocol.DefaultVersion)
}
