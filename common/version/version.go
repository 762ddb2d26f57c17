// Package version carries build metadata injected at link time:
//
//	go build -ldflags "-X github.com/bdobrica/Eliza/common/version.Version=v1.2.0 \
//	  -X github.com/bdobrica/Eliza/common/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import "runtime"

var (
	// Version is the release tag (set via ldflags)
	Version = "v0.0.0-dev"

	// GitCommit is the short commit hash (set via ldflags)
	GitCommit = "unknown"

	// BuildTime is the RFC 3339 build timestamp (set via ldflags)
	BuildTime = "unknown"
)

// Info returns the one-line form printed by "eliza version".
func Info() string {
	return "eliza " + Version + " (" + GitCommit + ", " + runtime.Version() + ") built " + BuildTime
}

// Fields returns the build metadata for health responses and startup logs.
func Fields() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_time": BuildTime,
		"go":         runtime.Version(),
	}
}
