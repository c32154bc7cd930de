package core

import "fmt"

// Build metadata, overridden at build time:
//
//	go build -ldflags "\
//	  -X sdserve/core.Version=$(git describe --tags --always) \
//	  -X sdserve/core.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ) \
//	  -X sdserve/core.GitCommit=$(git rev-parse --short HEAD)" .
//
// A plain go build leaves the dev defaults in place.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the bare version string.
func GetVersion() string {
	return Version
}

// GetVersionInfo returns the version with build metadata, e.g.
// "v1.2.0 (built 2025-11-03T10:30:00Z, commit 4be91ac)".
func GetVersionInfo() string {
	return fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit)
}
