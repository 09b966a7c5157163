package version

import (
	"fmt"
	"runtime"
)

// These variables are set at build time via ldflags.
var (
	// Release is the release version (e.g., "v1.0.0-abc1234").
	Release = "dev"
	// GitCommit is the short git commit hash.
	GitCommit = "unknown"
)

// GetRelease returns the release version.
func GetRelease() string {
	return Release
}

// GetGitCommit returns the git commit hash.
func GetGitCommit() string {
	return GitCommit
}

// UserAgent returns the user agent sent with JSON-RPC requests.
func UserAgent() string {
	return "eip7702-checker/" + Release
}

// Full returns the release, commit and platform, e.g. "eip7702-checker/v1.0.0 (abc1234, linux/amd64)".
func Full() string {
	return fmt.Sprintf("%s (%s, %s/%s)", UserAgent(), GitCommit, runtime.GOOS, runtime.GOARCH)
}
