// Package version holds build metadata, set with -ldflags at build time.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for logs and the status page.
func String() string {
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("usprobe %s (%s, built %s)", Version, sha, BuildTime)
}
