// Package version holds build metadata injected at link time.
package version

import "fmt"

// Version is set via ldflags:
// go build -ldflags "-X git.home.luguber.info/inful/twinbuild/internal/version.Version=v0.3.0".
var Version = "dev"

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the version for --version output.
func String() string {
	if GitCommit == "unknown" {
		return Version
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, GitCommit, BuildTime)
}
