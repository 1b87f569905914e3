// Package version holds build metadata set through -ldflags.
package version

import "fmt"

// Overridden at link time with -X.
var (
	Version = "v0.4.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build metadata for -version output.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
