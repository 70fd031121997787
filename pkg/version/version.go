// Package version provides build and version information for the sapt
// toolchain.
package version

import "fmt"

// Version is the current version of sapt.
// Set via ldflags at build time, or defaults to dev.
var Version = "dev"

// Build information set via ldflags at build time.
var (
	// Commit is the git commit hash.
	Commit = "unknown"
	// Date is the build date in RFC3339 format.
	Date = "unknown"
)

// String returns a one-line human-readable version string.
func String() string {
	return fmt.Sprintf("sapt %s (commit %s, built %s)", Version, Commit, Date)
}
