package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent identifies ratewatch in outgoing HTTP requests.
func UserAgent() string {
	return "ratewatch/" + Version
}

// String renders the build information printed by the version command.
func String() string {
	return fmt.Sprintf("ratewatch %s\ncommit: %s\nbuilt: %s", Version, Commit, BuildDate)
}
