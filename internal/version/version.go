package version

import "fmt"

// AppName is the binary name reported in logs and user agents.
const AppName = "yutai"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent is the default User-Agent sent by fetch sessions.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (+shareholder-benefit-ranker)", AppName, Version)
}

// String renders the full version line printed by the version command.
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", AppName, Version, Commit, BuildDate)
}
