// Package version contains build version information.
// Values are overridden at build time via -ldflags "-X".
package version

var (
	// Version is the released application version.
	Version = "dev"
	// GitCommit is the git commit hash.
	GitCommit = "unknown"
	// BuildDate is the build date.
	BuildDate = "unknown"
)

// UserAgent returns the User-Agent sent on outbound HTTP requests.
func UserAgent() string {
	return "statuswatch/" + Version
}
