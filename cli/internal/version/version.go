// Package version holds the sift version string. Default is "dev"; release
// builds set it via: go build -ldflags "-X sift/cli/internal/version.Version=v1.0.0"
package version

// Version is the sift version. Set at build time for releases.
var Version = "dev"

// Commit is the short git commit hash. Set at build time for dev builds via ldflags.
var Commit = ""

// String returns the version for --version and report footers.
// For dev builds with Commit set, returns "dev (abc1234)"; otherwise returns Version.
func String() string {
	if Version != "dev" || Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
