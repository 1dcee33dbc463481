// Package version exposes whatstrax build information.
package version

// Set at build time via -ldflags.
//
//nolint:gochecknoglobals // ldflags injection targets
var (
	version = "dev"
	buildID = "dev"
)

// GetVersion returns the version string.
func GetVersion() string {
	return version
}

// GetBuildID returns the build identifier.
func GetBuildID() string {
	return buildID
}

// GetFullVersion returns the version together with the build identifier.
func GetFullVersion() string {
	return version + " (build: " + buildID + ")"
}
