// Package version carries the build identity stamped into the
// fleetradar binary at link time.
package version

// Stamped via -ldflags on release builds; local builds stay "dev".
//
//nolint:gochecknoglobals // ldflags targets must be package globals
var (
	version = "dev"
	buildID = "dev"
)

// GetVersion returns the release version.
func GetVersion() string {
	return version
}

// GetBuildID returns the build identifier.
func GetBuildID() string {
	return buildID
}

// GetFullVersion returns the version together with the build ID.
func GetFullVersion() string {
	return version + " (build: " + buildID + ")"
}
