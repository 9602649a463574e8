// Package version carries build metadata injected with -ldflags -X.
package version

var (
	// Version is the release tag of the misfit tools
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
