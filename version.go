// Package docrouter holds build metadata for the document router. The
// service itself lives in the core, memory, agents and router packages.
package docrouter

// Version information, overridden at build time with -ldflags "-X".
var (
	// Version is the release version
	Version = "development"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)

// APIVersion is the HTTP API version
const APIVersion = "v1"
