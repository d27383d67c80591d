// SPDX-License-Identifier: MIT
// Package build exposes build metadata injected at compile time via
// -ldflags, e.g.:
//
//	go build -ldflags "-X .../pkg/build.buildVersion=0.2.0"
//
// Unset values fall back to development defaults.
package build

// Info holds the metadata for one binary.
type Info struct {
	Name    string // Application name
	Time    string // Build timestamp (RFC3339)
	Commit  string // Git commit hash
	Version string // Semantic version
}

// Populated by -ldflags during release builds.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

// Get returns the build information, substituting development defaults
// for anything the linker did not set.
func Get() Info {
	info := Info{
		Name:    buildName,
		Time:    buildTime,
		Commit:  buildCommit,
		Version: buildVersion,
	}
	if info.Name == "" {
		info.Name = "speccomp"
	}
	if info.Time == "" {
		info.Time = "unknown"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}
