// Package version centralizes the release version string.
package version

// Version is the release version reported by --version. Overridable at link
// time with -ldflags "-X .../internal/version.Version=...".
var Version = "1.2.0"
