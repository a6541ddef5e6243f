// Package version exposes the pvebot release version.
package version

// Current is the semantic version of this build. Update on release.
const Current = "0.3.0"
