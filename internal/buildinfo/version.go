// Package buildinfo holds the release version stamped into binaries
// and archives.
package buildinfo

// Version is overridden at release time via -ldflags -X.
var Version = "0.1.0"
