// Package buildinfo holds version and build metadata stamped at compile time via ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
)

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns all build and runtime info as a map.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("Mosaic %s (%s) built %s", Version, GitCommit, BuildTime)
}

// UserAgent returns the User-Agent header value for outbound HTTP requests.
// SEC EDGAR requests do not use this; they carry the operator-declared
// contact string from the configuration instead.
func UserAgent() string {
	return fmt.Sprintf("mosaic/%s (+https://github.com/ledgerline/mosaic)", Version)
}
