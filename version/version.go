// Package version holds build metadata injected at link time.
package version

import "runtime"

var (
	// GitRelease is the release tag, set via -ldflags at build time.
	GitRelease = "dev"
	// GitCommit is the commit hash the binary was built from.
	GitCommit = ""
	// GitCommitDate is the commit date of the build.
	GitCommitDate = ""
	// GoInfo is the Go toolchain the binary was built with.
	GoInfo = runtime.Version()
)
