// Package version reports build metadata for ocrnode.
package version

import (
	"fmt"
	"runtime"

	"github.com/smazurov/ocrnode/internal/sidecar"
)

// Set via ldflags, e.g. -X github.com/smazurov/ocrnode/internal/version.Version=v0.3.0.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Engine    string `json:"engine"` // engine file name expected for Platform
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Engine:    sidecar.ExecutableName(runtime.GOOS, runtime.GOARCH),
	}
}

// String returns the version with the short commit, e.g. "v0.3.0 (1a2b3c4)".
func String() string {
	if GitCommit == "unknown" || GitCommit == "" {
		return Version
	}
	commit := GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s (%s)", Version, commit)
}
