// Package version exposes build metadata stamped in via ldflags:
//
//	go build -ldflags "-X github.com/shelfwise/shelfwise-api/internal/version.Version=1.0.0 ..."
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version, "0.0.0-dev" for local builds.
	Version = "0.0.0-dev"

	// Commit is the git commit SHA the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp in RFC3339.
	Date = "unknown"

	// Dirty is "true" when the working tree had uncommitted changes.
	Dirty = "false"
)

// Info is a snapshot of the build metadata plus runtime details.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Dirty:     Dirty == "true",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the full version line used at startup.
func (i Info) String() string {
	commit := i.Commit
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s) built %s", i.Version, commit, i.Date)
}

// Short returns just the version, with a dirty marker when relevant.
func (i Info) Short() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}
