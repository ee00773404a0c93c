// Package buildinfo stores build-time metadata shared across packages.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags during build.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the build metadata reported by the version command.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Current returns build metadata, filling the commit from the embedded VCS
// stamp when ldflags did not set it.
func Current() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if info.Commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					info.Commit = s.Value
				case "vcs.time":
					if info.Date == "" {
						info.Date = s.Value
					}
				}
			}
		}
	}

	return info
}

// String renders a one-line version banner.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}

	if commit == "" {
		return fmt.Sprintf("scriptrunner %s (%s, %s)", i.Version, i.GoVersion, i.Platform)
	}

	return fmt.Sprintf("scriptrunner %s (%s, %s, %s)", i.Version, commit, i.GoVersion, i.Platform)
}
