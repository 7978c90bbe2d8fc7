package meta

import (
	"fmt"
	"runtime"
)

// Info describes the build of a tvremote binary.
//
// It is filled in at build time by the Go linker, see the vars below.
type Info struct {
	Version   string `json:"version"`
	Build     string `json:"build,omitempty"`
	Branch    string `json:"branch,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	Platform  string `json:"platform"`
	GoVersion string `json:"goVersion"`
	GoTag     string `json:"goTag,omitempty"`
}

// These will be filled in using the linker -X flag
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag is the Go build tags
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
	}
}

// DisplayVersion is Version, or "dev" for builds without one.
func (i Info) DisplayVersion() string {
	if i.Version == "" {
		return "dev"
	}

	return i.Version
}

func (i Info) String() string {
	s := fmt.Sprintf("tvremote %s", i.DisplayVersion())

	if i.Build != "" {
		s += fmt.Sprintf(" (%s", i.Build)
		if i.Branch != "" {
			s += "@" + i.Branch
		}
		s += ")"
	}

	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}

	return s + fmt.Sprintf(" %s %s", i.GoVersion, i.Platform)
}
