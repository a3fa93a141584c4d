/*
Copyright 2025 Paradrop Labs
*/

package version

import (
	"fmt"
	"runtime"
)

// Info describes the build a binary came from.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// String returns info as a human-friendly version string.
func (info Info) String() string {
	return info.Version
}

// Get returns the overall codebase version. The variables typically come
// from -ldflags settings and fall back to the values in base.go.
func Get() Info {
	return Info{
		Version:   version,
		GitCommit: sha1ver,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
