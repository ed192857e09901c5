// Package build reports the version the binary was built from.
package build

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set with -ldflags "-X github.com/charm-corp/ai-value-matching-sub001/internal/build.Version=...".
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
	GoVersion = runtime.Version()
	Platform  = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	StartTime = time.Now()
)

//nolint:gochecknoinits // fill version from module info.
func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "" {
		Version = moduleVersion(info)
	}

	if Commit == "" {
		Commit = setting(info, "vcs.revision")
	}

	if BuildTime == "" {
		BuildTime = setting(info, "vcs.time")
	}
}

func moduleVersion(info *debug.BuildInfo) string {
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	return "dev"
}

func setting(info *debug.BuildInfo, key string) string {
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}

	return ""
}

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Uptime    string `json:"uptime"`
}

func GetBuildInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		Platform:  Platform,
		Uptime:    time.Since(StartTime).Truncate(time.Second).String(),
	}
}

func (i Info) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Version: %s\n", i.Version)

	if i.Commit != "" {
		fmt.Fprintf(&sb, "Commit: %s\n", i.Commit)
	}

	if i.BuildTime != "" {
		fmt.Fprintf(&sb, "Build Time: %s\n", i.BuildTime)
	}

	fmt.Fprintf(&sb, "Go Version: %s\n", i.GoVersion)
	fmt.Fprintf(&sb, "Platform: %s\n", i.Platform)
	fmt.Fprintf(&sb, "Uptime: %s\n", i.Uptime)

	return sb.String()
}
