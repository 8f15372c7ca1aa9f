// Package version carries build metadata for the polluted cities service.
// Values come from -ldflags at build time and fall back to the VCS stamp the
// Go toolchain embeds. The instance ID tells apart replicas sharing one
// cache store.
package version

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

const unknown = "unknown"

// Overridden with -ldflags "-X polluted/internal/version.Version=...".
var (
	Version   = unknown
	BuildDate = unknown
	GitCommit = unknown
)

// Info is the build and runtime identity of this process.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var current = sync.OnceValue(func() Info {
	info := Info{
		Version:    Version,
		GitCommit:  GitCommit,
		BuildDate:  BuildDate,
		InstanceID: uuid.NewString(),
		Hostname:   unknown,
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		info.Hostname = host
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fromBuildInfo(info, bi.Main.Version, bi.Settings)
	}
	return info
})

// GetInfo returns the process identity. It is computed once.
func GetInfo() Info {
	return current()
}

// fromBuildInfo fills fields the linker left unset from the module version
// and the vcs.* build settings.
func fromBuildInfo(info Info, moduleVersion string, settings []debug.BuildSetting) Info {
	if info.Version == unknown && moduleVersion != "" && moduleVersion != "(devel)" {
		info.Version = moduleVersion
	}

	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == unknown && s.Value != "" {
				info.GitCommit = s.Value
				if len(info.GitCommit) > 12 {
					info.GitCommit = info.GitCommit[:12]
				}
			}
		case "vcs.time":
			if info.BuildDate == unknown && s.Value != "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && info.GitCommit != unknown && Version == unknown {
		info.GitCommit += "-dirty"
	}
	return info
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("polluted version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}
