package core

import (
	"runtime/debug"
	"strings"

	"golang.org/x/mod/module"
)

// Version is the build's version: the module version for tagged installs,
// devel-<sha>[-dirty] for local builds.
var Version = resolveVersion(debug.ReadBuildInfo())

func resolveVersion(info *debug.BuildInfo, ok bool) string {
	if !ok || info == nil {
		return "devel"
	}

	// Local builds get a pseudo-version since Go 1.24; VCS info says more
	if v := info.Main.Version; v != "" && v != "(devel)" && !module.IsPseudoVersion(strings.SplitN(v, "+", 2)[0]) {
		return v
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "devel"
	}

	if len(revision) > 7 {
		revision = revision[:7]
	}
	version := "devel-" + revision
	if dirty {
		version += "-dirty"
	}
	return version
}

// FormatVersion strips the "v" of tagged releases for display.
func FormatVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}
