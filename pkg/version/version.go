// Package version carries build metadata for the replan binary.
package version

import "runtime/debug"

// Set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = "<unknown>"
)

// InitBinaryVersion fills unset fields from the embedded module build
// info, so binaries installed with `go install` still report something
// useful.
func InitBinaryVersion() {
	if Version != "dev" {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			Commit = setting.Value
		case "vcs.time":
			Date = setting.Value
		}
	}
}
