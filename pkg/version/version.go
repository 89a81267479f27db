// Package version holds build metadata injected at link time with
// -ldflags "-X github.com/Sumatoshi-tech/analysisd/pkg/version.Version=...".
package version

import "runtime/debug"

// Version is the release version of the analysisd binary.
var Version = "dev"

// Commit is the VCS revision the binary was built from.
var Commit = "unknown"

// Date is the build timestamp.
var Date = "unknown"

// InitBinaryVersion fills Commit and Date from the embedded build info when
// they were not set by the linker.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "unknown" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}

// String formats the version line printed by "analysisd version".
func String() string {
	return "analysisd " + Version + " (commit: " + Commit + ", built: " + Date + ")"
}
