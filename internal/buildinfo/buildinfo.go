// Package buildinfo carries the version stamped at link time.
package buildinfo

import "runtime/debug"

// Set with -ldflags "-X wagateway/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	info := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info["go"] = bi.GoVersion
		if Commit == "" {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					info["commit"] = s.Value
				}
			}
		}
	}
	return info
}

// String is the one-line form printed by --version.
func String() string {
	s := "wagateway " + Version
	if c := Info()["commit"]; c != "" {
		s += " (" + c + ")"
	}
	return s
}
