// Package version reports the build version. Release builds set Version
// with -ldflags "-X scenequeue/internal/version.Version=...".
package version

import "strings"

var Version = "dev"

func String() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		return "dev"
	}
	return v
}
