package version

import (
	"fmt"
	"regexp"
	"strings"
)

var version = "dev"

// String returns the build version for the current binary.
func String() string {
	return version
}

// ForTesting overrides the version string and returns a cleanup function
// that restores the original value. Must not be called concurrently.
func ForTesting(v string) func() {
	original := version
	version = v
	return func() { version = original }
}

// gitDescribeSuffix matches the trailing "-N-gHASH" added by git describe.
var gitDescribeSuffix = regexp.MustCompile(`-\d+-g[0-9a-f]+$`)

func normalizeVersion(v string) string {
	v = strings.TrimPrefix(v, "v")
	return gitDescribeSuffix.ReplaceAllString(v, "")
}

// FormatVersion ensures a "v" prefix on release versions. "dev" and the
// empty string are returned as-is.
func FormatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// CheckServerMismatch compares the local build with the version reported by
// a running render server. It returns a warning when they differ and an
// empty string when they match or either side is a development build.
func CheckServerMismatch(serverVersion string) string {
	if serverVersion == "" || version == "" {
		return ""
	}
	local := version
	if local == "dev" || serverVersion == "dev" {
		return ""
	}
	if normalizeVersion(local) == normalizeVersion(serverVersion) {
		return ""
	}
	return fmt.Sprintf(
		"WARNING: shellboot %s talking to server %s, restart the server or reinstall",
		FormatVersion(local), FormatVersion(serverVersion),
	)
}
