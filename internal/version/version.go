// Package version holds the agent's build version, overridden at
// build time via -ldflags "-X .../internal/version.Version=...".
package version

import "runtime"

// Version is the agent's release version. "dev" when built without
// the release ldflags.
var Version = "dev"

// UserAgent is the synthetic User-Agent the HTTP proxy stamps onto
// every forwarded request, per spec.md §4.7.
func UserAgent() string {
	return "agent/" + runtime.GOARCH + "/" + Version
}
