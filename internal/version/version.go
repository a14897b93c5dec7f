// Package version holds build identification reported by /status and the CLI.
package version

// Set via -ldflags "-X couchcontrol/internal/version.Commit=...".
var (
	Version = "2.0.0"
	Commit  = "unknown"
)

// Protocol names the frame transport advertised to clients.
const Protocol = "websocket"

// Info returns the version string printed by `couch-control version`.
func Info() string {
	return Version + " (" + Commit + ")"
}
