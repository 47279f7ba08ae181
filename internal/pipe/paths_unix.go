//go:build !windows

package pipe

import (
	"os"
	"path/filepath"
)

// DefaultDir is where pipes are created by convention: a per-user temp
// directory.
func DefaultDir() string {
	if dir := os.Getenv("TMPDIR"); dir != "" {
		return dir
	}
	return "/tmp"
}

// WellKnownBrokerPath returns the bit-exact rendezvous pipe path the
// broker listens on.
func WellKnownBrokerPath(dir string) string {
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, ".mumble-json-bridge")
}

// NewReplyPath returns a fresh path under dir for a private reply pipe,
// qualified by name so concurrent clients never collide.
func NewReplyPath(dir, name string) string {
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, ".mumble-json-bridge-client-"+name)
}
