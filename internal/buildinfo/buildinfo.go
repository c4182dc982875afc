// Package buildinfo reports the version baked into the binary.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

type meta struct {
	version  string
	revision string
	dirty    bool
}

var read = sync.OnceValue(func() meta {
	m := meta{version: "dev"}
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return m
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		m.version = v
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			m.revision = setting.Value
		case "vcs.modified":
			m.dirty = setting.Value == "true"
		}
	}
	return m
})

// Version returns the module version, or "dev" for local builds.
func Version() string {
	return read().version
}

// Revision returns the short VCS revision, or "" when unrecorded.
func Revision() string {
	rev := read().revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return rev
}

// String returns a human-readable version line.
func String() string {
	m := read()
	out := m.version
	if rev := Revision(); rev != "" {
		out = fmt.Sprintf("%s (%s)", out, rev)
	}
	if m.dirty {
		out += " dirty"
	}
	return out
}
