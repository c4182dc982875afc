package session

import (
	"github.com/pbaumgart/loupe/internal/plugin"
	"github.com/pbaumgart/loupe/internal/review"
)

// State is the lifecycle of the repository session.
type State string

const (
	StateIdle    State = "idle"
	StateOpening State = "opening"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// DiffState is the orthogonal sub-state of the reviewable diff.
type DiffState string

const (
	DiffIdle    DiffState = "idle"
	DiffLoading DiffState = "loading"
	DiffLoaded  DiffState = "loaded"
	DiffFailed  DiffState = "failed"
)

// DiffView is the observable diff slot. Diff is set only when State is
// DiffLoaded; Err only when DiffFailed.
type DiffView struct {
	State DiffState
	Diff  *review.Diff
	Err   string
}

// View is an immutable copy of the manager's observable state. The
// pointed-to snapshot and diff values are never mutated after being
// published, so sharing them across copies is safe.
type View struct {
	State State
	Path  string
	Err   string

	Snapshot *review.RepositorySnapshot
	Diff     DiffView

	PluginSession *plugin.Session
	PluginErr     string
}
