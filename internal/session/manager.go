// Package session owns the single active repository session and
// sequences every asynchronous operation against it. Each operation
// class (open, refresh, diff reload, plugin attach) runs under a
// monotonically increasing ticket; a completion is applied only while
// its ticket is still the latest of its class and the session it
// targeted is still active. Stale results are discarded, which stands
// in for explicit cancellation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pbaumgart/loupe/internal/plugin"
	"github.com/pbaumgart/loupe/internal/review"
)

// Repository is the slice of the git backend the manager drives.
// *git.Repository satisfies it.
type Repository interface {
	Root() string
	Snapshot() (*review.RepositorySnapshot, error)
	Refresh() (*review.RepositorySnapshot, error)
	DiffUncommitted(ctx context.Context) (*review.Diff, error)
}

// Opener opens the repository containing path.
type Opener func(path string) (Repository, error)

// restorePoint is the last settled session, kept while an open is in
// flight so a failed open can fall back to it.
type restorePoint struct {
	view      View
	repo      Repository
	sessionID uint64
}

type Manager struct {
	open    Opener
	plugins *plugin.Service
	log     *slog.Logger

	mu         sync.Mutex
	openSeq    uint64
	refreshSeq uint64
	diffSeq    uint64
	attachSeq  uint64
	sessionID  uint64
	repo       Repository
	view       View
	lastGood   *restorePoint

	updates chan struct{}
}

func NewManager(open Opener, plugins *plugin.Service, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		open:    open,
		plugins: plugins,
		log:     log,
		view:    View{State: StateIdle, Diff: DiffView{State: DiffIdle}},
		updates: make(chan struct{}, 1),
	}
}

// View returns a copy of the current observable state.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Updates signals state changes. Notifications are coalesced: readers
// that fall behind see at most one pending signal and re-read View.
func (m *Manager) Updates() <-chan struct{} {
	return m.updates
}

// Open starts opening the repository at path. Any in-flight or
// completed prior open is superseded immediately; if this open fails
// and a previously settled session exists, that session is restored
// in full instead of surfacing the failure.
func (m *Manager) Open(ctx context.Context, path string) {
	m.mu.Lock()
	m.openSeq++
	ticket := m.openSeq
	if m.view.State == StateReady {
		m.lastGood = &restorePoint{view: m.view, repo: m.repo, sessionID: m.sessionID}
	}
	m.repo = nil
	m.view = View{State: StateOpening, Path: path, Diff: DiffView{State: DiffLoading}}
	m.notifyLocked()
	m.mu.Unlock()

	go m.runOpen(ctx, ticket, path)
}

func (m *Manager) runOpen(ctx context.Context, ticket uint64, path string) {
	repo, err := m.open(path)

	var snap *review.RepositorySnapshot
	var diff *review.Diff
	var diffErr error
	if err == nil {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var e error
			snap, e = repo.Snapshot()
			return e
		})
		g.Go(func() error {
			// Diff failure does not fail the open; it lands in the
			// diff sub-state with its own retry.
			diff, diffErr = repo.DiffUncommitted(gctx)
			return nil
		})
		err = g.Wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ticket != m.openSeq {
		return
	}
	if err != nil {
		if m.lastGood != nil {
			m.log.Debug("open failed, restoring previous session",
				slog.String("path", path),
				slog.Any("error", err))
			m.repo = m.lastGood.repo
			m.sessionID = m.lastGood.sessionID
			m.view = m.lastGood.view
			m.lastGood = nil
		} else {
			m.view = View{State: StateFailed, Path: path, Err: err.Error(), Diff: DiffView{State: DiffIdle}}
		}
		m.notifyLocked()
		return
	}

	m.sessionID++
	m.repo = repo
	m.lastGood = nil
	view := View{State: StateReady, Path: path, Snapshot: snap}
	if diffErr != nil {
		view.Diff = DiffView{State: DiffFailed, Err: diffErr.Error()}
	} else {
		view.Diff = DiffView{State: DiffLoaded, Diff: diff}
	}
	m.view = view
	m.log.Debug("session opened",
		slog.String("path", path),
		slog.String("root", repo.Root()))
	m.notifyLocked()
}

// Refresh re-derives the repository snapshot. Transient failures are
// swallowed: the ready state stays untouched and the next trigger
// retries naturally.
func (m *Manager) Refresh(ctx context.Context) {
	m.mu.Lock()
	if m.view.State != StateReady {
		m.mu.Unlock()
		return
	}
	m.refreshSeq++
	ticket := m.refreshSeq
	session := m.sessionID
	repo := m.repo
	m.mu.Unlock()

	go func() {
		snap, err := repo.Refresh()
		if err == nil {
			err = ctx.Err()
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if ticket != m.refreshSeq || session != m.sessionID || m.view.State != StateReady {
			return
		}
		if err != nil {
			m.log.Debug("refresh failed, keeping current state", slog.Any("error", err))
			return
		}
		m.view.Snapshot = snap
		m.notifyLocked()
	}()
}

// ReloadDiff recomputes the uncommitted diff. Unlike Refresh, failure
// here is explicit: the diff is the primary reviewable artifact, so
// the sub-state transitions to failed with the message.
func (m *Manager) ReloadDiff(ctx context.Context) {
	m.mu.Lock()
	if m.view.State != StateReady {
		m.mu.Unlock()
		return
	}
	m.diffSeq++
	ticket := m.diffSeq
	session := m.sessionID
	repo := m.repo
	m.view.Diff = DiffView{State: DiffLoading}
	m.notifyLocked()
	m.mu.Unlock()

	go func() {
		diff, err := repo.DiffUncommitted(ctx)

		m.mu.Lock()
		defer m.mu.Unlock()
		if ticket != m.diffSeq || session != m.sessionID || m.view.State != StateReady {
			return
		}
		if err != nil {
			m.view.Diff = DiffView{State: DiffFailed, Err: err.Error()}
		} else {
			m.view.Diff = DiffView{State: DiffLoaded, Diff: diff}
		}
		m.notifyLocked()
	}()
}

// AttachPlugin binds a plugin session for the active repository
// session. Failure surfaces in PluginErr without touching the
// repository state.
func (m *Manager) AttachPlugin(ctx context.Context, pluginID, threadID string) {
	m.mu.Lock()
	if m.view.State != StateReady {
		m.mu.Unlock()
		return
	}
	m.attachSeq++
	ticket := m.attachSeq
	session := m.sessionID
	m.mu.Unlock()

	go func() {
		ps, err := m.plugins.Attach(ctx, pluginID, threadID)

		m.mu.Lock()
		defer m.mu.Unlock()
		if ticket != m.attachSeq || session != m.sessionID || m.view.State != StateReady {
			return
		}
		if err != nil {
			m.view.PluginErr = err.Error()
		} else {
			m.view.PluginSession = &ps
			m.view.PluginErr = ""
		}
		m.notifyLocked()
	}()
}

// SubmitReview posts the payload through the attached plugin session.
func (m *Manager) SubmitReview(ctx context.Context, payload plugin.ReviewPayload) (plugin.SubmissionResult, error) {
	ps, err := m.pluginSession()
	if err != nil {
		return plugin.SubmissionResult{}, err
	}
	return m.plugins.SubmitReview(ctx, ps, payload)
}

// PollProgress reports revision progress for the attached plugin
// session.
func (m *Manager) PollProgress(ctx context.Context) (plugin.RevisionProgress, error) {
	ps, err := m.pluginSession()
	if err != nil {
		return plugin.RevisionProgress{}, err
	}
	return m.plugins.PollProgress(ctx, ps)
}

// Plugins lists registered plugins in preference order.
func (m *Manager) Plugins(preferred []string) []plugin.Summary {
	return m.plugins.Summaries(preferred)
}

// Close discards the active session and returns to idle. Tickets for
// every operation class advance so in-flight completions are dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openSeq++
	m.refreshSeq++
	m.diffSeq++
	m.attachSeq++
	m.sessionID++
	m.repo = nil
	m.lastGood = nil
	m.view = View{State: StateIdle, Diff: DiffView{State: DiffIdle}}
	m.notifyLocked()
}

func (m *Manager) pluginSession() (plugin.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.view.State != StateReady || m.view.PluginSession == nil {
		return plugin.Session{}, review.NewError(review.KindPlugin, fmt.Sprintf("no plugin session attached (state %s)", m.view.State))
	}
	return *m.view.PluginSession, nil
}

func (m *Manager) notifyLocked() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}
