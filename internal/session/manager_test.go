package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaumgart/loupe/internal/plugin"
	"github.com/pbaumgart/loupe/internal/review"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
	settle  = 100 * time.Millisecond
)

type fakeRepo struct {
	root string

	mu          sync.Mutex
	snap        *review.RepositorySnapshot
	refreshErr  error
	refreshSnap *review.RepositorySnapshot
	refreshDone chan struct{}
	diff        *review.Diff
	diffErr     error
	diffGate    chan struct{}
	// diffEnter/diffDone signal once each: when the next diff call
	// starts and when it returns.
	diffEnter chan struct{}
	diffDone  chan struct{}
}

func newFakeRepo(root string) *fakeRepo {
	return &fakeRepo{
		root: root,
		snap: &review.RepositorySnapshot{Info: review.RepositoryInfo{Root: root}},
		diff: &review.Diff{},
	}
}

func (f *fakeRepo) Root() string { return f.root }

func (f *fakeRepo) Snapshot() (*review.RepositorySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

func (f *fakeRepo) Refresh() (*review.RepositorySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshDone != nil {
		defer close(f.refreshDone)
		f.refreshDone = nil
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refreshSnap != nil {
		return f.refreshSnap, nil
	}
	return f.snap, nil
}

func (f *fakeRepo) DiffUncommitted(context.Context) (*review.Diff, error) {
	f.mu.Lock()
	gate, enter, done := f.diffGate, f.diffEnter, f.diffDone
	f.diffEnter, f.diffDone = nil, nil
	f.mu.Unlock()
	if enter != nil {
		close(enter)
	}
	if gate != nil {
		<-gate
	}
	if done != nil {
		defer close(done)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.diffErr != nil {
		return nil, f.diffErr
	}
	return f.diff, nil
}

func (f *fakeRepo) set(mutate func(*fakeRepo)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(f)
}

// gatedOpener blocks each Open call on a per-path gate so tests can
// control completion order precisely.
type gatedOpener struct {
	mu    sync.Mutex
	repos map[string]Repository
	errs  map[string]error
	gates map[string]chan struct{}
}

func newGatedOpener() *gatedOpener {
	return &gatedOpener{
		repos: make(map[string]Repository),
		errs:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

func (o *gatedOpener) add(path string, repo Repository, err error) chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	gate := make(chan struct{})
	o.repos[path] = repo
	o.errs[path] = err
	o.gates[path] = gate
	return gate
}

func (o *gatedOpener) open(path string) (Repository, error) {
	o.mu.Lock()
	gate := o.gates[path]
	repo := o.repos[path]
	err := o.errs[path]
	o.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func instantOpener(repos map[string]Repository, errs map[string]error) Opener {
	return func(path string) (Repository, error) {
		if err := errs[path]; err != nil {
			return nil, err
		}
		return repos[path], nil
	}
}

func newTestManager(open Opener) *Manager {
	registry := plugin.NewRegistry(&scriptedPlugin{id: "fake", label: "Fake"})
	return NewManager(open, plugin.NewService(registry, nil), nil)
}

type scriptedPlugin struct {
	id, label string
	attachErr error
}

func (p *scriptedPlugin) ID() string    { return p.id }
func (p *scriptedPlugin) Label() string { return p.label }
func (p *scriptedPlugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{AttachWithoutThread: true, Polling: true}
}
func (p *scriptedPlugin) ListThreads(context.Context) ([]plugin.ThreadRef, error) {
	return nil, nil
}
func (p *scriptedPlugin) Attach(_ context.Context, threadID string) (plugin.Session, error) {
	if p.attachErr != nil {
		return plugin.Session{}, p.attachErr
	}
	s := plugin.Session{PluginID: p.id, SessionID: "s-1"}
	if threadID != "" {
		s.Thread = &plugin.ThreadRef{ID: threadID}
	}
	return s, nil
}
func (p *scriptedPlugin) SubmitReview(context.Context, plugin.Session, plugin.ReviewPayload) (plugin.SubmissionResult, error) {
	return plugin.SubmissionResult{RevisionStarted: true}, nil
}
func (p *scriptedPlugin) PollProgress(context.Context, plugin.Session) (plugin.RevisionProgress, error) {
	return plugin.RevisionProgress{State: plugin.RevisionCompleted}, nil
}

func waitState(t *testing.T, m *Manager, want State) View {
	t.Helper()
	var view View
	require.Eventually(t, func() bool {
		view = m.View()
		return view.State == want
	}, waitFor, tick, "state never reached %s (last %s)", want, view.State)
	return view
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for in-flight operation")
	}
}

func TestOpen_Success(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("/repo/a")
	m := newTestManager(instantOpener(map[string]Repository{"/repo/a": repo}, nil))

	m.Open(context.Background(), "/repo/a")
	view := waitState(t, m, StateReady)

	require.NotNil(t, view.Snapshot)
	assert.Equal(t, "/repo/a", view.Snapshot.Info.Root)
	assert.Equal(t, DiffLoaded, view.Diff.State)
	require.NotNil(t, view.Diff.Diff)
}

func TestOpen_FailureWithoutPriorSession(t *testing.T) {
	t.Parallel()

	m := newTestManager(instantOpener(nil, map[string]error{
		"/bad": review.NewError(review.KindNotARepository, "no repository at /bad"),
	}))

	m.Open(context.Background(), "/bad")
	view := waitState(t, m, StateFailed)
	assert.Contains(t, view.Err, "no repository")
}

func TestOpen_FailureRestoresPriorSession(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("/repo/a")
	m := newTestManager(instantOpener(
		map[string]Repository{"/repo/a": repo},
		map[string]error{"/bad": errors.New("boom")},
	))

	m.Open(context.Background(), "/repo/a")
	waitState(t, m, StateReady)

	m.Open(context.Background(), "/bad")
	view := waitState(t, m, StateReady)
	require.NotNil(t, view.Snapshot)
	assert.Equal(t, "/repo/a", view.Snapshot.Info.Root)
	assert.Equal(t, DiffLoaded, view.Diff.State)
}

func TestOpen_LastIssuedWins(t *testing.T) {
	t.Parallel()

	opener := newGatedOpener()
	staleRepo := newFakeRepo("/repo/a")
	staleDone := make(chan struct{})
	staleRepo.set(func(f *fakeRepo) { f.diffDone = staleDone })
	gateA := opener.add("/repo/a", staleRepo, nil)
	gateB := opener.add("/repo/b", newFakeRepo("/repo/b"), nil)
	m := newTestManager(opener.open)

	m.Open(context.Background(), "/repo/a")
	m.Open(context.Background(), "/repo/b")

	// B resolves first, then the stale A completion arrives.
	close(gateB)
	view := waitState(t, m, StateReady)
	assert.Equal(t, "/repo/b", view.Snapshot.Info.Root)

	close(gateA)
	waitSignal(t, staleDone)
	assert.Never(t, func() bool {
		return m.View().Snapshot.Info.Root == "/repo/a"
	}, settle, tick, "stale open must not overwrite newer session")
}

func TestOpen_InvalidAfterValidKeepsValidWhenStale(t *testing.T) {
	t.Parallel()

	opener := newGatedOpener()
	staleRepo := newFakeRepo("/repo/a")
	staleDone := make(chan struct{})
	staleRepo.set(func(f *fakeRepo) { f.diffDone = staleDone })
	gateA := opener.add("/repo/a", staleRepo, nil)
	gateBad := opener.add("/bad", nil, errors.New("boom"))
	m := newTestManager(opener.open)

	m.Open(context.Background(), "/repo/a")
	m.Open(context.Background(), "/bad")

	// The invalid open fails first with no settled session to restore.
	close(gateBad)
	waitState(t, m, StateFailed)

	// The stale valid open completes afterwards and must be discarded.
	close(gateA)
	waitSignal(t, staleDone)
	assert.Never(t, func() bool {
		return m.View().State == StateReady
	}, settle, tick, "stale valid open must be discarded")
}

func TestRefresh_SilentFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("/repo/a")
	m := newTestManager(instantOpener(map[string]Repository{"/repo/a": repo}, nil))
	m.Open(context.Background(), "/repo/a")
	before := waitState(t, m, StateReady)

	refreshed := make(chan struct{})
	repo.set(func(f *fakeRepo) {
		f.refreshErr = errors.New("transient")
		f.refreshDone = refreshed
	})
	m.Refresh(context.Background())
	waitSignal(t, refreshed)

	assert.Never(t, func() bool {
		return m.View().Snapshot != before.Snapshot
	}, settle, tick, "snapshot must stay untouched")
	view := m.View()
	assert.Equal(t, StateReady, view.State)
	assert.Empty(t, view.Err)
}

func TestRefresh_AppliesNewSnapshot(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("/repo/a")
	m := newTestManager(instantOpener(map[string]Repository{"/repo/a": repo}, nil))
	m.Open(context.Background(), "/repo/a")
	waitState(t, m, StateReady)

	fresh := &review.RepositorySnapshot{
		Info:      review.RepositoryInfo{Root: "/repo/a"},
		Workspace: review.WorkspaceStatus{Dirty: true},
	}
	repo.set(func(f *fakeRepo) { f.refreshSnap = fresh })
	m.Refresh(context.Background())

	require.Eventually(t, func() bool {
		return m.View().Snapshot == fresh
	}, waitFor, tick)
}

func TestReloadDiff_ExplicitFailureThenRetry(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("/repo/a")
	m := newTestManager(instantOpener(map[string]Repository{"/repo/a": repo}, nil))
	m.Open(context.Background(), "/repo/a")
	waitState(t, m, StateReady)

	repo.set(func(f *fakeRepo) { f.diffErr = errors.New("diff broke") })
	m.ReloadDiff(context.Background())
	require.Eventually(t, func() bool {
		return m.View().Diff.State == DiffFailed
	}, waitFor, tick)
	assert.Contains(t, m.View().Diff.Err, "diff broke")
	assert.Equal(t, StateReady, m.View().State, "diff failure must not tear down the session")

	repo.set(func(f *fakeRepo) { f.diffErr = nil })
	m.ReloadDiff(context.Background())
	require.Eventually(t, func() bool {
		return m.View().Diff.State == DiffLoaded
	}, waitFor, tick)
}

func TestReloadDiff_StaleResultDiscarded(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("/repo/a")
	m := newTestManager(instantOpener(map[string]Repository{"/repo/a": repo}, nil))
	m.Open(context.Background(), "/repo/a")
	waitState(t, m, StateReady)

	slow := make(chan struct{})
	staleStarted := make(chan struct{})
	staleDone := make(chan struct{})
	staleDiff := &review.Diff{Files: []review.DiffFile{{Path: "stale.txt"}}}
	repo.set(func(f *fakeRepo) {
		f.diffGate = slow
		f.diffEnter = staleStarted
		f.diffDone = staleDone
		f.diff = staleDiff
	})
	m.ReloadDiff(context.Background())
	waitSignal(t, staleStarted)

	freshDiff := &review.Diff{Files: []review.DiffFile{{Path: "fresh.txt"}}}
	repo.set(func(f *fakeRepo) {
		f.diffGate = nil
		f.diff = freshDiff
	})
	m.ReloadDiff(context.Background())

	require.Eventually(t, func() bool {
		v := m.View()
		return v.Diff.State == DiffLoaded && v.Diff.Diff == freshDiff
	}, waitFor, tick)

	// Release the first reload; its result is stale and must be dropped.
	close(slow)
	waitSignal(t, staleDone)
	assert.Never(t, func() bool {
		return m.View().Diff.Diff == staleDiff
	}, settle, tick)
	assert.Same(t, freshDiff, m.View().Diff.Diff)
}

func TestAttachPlugin_RecordsSession(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("/repo/a")
	m := newTestManager(instantOpener(map[string]Repository{"/repo/a": repo}, nil))
	m.Open(context.Background(), "/repo/a")
	waitState(t, m, StateReady)

	m.AttachPlugin(context.Background(), "fake", "")
	require.Eventually(t, func() bool {
		return m.View().PluginSession != nil
	}, waitFor, tick)

	result, err := m.SubmitReview(context.Background(), plugin.ReviewPayload{Summary: "ok"})
	require.NoError(t, err)
	assert.True(t, result.RevisionStarted)

	progress, err := m.PollProgress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plugin.RevisionCompleted, progress.State)
}

func TestAttachPlugin_FailureKeepsSession(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("/repo/a")
	m := newTestManager(instantOpener(map[string]Repository{"/repo/a": repo}, nil))
	m.Open(context.Background(), "/repo/a")
	waitState(t, m, StateReady)

	m.AttachPlugin(context.Background(), "ghost", "")
	require.Eventually(t, func() bool {
		return m.View().PluginErr != ""
	}, waitFor, tick)
	assert.Equal(t, StateReady, m.View().State)
	assert.Nil(t, m.View().PluginSession)
}

func TestSubmitReview_WithoutAttachedSession(t *testing.T) {
	t.Parallel()

	m := newTestManager(instantOpener(nil, nil))
	_, err := m.SubmitReview(context.Background(), plugin.ReviewPayload{})
	require.Error(t, err)
	assert.Equal(t, review.KindPlugin, review.KindOf(err))
}

func TestClose_ReturnsToIdleAndDropsInFlight(t *testing.T) {
	t.Parallel()

	opener := newGatedOpener()
	repo := newFakeRepo("/repo/a")
	staleDone := make(chan struct{})
	repo.set(func(f *fakeRepo) { f.diffDone = staleDone })
	gate := opener.add("/repo/a", repo, nil)
	m := newTestManager(opener.open)

	m.Open(context.Background(), "/repo/a")
	m.Close()
	close(gate)

	waitSignal(t, staleDone)
	assert.Never(t, func() bool {
		return m.View().State != StateIdle
	}, settle, tick, "dropped open must leave the manager idle")
}

func TestUpdates_Coalesced(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo("/repo/a")
	m := newTestManager(instantOpener(map[string]Repository{"/repo/a": repo}, nil))

	m.Open(context.Background(), "/repo/a")
	waitState(t, m, StateReady)

	select {
	case <-m.Updates():
	case <-time.After(waitFor):
		t.Fatal("expected a pending update notification")
	}
}
