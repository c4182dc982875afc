package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaumgart/loupe/internal/review"
)

type fakePlugin struct {
	id    string
	label string
	caps  Capabilities

	threads    []ThreadRef
	attachErr  error
	submitErr  error
	listCalls  int
	attachCall int
	pollCalls  int
}

func (f *fakePlugin) ID() string                 { return f.id }
func (f *fakePlugin) Label() string              { return f.label }
func (f *fakePlugin) Capabilities() Capabilities { return f.caps }

func (f *fakePlugin) ListThreads(context.Context) ([]ThreadRef, error) {
	f.listCalls++
	return f.threads, nil
}

func (f *fakePlugin) Attach(_ context.Context, threadID string) (Session, error) {
	f.attachCall++
	if f.attachErr != nil {
		return Session{}, f.attachErr
	}
	s := Session{PluginID: f.id, SessionID: "s-1"}
	if threadID != "" {
		s.Thread = &ThreadRef{ID: threadID}
	}
	return s, nil
}

func (f *fakePlugin) SubmitReview(context.Context, Session, ReviewPayload) (SubmissionResult, error) {
	if f.submitErr != nil {
		return SubmissionResult{}, f.submitErr
	}
	return SubmissionResult{RevisionStarted: true}, nil
}

func (f *fakePlugin) PollProgress(context.Context, Session) (RevisionProgress, error) {
	f.pollCalls++
	return RevisionProgress{State: RevisionCompleted}, nil
}

func TestRegistryGet_Unregistered(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	_, err := registry.Get("missing")
	require.Error(t, err)
	assert.Equal(t, review.KindPluginNotRegistered, review.KindOf(err))
	assert.Contains(t, err.Error(), "missing")
}

func TestRegistrySummaries_PreferredThenLabel(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(
		&fakePlugin{id: "zeta", label: "Zeta Agent"},
		&fakePlugin{id: "amp", label: "Sourcegraph Amp"},
		&fakePlugin{id: "git-only", label: "Local Git"},
	)

	summaries := registry.Summaries([]string{"amp"})
	require.Len(t, summaries, 3)
	assert.Equal(t, "amp", summaries[0].ID)
	assert.Equal(t, "git-only", summaries[1].ID)
	assert.Equal(t, "zeta", summaries[2].ID)
}

func TestServiceListThreads_Unsupported(t *testing.T) {
	t.Parallel()

	fake := &fakePlugin{id: "p", label: "P"}
	svc := NewService(NewRegistry(fake), nil)

	_, err := svc.ListThreads(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, review.KindUnimplemented, review.KindOf(err))
	assert.Zero(t, fake.listCalls, "plugin must not be invoked")
}

func TestServiceListThreads_Supported(t *testing.T) {
	t.Parallel()

	fake := &fakePlugin{
		id:      "p",
		label:   "P",
		caps:    Capabilities{ListThreads: true},
		threads: []ThreadRef{{ID: "t-1", Title: "First"}},
	}
	svc := NewService(NewRegistry(fake), nil)

	threads, err := svc.ListThreads(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "t-1", threads[0].ID)
}

func TestServiceAttach_WithoutThreadRejected(t *testing.T) {
	t.Parallel()

	fake := &fakePlugin{id: "p", label: "P"}
	svc := NewService(NewRegistry(fake), nil)

	_, err := svc.Attach(context.Background(), "p", "")
	require.Error(t, err)
	assert.Equal(t, review.KindPlugin, review.KindOf(err))
	assert.Contains(t, err.Error(), `"p"`)
	assert.Zero(t, fake.attachCall, "plugin must not be invoked")
}

func TestServiceAttach_WithThread(t *testing.T) {
	t.Parallel()

	fake := &fakePlugin{id: "p", label: "P"}
	svc := NewService(NewRegistry(fake), nil)

	session, err := svc.Attach(context.Background(), "p", "t-9")
	require.NoError(t, err)
	assert.Equal(t, "p", session.PluginID)
	require.NotNil(t, session.Thread)
	assert.Equal(t, "t-9", session.Thread.ID)
}

func TestServiceAttach_WrapsPluginFailure(t *testing.T) {
	t.Parallel()

	fake := &fakePlugin{
		id:        "p",
		label:     "P",
		caps:      Capabilities{AttachWithoutThread: true},
		attachErr: errors.New("backend offline"),
	}
	svc := NewService(NewRegistry(fake), nil)

	_, err := svc.Attach(context.Background(), "p", "")
	require.Error(t, err)
	assert.Equal(t, review.KindPlugin, review.KindOf(err))
	assert.Contains(t, err.Error(), "backend offline")
}

func TestServiceSubmitReview_UnknownSessionPlugin(t *testing.T) {
	t.Parallel()

	svc := NewService(NewRegistry(), nil)
	_, err := svc.SubmitReview(context.Background(), Session{PluginID: "ghost"}, ReviewPayload{})
	require.Error(t, err)
	assert.Equal(t, review.KindPluginNotRegistered, review.KindOf(err))
}

func TestServicePollProgress_Unsupported(t *testing.T) {
	t.Parallel()

	fake := &fakePlugin{id: "p", label: "P"}
	svc := NewService(NewRegistry(fake), nil)

	_, err := svc.PollProgress(context.Background(), Session{PluginID: "p"})
	require.Error(t, err)
	assert.Equal(t, review.KindUnimplemented, review.KindOf(err))
	assert.Zero(t, fake.pollCalls, "plugin must not be invoked")
}

func TestReviewPayloadEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, ReviewPayload{}.Empty())
	assert.False(t, ReviewPayload{Summary: "s"}.Empty())
	assert.False(t, ReviewPayload{Actions: []string{"a"}}.Empty())
	assert.False(t, ReviewPayload{Comments: []CommentDraft{{}}}.Empty())
}
