// Package amp integrates the Amp CLI agent. All backend interaction
// shells out to the amp binary: thread listing and creation are
// synchronous, review submission continues the bound thread in a
// background goroutine whose progress is served to pollers.
package amp

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pbaumgart/loupe/internal/plugin"
	"github.com/pbaumgart/loupe/internal/review"
)

const (
	pluginID    = "amp"
	pluginLabel = "Sourcegraph Amp"
)

// Options configure the CLI invocation. Zero values fall back to the
// LOUPE_AMP_CLI_BIN override, the "amp" binary on PATH and a 60s
// deadline.
type Options struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger
}

type Plugin struct {
	cli cli
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*ampSession
}

// ampSession tracks per-session state: the bound thread and the
// progress of the most recent revision, written by the submission
// goroutine and read by pollers.
type ampSession struct {
	thread plugin.ThreadRef

	mu       sync.Mutex
	started  bool
	progress plugin.RevisionProgress
}

func New(opts Options) *Plugin {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Plugin{
		cli:      newCLI(opts.Binary, opts.Timeout),
		log:      log,
		sessions: make(map[string]*ampSession),
	}
}

func (p *Plugin) ID() string    { return pluginID }
func (p *Plugin) Label() string { return pluginLabel }

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{ListThreads: true, AttachWithoutThread: true, Polling: true}
}

func (p *Plugin) ListThreads(ctx context.Context) ([]plugin.ThreadRef, error) {
	return p.cli.listThreads(ctx)
}

// Attach binds a session to threadID, creating a fresh thread through
// the CLI when none is given.
func (p *Plugin) Attach(ctx context.Context, threadID string) (plugin.Session, error) {
	if threadID == "" {
		id, err := p.cli.createThread(ctx)
		if err != nil {
			return plugin.Session{}, err
		}
		threadID = id
	}
	thread := plugin.ThreadRef{ID: threadID}

	sessionID := "amp-session-" + uuid.NewString()
	p.mu.Lock()
	p.sessions[sessionID] = &ampSession{thread: thread}
	p.mu.Unlock()

	return plugin.Session{
		PluginID:  pluginID,
		SessionID: sessionID,
		Thread:    &thread,
	}, nil
}

// SubmitReview renders the payload and continues the bound thread in
// the background. The returned result only acknowledges the start;
// completion is observed through PollProgress.
func (p *Plugin) SubmitReview(_ context.Context, session plugin.Session, payload plugin.ReviewPayload) (plugin.SubmissionResult, error) {
	state, err := p.session(session.SessionID)
	if err != nil {
		return plugin.SubmissionResult{}, err
	}
	message := renderPayload(payload)

	state.mu.Lock()
	state.started = true
	state.progress = plugin.RevisionProgress{
		State:  plugin.RevisionInProgress,
		Detail: "Amp processing started",
	}
	state.mu.Unlock()

	// Detached from the request context: the revision outlives the
	// submission call and is bounded by the CLI deadline instead.
	go func() {
		output, err := p.cli.continueThread(context.Background(), state.thread.ID, message)

		state.mu.Lock()
		defer state.mu.Unlock()
		if err != nil {
			state.progress = plugin.RevisionProgress{State: plugin.RevisionFailed, Detail: err.Error()}
			p.log.Error("amp revision failed",
				slog.String("thread", state.thread.ID),
				slog.Any("error", err))
			return
		}
		state.progress = plugin.RevisionProgress{
			State:  plugin.RevisionCompleted,
			Detail: strings.TrimSpace(output),
		}
	}()

	return plugin.SubmissionResult{
		RevisionStarted: true,
		Reference:       state.thread.ID,
		Message:         "Amp review submitted",
	}, nil
}

func (p *Plugin) PollProgress(_ context.Context, session plugin.Session) (plugin.RevisionProgress, error) {
	state, err := p.session(session.SessionID)
	if err != nil {
		return plugin.RevisionProgress{}, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if !state.started {
		return plugin.RevisionProgress{
			State:  plugin.RevisionPending,
			Detail: "No revision in progress",
		}, nil
	}
	return state.progress, nil
}

func (p *Plugin) session(id string) (*ampSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.sessions[id]
	if !ok {
		return nil, review.NewError(review.KindPlugin, "unknown amp session")
	}
	return state, nil
}
