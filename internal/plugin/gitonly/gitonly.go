// Package gitonly provides the builtin plugin used when no external
// agent is configured. It never shells out: reviews stay local and
// every operation answers immediately.
package gitonly

import (
	"context"

	"github.com/google/uuid"

	"github.com/pbaumgart/loupe/internal/plugin"
)

const (
	pluginID    = "git-only"
	pluginLabel = "Local Git"
)

type Plugin struct{}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ID() string    { return pluginID }
func (p *Plugin) Label() string { return pluginLabel }

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{AttachWithoutThread: true}
}

func (p *Plugin) ListThreads(context.Context) ([]plugin.ThreadRef, error) {
	return nil, nil
}

// Attach always succeeds with a fresh local session. A caller-supplied
// thread id is carried through untouched.
func (p *Plugin) Attach(_ context.Context, threadID string) (plugin.Session, error) {
	session := plugin.Session{
		PluginID:  pluginID,
		SessionID: "local-" + uuid.NewString(),
	}
	if threadID != "" {
		session.Thread = &plugin.ThreadRef{ID: threadID}
	}
	return session, nil
}

func (p *Plugin) SubmitReview(context.Context, plugin.Session, plugin.ReviewPayload) (plugin.SubmissionResult, error) {
	return plugin.SubmissionResult{
		Message: "No remote submission performed for local reviews.",
	}, nil
}

func (p *Plugin) PollProgress(context.Context, plugin.Session) (plugin.RevisionProgress, error) {
	return plugin.RevisionProgress{
		State:  plugin.RevisionCompleted,
		Detail: "Revisions are managed locally.",
	}, nil
}
