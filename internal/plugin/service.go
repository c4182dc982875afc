package plugin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pbaumgart/loupe/internal/review"
)

// Service fronts all plugin dispatch. It validates capabilities before
// invoking a plugin and folds plugin failures into the Plugin error
// kind, so callers never see raw implementation errors.
type Service struct {
	registry *Registry
	log      *slog.Logger
}

func NewService(registry *Registry, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{registry: registry, log: log}
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Summaries lists registered plugins in preference order.
func (s *Service) Summaries(preferred []string) []Summary {
	return s.registry.Summaries(preferred)
}

// Capabilities reports a plugin's capability flags.
func (s *Service) Capabilities(pluginID string) (Capabilities, error) {
	p, err := s.registry.Get(pluginID)
	if err != nil {
		return Capabilities{}, err
	}
	return p.Capabilities(), nil
}

// ListThreads enumerates threads for the plugin. Plugins that do not
// advertise listing are rejected without being invoked.
func (s *Service) ListThreads(ctx context.Context, pluginID string) ([]ThreadRef, error) {
	p, err := s.registry.Get(pluginID)
	if err != nil {
		return nil, err
	}
	if !p.Capabilities().ListThreads {
		return nil, review.NewError(review.KindUnimplemented, fmt.Sprintf("plugin %q does not support listing threads", pluginID))
	}
	threads, err := p.ListThreads(ctx)
	if err != nil {
		return nil, s.pluginError(pluginID, "list threads", err)
	}
	return threads, nil
}

// Attach binds a session to threadID, or a fresh thread when threadID
// is empty. A thread-less attach on a plugin without that capability
// fails before the plugin runs.
func (s *Service) Attach(ctx context.Context, pluginID, threadID string) (Session, error) {
	p, err := s.registry.Get(pluginID)
	if err != nil {
		return Session{}, err
	}
	if threadID == "" && !p.Capabilities().AttachWithoutThread {
		return Session{}, review.NewError(review.KindPlugin, fmt.Sprintf("plugin %q requires an explicit thread to attach", pluginID))
	}
	session, err := p.Attach(ctx, threadID)
	if err != nil {
		return Session{}, s.pluginError(pluginID, "attach", err)
	}
	s.log.Debug("plugin session attached",
		slog.String("plugin", pluginID),
		slog.String("session", session.SessionID))
	return session, nil
}

// SubmitReview routes the payload to the session's plugin.
func (s *Service) SubmitReview(ctx context.Context, session Session, payload ReviewPayload) (SubmissionResult, error) {
	p, err := s.registry.Get(session.PluginID)
	if err != nil {
		return SubmissionResult{}, err
	}
	result, err := p.SubmitReview(ctx, session, payload)
	if err != nil {
		return SubmissionResult{}, s.pluginError(session.PluginID, "submit review", err)
	}
	s.log.Debug("review submitted",
		slog.String("plugin", session.PluginID),
		slog.String("session", session.SessionID),
		slog.Bool("revision_started", result.RevisionStarted))
	return result, nil
}

// PollProgress reports revision progress for the session. Plugins
// without polling support are rejected without being invoked.
func (s *Service) PollProgress(ctx context.Context, session Session) (RevisionProgress, error) {
	p, err := s.registry.Get(session.PluginID)
	if err != nil {
		return RevisionProgress{}, err
	}
	if !p.Capabilities().Polling {
		return RevisionProgress{}, review.NewError(review.KindUnimplemented, fmt.Sprintf("plugin %q does not support revision polling", session.PluginID))
	}
	progress, err := p.PollProgress(ctx, session)
	if err != nil {
		return RevisionProgress{}, s.pluginError(session.PluginID, "poll revision", err)
	}
	return progress, nil
}

func (s *Service) pluginError(pluginID, op string, err error) error {
	if review.KindOf(err) == review.KindPlugin {
		return err
	}
	s.log.Error("plugin operation failed",
		slog.String("plugin", pluginID),
		slog.String("op", op),
		slog.Any("error", err))
	return review.WrapError(review.KindPlugin, err, fmt.Sprintf("plugin %q: %s: %v", pluginID, op, err))
}
