// Package plugin defines the agent integration contract: external
// review agents (or the builtin local one) implement AgentPlugin, a
// Registry tracks them by id, and Service fronts all dispatch with
// capability validation and uniform error wrapping.
package plugin

import "context"

// Capabilities advertises which optional flows a plugin supports.
// Hosts use these flags to toggle features without probing.
type Capabilities struct {
	ListThreads         bool `json:"supports_list_threads"`
	AttachWithoutThread bool `json:"supports_attach_without_thread"`
	Polling             bool `json:"supports_polling"`
}

// Summary describes a registered plugin for listings.
type Summary struct {
	ID           string       `json:"id"`
	Label        string       `json:"label"`
	Capabilities Capabilities `json:"capabilities"`
}

// ThreadRef is a lightweight reference to a review thread in the
// plugin's backend.
type ThreadRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Session is the handle returned by Attach. SessionID is an opaque
// token only the owning plugin understands.
type Session struct {
	PluginID  string     `json:"plugin_id"`
	SessionID string     `json:"session_id"`
	Thread    *ThreadRef `json:"thread,omitempty"`
}

// Severity grades a review comment.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// CommentDraft is one inline review comment prepared for submission.
// SuggestionPatch, when set, carries replacement text for the
// commented line.
type CommentDraft struct {
	Path            string   `json:"path"`
	Line            int      `json:"line"`
	Severity        Severity `json:"severity,omitempty"`
	Note            string   `json:"note"`
	SuggestionPatch string   `json:"suggestion_patch,omitempty"`
}

// ReviewPayload is the structured feedback handed to a plugin.
type ReviewPayload struct {
	Summary  string         `json:"summary,omitempty"`
	Actions  []string       `json:"actions,omitempty"`
	Comments []CommentDraft `json:"comments,omitempty"`
}

// Empty reports whether the payload carries no feedback at all.
func (p ReviewPayload) Empty() bool {
	return p.Summary == "" && len(p.Actions) == 0 && len(p.Comments) == 0
}

// SubmissionResult reports the outcome of submitting a payload.
type SubmissionResult struct {
	RevisionStarted bool   `json:"revision_started"`
	Reference       string `json:"reference,omitempty"`
	Message         string `json:"message,omitempty"`
}

// RevisionState is the lifecycle of an in-flight revision.
type RevisionState string

const (
	RevisionPending    RevisionState = "pending"
	RevisionInProgress RevisionState = "in_progress"
	RevisionCompleted  RevisionState = "completed"
	RevisionFailed     RevisionState = "failed"
)

// RevisionProgress is the latest state observed when polling.
type RevisionProgress struct {
	State  RevisionState `json:"state"`
	Detail string        `json:"detail,omitempty"`
}

// AgentPlugin is implemented by agent integrations. Implementations
// must be safe for concurrent use; blocking operations honor ctx.
type AgentPlugin interface {
	ID() string
	Label() string
	Capabilities() Capabilities

	// ListThreads enumerates review threads available in the backend.
	ListThreads(ctx context.Context) ([]ThreadRef, error)

	// Attach binds a session to threadID, or to a fresh thread when
	// threadID is empty and the plugin supports it.
	Attach(ctx context.Context, threadID string) (Session, error)

	// SubmitReview hands the payload to the agent for processing.
	SubmitReview(ctx context.Context, session Session, payload ReviewPayload) (SubmissionResult, error)

	// PollProgress reports the state of the revision started by the
	// most recent SubmitReview on the session.
	PollProgress(ctx context.Context, session Session) (RevisionProgress, error)
}
