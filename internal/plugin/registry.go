package plugin

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pbaumgart/loupe/internal/review"
)

// Registry holds the available plugins keyed by id. Register at
// startup, read afterwards; the zero value is usable.
type Registry struct {
	plugins map[string]AgentPlugin
}

func NewRegistry(plugins ...AgentPlugin) *Registry {
	r := &Registry{}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a plugin under its own id.
func (r *Registry) Register(p AgentPlugin) {
	if r.plugins == nil {
		r.plugins = make(map[string]AgentPlugin)
	}
	r.plugins[p.ID()] = p
}

// Get returns the plugin registered under id.
func (r *Registry) Get(id string) (AgentPlugin, error) {
	p, ok := r.plugins[id]
	if !ok {
		return nil, review.NewError(review.KindPluginNotRegistered, fmt.Sprintf("plugin %q is not registered", id))
	}
	return p, nil
}

// IDs returns the registered plugin ids in no particular order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	return ids
}

// Summaries lists all registered plugins, ordered by the caller's
// preference list first and case-insensitive label after.
func (r *Registry) Summaries(preferred []string) []Summary {
	summaries := make([]Summary, 0, len(r.plugins))
	for _, p := range r.plugins {
		summaries = append(summaries, Summary{
			ID:           p.ID(),
			Label:        p.Label(),
			Capabilities: p.Capabilities(),
		})
	}
	rank := make(map[string]int, len(preferred))
	for i, id := range preferred {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	slices.SortStableFunc(summaries, func(a, b Summary) int {
		ra, aok := rank[a.ID]
		rb, bok := rank[b.ID]
		switch {
		case aok && bok:
			return ra - rb
		case aok:
			return -1
		case bok:
			return 1
		}
		if c := strings.Compare(strings.ToLower(a.Label), strings.ToLower(b.Label)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return summaries
}
