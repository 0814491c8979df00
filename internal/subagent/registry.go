// Package subagent spawns child sessions, monitors them, and collects their
// results within a shared deadline.
package subagent

import (
	"sort"
	"sync"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Definition describes a named subagent: a stored prompt prefix plus optional
// model overrides applied when a spec references it.
type Definition struct {
	Name          string               `json:"name" yaml:"name"`
	PromptPrefix  string               `json:"prompt_prefix,omitempty" yaml:"prompt_prefix,omitempty"`
	Provider      string               `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model         string               `json:"model,omitempty" yaml:"model,omitempty"`
	ThinkingLevel models.ThinkingLevel `json:"thinking_level,omitempty" yaml:"thinking_level,omitempty"`
}

// Registry stores named subagent definitions. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register stores or replaces a definition under its name.
func (r *Registry) Register(def Definition) {
	if def.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
}

// Resolve looks up a definition by name.
func (r *Registry) Resolve(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
