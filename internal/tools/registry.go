package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/haasonsaas/agentcore/internal/policy"
)

// SourceBuiltin marks a built-in tool in winner/shadowed records.
const SourceBuiltin = "builtin"

// Origin identifies where a tool came from: the built-in set or a named
// extension module.
type Origin struct {
	Builtin   bool   `json:"builtin,omitempty"`
	Extension string `json:"extension,omitempty"`
}

func (o Origin) String() string {
	if o.Builtin {
		return SourceBuiltin
	}
	return "extension:" + o.Extension
}

// ConflictEntry records one tool name claimed by multiple sources. The
// winner keeps the name; shadowed sources are listed in composition order.
type ConflictEntry struct {
	ToolName string   `json:"tool_name"`
	Winner   Origin   `json:"winner"`
	Shadowed []Origin `json:"shadowed"`
}

// LoadFailure is an extension that failed to load, carried into the
// conflict report for inspection.
type LoadFailure struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ConflictReport aggregates composition outcomes.
type ConflictReport struct {
	Conflicts  []ConflictEntry `json:"conflicts"`
	TotalTools int             `json:"total_tools"`
	LoadErrors []LoadFailure   `json:"load_errors,omitempty"`
}

// ExtensionTools is one extension's contributed tool set.
type ExtensionTools struct {
	Module string
	Tools  []Tool
}

// Registry holds the composed tool set with thread-safe lookup. Order is the
// composition order, preserved for presentation to the model.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Compose builds a registry from built-ins and extension tool sets.
// Built-ins keep their given order and always win name conflicts; extensions
// are processed sorted by module name, first extension wins among
// extensions. Conflicts are reported, never silently dropped.
func Compose(builtins []Tool, extensions []ExtensionTools, loadErrors []LoadFailure) (*Registry, *ConflictReport) {
	r := NewRegistry()
	report := &ConflictReport{LoadErrors: loadErrors}
	origins := make(map[string]Origin)
	shadowed := make(map[string][]Origin)

	for _, t := range builtins {
		name := t.Name()
		if _, exists := r.tools[name]; exists {
			shadowed[name] = append(shadowed[name], Origin{Builtin: true})
			continue
		}
		r.tools[name] = t
		r.order = append(r.order, name)
		origins[name] = Origin{Builtin: true}
	}

	sorted := append([]ExtensionTools(nil), extensions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Module < sorted[j].Module })
	for _, ext := range sorted {
		for _, t := range ext.Tools {
			name := t.Name()
			if _, exists := r.tools[name]; exists {
				shadowed[name] = append(shadowed[name], Origin{Extension: ext.Module})
				continue
			}
			r.tools[name] = t
			r.order = append(r.order, name)
			origins[name] = Origin{Extension: ext.Module}
		}
	}

	names := make([]string, 0, len(shadowed))
	for name := range shadowed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		report.Conflicts = append(report.Conflicts, ConflictEntry{
			ToolName: name,
			Winner:   origins[name],
			Shadowed: shadowed[name],
		})
	}
	report.TotalTools = len(r.tools)
	return r, report
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns tool names in composition order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns the tools in composition order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name. A missing tool or oversized inputs produce an
// IsError result, not an error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	if len(name) > MaxToolNameLength {
		return ErrorResult("tool name exceeds maximum length of %d characters", MaxToolNameLength), nil
	}
	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult("tool not found: %s", name), nil
	}
	return tool.Execute(ctx, args)
}

// Filter returns a registry without the disabled tools and, when enabledOnly
// is non-nil, restricted to that set. Order is preserved.
func (r *Registry) Filter(disabled map[string]bool, enabledOnly map[string]bool) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := NewRegistry()
	for _, name := range r.order {
		if disabled[name] {
			continue
		}
		if enabledOnly != nil && !enabledOnly[name] {
			continue
		}
		out.tools[name] = r.tools[name]
		out.order = append(out.order, name)
	}
	return out
}

// FilterByPolicy prunes tools the policy does not allow.
func (r *Registry) FilterByPolicy(pol policy.Policy) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := NewRegistry()
	for _, name := range r.order {
		if !pol.Allows(name) {
			continue
		}
		out.tools[name] = r.tools[name]
		out.order = append(out.order, name)
	}
	return out
}
