package extensions

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/haasonsaas/agentcore/internal/tools"
)

// Manager owns the loaded extension set for a session. Load failures are
// recorded, not raised; the session boots with whatever loaded cleanly.
type Manager struct {
	paths  []string
	logger *slog.Logger

	mu         sync.RWMutex
	loaded     []*Loaded
	loadErrors []LoadError
}

// NewManager creates a manager scanning the given directories.
func NewManager(paths []string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{paths: paths, logger: logger}
}

// Load discovers manifests and loads each referenced module. Returns the
// count of successfully loaded extensions.
func (m *Manager) Load() int {
	var loaded []*Loaded
	var loadErrors []LoadError

	manifests, err := DiscoverManifests(m.paths)
	if err != nil {
		loadErrors = append(loadErrors, LoadError{Path: "", Err: err, Message: err.Error()})
		manifests = nil
	}

	names := make([]string, 0, len(manifests))
	for name := range manifests {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info := manifests[name]
		modulePath := info.ModulePath()
		ext, err := openExtension(modulePath)
		if err != nil {
			loadErrors = append(loadErrors, LoadError{Path: modulePath, Err: err, Message: err.Error()})
			m.logger.Warn("extension load failed", "path", modulePath, "error", err)
			continue
		}
		if verr := Validate(info, ext); verr != nil {
			loadErrors = append(loadErrors, LoadError{Path: modulePath, Err: verr, Message: verr.Error()})
			m.logger.Warn("extension validation failed", "module", name, "errors", verr.Errors)
			continue
		}

		meta := Metadata{
			Name:         ext.Name(),
			Version:      ext.Version(),
			SourcePath:   info.Path,
			Capabilities: info.Manifest.Capabilities,
			ConfigSchema: info.Manifest.ConfigSchema,
		}
		if cp, ok := ext.(CapabilityProvider); ok && len(meta.Capabilities) == 0 {
			meta.Capabilities = cp.Capabilities()
		}
		if sp, ok := ext.(SchemaProvider); ok && meta.ConfigSchema == nil {
			meta.ConfigSchema = sp.ConfigSchema()
		}
		loaded = append(loaded, &Loaded{Metadata: meta, Extension: ext})
		m.logger.Info("extension loaded", "module", meta.Name, "version", meta.Version)
	}

	m.mu.Lock()
	m.loaded = loaded
	m.loadErrors = loadErrors
	m.mu.Unlock()
	return len(loaded)
}

// Reload purges the loaded set and rediscovers from disk. Tool set rebuild
// and driver swap are the caller's responsibility; this only refreshes the
// extension side.
func (m *Manager) Reload() int {
	m.mu.Lock()
	m.loaded = nil
	m.loadErrors = nil
	m.mu.Unlock()
	return m.Load()
}

// Extensions returns the loaded extensions in module-name order.
func (m *Manager) Extensions() []*Loaded {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Loaded(nil), m.loaded...)
}

// LoadErrors returns the structured failures from the last load.
func (m *Manager) LoadErrors() []LoadError {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]LoadError(nil), m.loadErrors...)
}

// ExtensionTools returns each extension's contributed tool set for registry
// composition.
func (m *Manager) ExtensionTools() []tools.ExtensionTools {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []tools.ExtensionTools
	for _, l := range m.loaded {
		tp, ok := l.Extension.(ToolProvider)
		if !ok {
			continue
		}
		out = append(out, tools.ExtensionTools{Module: l.Metadata.Name, Tools: tp.Tools()})
	}
	return out
}

// LoadFailures converts load errors for the tool conflict report.
func (m *Manager) LoadFailures() []tools.LoadFailure {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]tools.LoadFailure, 0, len(m.loadErrors))
	for _, e := range m.loadErrors {
		out = append(out, tools.LoadFailure{Path: e.Path, Message: e.Message})
	}
	return out
}

// RunHooks invokes every loaded extension's hook for event. Failures are
// logged and skipped.
func (m *Manager) RunHooks(ctx context.Context, event string, payload map[string]any) {
	for _, l := range m.Extensions() {
		hp, ok := l.Extension.(HookProvider)
		if !ok {
			continue
		}
		hook, ok := hp.Hooks()[event]
		if !ok {
			continue
		}
		if err := hook(ctx, event, payload); err != nil {
			m.logger.Warn("extension hook failed", "module", l.Metadata.Name, "event", event, "error", err)
		}
	}
}
