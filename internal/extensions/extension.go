package extensions

import (
	"context"

	"github.com/haasonsaas/agentcore/internal/tools"
)

// Extension is the symbol exported by an extension module.
type Extension interface {
	// Name is the unique extension name; must match the manifest.
	Name() string

	// Version is the extension version.
	Version() string
}

// HookFunc handles a lifecycle event. Hook failures are logged and skipped,
// never fatal.
type HookFunc func(ctx context.Context, event string, payload map[string]any) error

// ToolProvider is implemented by extensions contributing tools.
type ToolProvider interface {
	Tools() []tools.Tool
}

// HookProvider is implemented by extensions contributing lifecycle hooks,
// keyed by event name.
type HookProvider interface {
	Hooks() map[string]HookFunc
}

// ProviderSpec declares a provider contributed by an extension. Only type
// "model" is currently registered.
type ProviderSpec struct {
	Type    string
	Name    string
	Factory any
}

// ProviderSource is implemented by extensions contributing providers.
type ProviderSource interface {
	Providers() []ProviderSpec
}

// CapabilityProvider is implemented by extensions declaring capabilities.
type CapabilityProvider interface {
	Capabilities() []string
}

// SchemaProvider is implemented by extensions carrying a config schema in
// code rather than the manifest.
type SchemaProvider interface {
	ConfigSchema() map[string]any
}

// Metadata is the resolved identity of a loaded extension.
type Metadata struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	SourcePath   string         `json:"source_path,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	ConfigSchema map[string]any `json:"config_schema,omitempty"`
}

// Loaded pairs a live extension with its metadata.
type Loaded struct {
	Metadata  Metadata
	Extension Extension
}

// hasAnyHook reports whether ext implements at least one optional
// contribution interface.
func hasAnyHook(ext Extension) bool {
	if _, ok := ext.(ToolProvider); ok {
		return true
	}
	if _, ok := ext.(HookProvider); ok {
		return true
	}
	if _, ok := ext.(ProviderSource); ok {
		return true
	}
	if _, ok := ext.(CapabilityProvider); ok {
		return true
	}
	if _, ok := ext.(SchemaProvider); ok {
		return true
	}
	return false
}
