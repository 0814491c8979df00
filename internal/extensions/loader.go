package extensions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"plugin"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ExtensionSymbol is the symbol looked up in loaded modules.
const ExtensionSymbol = "Extension"

// LoadError is a structured record of a module that failed to load.
// Failures are captured, never raised, so one bad module does not take down
// discovery.
type LoadError struct {
	Path    string `json:"path"`
	Err     error  `json:"-"`
	Message string `json:"message"`
}

func (e LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Path, e.Message)
}

// ValidationError aggregates validation failures for one module.
type ValidationError struct {
	Module string   `json:"module"`
	Errors []string `json:"errors"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("extension %s invalid: %s", e.Module, strings.Join(e.Errors, "; "))
}

// openExtension loads the plugin at path and resolves the Extension symbol.
// Injectable so tests and alternative loaders can substitute the mechanism.
var openExtension = func(path string) (Extension, error) {
	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open module %s: %w", path, err)
	}
	symbol, err := plug.Lookup(ExtensionSymbol)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", ExtensionSymbol, err)
	}
	switch v := symbol.(type) {
	case Extension:
		return v, nil
	case *Extension:
		return *v, nil
	default:
		return nil, fmt.Errorf("module symbol %s does not implement Extension", ExtensionSymbol)
	}
}

// Validate checks a loaded extension against its manifest: required
// name/version, at least one contribution hook, and a compilable config
// schema if one is declared.
func Validate(info ManifestInfo, ext Extension) *ValidationError {
	var problems []string

	if strings.TrimSpace(ext.Name()) == "" {
		problems = append(problems, "empty name")
	} else if ext.Name() != info.Manifest.Name {
		problems = append(problems, fmt.Sprintf("name mismatch: manifest %q, module %q", info.Manifest.Name, ext.Name()))
	}
	if strings.TrimSpace(ext.Version()) == "" {
		problems = append(problems, "empty version")
	}
	if !hasAnyHook(ext) {
		problems = append(problems, "no contribution hooks implemented")
	}

	schema := info.Manifest.ConfigSchema
	if sp, ok := ext.(SchemaProvider); ok && schema == nil {
		schema = sp.ConfigSchema()
	}
	if schema != nil {
		if err := compileSchema(schema); err != nil {
			problems = append(problems, fmt.Sprintf("config_schema: %v", err))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Module: info.Manifest.Name, Errors: problems}
}

// compileSchema verifies that the declared config schema is valid JSON
// Schema.
func compileSchema(schema map[string]any) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config_schema.json", bytes.NewReader(data)); err != nil {
		return err
	}
	_, err = compiler.Compile("config_schema.json")
	return err
}

// ValidateConfig checks a config value against the extension's declared
// schema. A nil schema accepts everything.
func ValidateConfig(schema map[string]any, value any) error {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config_schema.json", bytes.NewReader(data)); err != nil {
		return err
	}
	compiled, err := compiler.Compile("config_schema.json")
	if err != nil {
		return err
	}
	return compiled.Validate(value)
}
