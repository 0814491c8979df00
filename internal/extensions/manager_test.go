package extensions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/agentcore/internal/tools"
)

// fakeExtension implements Extension plus whichever contribution interfaces
// its fields enable.
type fakeExtension struct {
	name    string
	version string
	tools   []tools.Tool
}

func (f *fakeExtension) Name() string        { return f.name }
func (f *fakeExtension) Version() string     { return f.version }
func (f *fakeExtension) Tools() []tools.Tool { return f.tools }

type hookedExtension struct {
	fakeExtension
	calls []string
	fail  bool
}

func (h *hookedExtension) Hooks() map[string]HookFunc {
	return map[string]HookFunc{
		"turn_end": func(ctx context.Context, event string, payload map[string]any) error {
			h.calls = append(h.calls, event)
			if h.fail {
				return errors.New("hook exploded")
			}
			return nil
		},
	}
}

// bareExtension implements no contribution interfaces.
type bareExtension struct{ name, version string }

func (b *bareExtension) Name() string    { return b.name }
func (b *bareExtension) Version() string { return b.version }

func writeManifest(t *testing.T, dir, name, module string) string {
	t.Helper()
	extDir := filepath.Join(dir, name)
	if err := os.MkdirAll(extDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(extDir, ManifestFilename)
	content := "name: " + name + "\nversion: 1.0.0\nmodule: " + module + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func withFakeLoader(t *testing.T, exts map[string]Extension) {
	t.Helper()
	prev := openExtension
	openExtension = func(path string) (Extension, error) {
		name := filepath.Base(filepath.Dir(path))
		ext, ok := exts[name]
		if !ok {
			return nil, errors.New("module not found")
		}
		return ext, nil
	}
	t.Cleanup(func() { openExtension = prev })
}

func TestDiscoverManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "alpha", "alpha.so")
	writeManifest(t, dir, "beta", "beta.so")

	manifests, err := DiscoverManifests([]string{dir, filepath.Join(dir, "missing")})
	if err != nil {
		t.Fatalf("DiscoverManifests: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("found %d manifests, want 2", len(manifests))
	}
	info := manifests["alpha"]
	if info.Manifest.Version != "1.0.0" {
		t.Errorf("version = %q", info.Manifest.Version)
	}
	if got := info.ModulePath(); got != filepath.Join(dir, "alpha", "alpha.so") {
		t.Errorf("module path = %q", got)
	}
}

func TestDiscoverRejectsDuplicateNames(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeManifest(t, dirA, "dup", "a.so")
	writeManifest(t, dirB, "dup", "b.so")

	if _, err := DiscoverManifests([]string{dirA, dirB}); err == nil {
		t.Error("duplicate extension name accepted")
	}
}

func TestLoadCapturesFailures(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "good", "good.so")
	writeManifest(t, dir, "broken", "broken.so")
	writeManifest(t, dir, "hookless", "hookless.so")

	withFakeLoader(t, map[string]Extension{
		"good":     &fakeExtension{name: "good", version: "1.0.0", tools: []tools.Tool{}},
		"hookless": &bareExtension{name: "hookless", version: "1.0.0"},
	})

	m := NewManager([]string{dir}, nil)
	if n := m.Load(); n != 1 {
		t.Errorf("loaded = %d, want 1", n)
	}

	loadErrors := m.LoadErrors()
	if len(loadErrors) != 2 {
		t.Fatalf("load errors = %d, want 2: %+v", len(loadErrors), loadErrors)
	}
	// One load failure, one validation failure; both structured, none raised.
	var sawValidation bool
	for _, e := range loadErrors {
		var verr *ValidationError
		if errors.As(e.Err, &verr) {
			sawValidation = true
			if verr.Module != "hookless" {
				t.Errorf("validation module = %q", verr.Module)
			}
		}
	}
	if !sawValidation {
		t.Error("hookless extension did not produce a validation error")
	}
}

func TestValidate(t *testing.T) {
	info := ManifestInfo{
		Manifest: &Manifest{Name: "x", Version: "1.0.0"},
		Path:     "/ext/x/extension.yaml",
	}

	if verr := Validate(info, &fakeExtension{name: "x", version: "1.0.0"}); verr != nil {
		t.Errorf("valid extension rejected: %v", verr)
	}

	if verr := Validate(info, &fakeExtension{name: "y", version: "1.0.0"}); verr == nil {
		t.Error("name mismatch accepted")
	}
	if verr := Validate(info, &fakeExtension{name: "x"}); verr == nil {
		t.Error("empty version accepted")
	}
	if verr := Validate(info, &bareExtension{name: "x", version: "1.0.0"}); verr == nil {
		t.Error("hookless extension accepted")
	}

	bad := ManifestInfo{
		Manifest: &Manifest{
			Name:         "x",
			Version:      "1.0.0",
			ConfigSchema: map[string]any{"type": 12345},
		},
		Path: info.Path,
	}
	if verr := Validate(bad, &fakeExtension{name: "x", version: "1.0.0"}); verr == nil {
		t.Error("invalid config_schema accepted")
	}
}

func TestValidateConfig(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"token"},
		"properties": map[string]any{
			"token": map[string]any{"type": "string"},
		},
	}

	if err := ValidateConfig(schema, map[string]any{"token": "abc"}); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := ValidateConfig(schema, map[string]any{}); err == nil {
		t.Error("missing required key accepted")
	}
	if err := ValidateConfig(nil, map[string]any{"anything": true}); err != nil {
		t.Errorf("nil schema should accept: %v", err)
	}
}

func TestReloadPurgesAndRediscovers(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "first", "first.so")

	exts := map[string]Extension{
		"first": &fakeExtension{name: "first", version: "1.0.0", tools: []tools.Tool{}},
	}
	withFakeLoader(t, exts)

	m := NewManager([]string{dir}, nil)
	m.Load()
	if len(m.Extensions()) != 1 {
		t.Fatal("initial load failed")
	}

	writeManifest(t, dir, "second", "second.so")
	exts["second"] = &fakeExtension{name: "second", version: "2.0.0", tools: []tools.Tool{}}

	if n := m.Reload(); n != 2 {
		t.Errorf("reload loaded = %d, want 2", n)
	}
}

func TestRunHooksSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "failing", "failing.so")
	writeManifest(t, dir, "working", "working.so")

	failing := &hookedExtension{fakeExtension: fakeExtension{name: "failing", version: "1"}, fail: true}
	working := &hookedExtension{fakeExtension: fakeExtension{name: "working", version: "1"}}
	withFakeLoader(t, map[string]Extension{"failing": failing, "working": working})

	m := NewManager([]string{dir}, nil)
	m.Load()
	m.RunHooks(context.Background(), "turn_end", nil)

	if len(failing.calls) != 1 || len(working.calls) != 1 {
		t.Errorf("hook calls: failing=%d working=%d", len(failing.calls), len(working.calls))
	}
}

func TestRegisterProvidersFirstWinsBuiltinPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "aaa", "aaa.so")
	writeManifest(t, dir, "bbb", "bbb.so")

	withFakeLoader(t, map[string]Extension{
		"aaa": &providerExtension{name: "aaa", specs: []ProviderSpec{
			{Type: ProviderTypeModel, Name: "openai", Factory: "aaa-openai"},
			{Type: ProviderTypeModel, Name: "custom", Factory: "aaa-custom"},
			{Type: "channel", Name: "slack", Factory: "ignored"},
		}},
		"bbb": &providerExtension{name: "bbb", specs: []ProviderSpec{
			{Type: ProviderTypeModel, Name: "custom", Factory: "bbb-custom"},
		}},
	})

	m := NewManager([]string{dir}, nil)
	m.Load()

	builtins := map[ProviderKey]any{
		{Type: ProviderTypeModel, Name: "openai"}: "builtin-openai",
	}
	registered, report := m.RegisterProviders(builtins)

	if got := registered[ProviderKey{Type: ProviderTypeModel, Name: "openai"}]; got.Owner != "builtin" {
		t.Errorf("builtin lost its slot to %q", got.Owner)
	}
	if got := registered[ProviderKey{Type: ProviderTypeModel, Name: "custom"}]; got.Owner != "aaa" {
		t.Errorf("custom owner = %q, want aaa (first by module name)", got.Owner)
	}
	if _, ok := registered[ProviderKey{Type: "channel", Name: "slack"}]; ok {
		t.Error("non-model provider registered")
	}

	if len(report.Conflicts) != 2 {
		t.Errorf("conflicts = %+v, want 2", report.Conflicts)
	}
	if report.Totals[ProviderTypeModel] != 2 {
		t.Errorf("model total = %d, want 2", report.Totals[ProviderTypeModel])
	}
}

type providerExtension struct {
	name  string
	specs []ProviderSpec
}

func (p *providerExtension) Name() string              { return p.name }
func (p *providerExtension) Version() string           { return "1.0.0" }
func (p *providerExtension) Providers() []ProviderSpec { return p.specs }
