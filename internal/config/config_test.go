package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/agentcore/internal/policy"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "settings.yaml", "workspace: /work\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workspace != "/work" {
		t.Errorf("workspace = %q", cfg.Workspace)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Compaction.ReserveTokens != 16384 || cfg.Compaction.KeepRecentTokens != 20000 {
		t.Errorf("compaction defaults = %+v", cfg.Compaction)
	}
	if cfg.Guardrails.MaxToolResultBytes != 60000 {
		t.Errorf("guardrails defaults = %+v", cfg.Guardrails)
	}
}

func TestLoadCompactionAcceptsCamelCase(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "settings.yaml", `
compaction:
  contextWindow: 100000
  reserveTokens: 8192
  keep_recent_tokens: 15000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Compaction.ContextWindow != 100000 {
		t.Errorf("context window = %d", cfg.Compaction.ContextWindow)
	}
	if cfg.Compaction.ReserveTokens != 8192 {
		t.Errorf("reserve = %d", cfg.Compaction.ReserveTokens)
	}
	if cfg.Compaction.KeepRecentTokens != 15000 {
		t.Errorf("keep recent = %d", cfg.Compaction.KeepRecentTokens)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "settings.yaml", "no_such_section: 1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("unknown top-level key accepted")
	}
}

func TestIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
logging:
  level: warn
llm:
  default_provider: openai
`)
	path := writeConfig(t, dir, "settings.yaml", `
$include: base.yaml
llm:
  default_provider: anthropic
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("included logging level lost: %q", cfg.Logging.Level)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("including file should win: %q", cfg.LLM.DefaultProvider)
	}
}

func TestIncludeCycleDetected(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "$include: b.yaml\n")
	writeConfig(t, dir, "b.yaml", "$include: a.yaml\n")
	if _, err := Load(filepath.Join(dir, "a.yaml")); err == nil {
		t.Fatal("include cycle not detected")
	}
}

func TestEnvDebugOverride(t *testing.T) {
	t.Setenv("DEBUG", "1")
	cfg := Default()
	if !cfg.Debug || cfg.Logging.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestEnvAPIKeyFill(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")
	t.Setenv("GEMINI_API_KEY", "g-from-env")

	path := writeConfig(t, t.TempDir(), "settings.yaml", `
llm:
  providers:
    anthropic: {}
    openai:
      api_key: sk-from-file
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-from-env" {
		t.Errorf("anthropic key = %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
	if cfg.LLM.Providers["openai"].APIKey != "sk-from-file" {
		t.Errorf("file key overridden: %q", cfg.LLM.Providers["openai"].APIKey)
	}
	// google resolves through the gemini variable.
	if got := cfg.APIKey("google"); got != "g-from-env" {
		t.Errorf("google key = %q", got)
	}
}

func TestResolvedPolicyProfile(t *testing.T) {
	cfg := &Config{}
	cfg.Policy.Profile = policy.ProfileReadOnly
	resolved, err := cfg.ResolvedPolicy()
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Profile != policy.ProfileReadOnly || len(resolved.Deny) == 0 {
		t.Errorf("resolved = %+v", resolved)
	}

	cfg.Policy.Profile = "no_such_profile"
	if _, err := cfg.ResolvedPolicy(); err == nil {
		t.Error("unknown profile accepted")
	}
}

func TestBudgetAndFetchConversion(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "settings.yaml", `
budget:
  max_tokens: 50000
  max_children: 4
fetch:
  allow_hosts: [internal.example.com]
  timeout_seconds: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	opts := cfg.Budget.Opts()
	if opts.MaxTokens == nil || *opts.MaxTokens != 50000 {
		t.Errorf("budget opts = %+v", opts)
	}
	if opts.MaxCost != nil {
		t.Error("absent max_cost should stay nil")
	}
	fetch := cfg.Fetch.FetchOptions()
	if len(fetch.AllowHosts) != 1 || fetch.Timeout.Seconds() != 30 {
		t.Errorf("fetch opts = %+v", fetch)
	}
}
