// Package config loads the agentcore settings file (YAML or JSON5, with
// $include resolution and environment expansion) and applies environment
// overrides for debug flags and provider API keys.
package config

import (
	"fmt"

	"github.com/haasonsaas/agentcore/internal/budget"
	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/guardrails"
	"github.com/haasonsaas/agentcore/internal/netguard"
	"github.com/haasonsaas/agentcore/internal/policy"
)

// Config is the agentcore settings tree. Keys are snake_case; the compaction
// section additionally accepts camelCase spellings.
type Config struct {
	Workspace string `yaml:"workspace"`
	Debug     bool   `yaml:"debug"`

	Logging    LoggingConfig       `yaml:"logging"`
	LLM        LLMConfig           `yaml:"llm"`
	Session    SessionConfig       `yaml:"session"`
	Compaction compaction.Settings `yaml:"compaction"`
	Budget     BudgetConfig        `yaml:"budget"`
	Guardrails guardrails.Config   `yaml:"guardrails"`
	Policy     policy.Policy       `yaml:"policy"`
	Extensions ExtensionsConfig    `yaml:"extensions"`
	Fetch      FetchConfig         `yaml:"fetch"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	DefaultModel    string                    `yaml:"default_model"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

type SessionConfig struct {
	// Dir is where session JSONL files are written.
	Dir string `yaml:"dir"`
}

// BudgetConfig carries the run budget ceilings. Absent values mean unlimited.
type BudgetConfig struct {
	MaxTokens   *int     `yaml:"max_tokens"`
	MaxCost     *float64 `yaml:"max_cost"`
	MaxChildren *int     `yaml:"max_children"`
}

// Opts converts the config into budget tracker options.
func (b BudgetConfig) Opts() budget.Opts {
	return budget.Opts{
		MaxTokens:   b.MaxTokens,
		MaxCost:     b.MaxCost,
		MaxChildren: b.MaxChildren,
	}
}

type ExtensionsConfig struct {
	Dirs     []string `yaml:"dirs"`
	Disabled []string `yaml:"disabled"`
}

type FetchConfig struct {
	MaxRedirects        int      `yaml:"max_redirects"`
	AllowHosts          []string `yaml:"allow_hosts"`
	AllowPrivateNetwork bool     `yaml:"allow_private_network"`
	TimeoutSeconds      int      `yaml:"timeout_seconds"`
	MaxBodyBytes        int64    `yaml:"max_body_bytes"`
}

// FetchOptions converts the config into netguard fetcher options.
func (f FetchConfig) FetchOptions() netguard.FetchOptions {
	opts := netguard.FetchOptions{
		MaxRedirects:        f.MaxRedirects,
		AllowHosts:          f.AllowHosts,
		AllowPrivateNetwork: f.AllowPrivateNetwork,
		MaxBodyBytes:        f.MaxBodyBytes,
	}
	if f.TimeoutSeconds > 0 {
		opts.Timeout = secondsToDuration(f.TimeoutSeconds)
	}
	return opts
}

// ResolvedPolicy returns the effective policy: a named profile when only the
// profile field is set, otherwise the custom policy as written.
func (c *Config) ResolvedPolicy() (policy.Policy, error) {
	p := c.Policy
	if p.Profile == "" {
		return p, nil
	}
	if len(p.Allow) > 0 || len(p.Deny) > 0 || len(p.RequireApproval) > 0 {
		// Custom policy that merely records its origin profile.
		return p, nil
	}
	resolved, err := policy.FromProfile(p.Profile)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("resolve policy profile: %w", err)
	}
	resolved.NoReply = p.NoReply
	return resolved, nil
}

// Load reads, merges, and decodes the settings file at path, applies
// defaults, and overlays environment overrides.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	normalizeCompactionKeys(raw)
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg, nil
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Compaction.ReserveTokens == 0 {
		cfg.Compaction.ReserveTokens = compaction.DefaultReserveTokens
	}
	if cfg.Compaction.KeepRecentTokens == 0 {
		cfg.Compaction.KeepRecentTokens = compaction.DefaultKeepRecentTokens
	}
	if cfg.Compaction.MessageLimitTriggerRatio == 0 {
		cfg.Compaction.MessageLimitTriggerRatio = compaction.DefaultMessageLimitTriggerRatio
	}
	if cfg.Compaction.MessageLimitKeepRatio == 0 {
		cfg.Compaction.MessageLimitKeepRatio = compaction.DefaultMessageLimitKeepRatio
	}
	if cfg.Compaction.MinKeepMessages == 0 {
		cfg.Compaction.MinKeepMessages = compaction.DefaultMinKeepMessages
	}
	if cfg.Guardrails.MaxToolResultBytes == 0 {
		cfg.Guardrails.MaxToolResultBytes = guardrails.DefaultMaxToolResultBytes
	}
	if cfg.Guardrails.MaxToolCallArgStringBytes == 0 {
		cfg.Guardrails.MaxToolCallArgStringBytes = guardrails.DefaultMaxToolCallArgStringBytes
	}
	if cfg.Fetch.MaxRedirects == 0 {
		cfg.Fetch.MaxRedirects = netguard.DefaultMaxRedirects
	}
}
