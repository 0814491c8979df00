package config

import (
	"os"
	"strings"
)

// apiKeyEnvOverrides maps provider names to their conventional API key
// environment variables where the generic <PROVIDER>_API_KEY form does not
// apply.
var apiKeyEnvOverrides = map[string]string{
	"google": "GEMINI_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

// ApplyEnv overlays environment overrides onto cfg: DEBUG / PI_DEBUG enable
// debug logging, and provider API keys fill from their standard variables
// when the file left them empty.
func ApplyEnv(cfg *Config) {
	if envTruthy(os.Getenv("DEBUG")) || envTruthy(os.Getenv("PI_DEBUG")) {
		cfg.Debug = true
		cfg.Logging.Level = "debug"
	}

	for name, provider := range cfg.LLM.Providers {
		if provider.APIKey != "" {
			continue
		}
		if key := os.Getenv(apiKeyEnv(name)); key != "" {
			provider.APIKey = key
			cfg.LLM.Providers[name] = provider
		}
	}
}

// APIKey returns the key for a provider, falling back to its environment
// variable for providers absent from the config file.
func (c *Config) APIKey(provider string) string {
	if p, ok := c.LLM.Providers[provider]; ok && p.APIKey != "" {
		return p.APIKey
	}
	return os.Getenv(apiKeyEnv(provider))
}

func apiKeyEnv(provider string) string {
	name := strings.ToLower(strings.TrimSpace(provider))
	if env, ok := apiKeyEnvOverrides[name]; ok {
		return env
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + "_API_KEY"
}

func envTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}
