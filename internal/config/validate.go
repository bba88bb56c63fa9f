package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validAgents = map[string]bool{
	"":         true,
	"claude":   true,
	"codex":    true,
	"gemini":   true,
	"opencode": true,
	"aider":    true,
}

var validProviders = map[string]bool{
	"lmstudio": true,
	"ollama":   true,
	"vllm":     true,
}

// Validate checks the merged config for errors and normalizes values.
func Validate(cfg *Config) error {
	cfg.PreferredAgent = normalizeAgent(cfg.PreferredAgent)
	if !validAgents[cfg.PreferredAgent] {
		return fmt.Errorf("config: unknown preferred-agent %q (must be claude, codex, gemini, opencode, or aider)", cfg.PreferredAgent)
	}

	for name, endpoint := range cfg.LocalProviders {
		if !validProviders[name] {
			return fmt.Errorf("config: unknown local provider %q (must be lmstudio, ollama, or vllm)", name)
		}
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: local-providers.%s: %q is not a valid URL", name, endpoint)
		}
	}

	if strings.ContainsAny(cfg.BaseBranch, " \t") {
		return fmt.Errorf("config: base-branch %q must not contain whitespace", cfg.BaseBranch)
	}

	return nil
}

// normalizeAgent maps common aliases onto canonical CLI names.
func normalizeAgent(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "claude-code", "claude_code":
		return "claude"
	case "qwen", "devstral", "local":
		return "codex"
	}
	return v
}
