package registry

import (
	"fmt"
	"os/exec"
	"strings"
)

// Resolver resolves shorthands against the static table plus configuration
// state. The zero value plus NewResolver defaults is ready to use.
type Resolver struct {
	// PreferredAgent is consulted when no explicit override is given.
	PreferredAgent string
	// LocalEndpoints maps provider name to base URL for local families.
	LocalEndpoints map[string]string

	// lookPath reports whether an executable is on PATH. Overridable in tests.
	lookPath func(string) (string, error)
}

// NewResolver builds a Resolver using real PATH lookups.
func NewResolver(preferredAgent string, localEndpoints map[string]string) *Resolver {
	return &Resolver{
		PreferredAgent: preferredAgent,
		LocalEndpoints: localEndpoints,
		lookPath:       exec.LookPath,
	}
}

func (r *Resolver) available(cli string) bool {
	lp := r.lookPath
	if lp == nil {
		lp = exec.LookPath
	}
	_, err := lp(cli)
	return err == nil
}

// Resolve maps a shorthand plus an optional explicit CLI override to a
// launchable ModelConfig.
//
// An override naming a CLI that cannot run the model's family fails with
// *UnsupportedOverrideError; the override is honored even when the binary is
// not installed (launch failure is the Execution Engine's to report). With no
// override, PreferredAgent and the family's fallback chain pick the first
// CLI present on PATH; when none is found the chain head is returned anyway
// so that the launch failure carries the right executable name.
func (r *Resolver) Resolve(shorthand, cliOverride string) (*ModelConfig, error) {
	if strings.TrimSpace(shorthand) == "" {
		return nil, &UnknownModelError{Shorthand: shorthand}
	}
	norm := normalize(shorthand)

	e, ok := shorthands[norm]
	if !ok {
		// Provider-qualified model ids ("openai:gpt-5.2") resolve directly.
		if strings.Contains(norm, ":") {
			e = entry{family: familyForProvider(provider(norm)), modelID: norm, display: norm}
		} else {
			return nil, &UnknownModelError{Shorthand: shorthand}
		}
	}

	var cli string
	switch {
	case cliOverride != "":
		override := strings.ToLower(strings.TrimSpace(cliOverride))
		if !supports(override, e.family) {
			return nil, &UnsupportedOverrideError{CLI: override, Shorthand: norm, Family: e.family}
		}
		cli = override
	case e.strictCLI:
		cli = e.forceCLI
	default:
		cli = r.chooseCLI(e)
	}

	cfg, err := buildCommand(cli, norm, e)
	if err != nil {
		return nil, err
	}
	r.applyLocalEndpoints(cfg, e)
	return cfg, nil
}

// chooseCLI walks the family chain, trying forceCLI then PreferredAgent
// first, and returns the first CLI found on PATH.
func (r *Resolver) chooseCLI(e entry) string {
	chain := make([]string, 0, len(fallbackChains[e.family])+2)
	if e.forceCLI != "" {
		chain = append(chain, e.forceCLI)
	}
	if pref := strings.ToLower(r.PreferredAgent); pref != "" && supports(pref, e.family) {
		chain = append(chain, pref)
	}
	chain = append(chain, fallbackChains[e.family]...)

	seen := make(map[string]bool, len(chain))
	deduped := chain[:0]
	for _, c := range chain {
		if !seen[c] {
			seen[c] = true
			deduped = append(deduped, c)
		}
	}

	for _, c := range deduped {
		if r.available(c) {
			return c
		}
	}
	return deduped[0]
}

func familyForProvider(p string) string {
	switch p {
	case "openai":
		return familyOpenAI
	case "anthropic":
		return familyAnthropic
	case "google":
		return familyGoogle
	case "zai":
		return familyZAI
	case "lmstudio", "ollama", "vllm", "local":
		return familyLocal
	default:
		return familyOpenAI
	}
}

// buildCommand produces the argv prefix and input mode for one CLI.
func buildCommand(cli, id string, e entry) (*ModelConfig, error) {
	cfg := &ModelConfig{
		ID:          id,
		DisplayName: e.display,
		CLI:         cli,
		ModelID:     e.modelID,
		Env:         copyEnv(e.env),
	}

	switch cli {
	case "codex":
		cmd := []string{"codex", "exec", "--full-auto"}
		switch e.family {
		case familyZAI:
			cmd = append(cmd, "--profile", withDefault(e.codexProfile, "zai"))
		case familyLocal:
			cmd = append(cmd, "--profile", withDefault(e.codexProfile, "local"))
		default:
			cmd = append(cmd, "-m", modelName(e.modelID))
		}
		if e.reasoning != "" {
			cmd = append(cmd, "-c", fmt.Sprintf("model_reasoning_effort=%q", e.reasoning))
		}
		// Trailing "-" tells codex to read the prompt from stdin.
		cmd = append(cmd, "-")
		cfg.CommandTemplate = cmd
		cfg.InputMode = ViaStdin

	case "gemini":
		cfg.CommandTemplate = []string{"gemini", "-y", "-m", modelName(e.modelID), "-p"}
		cfg.InputMode = ViaArgument

	case "opencode":
		cfg.CommandTemplate = []string{"opencode", "run", "-m", opencodeModelSpec(e.modelID)}
		cfg.InputMode = ViaArgument

	case "aider":
		model := modelName(e.modelID)
		if provider(e.modelID) == "ollama" {
			model = opencodeModelSpec(e.modelID)
		}
		cfg.CommandTemplate = []string{"aider", "--yes", "--model", model, "--message"}
		cfg.InputMode = ViaArgument

	case "claude":
		cfg.CommandTemplate = []string{"claude", "--model", "sonnet", "-p"}
		cfg.InputMode = ViaArgument

	default:
		return nil, fmt.Errorf("no command builder for CLI %q", cli)
	}

	if cfg.DisplayName == "" {
		cfg.DisplayName = id
	}
	return cfg, nil
}

// applyLocalEndpoints passes configured local provider endpoints through the
// subprocess environment.
func (r *Resolver) applyLocalEndpoints(cfg *ModelConfig, e entry) {
	if e.family != familyLocal || len(r.LocalEndpoints) == 0 {
		return
	}
	if cfg.Env == nil {
		cfg.Env = make(map[string]string)
	}
	for name, endpoint := range r.LocalEndpoints {
		switch name {
		case "lmstudio":
			cfg.Env["LMSTUDIO_BASE_URL"] = endpoint
		case "ollama":
			cfg.Env["OLLAMA_HOST"] = endpoint
		case "vllm":
			cfg.Env["VLLM_BASE_URL"] = endpoint
		}
	}
}

func copyEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	cp := make(map[string]string, len(env))
	for k, v := range env {
		cp[k] = v
	}
	return cp
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// TableEntry is one row of the routing table shown by `pex models`.
type TableEntry struct {
	Shorthand string
	Display   string
	CLI       string
	Command   []string
	Available bool
}

// Table resolves every shorthand for display purposes.
func (r *Resolver) Table() []TableEntry {
	var rows []TableEntry
	for _, name := range Shorthands() {
		cfg, err := r.Resolve(name, "")
		if err != nil {
			rows = append(rows, TableEntry{Shorthand: name})
			continue
		}
		rows = append(rows, TableEntry{
			Shorthand: name,
			Display:   cfg.DisplayName,
			CLI:       cfg.CLI,
			Command:   cfg.CommandTemplate,
			Available: r.available(cfg.CLI),
		})
	}
	return rows
}
