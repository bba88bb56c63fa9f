// Package registry maps model shorthands to launchable CLI commands.
// All shorthand, alias, family, and fallback knowledge lives here so that
// CLI-specific flag handling is never duplicated at call sites.
package registry

import (
	"fmt"
	"sort"
	"strings"
)

// InputMode describes how prompt content is delivered to a CLI.
type InputMode string

const (
	// ViaStdin pipes the prompt to the subprocess's stdin and closes it.
	ViaStdin InputMode = "stdin"
	// ViaArgument appends the prompt as the final argv element.
	ViaArgument InputMode = "arg"
)

// ModelConfig is a fully resolved, launchable command description.
type ModelConfig struct {
	ID              string // shorthand that resolved to this config
	DisplayName     string
	CLI             string   // executable name, always CommandTemplate[0]
	ModelID         string   // provider-qualified model, e.g. "openai:gpt-5.2"
	CommandTemplate []string // argv prefix; never empty
	InputMode       InputMode
	Env             map[string]string // extra environment for the subprocess
}

// Families of models. A CLI can run some families and not others.
const (
	familyOpenAI    = "openai"
	familyAnthropic = "anthropic"
	familyGoogle    = "google"
	familyZAI       = "zai"
	familyLocal     = "local"
)

// entry is one row of the static shorthand table.
type entry struct {
	family       string
	modelID      string
	display      string
	reasoning    string // codex model_reasoning_effort, "" for default
	forceCLI     string // CLI tried first regardless of preference
	strictCLI    bool   // forceCLI is the only acceptable CLI
	codexProfile string // codex --profile for zai/local routing
	env          map[string]string
}

var shorthands = map[string]entry{
	"codex":       {family: familyOpenAI, modelID: "openai:gpt-5.2-codex", display: "codex (gpt-5.2-codex)"},
	"codex-high":  {family: familyOpenAI, modelID: "openai:gpt-5.2-codex", display: "codex-high (gpt-5.2-codex, high reasoning)", reasoning: "high"},
	"codex-xhigh": {family: familyOpenAI, modelID: "openai:gpt-5.2-codex", display: "codex-xhigh (gpt-5.2-codex, xhigh reasoning)", reasoning: "xhigh"},
	"gpt52":       {family: familyOpenAI, modelID: "openai:gpt-5.2", display: "gpt52 (GPT-5.2)"},
	"gpt52-high":  {family: familyOpenAI, modelID: "openai:gpt-5.2", display: "gpt52-high (GPT-5.2, high reasoning)", reasoning: "high"},
	"gpt52-xhigh": {family: familyOpenAI, modelID: "openai:gpt-5.2", display: "gpt52-xhigh (GPT-5.2, xhigh reasoning)", reasoning: "xhigh"},

	"gemini":        {family: familyGoogle, modelID: "google:gemini-3-flash-preview", display: "gemini (Gemini 3 Flash)"},
	"gemini-high":   {family: familyGoogle, modelID: "google:gemini-2.5-pro", display: "gemini-high (Gemini 2.5 Pro)"},
	"gemini-xhigh":  {family: familyGoogle, modelID: "google:gemini-3-pro-preview", display: "gemini-xhigh (Gemini 3 Pro)"},
	"gemini25pro":   {family: familyGoogle, modelID: "google:gemini-2.5-pro", display: "gemini25pro (Gemini 2.5 Pro)"},
	"gemini25flash": {family: familyGoogle, modelID: "google:gemini-2.5-flash", display: "gemini25flash (Gemini 2.5 Flash)"},
	"gemini25lite":  {family: familyGoogle, modelID: "google:gemini-2.5-flash-lite", display: "gemini25lite (Gemini 2.5 Flash-Lite)"},

	"zai":      {family: familyZAI, modelID: "zai:glm-4.7", display: "zai (GLM-4.7)", codexProfile: "zai"},
	"opencode": {family: familyZAI, modelID: "zai:glm-4.7", display: "opencode (GLM-4.7)", forceCLI: "opencode", strictCLI: true},

	"local":    {family: familyLocal, modelID: "lmstudio:qwen3-next-80b", display: "local (LM Studio default)", forceCLI: "opencode", codexProfile: "local", env: map[string]string{"LMSTUDIO_API_KEY": "lm-studio"}},
	"qwen":     {family: familyLocal, modelID: "lmstudio:qwen3-next-80b", display: "qwen (local)", forceCLI: "opencode", codexProfile: "local", env: map[string]string{"LMSTUDIO_API_KEY": "lm-studio"}},
	"devstral": {family: familyLocal, modelID: "lmstudio:devstral-small-2-2512", display: "devstral (local)", forceCLI: "opencode", codexProfile: "local-devstral", env: map[string]string{"LMSTUDIO_API_KEY": "lm-studio"}},

	"claude": {family: familyAnthropic, modelID: "anthropic:claude-sonnet", display: "claude (Claude Sonnet)"},
}

var aliases = map[string]string{
	"gpt-5.2":       "gpt52",
	"gpt5.2":        "gpt52",
	"gpt-5.2-high":  "gpt52-high",
	"gpt-5.2-xhigh": "gpt52-xhigh",
}

// fallbackChains lists CLIs per family in preference order. A CLI supports a
// family iff it appears in that family's chain.
var fallbackChains = map[string][]string{
	familyAnthropic: {"claude", "opencode", "aider"},
	familyOpenAI:    {"codex", "opencode", "aider"},
	familyGoogle:    {"gemini", "opencode", "aider"},
	familyZAI:       {"opencode", "codex"},
	familyLocal:     {"opencode", "codex"},
}

func init() {
	// The table is static; reject broken rows once at startup rather than
	// at each use site.
	for name, e := range shorthands {
		if e.family == "" || e.modelID == "" {
			panic(fmt.Sprintf("registry: shorthand %q has empty family or model id", name))
		}
		if len(fallbackChains[e.family]) == 0 {
			panic(fmt.Sprintf("registry: shorthand %q references family %q with no fallback chain", name, e.family))
		}
	}
}

// Shorthands returns all known shorthands, sorted.
func Shorthands() []string {
	names := make([]string, 0, len(shorthands))
	for name := range shorthands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// supports reports whether a CLI can run models of the given family.
func supports(cli, family string) bool {
	for _, c := range fallbackChains[family] {
		if c == cli {
			return true
		}
	}
	return false
}

func normalize(shorthand string) string {
	s := strings.ToLower(strings.TrimSpace(shorthand))
	if canonical, ok := aliases[s]; ok {
		return canonical
	}
	return s
}

// modelName strips the provider prefix from a model id.
func modelName(modelID string) string {
	if i := strings.IndexByte(modelID, ':'); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}

// provider returns the provider prefix of a model id, or "".
func provider(modelID string) string {
	if i := strings.IndexByte(modelID, ':'); i >= 0 {
		return strings.ToLower(modelID[:i])
	}
	return ""
}

// opencodeModelSpec converts "provider:model" to opencode's "provider/model".
func opencodeModelSpec(modelID string) string {
	if i := strings.IndexByte(modelID, ':'); i >= 0 {
		return modelID[:i] + "/" + modelID[i+1:]
	}
	return modelID
}
