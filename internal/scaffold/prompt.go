package scaffold

// buildInitPrompt constructs the full prompt for AI-powered init.
// The projectContext string is the rendered output of contextgather.Render().
func buildInitPrompt(projectContext string) string {
	return initPromptPrefix + projectContext + initPromptSuffix
}

const initPromptPrefix = `You are setting up pex for a software project. pex is a prompt-execution CLI: it runs markdown prompt files through AI coding CLIs and loops until the agent verifies its own work.

Your job: analyze the project context below and generate a tailored pex config plus a first prompt file.

## pex Config Schema

` + "```" + `yaml file=.pex/config.yaml
# all keys optional
preferred-agent: claude | codex | gemini | opencode | aider
log-dir: <path>          # iteration logs
state-dir: <path>        # loop state
worktree-dir: <path>     # where git worktrees are created
base-branch: <branch>    # worktrees start from this branch
local-providers:         # local inference endpoints, if any
  lmstudio: http://localhost:1234/v1
  ollama: http://localhost:11434
` + "```" + `

Prompt files live under prompts/ and are named <NNN>-<slug>.md with a
zero-padded number, e.g. prompts/001-improve-test-coverage.md. A prompt
starts with a # title and describes one self-contained task, including
how the agent should verify the result.

## Project Context

`

const initPromptSuffix = `

## Instructions

Based on the project context above, produce:

1. A ` + "`.pex/config.yaml`" + ` for this project. Set base-branch to the
   branch the git history suggests. Only include keys that deviate from
   defaults; an empty config with comments is fine.

2. One starter prompt, ` + "`prompts/001-<slug>.md`" + `, proposing a small,
   genuinely useful first task for THIS project (e.g. raise test coverage in
   a thin area, fix a TODO you spotted, add a missing lint target). The
   prompt must end with a concrete verification step the agent can run.

## Output Format

Produce ONLY fenced code blocks with ` + "`file=`" + ` annotations. No
explanation or text outside the code blocks:

` + "```" + `yaml file=.pex/config.yaml
<config content>
` + "```" + `

` + "```" + `markdown file=prompts/001-<slug>.md
<prompt content>
` + "```" + `

All file paths MUST be under ` + "`.pex/`" + ` or ` + "`prompts/`" + `.
`

const retryFeedback = `

IMPORTANT: Your previous attempt failed with this error: %v

Try again. Output ONLY fenced code blocks with file= annotations. One of them MUST be .pex/config.yaml, and every path must be under .pex/ or prompts/.`
