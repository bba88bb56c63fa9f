package docs

var topics = []Topic{
	{
		Name:    "quickstart",
		Title:   "Quick Start",
		Summary: "Getting started with pex",
		Content: topicQuickstart,
	},
	{
		Name:    "config",
		Title:   "Configuration Reference",
		Summary: "Config file scopes, keys, and defaults",
		Content: topicConfig,
	},
	{
		Name:    "models",
		Title:   "Model Shorthands",
		Summary: "Shorthand table, CLI overrides, and fallback chains",
		Content: topicModels,
	},
	{
		Name:    "loop",
		Title:   "Verification Loop",
		Summary: "Completion markers, retries, state, and resuming",
		Content: topicLoop,
	},
	{
		Name:    "prompts",
		Title:   "Prompt Files",
		Summary: "Prompt naming, lookup, ranges, and the completed/ folder",
		Content: topicPrompts,
	},
	{
		Name:    "worktrees",
		Title:   "Worktrees",
		Summary: "Isolated working copies and conflict policies",
		Content: topicWorktrees,
	},
}

const topicQuickstart = `Quick Start
===========

1. Initialize a project:

    cd your-project
    pex init

   This creates .pex/config.yaml and prompts/001-example.md.

2. Write a prompt file under prompts/. The filename starts with a
   zero-padded number, e.g. prompts/042-add-cache.md.

3. Preview the plan without executing:

    pex run 042 --model codex

   Without --run, pex only resolves the prompt and model and prints the
   exact command it would launch.

4. Run for real:

    pex run 042 --model codex --run

5. Run with verification looping, in an isolated worktree:

    pex run 042 --model codex --loop --worktree --run

6. Check progress:

    pex status 042

CLI Flags
---------

  pex run <id> --model <m>        Resolve and print the plan (dry mode)
  pex run <id> --model <m> --run  Execute for real
  pex run <id> --cli <cli>        Force a specific CLI wrapper
  pex run <id> --loop             Retry until verified or the ceiling
  pex run <id> --max-iterations N Iteration ceiling (default 3)
  pex run <id> --worktree         Run inside a fresh git worktree
  pex run <id> --timeout N        Per-iteration budget in minutes
  pex status [<id>]               Show loop state (all loops without id)
  pex resume <id>                 Continue an exhausted loop
  pex models                      List every model shorthand
  pex doctor <id>                 AI diagnosis of a stalled loop
  pex docs [topic]                This documentation
`

const topicConfig = `Configuration Reference
=======================

pex reads YAML configuration from two scopes:

  ~/.config/pex/config.yaml    user scope (applies everywhere)
  <project>/.pex/config.yaml   project scope (overrides user keys)

Project keys win key by key; an absent file is fine.

Keys
----

  preferred-agent   CLI to prefer when a model's family supports it.
                    One of: claude, codex, gemini, opencode, aider.
  log-dir           Where iteration logs go.
                    Default: ~/.local/share/pex/cli-logs
  state-dir         Parent of the loop-state directory.
                    Default: ~/.local/share/pex
  worktree-dir      Where worktrees are created.
                    Default: <project>/../worktrees
  base-branch       Branch worktrees start from. Default: main
  local-providers   Map of local inference endpoints, e.g.

                      local-providers:
                        lmstudio: http://localhost:1234/v1
                        ollama: http://localhost:11434

Example
-------

  preferred-agent: opencode
  base-branch: develop
  local-providers:
    lmstudio: http://localhost:1234/v1
`

const topicModels = `Model Shorthands
================

A shorthand names a model plus a reasoning tier; pex maps it to a
concrete CLI invocation. List everything with:

    pex models

Common shorthands:

  codex, codex-high, codex-xhigh    OpenAI codex tiers
  gpt52, gpt52-high, gpt52-xhigh    GPT-5.2 tiers
  gemini, gemini-high               Gemini tiers
  claude                            Anthropic via the claude CLI
  zai                               Z.ai GLM via opencode
  local, qwen, devstral             Local models (LM Studio profiles)

Aliases like gpt-5.2-high normalize to their canonical shorthand.
Provider-qualified ids (openai:gpt-5.2-codex) are accepted as-is.

CLI Overrides and Fallback
--------------------------

    pex run 042 --model gpt52 --cli opencode

forces a specific CLI wrapper. The override must support the model's
family; asking gemini to run an OpenAI model is rejected up front.

Without an override, pex walks the family's fallback chain and picks
the first CLI installed on PATH, honoring preferred-agent from config
when that agent supports the family. If nothing is installed, the
chain's first CLI is still chosen so the launch failure is reported
against the right command.
`

const topicLoop = `Verification Loop
=================

With --loop, pex wraps your prompt in a verification protocol: the
agent is instructed to verify its own work and print

    <verification>VERIFICATION_COMPLETE</verification>

when everything passes, or

    <verification>NEEDS_RETRY: <reason></verification>

when something still needs work. After each iteration pex scans the
log for these tags. The marker only counts inside the tags and after
the injected instructions, so an agent merely talking about the marker
never ends the loop. An explicit retry request always wins over a
completion marker in the same log.

Termination
-----------

  completed                 the marker was found
  max_iterations_reached    the ceiling was hit (resume to continue)
  failed                    the CLI could not be launched twice in a row

State and Resuming
------------------

Loop state is one JSON file per prompt under
<state-dir>/loop-state/<id>.json: iteration history, exit codes, retry
reasons, log paths, and any next steps the agent suggested. Inspect it
with pex status, or the file directly.

    pex resume 042                    continue an exhausted loop
    pex resume 042 --max-iterations 8 raise the ceiling
    pex resume 042 --force            resume a failed loop

Resuming a completed loop is refused. Every iteration of one loop
shares a single execution timestamp, so log paths printed early stay
valid across resume.

Custom marker:

    pex run 042 --loop --completion-marker DONE_DONE --run
`

const topicPrompts = `Prompt Files
============

Prompts are markdown files in the project's prompts/ directory, named
with a zero-padded number prefix:

    prompts/042-add-cache.md
    prompts/planning/007-roadmap.md

Lookup accepts:

  a number            pex run 42        (zero-padded to 042)
  a name fragment     pex run add-cache (case-insensitive)
  a folder-qualified  pex run planning/007
  a range             pex run 002-005   (runs each in order)
  a comma list        pex run 002,004,007
  nothing             the most recently modified prompt

Ambiguous fragments are rejected with the list of matches. Files under
completed/ and files starting with _ are skipped unless named
explicitly.

The first # heading (or first non-empty line) is the prompt's title in
status output.
`

const topicWorktrees = `Worktrees
=========

--worktree runs the prompt inside an isolated git worktree so the
agent's changes land on their own branch:

  branch     prompt/<slug>          from the prompt filename
  directory  <worktree-dir>/<repo>-prompt-<slug>
  contents   checked out from base-branch, plus the prompt as TASK.md

The loop uses the worktree as the working directory for every
iteration, including after resume.

Conflicts
---------

The path is deterministic, so rerunning a prompt finds the old
worktree. Choose a policy:

  --on-conflict error       refuse and explain (default)
  --on-conflict reuse       keep the directory and existing work
  --on-conflict remove      delete worktree and branch, start fresh
  --on-conflict increment   create <path>-1, <path>-2, ...

When done, merge the prompt branch as usual and clean up with
git worktree remove.
`
