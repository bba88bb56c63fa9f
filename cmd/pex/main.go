package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/jorge-barreto/pex/internal/config"
	"github.com/jorge-barreto/pex/internal/doctor"
	"github.com/jorge-barreto/pex/internal/docs"
	"github.com/jorge-barreto/pex/internal/executor"
	"github.com/jorge-barreto/pex/internal/logging"
	"github.com/jorge-barreto/pex/internal/loop"
	"github.com/jorge-barreto/pex/internal/prompt"
	"github.com/jorge-barreto/pex/internal/registry"
	"github.com/jorge-barreto/pex/internal/scaffold"
	"github.com/jorge-barreto/pex/internal/state"
	"github.com/jorge-barreto/pex/internal/ux"
	"github.com/jorge-barreto/pex/internal/worktree"
)

func main() {
	app := &cli.Command{
		Name:        "pex",
		Usage:       "Run markdown prompts through AI coding CLIs, with verification looping",
		Description: "Run 'pex docs' for documentation on models, prompts, loops, and worktrees.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Enable debug logging on stderr"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := "warn"
			if cmd.Bool("verbose") || os.Getenv("PEX_DEBUG") != "" {
				level = "debug"
			}
			logging.Init(logging.Config{Level: level})
			return ctx, nil
		},
		Commands: []*cli.Command{
			runCmd(),
			statusCmd(),
			resumeCmd(),
			modelsCmd(),
			doctorCmd(),
			initCmd(),
			docsCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", ux.Red, ux.Reset, err)
		os.Exit(1)
	}
}

// env bundles everything a run needs, loaded once and threaded explicitly.
type env struct {
	root     string
	cfg      *config.Config
	resolver *registry.Resolver
	prompts  *prompt.Resolver
	store    *state.Store
	logDir   string
}

func loadEnv() (*env, error) {
	root, err := findProjectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(config.UserPath(), config.ProjectPath(root))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &env{
		root:     root,
		cfg:      cfg,
		resolver: registry.NewResolver(cfg.PreferredAgent, cfg.LocalProviders),
		prompts:  &prompt.Resolver{Dir: filepath.Join(root, "prompts")},
		store:    state.NewStore(config.ResolveDir(cfg.StateDir, root)),
		logDir:   config.ResolveDir(cfg.LogDir, root),
	}, nil
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Resolve and execute prompts (dry mode without --run)",
		ArgsUsage: "[<prompt-id>...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Value: "claude", Usage: "Model shorthand (see 'pex models')"},
			&cli.StringFlag{Name: "cli", Usage: "Force a specific CLI wrapper"},
			&cli.BoolFlag{Name: "loop", Usage: "Retry until verified or the iteration ceiling"},
			&cli.IntFlag{Name: "max-iterations", Value: 3, Usage: "Iteration ceiling for --loop"},
			&cli.StringFlag{Name: "completion-marker", Value: loop.DefaultCompletionMarker, Usage: "Marker the agent emits when verified"},
			&cli.BoolFlag{Name: "worktree", Usage: "Run inside an isolated git worktree"},
			&cli.StringFlag{Name: "base-branch", Usage: "Branch worktrees start from (default from config)"},
			&cli.StringFlag{Name: "on-conflict", Value: "error", Usage: "Existing-worktree policy: error, remove, reuse, increment"},
			&cli.IntFlag{Name: "timeout", Value: 60, Usage: "Per-iteration budget in minutes"},
			&cli.StringFlag{Name: "cwd", Usage: "Working directory for the CLI (default project root)"},
			&cli.BoolFlag{Name: "run", Usage: "Actually execute (omit to preview the plan)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if os.Getenv("CLAUDECODE") != "" {
				return fmt.Errorf("pex cannot run inside Claude Code (CLAUDECODE env var is set). Run from a regular terminal")
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}

			model, err := e.resolver.Resolve(cmd.String("model"), cmd.String("cli"))
			if err != nil {
				return err
			}

			prompts, err := resolvePrompts(e, cmd.Args().Slice())
			if err != nil {
				return err
			}

			workDir := e.root
			if cwd := cmd.String("cwd"); cwd != "" {
				workDir = config.ResolveDir(cwd, e.root)
			}

			if !cmd.Bool("run") {
				for _, p := range prompts {
					ux.Plan(p.ID(), p.Path, model, workDir, e.logDir,
						cmd.Bool("loop"), int(cmd.Int("max-iterations")), cmd.String("completion-marker"))
				}
				return nil
			}

			policy, err := worktree.ParsePolicy(cmd.String("on-conflict"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			engine := executor.New(e.logDir)
			engine.Echo = os.Stdout

			opts := runOptions{
				loop:          cmd.Bool("loop"),
				maxIterations: int(cmd.Int("max-iterations")),
				marker:        cmd.String("completion-marker"),
				timeout:       time.Duration(cmd.Int("timeout")) * time.Minute,
				workDir:       workDir,
				useWorktree:   cmd.Bool("worktree"),
				baseBranch:    firstNonEmpty(cmd.String("base-branch"), e.cfg.BaseBranch),
				policy:        policy,
			}
			for _, p := range prompts {
				if err := runOne(ctx, e, engine, model, p, opts); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type runOptions struct {
	loop          bool
	maxIterations int
	marker        string
	timeout       time.Duration
	workDir       string
	useWorktree   bool
	baseBranch    string
	policy        worktree.Policy
}

func runOne(ctx context.Context, e *env, engine *executor.CLIEngine, model *registry.ModelConfig, p *prompt.Prompt, opts runOptions) error {
	unlock, err := e.store.Lock(p.ID())
	if err != nil {
		return err
	}
	defer unlock()

	// A corrupt state file blocks the run; it is never silently replaced.
	if _, err := e.store.Load(p.ID()); err != nil {
		return err
	}

	workDir := opts.workDir
	var wt *worktree.Worktree
	if opts.useWorktree {
		wtDir := config.ResolveDir(e.cfg.WorktreeDir, e.root)
		if e.cfg.WorktreeDir == "" {
			wtDir = filepath.Join(filepath.Dir(e.root), "worktrees")
		}
		wt, err = worktree.NewProvisioner(wtDir).CreateOrReuse(ctx, e.root, p.Path, opts.baseBranch, opts.policy)
		if err != nil {
			return err
		}
		workDir = wt.Path
	}

	if !opts.loop {
		return runSingle(ctx, engine, model, p, workDir, opts.timeout)
	}

	st := state.New(p.ID(), model.ID, workDir, opts.marker, opts.maxIterations, time.Now())
	if wt != nil {
		st.WorktreePath = wt.Path
		st.BranchName = wt.Branch
	}
	if err := e.store.Save(st); err != nil {
		return err
	}
	return driveLoop(ctx, e, engine, model, p, st, opts.timeout)
}

// runSingle is one-shot execution, no protocol injection and no loop state.
func runSingle(ctx context.Context, engine *executor.CLIEngine, model *registry.ModelConfig, p *prompt.Prompt, workDir string, timeout time.Duration) error {
	res, err := engine.Run(ctx, executor.Request{
		Prompt:    p.Content,
		Model:     model,
		WorkDir:   workDir,
		PromptID:  p.ID(),
		Timestamp: executor.NewTimestamp(time.Now()),
	}, timeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		ux.LaunchFailure(res, model.CLI)
		return fmt.Errorf("%s: %s (log: %s)", p.ID(), res.FailureCategory(), res.LogPath)
	}
	fmt.Printf("\n%s✓ %s finished%s %s(log: %s)%s\n", ux.Green, p.ID(), ux.Reset, ux.Dim, res.LogPath, ux.Reset)
	return nil
}

func driveLoop(ctx context.Context, e *env, engine executor.Engine, model *registry.ModelConfig, p *prompt.Prompt, st *state.LoopState, timeout time.Duration) error {
	c := loop.NewController(e.store, engine, model, p.Content, timeout)
	for !st.Terminal() {
		ux.IterationHeader(st.CurrentIteration+1, st.MaxIterations, st.PromptID, model.ID)
		started := time.Now()
		if err := c.Advance(ctx, st); err != nil {
			return err
		}
		ux.IterationDone(st.History[len(st.History)-1], time.Since(started))
	}
	ux.LoopDone(st)
	if st.Status != state.StatusCompleted {
		return fmt.Errorf("loop for %s ended with status %s", st.PromptID, st.Status)
	}
	return nil
}

func resumeCmd() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Continue an exhausted verification loop",
		ArgsUsage: "<prompt-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-iterations", Usage: "Raise the iteration ceiling"},
			&cli.BoolFlag{Name: "force", Usage: "Resume even a failed loop"},
			&cli.IntFlag{Name: "timeout", Value: 60, Usage: "Per-iteration budget in minutes"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if os.Getenv("CLAUDECODE") != "" {
				return fmt.Errorf("pex cannot run inside Claude Code (CLAUDECODE env var is set). Run from a regular terminal")
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}
			p, st, err := loadLoop(e, cmd.Args().First())
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("prompt file for %s no longer exists; cannot resume", st.PromptID)
			}

			unlock, err := e.store.Lock(st.PromptID)
			if err != nil {
				return err
			}
			defer unlock()

			if err := loop.Resume(st, int(cmd.Int("max-iterations")), cmd.Bool("force")); err != nil {
				return err
			}
			if err := e.store.Save(st); err != nil {
				return err
			}

			model, err := e.resolver.Resolve(st.Model, "")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			engine := executor.New(e.logDir)
			engine.Echo = os.Stdout
			return driveLoop(ctx, e, engine, model, p, st, time.Duration(cmd.Int("timeout"))*time.Minute)
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show loop state (all loops without an id)",
		ArgsUsage: "[<prompt-id>]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			id := cmd.Args().First()
			if id == "" {
				ids, err := e.store.ListAll()
				if err != nil {
					return err
				}
				var states []*state.LoopState
				for _, id := range ids {
					st, err := e.store.Load(id)
					if err != nil {
						return err
					}
					if st != nil {
						states = append(states, st)
					}
				}
				ux.RenderStatusList(states)
				return nil
			}

			_, st, err := loadLoop(e, id)
			if err != nil {
				return err
			}
			ux.RenderStatus(st)
			return nil
		},
	}
}

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List model shorthands and their CLI routing",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			fmt.Printf("%s%-16s %-28s %-10s%s\n", ux.Bold, "SHORTHAND", "MODEL", "CLI", ux.Reset)
			for _, row := range e.resolver.Table() {
				avail := ux.Green + "✓" + ux.Reset
				if !row.Available {
					avail = ux.Dim + "not installed" + ux.Reset
				}
				fmt.Printf("%-16s %-28s %-10s %s\n", row.Shorthand, row.Display, row.CLI, avail)
			}
			return nil
		},
	}
}

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:      "doctor",
		Usage:     "Diagnose a stalled loop using AI",
		ArgsUsage: "<prompt-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			_, st, err := loadLoop(e, cmd.Args().First())
			if err != nil {
				return err
			}
			return doctor.Run(ctx, st)
		},
	}
}

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize .pex/ and a starter prompt",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "template", Usage: "Skip AI generation, use the static template"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			return scaffold.Init(ctx, dir, !cmd.Bool("template"))
		},
	}
}

func docsCmd() *cli.Command {
	return &cli.Command{
		Name:      "docs",
		Usage:     "Show documentation",
		ArgsUsage: "[topic]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			if name == "" {
				fmt.Print("\nAvailable topics:\n\n")
				for _, t := range docs.All() {
					fmt.Printf("  %-14s %s\n", t.Name, t.Summary)
				}
				fmt.Println("\nRun 'pex docs <topic>' to read a topic.")
				return nil
			}
			t, err := docs.Get(name)
			if err != nil {
				return err
			}
			fmt.Print(t.Content)
			return nil
		},
	}
}

// resolvePrompts expands range and list inputs; with no input it picks the
// most recently modified prompt.
func resolvePrompts(e *env, inputs []string) ([]*prompt.Prompt, error) {
	if len(inputs) == 0 {
		p, err := e.prompts.Latest()
		if err != nil {
			return nil, err
		}
		return []*prompt.Prompt{p}, nil
	}
	var prompts []*prompt.Prompt
	for _, input := range prompt.ExpandInputs(inputs) {
		p, err := e.prompts.Resolve(input)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

// loadLoop resolves a prompt id to its canonical form and loads its state.
func loadLoop(e *env, input string) (*prompt.Prompt, *state.LoopState, error) {
	if input == "" {
		return nil, nil, fmt.Errorf("prompt-id argument is required")
	}
	p, err := e.prompts.Resolve(input)
	if err != nil {
		// The prompt file may have moved to completed/; fall back to the
		// raw id so status still works.
		var nf *prompt.NotFoundError
		if !errors.As(err, &nf) {
			return nil, nil, err
		}
		st, lerr := e.store.Load(input)
		if lerr != nil {
			return nil, nil, lerr
		}
		if st == nil {
			return nil, nil, err
		}
		return nil, st, nil
	}
	st, err := e.store.Load(p.ID())
	if err != nil {
		return nil, nil, err
	}
	if st == nil {
		return nil, nil, fmt.Errorf("no loop state for %s (was it run with --loop?)", p.ID())
	}
	return p, st, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// findProjectRoot walks up from cwd looking for .pex/ or prompts/.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	start := dir
	for {
		for _, marker := range []string{".pex", "prompts"} {
			if info, err := os.Stat(filepath.Join(dir, marker)); err == nil && info.IsDir() {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// No project markers; operate from where we started.
			return start, nil
		}
		dir = parent
	}
}
