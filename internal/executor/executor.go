// Package executor launches model CLI subprocesses and captures their
// combined output to per-invocation log files.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jorge-barreto/pex/internal/logging"
	"github.com/jorge-barreto/pex/internal/registry"
)

// Sentinel exit codes. Real exits are 0..255 and signal-killed processes
// report -1, so the sentinels start below that.
const (
	// ExitTimeout means the subprocess was killed after exceeding its budget.
	ExitTimeout = -2
	// ExitStartFailure means the subprocess could not be spawned at all.
	ExitStartFailure = -3
)

// Request is one attempt to run a prompt against a model. A fresh Request is
// built for every invocation, including every loop iteration.
type Request struct {
	Prompt    string
	Model     *registry.ModelConfig
	WorkDir   string
	PromptID  string
	Iteration int    // 0 for non-loop runs, 1-based inside a loop
	Timestamp string // from NewTimestamp; shared across a loop's iterations
}

// Result is the outcome of one Request.
type Result struct {
	ExitCode   int
	LogPath    string
	StartedAt  time.Time
	FinishedAt time.Time
	// StartError holds the spawn error text when ExitCode is ExitStartFailure.
	StartError string
}

// Duration returns the wall-clock run time in seconds.
func (r *Result) Duration() float64 {
	return r.FinishedAt.Sub(r.StartedAt).Seconds()
}

// FailureCategory returns a human-readable category for error reporting.
// Start failures and timeouts are called out distinctly from ordinary
// non-zero exits.
func (r *Result) FailureCategory() string {
	switch r.ExitCode {
	case ExitStartFailure:
		if strings.Contains(r.StartError, "permission denied") {
			return "CLI not executable (permission denied)"
		}
		return "CLI not found"
	case ExitTimeout:
		return "CLI timed out"
	case 0:
		return ""
	default:
		return fmt.Sprintf("CLI exited with code %d", r.ExitCode)
	}
}

// NewTimestamp formats t with millisecond resolution for log file naming.
// Sub-second precision keeps rapidly sequential invocations from colliding.
func NewTimestamp(t time.Time) string {
	return t.Format("20060102-150405.000")
}

// LogName returns the log file name for a request.
func LogName(modelID, promptID string, iteration int, timestamp string) string {
	if iteration > 0 {
		return fmt.Sprintf("%s-%s-iter%d-%s.log", modelID, promptID, iteration, timestamp)
	}
	return fmt.Sprintf("%s-%s-%s.log", modelID, promptID, timestamp)
}

// Engine runs execution requests. The loop controller substitutes a mock in
// tests.
type Engine interface {
	Run(ctx context.Context, req Request, timeout time.Duration) (*Result, error)
}

// CLIEngine is the real Engine backed by os/exec.
type CLIEngine struct {
	LogDir string
	// Echo, when set, additionally receives the subprocess output (for
	// foreground runs where the user watches progress).
	Echo *os.File

	log zerolog.Logger
}

// New returns a CLIEngine writing logs under logDir.
func New(logDir string) *CLIEngine {
	return &CLIEngine{LogDir: logDir, log: logging.Component("executor")}
}

// Run launches the subprocess described by req and blocks until it exits,
// the timeout elapses, or ctx is cancelled.
//
// Spawn failures do not return an error: the result carries the
// ExitStartFailure sentinel so the loop controller can treat them as failed
// iterations while final reporting still distinguishes the category.
func (e *CLIEngine) Run(ctx context.Context, req Request, timeout time.Duration) (*Result, error) {
	if req.Model == nil || len(req.Model.CommandTemplate) == 0 {
		return nil, fmt.Errorf("executor: empty command")
	}
	if info, err := os.Stat(req.WorkDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("executor: working directory %q does not exist", req.WorkDir)
	}
	if err := os.MkdirAll(e.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("executor: creating log dir: %w", err)
	}

	var cancel context.CancelFunc
	timedCtx := ctx
	if timeout > 0 {
		timedCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	argv := make([]string, len(req.Model.CommandTemplate))
	copy(argv, req.Model.CommandTemplate)
	if req.Model.InputMode == registry.ViaArgument {
		// Discrete argv element; no shell, no quoting hazards.
		argv = append(argv, req.Prompt)
	}

	logPath := filepath.Join(e.LogDir, LogName(req.Model.ID, req.PromptID, req.Iteration, req.Timestamp))
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("executor: creating log file: %w", err)
	}
	defer logFile.Close()

	// Keep the exact prompt we sent next to the log for inspection.
	promptPath := strings.TrimSuffix(logPath, ".log") + ".prompt.md"
	if err := os.WriteFile(promptPath, []byte(req.Prompt), 0644); err != nil {
		e.log.Warn().Err(err).Msg("saving prompt copy failed")
	}

	cmd := exec.CommandContext(timedCtx, argv[0], argv[1:]...)
	cmd.Dir = req.WorkDir
	cmd.Env = buildEnv(req.Model.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Kill the whole process group so CLI children don't leak across
		// iterations.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	if e.Echo != nil {
		cmd.Stdout = io.MultiWriter(logFile, e.Echo)
		cmd.Stderr = io.MultiWriter(logFile, e.Echo)
	} else {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if req.Model.InputMode == registry.ViaStdin {
		// The reader hits EOF once the prompt is written, which is what
		// "read until EOF" CLIs need to start working.
		cmd.Stdin = strings.NewReader(req.Prompt)
	}

	res := &Result{LogPath: logPath, StartedAt: time.Now()}

	e.log.Debug().Str("cli", argv[0]).Str("workdir", req.WorkDir).
		Str("log", logPath).Msg("launching")

	if err := cmd.Start(); err != nil {
		res.FinishedAt = time.Now()
		res.ExitCode = ExitStartFailure
		res.StartError = err.Error()
		e.log.Debug().Err(err).Msg("spawn failed")
		return res, nil
	}

	waitErr := cmd.Wait()
	res.FinishedAt = time.Now()

	switch {
	case timedCtx.Err() == context.DeadlineExceeded:
		res.ExitCode = ExitTimeout
	case ctx.Err() != nil:
		// External cancellation (signal); propagate so the caller can stop.
		res.ExitCode = exitCode(waitErr)
		return res, ctx.Err()
	default:
		res.ExitCode = exitCode(waitErr)
	}

	e.log.Debug().Int("exit", res.ExitCode).Float64("seconds", res.Duration()).Msg("finished")
	return res, nil
}

// buildEnv inherits the current environment and overlays model-specific
// variables.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
