package ux

import (
	"fmt"
	"strings"
	"time"

	"github.com/jorge-barreto/pex/internal/executor"
	"github.com/jorge-barreto/pex/internal/registry"
	"github.com/jorge-barreto/pex/internal/state"
)

// ANSI color helpers
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// IterationHeader prints a timestamped iteration header.
func IterationHeader(iteration, max int, promptID, model string) {
	fmt.Printf("\n%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
	fmt.Printf("%s[%s]%s  %sIteration %d/%d: %s (%s)%s\n",
		Dim, timestamp(), Reset, Bold, iteration, max, promptID, model, Reset)
	fmt.Printf("%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
}

// IterationDone prints one iteration's outcome line.
func IterationDone(rec state.IterationRecord, duration time.Duration) {
	m := int(duration.Minutes())
	s := int(duration.Seconds()) % 60
	switch {
	case rec.MarkerFound:
		fmt.Printf("%s[%s]%s  %s✓ Iteration %d verified complete (%dm %02ds)%s\n",
			Dim, timestamp(), Reset, Green, rec.Iteration, m, s, Reset)
	case rec.RetryReason != "":
		fmt.Printf("%s[%s]%s  %s↺ Iteration %d requested retry: %s%s\n",
			Dim, timestamp(), Reset, Yellow, rec.Iteration, rec.RetryReason, Reset)
	case rec.ExitCode != 0:
		fmt.Printf("%s[%s]%s  %s✗ Iteration %d exited %d, no marker%s\n",
			Dim, timestamp(), Reset, Red, rec.Iteration, rec.ExitCode, Reset)
	default:
		fmt.Printf("%s[%s]%s  %s– Iteration %d finished without a marker%s\n",
			Dim, timestamp(), Reset, Dim, rec.Iteration, Reset)
	}
}

// LoopDone prints the final loop outcome.
func LoopDone(st *state.LoopState) {
	switch st.Status {
	case state.StatusCompleted:
		fmt.Printf("\n%s[%s]%s  %s%s══ %s complete after %d iteration(s) ══%s\n\n",
			Dim, timestamp(), Reset, Bold, Green, st.PromptID, st.CurrentIteration, Reset)
	case state.StatusMaxIterationsReached:
		fmt.Printf("\n%s[%s]%s  %s✗ %s stopped at the iteration ceiling (%d)%s\n",
			Dim, timestamp(), Reset, Red, st.PromptID, st.MaxIterations, Reset)
		ResumeHint(st.PromptID)
	case state.StatusFailed:
		fmt.Printf("\n%s[%s]%s  %s✗ %s failed: CLI could not be launched twice in a row%s\n",
			Dim, timestamp(), Reset, Red, st.PromptID, Reset)
	}
}

// ResumeHint prints a resume command hint.
func ResumeHint(promptID string) {
	fmt.Printf("\n%sResume:%s pex resume %s\n", Yellow, Reset, promptID)
}

// Plan prints the dry-mode execution plan without launching anything.
func Plan(promptID, promptPath string, model *registry.ModelConfig, workDir, logDir string, loop bool, maxIterations int, marker string) {
	fmt.Printf("%sPrompt:%s   %s %s(%s)%s\n", Bold, Reset, promptID, Dim, promptPath, Reset)
	fmt.Printf("%sModel:%s    %s via %s\n", Bold, Reset, model.DisplayName, model.CLI)
	fmt.Printf("%sCommand:%s  %s", Bold, Reset, strings.Join(model.CommandTemplate, " "))
	if model.InputMode == registry.ViaArgument {
		fmt.Printf(" %s<prompt>%s", Dim, Reset)
	} else {
		fmt.Printf(" %s(prompt on stdin)%s", Dim, Reset)
	}
	fmt.Println()
	if len(model.Env) > 0 {
		keys := make([]string, 0, len(model.Env))
		for k := range model.Env {
			keys = append(keys, k)
		}
		fmt.Printf("%sEnv:%s      %s\n", Bold, Reset, strings.Join(keys, ", "))
	}
	fmt.Printf("%sWorkdir:%s  %s\n", Bold, Reset, workDir)
	fmt.Printf("%sLogs:%s     %s\n", Bold, Reset, logDir)
	if loop {
		fmt.Printf("%sLoop:%s     up to %d iterations, marker %q\n", Bold, Reset, maxIterations, marker)
	}
	fmt.Printf("\n%sDry run. Pass --run to execute.%s\n", Yellow, Reset)
}

// LaunchFailure prints a human-readable launch failure category.
func LaunchFailure(res *executor.Result, cli string) {
	fmt.Printf("%s[%s]%s  %s✗ %s: %s%s\n",
		Dim, timestamp(), Reset, Red, cli, res.FailureCategory(), Reset)
	if res.StartError != "" {
		fmt.Printf("  %s%s%s\n", Dim, res.StartError, Reset)
	}
}
