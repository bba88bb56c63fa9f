package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jorge-barreto/pex/internal/state"
	"github.com/jorge-barreto/pex/internal/ux"
)

const maxLogLines = 200

const diagPrompt = `You are diagnosing a stalled pex verification loop. Analyze the context below and provide a concise diagnosis.

## Loop State
%s

## Last Iteration Log (last %d lines)
%s
%s
Instructions:
1. Identify why the loop did not verify complete from the log output.
2. Classify this as a HARNESS problem (CLI missing, timeouts, bad model choice) or a CODE problem (the task the agent was working on).
3. Suggest specific fixes.
4. Recommend the next command to run:
   - pex resume %s            (continue with more iterations)
   - pex run %s --model <other> --run  (start over with a different model)
   - Fix the underlying issue first, then resume

Be direct and concise. Focus on actionable advice.`

// Run gathers loop context and sends it to claude for diagnosis.
func Run(ctx context.Context, st *state.LoopState) error {
	if st.Status == state.StatusCompleted || st.Status == state.StatusRunning {
		fmt.Println("No stalled loop to diagnose.")
		return nil
	}

	summary := gatherLoopSummary(st)
	log := gatherLastLog(st)
	steps := gatherNextSteps(st)

	diagText := fmt.Sprintf(diagPrompt, summary, maxLogLines, log, steps, st.PromptID, st.PromptID)

	fmt.Printf("\n%s%s══ Doctor: diagnosing loop %s (%s) ══%s\n\n",
		ux.Bold, ux.Cyan, st.PromptID, st.Status, ux.Reset)

	if err := runClaude(ctx, diagText); err != nil {
		return fmt.Errorf("failed to run claude: %w", err)
	}

	fmt.Println()
	if st.Status == state.StatusMaxIterationsReached {
		ux.ResumeHint(st.PromptID)
	}
	return nil
}

func gatherLoopSummary(st *state.LoopState) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Prompt: %s", st.PromptID))
	parts = append(parts, fmt.Sprintf("Model: %s", st.Model))
	parts = append(parts, fmt.Sprintf("Status: %s after %d/%d iterations", st.Status, st.CurrentIteration, st.MaxIterations))
	if st.WorktreePath != "" {
		parts = append(parts, fmt.Sprintf("Worktree: %s (branch %s)", st.WorktreePath, st.BranchName))
	}
	for _, rec := range st.History {
		line := fmt.Sprintf("Iteration %d: exit %d", rec.Iteration, rec.ExitCode)
		if rec.RetryReason != "" {
			line += fmt.Sprintf(", retry requested: %s", rec.RetryReason)
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n")
}

func gatherLastLog(st *state.LoopState) string {
	if len(st.History) == 0 {
		return "(no iterations recorded)"
	}
	path := st.History[len(st.History)-1].LogFile
	data, err := os.ReadFile(path)
	if err != nil {
		return "(no log file found)"
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
		return fmt.Sprintf("... (truncated to last %d lines)\n%s", maxLogLines, strings.Join(lines, "\n"))
	}
	return string(data)
}

func gatherNextSteps(st *state.LoopState) string {
	if len(st.SuggestedNextSteps) == 0 {
		return ""
	}
	var parts []string
	for _, step := range st.SuggestedNextSteps {
		parts = append(parts, fmt.Sprintf("- %s (iteration %d)", step.Text, step.SourceIteration))
	}
	return fmt.Sprintf("\n## Suggested Next Steps From The Agent\n%s\n", strings.Join(parts, "\n"))
}

func filteredEnv() []string {
	var env []string
	for _, e := range os.Environ() {
		key := strings.SplitN(e, "=", 2)[0]
		if strings.HasPrefix(key, "CLAUDECODE") {
			continue
		}
		env = append(env, e)
	}
	return env
}

func runClaude(ctx context.Context, prompt string) error {
	cmd := exec.CommandContext(ctx, "claude", "-p", prompt, "--model", "sonnet")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = filteredEnv()
	return cmd.Run()
}
