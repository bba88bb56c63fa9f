package ux

import (
	"fmt"
	"strings"

	"github.com/jorge-barreto/pex/internal/state"
)

// RenderStatus prints the full status display for one loop.
func RenderStatus(st *state.LoopState) {
	fmt.Printf("%sPrompt:%s  %s\n", Bold, Reset, st.PromptID)
	fmt.Printf("%sModel:%s   %s\n", Bold, Reset, st.Model)
	fmt.Printf("%sState:%s   %s  %s(iteration %d/%d)%s\n",
		Bold, Reset, statusColored(st.Status), Dim, st.CurrentIteration, st.MaxIterations, Reset)
	if st.WorktreePath != "" {
		fmt.Printf("%sWorktree:%s %s %s(%s)%s\n", Bold, Reset, st.WorktreePath, Dim, st.BranchName, Reset)
	}

	if len(st.History) > 0 {
		fmt.Printf("\n%sIterations:%s\n", Bold, Reset)
		for _, rec := range st.History {
			outcome := fmt.Sprintf("%sexit %d%s", Dim, rec.ExitCode, Reset)
			switch {
			case rec.MarkerFound:
				outcome = Green + "verified" + Reset
			case rec.RetryReason != "":
				outcome = fmt.Sprintf("%sretry: %s%s", Yellow, rec.RetryReason, Reset)
			}
			fmt.Printf("  %s%d%s  %-30s %s\n", Dim, rec.Iteration, Reset, outcome, dimPath(rec.LogFile))
		}
	}

	if len(st.SuggestedNextSteps) > 0 {
		fmt.Printf("\n%sSuggested next steps:%s\n", Bold, Reset)
		for _, step := range st.SuggestedNextSteps {
			fmt.Printf("  %s-%s %s %s(iter %d)%s\n", Dim, Reset, step.Text, Dim, step.SourceIteration, Reset)
		}
	}

	if st.Status == state.StatusMaxIterationsReached {
		ResumeHint(st.PromptID)
	}
	fmt.Println()
}

// RenderStatusList prints a one-line summary per known loop.
func RenderStatusList(states []*state.LoopState) {
	if len(states) == 0 {
		fmt.Printf("%sNo loop state recorded.%s\n", Dim, Reset)
		return
	}
	for _, st := range states {
		fmt.Printf("  %-20s %-28s %s%d/%d iterations%s  %s\n",
			st.PromptID, statusColored(st.Status), Dim, st.CurrentIteration, st.MaxIterations, Reset, st.Model)
	}
}

func statusColored(status string) string {
	switch status {
	case state.StatusCompleted:
		return Green + status + Reset
	case state.StatusRunning:
		return Cyan + status + Reset
	case state.StatusFailed, state.StatusMaxIterationsReached:
		return Red + status + Reset
	}
	return status
}

func dimPath(p string) string {
	if p == "" {
		return ""
	}
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	return Dim + p + Reset
}
