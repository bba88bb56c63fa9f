package loop

import (
	"fmt"
	"strings"

	"github.com/jorge-barreto/pex/internal/state"
)

// BuildPrompt wraps the raw prompt for one iteration. The task body goes
// first; the verification instructions go in their own block at the end so
// the marker scan can anchor past them. The two blocks are siblings, never
// nested, so a literal </verification_protocol> cannot appear inside <task>.
func BuildPrompt(content string, st *state.LoopState) string {
	var b strings.Builder

	b.WriteString("<task>\n")
	b.WriteString(strings.TrimRight(content, "\n"))
	b.WriteString("\n</task>\n")

	if env := environmentBlock(st); env != "" {
		b.WriteString("\n")
		b.WriteString(env)
	}

	if fb := feedbackBlock(st); fb != "" {
		b.WriteString("\n")
		b.WriteString(fb)
	}

	b.WriteString("\n<verification_protocol>\n")
	iter := st.CurrentIteration + 1
	fmt.Fprintf(&b, "This is iteration %d of at most %d.\n", iter, st.MaxIterations)
	b.WriteString("When you are finished, verify your work end to end.\n")
	fmt.Fprintf(&b, "If everything passes, output exactly: <verification>%s</verification>\n", st.CompletionMarker)
	b.WriteString("If something still needs work, output: <verification>NEEDS_RETRY: <one-line reason></verification>\n")
	b.WriteString("Output exactly one verification tag, on its own line, after the closing protocol tag.\n")
	b.WriteString("</verification_protocol>\n")

	return b.String()
}

func environmentBlock(st *state.LoopState) string {
	if st.WorktreePath == "" && st.BranchName == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("<environment>\n")
	if st.WorktreePath != "" {
		fmt.Fprintf(&b, "Working directory: %s\n", st.WorktreePath)
	}
	if st.BranchName != "" {
		fmt.Fprintf(&b, "Branch: %s\n", st.BranchName)
	}
	b.WriteString("Stay inside this directory; do not switch branches.\n")
	b.WriteString("</environment>\n")
	return b.String()
}

// feedbackBlock summarizes prior iterations so a retry does not start cold.
func feedbackBlock(st *state.LoopState) string {
	if len(st.History) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<previous_iteration_feedback>\n")
	for _, rec := range st.History {
		fmt.Fprintf(&b, "Iteration %d: exit code %d", rec.Iteration, rec.ExitCode)
		switch {
		case rec.MarkerFound:
			b.WriteString(", reported complete")
		case rec.RetryReason != "":
			fmt.Fprintf(&b, ", retry requested: %s", rec.RetryReason)
		default:
			b.WriteString(", no verification marker found")
		}
		b.WriteString("\n")
	}
	if len(st.SuggestedNextSteps) > 0 {
		b.WriteString("Suggested next steps from earlier iterations:\n")
		for _, step := range st.SuggestedNextSteps {
			fmt.Fprintf(&b, "- %s\n", step.Text)
		}
	}
	b.WriteString("Address the outstanding issues before verifying again.\n")
	b.WriteString("</previous_iteration_feedback>\n")
	return b.String()
}
