package loop

import (
	"strings"
	"testing"
	"time"

	"github.com/jorge-barreto/pex/internal/state"
)

func TestBuildPrompt_FirstIteration(t *testing.T) {
	st := state.New("042", "codex", "/work", DefaultCompletionMarker, 3, time.Now())
	got := BuildPrompt("Add a cache layer.", st)

	taskEnd := strings.Index(got, "</task>")
	protoStart := strings.Index(got, "<verification_protocol>")
	if taskEnd < 0 || protoStart < 0 {
		t.Fatalf("missing task or protocol block:\n%s", got)
	}
	if taskEnd > protoStart {
		t.Error("task body must close before the protocol block opens")
	}
	if !strings.Contains(got, "Add a cache layer.") {
		t.Error("prompt body missing")
	}
	if !strings.Contains(got, "iteration 1 of at most 3") {
		t.Error("iteration counter missing")
	}
	if !strings.Contains(got, "<verification>"+DefaultCompletionMarker+"</verification>") {
		t.Error("completion instruction missing")
	}
	if strings.Contains(got, "<previous_iteration_feedback>") {
		t.Error("first iteration must not carry feedback")
	}
}

func TestBuildPrompt_CarriesFeedback(t *testing.T) {
	st := state.New("042", "codex", "/work", DefaultCompletionMarker, 3, time.Now())
	st.AppendIteration(state.IterationRecord{Iteration: 1, ExitCode: 0, RetryReason: "two tests failing"})
	st.SuggestedNextSteps = []state.NextStep{{Text: "fix TestFoo", SourceIteration: 1}}

	got := BuildPrompt("Add a cache layer.", st)
	if !strings.Contains(got, "iteration 2 of at most 3") {
		t.Error("iteration counter should advance")
	}
	if !strings.Contains(got, "retry requested: two tests failing") {
		t.Error("retry reason missing from feedback")
	}
	if !strings.Contains(got, "- fix TestFoo") {
		t.Error("suggested next steps missing from feedback")
	}
}

func TestBuildPrompt_EnvironmentBlock(t *testing.T) {
	st := state.New("042", "codex", "/work", DefaultCompletionMarker, 3, time.Now())
	st.WorktreePath = "/wt/repo-prompt-042"
	st.BranchName = "prompt/add-cache"

	got := BuildPrompt("body", st)
	if !strings.Contains(got, "/wt/repo-prompt-042") || !strings.Contains(got, "prompt/add-cache") {
		t.Error("environment block missing worktree details")
	}
}

func TestBuildPrompt_BlocksNeverNest(t *testing.T) {
	st := state.New("042", "codex", "/work", DefaultCompletionMarker, 3, time.Now())
	got := BuildPrompt("body", st)
	if strings.Index(got, "</task>") > strings.Index(got, "<verification_protocol>") {
		t.Error("protocol block must not be nested inside the task block")
	}
	if strings.Count(got, "</verification_protocol>") != 1 {
		t.Error("exactly one protocol close expected")
	}
}
