package doctor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jorge-barreto/pex/internal/state"
)

func stalledState(t *testing.T, logContent string) *state.LoopState {
	t.Helper()
	st := state.New("042", "codex", t.TempDir(), "VERIFICATION_COMPLETE", 3, time.Now())
	st.Status = state.StatusMaxIterationsReached
	logPath := filepath.Join(t.TempDir(), "codex-042-iter3.log")
	if logContent != "" {
		if err := os.WriteFile(logPath, []byte(logContent), 0644); err != nil {
			t.Fatal(err)
		}
	}
	st.History = []state.IterationRecord{
		{Iteration: 1, ExitCode: 0, RetryReason: "tests failing"},
		{Iteration: 2, ExitCode: 1},
		{Iteration: 3, ExitCode: 0, LogFile: logPath},
	}
	st.CurrentIteration = 3
	return st
}

func TestGatherLastLog_Short(t *testing.T) {
	st := stalledState(t, "line 1\nline 2\nline 3")
	result := gatherLastLog(st)
	if result != "line 1\nline 2\nline 3" {
		t.Errorf("expected full content, got %q", result)
	}
}

func TestGatherLastLog_Long(t *testing.T) {
	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, "log line")
	}
	st := stalledState(t, strings.Join(lines, "\n"))
	result := gatherLastLog(st)
	if !strings.HasPrefix(result, "... (truncated to last 200 lines)") {
		t.Errorf("expected truncation prefix, got %q", result[:60])
	}
	if len(strings.Split(result, "\n")) < 200 {
		t.Error("expected at least 200 lines")
	}
}

func TestGatherLastLog_Missing(t *testing.T) {
	st := stalledState(t, "")
	result := gatherLastLog(st)
	if result != "(no log file found)" {
		t.Errorf("expected missing placeholder, got %q", result)
	}
}

func TestGatherLastLog_NoIterations(t *testing.T) {
	st := state.New("042", "codex", t.TempDir(), "VERIFICATION_COMPLETE", 3, time.Now())
	result := gatherLastLog(st)
	if result != "(no iterations recorded)" {
		t.Errorf("got %q", result)
	}
}

func TestGatherLoopSummary(t *testing.T) {
	st := stalledState(t, "x")
	st.WorktreePath = "/wt/repo-prompt-042"
	st.BranchName = "prompt/add-cache"

	result := gatherLoopSummary(st)
	for _, want := range []string{
		"Prompt: 042",
		"Model: codex",
		"max_iterations_reached after 3/3",
		"Worktree: /wt/repo-prompt-042 (branch prompt/add-cache)",
		"Iteration 1: exit 0, retry requested: tests failing",
		"Iteration 2: exit 1",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("summary missing %q:\n%s", want, result)
		}
	}
}

func TestGatherNextSteps(t *testing.T) {
	st := stalledState(t, "x")
	if got := gatherNextSteps(st); got != "" {
		t.Errorf("expected empty without steps, got %q", got)
	}
	st.SuggestedNextSteps = []state.NextStep{{Text: "fix TestFoo", SourceIteration: 2}}
	got := gatherNextSteps(st)
	if !strings.Contains(got, "fix TestFoo (iteration 2)") {
		t.Errorf("got %q", got)
	}
}

func TestRun_NothingToDiagnose(t *testing.T) {
	st := state.New("042", "codex", t.TempDir(), "VERIFICATION_COMPLETE", 3, time.Now())
	st.Status = state.StatusCompleted
	if err := Run(context.Background(), st); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestFilteredEnv(t *testing.T) {
	t.Setenv("CLAUDECODE_TEST_MARKER", "1")
	t.Setenv("PEX_KEEP_ME", "1")
	for _, e := range filteredEnv() {
		if strings.HasPrefix(e, "CLAUDECODE") {
			t.Errorf("CLAUDECODE var leaked: %s", e)
		}
	}
	found := false
	for _, e := range filteredEnv() {
		if strings.HasPrefix(e, "PEX_KEEP_ME=") {
			found = true
		}
	}
	if !found {
		t.Error("unrelated env var dropped")
	}
}
