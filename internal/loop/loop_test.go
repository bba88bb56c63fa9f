package loop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jorge-barreto/pex/internal/executor"
	"github.com/jorge-barreto/pex/internal/registry"
	"github.com/jorge-barreto/pex/internal/state"
)

// scriptedEngine plays back canned iteration outputs: it writes the nth
// output to the log path the real engine would use and never spawns anything.
type scriptedEngine struct {
	dir     string
	outputs []string
	codes   []int
	calls   []executor.Request
}

func (e *scriptedEngine) Run(ctx context.Context, req executor.Request, timeout time.Duration) (*executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(e.calls)
	e.calls = append(e.calls, req)
	if n >= len(e.outputs) {
		return nil, errors.New("scriptedEngine: unexpected extra call")
	}
	logPath := filepath.Join(e.dir, executor.LogName(req.Model.ID, req.PromptID, req.Iteration, req.Timestamp))
	if err := os.WriteFile(logPath, []byte(e.outputs[n]), 0644); err != nil {
		return nil, err
	}
	code := 0
	if n < len(e.codes) {
		code = e.codes[n]
	}
	now := time.Now()
	res := &executor.Result{ExitCode: code, LogPath: logPath, StartedAt: now, FinishedAt: now}
	if code == executor.ExitStartFailure {
		res.StartError = "exec: not found"
	}
	return res, nil
}

func testModel() *registry.ModelConfig {
	return &registry.ModelConfig{
		ID:              "codex",
		CLI:             "codex",
		CommandTemplate: []string{"codex", "exec"},
		InputMode:       registry.ViaStdin,
	}
}

// Output after the protocol close, as a real agent log would show it.
func agentSays(text string) string {
	return "</verification_protocol>\n" + text + "\n"
}

func newTestLoop(t *testing.T, outputs []string, codes []int, max int) (*Controller, *state.LoopState, *scriptedEngine) {
	t.Helper()
	dir := t.TempDir()
	store := state.NewStore(dir)
	engine := &scriptedEngine{dir: dir, outputs: outputs, codes: codes}
	c := NewController(store, engine, testModel(), "do the task", time.Minute)
	st := state.New("042", "codex", dir, DefaultCompletionMarker, max, time.Now())
	return c, st, engine
}

func TestRun_HappyPath(t *testing.T) {
	c, st, engine := newTestLoop(t, []string{
		agentSays("<verification>NEEDS_RETRY: two tests failing</verification>"),
		agentSays("<verification>VERIFICATION_COMPLETE</verification>"),
	}, nil, 3)

	if err := c.Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if st.Status != state.StatusCompleted {
		t.Fatalf("status = %s, want completed", st.Status)
	}
	if len(st.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(st.History))
	}
	if st.History[0].RetryReason != "two tests failing" {
		t.Errorf("retry reason = %q", st.History[0].RetryReason)
	}
	if !st.History[1].MarkerFound {
		t.Error("final iteration should record the marker")
	}
	// The retry prompt must carry the earlier reason forward.
	if !strings.Contains(engine.calls[1].Prompt, "two tests failing") {
		t.Error("second prompt missing previous iteration feedback")
	}
}

func TestRun_Exhaustion(t *testing.T) {
	retry := agentSays("<verification>NEEDS_RETRY: tests failing</verification>")
	c, st, engine := newTestLoop(t, []string{retry, retry, retry}, nil, 3)

	if err := c.Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if st.Status != state.StatusMaxIterationsReached {
		t.Fatalf("status = %s, want max_iterations_reached", st.Status)
	}
	if len(engine.calls) != 3 {
		t.Fatalf("engine called %d times, want 3", len(engine.calls))
	}
	for i, rec := range st.History {
		if rec.Iteration != i+1 {
			t.Errorf("history[%d].Iteration = %d, want %d", i, rec.Iteration, i+1)
		}
		if rec.RetryReason != "tests failing" {
			t.Errorf("history[%d] missing retry reason", i)
		}
	}
}

func TestRun_StartFailureThenRecovery(t *testing.T) {
	c, st, _ := newTestLoop(t,
		[]string{"", agentSays("<verification>VERIFICATION_COMPLETE</verification>")},
		[]int{executor.ExitStartFailure, 0}, 3)

	if err := c.Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if st.Status != state.StatusCompleted {
		t.Fatalf("status = %s, want completed", st.Status)
	}
	if st.History[0].ExitCode != executor.ExitStartFailure {
		t.Error("first iteration should record the launch failure")
	}
}

func TestRun_TwoConsecutiveStartFailures(t *testing.T) {
	c, st, engine := newTestLoop(t, []string{"", ""},
		[]int{executor.ExitStartFailure, executor.ExitStartFailure}, 5)

	if err := c.Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if st.Status != state.StatusFailed {
		t.Fatalf("status = %s, want failed", st.Status)
	}
	if len(engine.calls) != 2 {
		t.Fatalf("engine called %d times, want 2", len(engine.calls))
	}
}

func TestAdvance_TerminalIsIdempotent(t *testing.T) {
	c, st, engine := newTestLoop(t, []string{
		agentSays("<verification>VERIFICATION_COMPLETE</verification>"),
	}, nil, 3)
	if err := c.Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	calls := len(engine.calls)
	history := len(st.History)

	for i := 0; i < 3; i++ {
		if err := c.Advance(context.Background(), st); err != nil {
			t.Fatal(err)
		}
	}
	if len(engine.calls) != calls || len(st.History) != history {
		t.Error("advancing a terminal loop must not run or record anything")
	}
}

func TestAdvance_PersistsBeforeReturning(t *testing.T) {
	retry := agentSays("<verification>NEEDS_RETRY: wip</verification>")
	c, st, _ := newTestLoop(t, []string{retry}, nil, 3)

	if err := c.Advance(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	loaded, err := c.Store.Load("042")
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || len(loaded.History) != 1 {
		t.Fatal("iteration not persisted before Advance returned")
	}
	if loaded.Status != state.StatusRunning {
		t.Errorf("persisted status = %s, want running", loaded.Status)
	}
}

func TestAdvance_TimestampSharedAcrossIterations(t *testing.T) {
	retry := agentSays("<verification>NEEDS_RETRY: wip</verification>")
	c, st, engine := newTestLoop(t, []string{retry, retry, retry}, nil, 3)

	if err := c.Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	for i, req := range engine.calls {
		if req.Timestamp != st.ExecutionTimestamp {
			t.Errorf("call %d used timestamp %q, want %q", i, req.Timestamp, st.ExecutionTimestamp)
		}
	}
	// Log names differ only by the iteration counter.
	for i, rec := range st.History {
		if !strings.Contains(rec.LogFile, st.ExecutionTimestamp) {
			t.Errorf("history[%d] log %q missing shared timestamp", i, rec.LogFile)
		}
	}
}

func TestAdvance_CancelledIterationNotRecorded(t *testing.T) {
	c, st, _ := newTestLoop(t, []string{""}, nil, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Advance(ctx, st)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(st.History) != 0 {
		t.Error("cancelled iteration must not be recorded")
	}
}

func TestAdvance_CollectsNextSteps(t *testing.T) {
	out := agentSays("<verification>NEEDS_RETRY: wip</verification>\n## Next Steps\n- fix TestFoo\n- Fix TestFoo!\n- rerun linter")
	c, st, _ := newTestLoop(t, []string{out}, nil, 3)

	if err := c.Advance(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if len(st.SuggestedNextSteps) != 2 {
		t.Fatalf("got %d next steps, want 2 after dedupe: %+v", len(st.SuggestedNextSteps), st.SuggestedNextSteps)
	}
	if st.SuggestedNextSteps[0].SourceIteration != 1 {
		t.Error("source iteration not recorded")
	}
}

func TestResume(t *testing.T) {
	base := func(status string) *state.LoopState {
		st := state.New("042", "codex", "/work", DefaultCompletionMarker, 3, time.Now())
		st.CurrentIteration = 3
		st.Status = status
		return st
	}

	t.Run("exhausted loop reopens with raised cap", func(t *testing.T) {
		st := base(state.StatusMaxIterationsReached)
		if err := Resume(st, 6, false); err != nil {
			t.Fatal(err)
		}
		if st.Status != state.StatusRunning || st.MaxIterations != 6 {
			t.Errorf("status=%s max=%d", st.Status, st.MaxIterations)
		}
	})

	t.Run("exhausted loop without explicit cap gets headroom", func(t *testing.T) {
		st := base(state.StatusMaxIterationsReached)
		if err := Resume(st, 0, false); err != nil {
			t.Fatal(err)
		}
		if st.MaxIterations <= st.CurrentIteration {
			t.Errorf("no headroom granted: max=%d current=%d", st.MaxIterations, st.CurrentIteration)
		}
	})

	t.Run("completed loop refuses", func(t *testing.T) {
		st := base(state.StatusCompleted)
		err := Resume(st, 6, false)
		var re *ResumeError
		if !errors.As(err, &re) {
			t.Fatalf("want ResumeError, got %v", err)
		}
		if st.Status != state.StatusCompleted {
			t.Error("refused resume must not mutate state")
		}
	})

	t.Run("failed loop needs force", func(t *testing.T) {
		st := base(state.StatusFailed)
		if err := Resume(st, 0, false); err == nil {
			t.Fatal("expected error without force")
		}
		st = base(state.StatusFailed)
		if err := Resume(st, 0, true); err != nil {
			t.Fatal(err)
		}
		if st.Status != state.StatusRunning {
			t.Error("forced resume should reopen the loop")
		}
	})
}
