// Package loop drives the verification loop: run the agent, scan its log
// for a completion or retry signal, persist, repeat until a terminal state.
package loop

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jorge-barreto/pex/internal/executor"
	"github.com/jorge-barreto/pex/internal/logging"
	"github.com/jorge-barreto/pex/internal/registry"
	"github.com/jorge-barreto/pex/internal/state"
)

// Controller advances a single loop. It owns no I/O besides the engine and
// the store; presentation stays with the caller.
type Controller struct {
	Store   *state.Store
	Engine  executor.Engine
	Model   *registry.ModelConfig
	Content string
	Timeout time.Duration

	log zerolog.Logger
	now func() time.Time
}

func NewController(store *state.Store, engine executor.Engine, model *registry.ModelConfig, content string, timeout time.Duration) *Controller {
	return &Controller{
		Store:   store,
		Engine:  engine,
		Model:   model,
		Content: content,
		Timeout: timeout,
		log:     logging.Component("loop"),
		now:     time.Now,
	}
}

// Run advances the loop until it reaches a terminal status or the context
// is cancelled. The passed state is mutated and persisted in place.
func (c *Controller) Run(ctx context.Context, st *state.LoopState) error {
	for !st.Terminal() {
		if err := c.Advance(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// Advance runs exactly one iteration. Calling it on a terminal state is a
// no-op: no subprocess is spawned and the state file is untouched. The
// updated state is persisted before Advance returns, so a crash between
// iterations never loses a recorded one.
func (c *Controller) Advance(ctx context.Context, st *state.LoopState) error {
	if st.Terminal() {
		return nil
	}

	iter := st.CurrentIteration + 1
	c.log.Info().Str("prompt", st.PromptID).Int("iteration", iter).Int("max", st.MaxIterations).Msg("iteration start")

	req := executor.Request{
		Prompt:    BuildPrompt(c.Content, st),
		Model:     c.Model,
		WorkDir:   st.WorkDir,
		PromptID:  st.PromptID,
		Iteration: iter,
		Timestamp: st.ExecutionTimestamp,
	}
	res, err := c.Engine.Run(ctx, req, c.Timeout)
	if err != nil {
		// Cancelled or unable to even prepare; the unfinished iteration is
		// deliberately not recorded.
		return err
	}

	marker := c.scanLog(res.LogPath, st.CompletionMarker)
	rec := state.IterationRecord{
		Iteration:   iter,
		ExitCode:    res.ExitCode,
		MarkerFound: marker.Completed,
		RetryReason: marker.RetryReason,
		LogFile:     res.LogPath,
		EndedAt:     c.now(),
	}

	prevStartFailed := lastStartFailed(st)
	st.AppendIteration(rec)
	c.mergeNextSteps(st, res.LogPath, iter)

	switch {
	case marker.Completed:
		st.Status = state.StatusCompleted
	case res.ExitCode == executor.ExitStartFailure && prevStartFailed:
		// The CLI could not be spawned twice in a row; more iterations
		// would only repeat the same launch failure.
		st.Status = state.StatusFailed
	case iter >= st.MaxIterations:
		st.Status = state.StatusMaxIterationsReached
	}

	if err := c.Store.Save(st); err != nil {
		return fmt.Errorf("persisting loop state: %w", err)
	}

	ev := c.log.Info().Int("iteration", iter).Int("exit_code", res.ExitCode).Str("status", st.Status)
	if marker.Retry {
		ev = ev.Str("retry_reason", marker.RetryReason)
	}
	ev.Msg("iteration done")
	return nil
}

// scanLog reads an iteration log and scans it for verification markers. An
// unreadable log is treated as having no marker; the loop carries on.
func (c *Controller) scanLog(logPath, completionMarker string) MarkerResult {
	data, err := os.ReadFile(logPath)
	if err != nil {
		c.log.Debug().Err(err).Str("log", logPath).Msg("log unreadable, treating as no marker")
		return MarkerResult{}
	}
	return ScanForMarker(string(data), completionMarker)
}

func (c *Controller) mergeNextSteps(st *state.LoopState, logPath string, iter int) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return
	}
	seen := make(map[string]bool, len(st.SuggestedNextSteps))
	for _, step := range st.SuggestedNextSteps {
		seen[dedupeKey(step.Text)] = true
	}
	for _, text := range ExtractNextSteps(string(data)) {
		key := dedupeKey(text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		st.SuggestedNextSteps = append(st.SuggestedNextSteps, state.NextStep{Text: text, SourceIteration: iter})
	}
}

func lastStartFailed(st *state.LoopState) bool {
	if len(st.History) == 0 {
		return false
	}
	return st.History[len(st.History)-1].ExitCode == executor.ExitStartFailure
}

// ResumeError explains why a loop cannot be resumed as asked.
type ResumeError struct {
	PromptID string
	Status   string
	Reason   string
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("cannot resume loop for %s (status %s): %s", e.PromptID, e.Status, e.Reason)
}

// Resume reopens a finished loop for more iterations.
//
// A loop that exhausted its budget resumes freely, with an optionally raised
// cap. A completed loop is left alone: resuming it would rerun work that
// already verified. A failed loop resumes only with force, since the launch
// failure that stopped it is usually still present.
func Resume(st *state.LoopState, maxIterations int, force bool) error {
	switch st.Status {
	case state.StatusRunning:
		return nil
	case state.StatusCompleted:
		return &ResumeError{PromptID: st.PromptID, Status: st.Status, Reason: "already completed"}
	case state.StatusFailed:
		if !force {
			return &ResumeError{PromptID: st.PromptID, Status: st.Status, Reason: "loop failed to launch its CLI; rerun with --force after fixing the install"}
		}
	case state.StatusMaxIterationsReached:
		// Fall through to reopen.
	default:
		return &ResumeError{PromptID: st.PromptID, Status: st.Status, Reason: "unknown status"}
	}

	st.Status = state.StatusRunning
	if maxIterations > st.MaxIterations {
		st.MaxIterations = maxIterations
	} else if st.CurrentIteration >= st.MaxIterations {
		// No headroom left; grant a default batch of three more.
		st.MaxIterations = st.CurrentIteration + 3
	}
	return nil
}
