// Package state persists resumable verification-loop records, one JSON
// document per prompt identifier.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning              = "running"
	StatusCompleted            = "completed"
	StatusMaxIterationsReached = "max_iterations_reached"
	StatusFailed               = "failed"
)

// IterationRecord is one completed iteration. Immutable once appended.
type IterationRecord struct {
	Iteration   int       `json:"iteration"`
	ExitCode    int       `json:"exit_code"`
	MarkerFound bool      `json:"marker_found"`
	RetryReason string    `json:"retry_reason,omitempty"`
	LogFile     string    `json:"log_file"`
	EndedAt     time.Time `json:"ended_at"`
}

// NextStep is a best-effort suggestion extracted from a log.
type NextStep struct {
	Text            string `json:"text"`
	SourceIteration int    `json:"source_iteration"`
}

// LoopState is the persisted record of one verification loop.
type LoopState struct {
	LoopID   string `json:"loop_id"`
	PromptID string `json:"prompt_id"`
	Model    string `json:"model"`

	// ExecutionTimestamp is generated once at loop start and shared by all
	// iterations' log paths so that advertised paths stay consistent across
	// resume.
	ExecutionTimestamp string `json:"execution_timestamp"`

	CurrentIteration int    `json:"current_iteration"`
	MaxIterations    int    `json:"max_iterations"`
	Status           string `json:"status"`
	CompletionMarker string `json:"completion_marker"`

	WorkDir      string `json:"execution_cwd"`
	WorktreePath string `json:"worktree_path,omitempty"`
	BranchName   string `json:"branch_name,omitempty"`

	History            []IterationRecord `json:"history"`
	SuggestedNextSteps []NextStep        `json:"suggested_next_steps"`

	StartedAt     time.Time `json:"started_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// New creates a fresh LoopState in the running status.
func New(promptID, model, workDir, marker string, maxIterations int, now time.Time) *LoopState {
	return &LoopState{
		LoopID:             uuid.NewString(),
		PromptID:           promptID,
		Model:              model,
		ExecutionTimestamp: now.Format("20060102-150405.000"),
		CurrentIteration:   0,
		MaxIterations:      maxIterations,
		Status:             StatusRunning,
		CompletionMarker:   marker,
		WorkDir:            workDir,
		StartedAt:          now,
		LastUpdatedAt:      now,
	}
}

// Terminal reports whether the loop has reached a terminal status.
func (s *LoopState) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusMaxIterationsReached, StatusFailed:
		return true
	}
	return false
}

// AppendIteration records a finished iteration. History is append-only and
// stays in lockstep with CurrentIteration.
func (s *LoopState) AppendIteration(rec IterationRecord) {
	s.CurrentIteration = rec.Iteration
	s.History = append(s.History, rec)
}

// CorruptStateError reports a state file that exists but cannot be parsed.
// It carries the path so the operator can inspect or discard the file; it is
// never silently overwritten.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("loop state file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// Store reads and writes LoopState documents under one directory.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at <stateDir>/loop-state.
func NewStore(stateDir string) *Store {
	return &Store{Dir: filepath.Join(stateDir, "loop-state")}
}

func (st *Store) path(promptID string) string {
	return filepath.Join(st.Dir, promptID+".json")
}

// Load reads the state for a prompt id. Returns (nil, nil) when no file
// exists and *CorruptStateError when the file cannot be parsed.
func (st *Store) Load(promptID string) (*LoopState, error) {
	path := st.path(promptID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s LoopState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	return &s, nil
}

// Save writes the state atomically. Durability of iteration N before
// iteration N+1 starts is the loop's resumability invariant.
func (st *Store) Save(s *LoopState) error {
	if err := os.MkdirAll(st.Dir, 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	s.LastUpdatedAt = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(st.path(s.PromptID), data, 0644)
}

// ListAll returns the prompt ids of all known loop states, sorted.
func (st *Store) ListAll() ([]string, error) {
	entries, err := os.ReadDir(st.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
