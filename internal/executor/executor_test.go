package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jorge-barreto/pex/internal/registry"
)

func testModel(mode registry.InputMode, argv ...string) *registry.ModelConfig {
	return &registry.ModelConfig{
		ID:              "fake",
		CLI:             argv[0],
		CommandTemplate: argv,
		InputMode:       mode,
	}
}

func newEngine(t *testing.T) *CLIEngine {
	t.Helper()
	return New(t.TempDir())
}

func TestRun_StdinDelivery(t *testing.T) {
	e := newEngine(t)
	req := Request{
		Prompt:    "line one\nline two with 'quotes' and `backticks`",
		Model:     testModel(registry.ViaStdin, "cat"),
		WorkDir:   t.TempDir(),
		PromptID:  "042",
		Timestamp: NewTimestamp(time.Now()),
	}

	res, err := e.Run(context.Background(), req, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit = %d", res.ExitCode)
	}
	data, err := os.ReadFile(res.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != req.Prompt {
		t.Fatalf("log = %q", string(data))
	}
}

func TestRun_ArgumentDelivery(t *testing.T) {
	e := newEngine(t)
	req := Request{
		Prompt:    "multi\nline $PROMPT with \"quotes\"",
		Model:     testModel(registry.ViaArgument, "echo"),
		WorkDir:   t.TempDir(),
		PromptID:  "042",
		Timestamp: NewTimestamp(time.Now()),
	}

	res, err := e.Run(context.Background(), req, 0)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(res.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	// argv delivery must survive shell metacharacters untouched
	if !strings.Contains(string(data), `$PROMPT with "quotes"`) {
		t.Fatalf("log = %q", string(data))
	}
}

func TestRun_StartFailureSentinel(t *testing.T) {
	e := newEngine(t)
	req := Request{
		Prompt:    "x",
		Model:     testModel(registry.ViaArgument, "pex-no-such-binary-zz"),
		WorkDir:   t.TempDir(),
		PromptID:  "001",
		Timestamp: NewTimestamp(time.Now()),
	}

	res, err := e.Run(context.Background(), req, 0)
	if err != nil {
		t.Fatalf("start failure must be a sentinel, not an error: %v", err)
	}
	if res.ExitCode != ExitStartFailure {
		t.Fatalf("exit = %d, want %d", res.ExitCode, ExitStartFailure)
	}
	if res.StartError == "" {
		t.Fatal("expected StartError to be recorded")
	}
	if res.FailureCategory() != "CLI not found" {
		t.Fatalf("category = %q", res.FailureCategory())
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	e := newEngine(t)
	req := Request{
		Prompt:    "x",
		Model:     testModel(registry.ViaStdin, "sh", "-c", "exit 3"),
		WorkDir:   t.TempDir(),
		PromptID:  "001",
		Timestamp: NewTimestamp(time.Now()),
	}

	res, err := e.Run(context.Background(), req, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit = %d", res.ExitCode)
	}
	if !strings.Contains(res.FailureCategory(), "code 3") {
		t.Fatalf("category = %q", res.FailureCategory())
	}
}

func TestRun_TimeoutSentinel(t *testing.T) {
	e := newEngine(t)
	req := Request{
		Prompt:    "x",
		Model:     testModel(registry.ViaStdin, "sleep", "30"),
		WorkDir:   t.TempDir(),
		PromptID:  "001",
		Timestamp: NewTimestamp(time.Now()),
	}

	start := time.Now()
	res, err := e.Run(context.Background(), req, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != ExitTimeout {
		t.Fatalf("exit = %d, want %d", res.ExitCode, ExitTimeout)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("timeout did not terminate the subprocess promptly")
	}
}

func TestRun_MissingWorkDir(t *testing.T) {
	e := newEngine(t)
	req := Request{
		Prompt:    "x",
		Model:     testModel(registry.ViaStdin, "cat"),
		WorkDir:   filepath.Join(t.TempDir(), "nope"),
		PromptID:  "001",
		Timestamp: NewTimestamp(time.Now()),
	}
	if _, err := e.Run(context.Background(), req, 0); err == nil {
		t.Fatal("expected error for missing working directory")
	}
}

func TestRun_SavesPromptCopy(t *testing.T) {
	e := newEngine(t)
	req := Request{
		Prompt:    "the exact prompt",
		Model:     testModel(registry.ViaStdin, "true"),
		WorkDir:   t.TempDir(),
		PromptID:  "007",
		Timestamp: NewTimestamp(time.Now()),
	}
	res, err := e.Run(context.Background(), req, 0)
	if err != nil {
		t.Fatal(err)
	}
	promptPath := strings.TrimSuffix(res.LogPath, ".log") + ".prompt.md"
	data, err := os.ReadFile(promptPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "the exact prompt" {
		t.Fatalf("prompt copy = %q", string(data))
	}
}

func TestLogName(t *testing.T) {
	ts := "20260830-101502.337"
	if got := LogName("codex", "042", 0, ts); got != "codex-042-20260830-101502.337.log" {
		t.Fatalf("got %q", got)
	}
	if got := LogName("codex", "042", 2, ts); got != "codex-042-iter2-20260830-101502.337.log" {
		t.Fatalf("got %q", got)
	}
}

func TestNewTimestamp_SubSecond(t *testing.T) {
	a := NewTimestamp(time.Date(2026, 8, 30, 10, 15, 2, 337_000_000, time.UTC))
	if a != "20260830-101502.337" {
		t.Fatalf("got %q", a)
	}
	b := NewTimestamp(time.Date(2026, 8, 30, 10, 15, 2, 338_000_000, time.UTC))
	if a == b {
		t.Fatal("timestamps 1ms apart must differ")
	}
}
