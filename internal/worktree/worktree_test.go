package worktree

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func setupRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := filepath.Join(t.TempDir(), "myrepo")
	if err := os.MkdirAll(repo, 0755); err != nil {
		t.Fatal(err)
	}
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("-c", "init.defaultBranch=main", "init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("hi\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "initial")
	return repo
}

func writePrompt(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("# Task\ndo things\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateOrReuse_Creates(t *testing.T) {
	repo := setupRepo(t)
	prompt := writePrompt(t, "042-add-cache.md")
	p := NewProvisioner(t.TempDir())

	wt, err := p.CreateOrReuse(context.Background(), repo, prompt, "main", PolicyError)
	if err != nil {
		t.Fatal(err)
	}
	if wt.Reused {
		t.Error("fresh worktree reported as reused")
	}
	if wt.Branch != "prompt/042-add-cache" {
		t.Errorf("branch = %q", wt.Branch)
	}
	if filepath.Base(wt.Path) != "myrepo-prompt-042-add-cache" {
		t.Errorf("path = %q", wt.Path)
	}
	if _, err := os.Stat(filepath.Join(wt.Path, "TASK.md")); err != nil {
		t.Error("TASK.md not copied into worktree")
	}
	out, err := exec.Command("git", "-C", wt.Path, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		t.Fatal(err)
	}
	if got := string(out); got != "prompt/042-add-cache\n" {
		t.Errorf("worktree HEAD = %q", got)
	}
}

func TestCreateOrReuse_ConflictError(t *testing.T) {
	repo := setupRepo(t)
	prompt := writePrompt(t, "042-add-cache.md")
	p := NewProvisioner(t.TempDir())
	ctx := context.Background()

	if _, err := p.CreateOrReuse(ctx, repo, prompt, "main", PolicyError); err != nil {
		t.Fatal(err)
	}
	_, err := p.CreateOrReuse(ctx, repo, prompt, "main", PolicyError)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	if ce.Path == "" || ce.Branch == "" {
		t.Error("conflict error missing location details")
	}
}

func TestCreateOrReuse_Reuse(t *testing.T) {
	repo := setupRepo(t)
	prompt := writePrompt(t, "042-add-cache.md")
	p := NewProvisioner(t.TempDir())
	ctx := context.Background()

	first, err := p.CreateOrReuse(ctx, repo, prompt, "main", PolicyError)
	if err != nil {
		t.Fatal(err)
	}
	// Agent wrote something; reuse must keep it.
	scratch := filepath.Join(first.Path, "progress.txt")
	if err := os.WriteFile(scratch, []byte("wip"), 0644); err != nil {
		t.Fatal(err)
	}

	second, err := p.CreateOrReuse(ctx, repo, prompt, "main", PolicyReuse)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Reused || second.Path != first.Path {
		t.Errorf("reuse returned %+v, want same path reused", second)
	}
	if _, err := os.Stat(scratch); err != nil {
		t.Error("reuse should preserve existing work")
	}
}

func TestCreateOrReuse_Remove(t *testing.T) {
	repo := setupRepo(t)
	prompt := writePrompt(t, "042-add-cache.md")
	p := NewProvisioner(t.TempDir())
	ctx := context.Background()

	first, err := p.CreateOrReuse(ctx, repo, prompt, "main", PolicyError)
	if err != nil {
		t.Fatal(err)
	}
	scratch := filepath.Join(first.Path, "progress.txt")
	if err := os.WriteFile(scratch, []byte("wip"), 0644); err != nil {
		t.Fatal(err)
	}

	second, err := p.CreateOrReuse(ctx, repo, prompt, "main", PolicyRemove)
	if err != nil {
		t.Fatal(err)
	}
	if second.Path != first.Path {
		t.Errorf("remove should recreate at the same path, got %q", second.Path)
	}
	if _, err := os.Stat(scratch); err == nil {
		t.Error("remove should discard earlier work")
	}
}

func TestCreateOrReuse_Increment(t *testing.T) {
	repo := setupRepo(t)
	prompt := writePrompt(t, "042-add-cache.md")
	p := NewProvisioner(t.TempDir())
	ctx := context.Background()

	if _, err := p.CreateOrReuse(ctx, repo, prompt, "main", PolicyError); err != nil {
		t.Fatal(err)
	}
	second, err := p.CreateOrReuse(ctx, repo, prompt, "main", PolicyIncrement)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(second.Path) != "myrepo-prompt-042-add-cache-1" {
		t.Errorf("path = %q", second.Path)
	}
	if second.Branch != "prompt/042-add-cache-1" {
		t.Errorf("branch = %q", second.Branch)
	}

	third, err := p.CreateOrReuse(ctx, repo, prompt, "main", PolicyIncrement)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(third.Path) != "myrepo-prompt-042-add-cache-2" {
		t.Errorf("path = %q", third.Path)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyError {
		t.Errorf("empty should default to error policy, got %v %v", p, err)
	}
	if _, err := ParsePolicy("overwrite"); err == nil {
		t.Error("unknown policy accepted")
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"042-add-cache.md":      "042-add-cache",
		"Fix The_Bug!.md":       "fix-the-bug",
		"weird   spaces.md":     "weird-spaces",
		"/some/dir/007-auth.md": "007-auth",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
