// Package worktree provisions isolated git working copies for prompt runs.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jorge-barreto/pex/internal/logging"
)

// Policy decides what happens when the target worktree already exists.
type Policy string

const (
	PolicyError     Policy = "error"
	PolicyRemove    Policy = "remove"
	PolicyReuse     Policy = "reuse"
	PolicyIncrement Policy = "increment"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyError, PolicyRemove, PolicyReuse, PolicyIncrement:
		return Policy(s), nil
	case "":
		return PolicyError, nil
	}
	return "", fmt.Errorf("unknown on-conflict policy %q (valid: error, remove, reuse, increment)", s)
}

// Worktree is a provisioned working copy.
type Worktree struct {
	Path   string
	Branch string
	Reused bool
}

// ConflictError reports an existing worktree that the caller asked us not to
// touch. It is propagated unresolved so the operator chooses a policy
// explicitly rather than having one guessed.
type ConflictError struct {
	Path   string
	Branch string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("worktree %s already exists (branch %s); rerun with --on-conflict remove, reuse, or increment", e.Path, e.Branch)
}

// Provisioner creates worktrees under a single parent directory.
type Provisioner struct {
	Dir string

	log zerolog.Logger
}

func NewProvisioner(dir string) *Provisioner {
	return &Provisioner{Dir: dir, log: logging.Component("worktree")}
}

// CreateOrReuse provisions a worktree for a prompt file. The path is
// deterministic per prompt, so running the same prompt twice hits the
// conflict policy. The prompt is copied into the worktree as TASK.md.
func (p *Provisioner) CreateOrReuse(ctx context.Context, repoRoot, promptPath, baseBranch string, policy Policy) (*Worktree, error) {
	slug := Slug(promptPath)
	branch := "prompt/" + slug
	path := filepath.Join(p.Dir, filepath.Base(repoRoot)+"-prompt-"+slug)

	if _, err := os.Stat(path); err == nil {
		switch policy {
		case PolicyReuse:
			p.log.Info().Str("path", path).Msg("reusing existing worktree")
			if err := copyPrompt(promptPath, path); err != nil {
				return nil, err
			}
			return &Worktree{Path: path, Branch: branch, Reused: true}, nil
		case PolicyRemove:
			if err := p.remove(ctx, repoRoot, path, branch); err != nil {
				return nil, err
			}
		case PolicyIncrement:
			basePath, baseBranchName := path, branch
			for n := 1; ; n++ {
				candidate := fmt.Sprintf("%s-%d", basePath, n)
				if _, err := os.Stat(candidate); err != nil {
					path = candidate
					branch = fmt.Sprintf("%s-%d", baseBranchName, n)
					break
				}
			}
		default:
			return nil, &ConflictError{Path: path, Branch: branch}
		}
	}

	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating worktree dir: %w", err)
	}
	if err := p.add(ctx, repoRoot, path, branch, baseBranch); err != nil {
		return nil, err
	}
	if err := copyPrompt(promptPath, path); err != nil {
		return nil, err
	}
	p.log.Info().Str("path", path).Str("branch", branch).Msg("worktree created")
	return &Worktree{Path: path, Branch: branch}, nil
}

func (p *Provisioner) add(ctx context.Context, repoRoot, path, branch, baseBranch string) error {
	if branchExists(ctx, repoRoot, branch) {
		// Branch survived an earlier removal; attach rather than recreate.
		_, err := git(ctx, repoRoot, "worktree", "add", path, branch)
		return err
	}
	_, err := git(ctx, repoRoot, "worktree", "add", "-b", branch, path, baseBranch)
	return err
}

func (p *Provisioner) remove(ctx context.Context, repoRoot, path, branch string) error {
	if _, err := git(ctx, repoRoot, "worktree", "remove", "--force", path); err != nil {
		// The directory may not be a registered worktree anymore.
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return rmErr
		}
		_, _ = git(ctx, repoRoot, "worktree", "prune")
	}
	if branchExists(ctx, repoRoot, branch) {
		if _, err := git(ctx, repoRoot, "branch", "-D", branch); err != nil {
			return err
		}
	}
	p.log.Info().Str("path", path).Msg("removed conflicting worktree")
	return nil
}

func branchExists(ctx context.Context, repoRoot, branch string) bool {
	_, err := git(ctx, repoRoot, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

func copyPrompt(promptPath, worktreePath string) error {
	data, err := os.ReadFile(promptPath)
	if err != nil {
		return fmt.Errorf("reading prompt for worktree: %w", err)
	}
	return os.WriteFile(filepath.Join(worktreePath, "TASK.md"), data, 0644)
}

// Slug derives the branch and directory suffix from a prompt filename.
func Slug(promptPath string) string {
	name := strings.TrimSuffix(filepath.Base(promptPath), filepath.Ext(promptPath))
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}
