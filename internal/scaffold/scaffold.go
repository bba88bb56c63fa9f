// Package scaffold implements pex init: AI-assisted project setup with a
// template fallback.
package scaffold

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jorge-barreto/pex/internal/contextgather"
	"github.com/jorge-barreto/pex/internal/fileblocks"
	"github.com/jorge-barreto/pex/internal/ux"
)

const configPath = ".pex/config.yaml"

// Init scaffolds .pex/ and an example prompt. With ai set, claude generates
// a config and prompt tailored to the project; any failure falls back to the
// static templates so init always succeeds.
func Init(ctx context.Context, targetDir string, ai bool) error {
	pexDir := filepath.Join(targetDir, ".pex")
	if _, err := os.Stat(pexDir); err == nil {
		return fmt.Errorf(".pex directory already exists in %s", targetDir)
	}

	if ai {
		if err := initWithAI(ctx, targetDir); err == nil {
			return nil
		} else {
			fmt.Printf("  %sAI generation failed (%v); using the default template.%s\n", ux.Dim, err, ux.Reset)
		}
	}
	return writeFallback(targetDir)
}

func initWithAI(ctx context.Context, targetDir string) error {
	pc := contextgather.Gather(targetDir)
	prompt := buildInitPrompt(pc.Render())

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			prompt += fmt.Sprintf(retryFeedback, lastErr)
		}
		out, err := runClaude(ctx, prompt)
		if err != nil {
			return err
		}
		blocks := fileblocks.Parse(out)
		if lastErr = validateBlocks(blocks); lastErr != nil {
			continue
		}
		return writeBlocks(targetDir, blocks)
	}
	return lastErr
}

func validateBlocks(blocks []fileblocks.FileBlock) error {
	if _, ok := fileblocks.Find(blocks, configPath); !ok {
		return fmt.Errorf("output did not include %s", configPath)
	}
	for _, b := range blocks {
		if err := fileblocks.CheckPath(b.Path); err != nil {
			return err
		}
		if !strings.HasPrefix(b.Path, ".pex/") && !strings.HasPrefix(b.Path, "prompts/") {
			return fmt.Errorf("unexpected file path %q (must be under .pex/ or prompts/)", b.Path)
		}
	}
	return nil
}

func writeBlocks(targetDir string, blocks []fileblocks.FileBlock) error {
	var written []string
	for _, b := range blocks {
		full := filepath.Join(targetDir, b.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", b.Path, err)
		}
		content := b.Content
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", b.Path, err)
		}
		written = append(written, b.Path)
	}
	printSuccess("AI-generated setup", written)
	return nil
}

func printSuccess(source string, written []string) {
	fmt.Printf("\n%s%s✓ Initialized pex (%s)%s\n\n", ux.Bold, ux.Green, source, ux.Reset)
	fmt.Printf("  Created:\n")
	for _, path := range written {
		fmt.Printf("    %s%s%s\n", ux.Cyan, path, ux.Reset)
	}
	fmt.Printf("\n  Next: %spex run 001 --model codex%s to preview, add %s--run%s to execute\n\n",
		ux.Cyan, ux.Reset, ux.Cyan, ux.Reset)
}

func runClaude(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, "claude", "-p", prompt, "--model", "sonnet")
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("running claude: %w", err)
	}
	return string(out), nil
}
