package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

const fallbackConfig = `# pex configuration (project scope; overrides ~/.config/pex/config.yaml)
#
# preferred-agent: opencode
# base-branch: main
# local-providers:
#   lmstudio: http://localhost:1234/v1
`

const fallbackPrompt = `# Example task

Describe the change you want an agent to make. Be concrete:
state which files or areas are involved, what the finished
behavior looks like, and how to verify it (tests, commands).

Run this prompt with:

    pex run 001 --model codex --run

Add --loop to retry until the agent verifies its own work.
`

// writeFallback creates the static starter files when AI generation is
// unavailable or failed.
func writeFallback(targetDir string) error {
	files := map[string]string{
		configPath:               fallbackConfig,
		"prompts/001-example.md": fallbackPrompt,
	}

	var written []string
	for relPath, content := range files {
		full := filepath.Join(targetDir, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", relPath, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", relPath, err)
		}
		written = append(written, relPath)
	}

	printSuccess("default template", written)
	return nil
}
