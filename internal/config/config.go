package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds pex settings merged from user and project scope.
// Project-level keys override user-level keys. It is loaded once in main
// and passed explicitly to anything that needs it.
type Config struct {
	PreferredAgent string            `yaml:"preferred-agent"`
	LogDir         string            `yaml:"log-dir"`
	StateDir       string            `yaml:"state-dir"`
	WorktreeDir    string            `yaml:"worktree-dir"`
	BaseBranch     string            `yaml:"base-branch"`
	LocalProviders map[string]string `yaml:"local-providers"`
}

// UserPath returns the user-scope config file path.
func UserPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pex", "config.yaml")
}

// ProjectPath returns the project-scope config file path for a repo root.
func ProjectPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".pex", "config.yaml")
}

// Load reads and merges user and project config files. Missing files are
// fine; a present but unparsable file is an error.
func Load(userPath, projectPath string) (*Config, error) {
	cfg := &Config{LocalProviders: make(map[string]string)}

	for _, path := range []string{userPath, projectPath} {
		if path == "" {
			continue
		}
		layer, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if layer != nil {
			cfg.merge(layer)
		}
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// merge overlays non-empty fields from layer onto c.
func (c *Config) merge(layer *Config) {
	if layer.PreferredAgent != "" {
		c.PreferredAgent = layer.PreferredAgent
	}
	if layer.LogDir != "" {
		c.LogDir = layer.LogDir
	}
	if layer.StateDir != "" {
		c.StateDir = layer.StateDir
	}
	if layer.WorktreeDir != "" {
		c.WorktreeDir = layer.WorktreeDir
	}
	if layer.BaseBranch != "" {
		c.BaseBranch = layer.BaseBranch
	}
	for k, v := range layer.LocalProviders {
		c.LocalProviders[k] = v
	}
}

func applyDefaults(cfg *Config) {
	home, _ := os.UserHomeDir()
	if cfg.LogDir == "" && home != "" {
		cfg.LogDir = filepath.Join(home, ".local", "share", "pex", "cli-logs")
	}
	if cfg.StateDir == "" && home != "" {
		cfg.StateDir = filepath.Join(home, ".local", "share", "pex")
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
}

// ResolveDir expands ~ and makes relative paths absolute against root.
func ResolveDir(path, root string) string {
	if path == "" {
		return ""
	}
	if path == "~" || len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	path = os.ExpandEnv(path)
	if !filepath.IsAbs(path) {
		return filepath.Join(root, path)
	}
	return path
}
