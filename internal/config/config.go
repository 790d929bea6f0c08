// Package config loads and mutates the .ralphy project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/twiced-technology-gmbh/ralphy/internal/filelock"
)

const (
	// Dir is the project configuration directory, relative to the
	// repository root.
	Dir = ".ralphy"

	// FileName is the config file inside Dir.
	FileName = "config.yaml"

	// ProgressFileName is the append-only run log inside Dir.
	ProgressFileName = "progress.txt"

	fileMode = 0o600
	dirMode  = 0o750
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("no ralphy config found (run 'ralphy --init' to create one)")
	ErrExists   = errors.New("ralphy config already exists")
)

// Config is the .ralphy/config.yaml schema, consumed by the prompt
// composer.
type Config struct {
	Project    ProjectConfig  `yaml:"project"`
	Commands   CommandsConfig `yaml:"commands"`
	Rules      []string       `yaml:"rules,omitempty"`
	Boundaries Boundaries     `yaml:"boundaries,omitempty"`

	// dir is the absolute path to the .ralphy directory (not serialized).
	dir string `yaml:"-"`
}

// ProjectConfig describes the project the agent works on.
type ProjectConfig struct {
	Name        string `yaml:"name"`
	Language    string `yaml:"language,omitempty"`
	Framework   string `yaml:"framework,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// CommandsConfig holds the project's own validation commands.
type CommandsConfig struct {
	Test  string `yaml:"test,omitempty"`
	Lint  string `yaml:"lint,omitempty"`
	Build string `yaml:"build,omitempty"`
}

// Boundaries lists paths the agent must never touch.
type Boundaries struct {
	NeverTouch []string `yaml:"never_touch,omitempty"`
}

// Path returns the absolute path to the config file.
func (c *Config) Path() string {
	return filepath.Join(c.dir, FileName)
}

// ProgressPath returns the progress log path for the project rooted at
// cwd.
func ProgressPath(cwd string) string {
	return filepath.Join(cwd, Dir, ProgressFileName)
}

// Load reads the config for the project rooted at cwd.
func Load(cwd string) (*Config, error) {
	dir := filepath.Join(cwd, Dir)
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.dir = dir
	return &cfg, nil
}

// Save writes the config to its file, creating the .ralphy directory if
// needed.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.dir, dirMode); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(c.Path(), data, fileMode)
}

// Init detects the project in cwd and writes a fresh config. Returns
// ErrExists if a config is already present.
func Init(cwd string) (*Config, error) {
	dir := filepath.Join(cwd, Dir)
	if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
		return nil, ErrExists
	}

	cfg := Detect(cwd)
	cfg.dir = dir
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AddRule appends a rule to the config under the advisory file lock, so
// concurrent invocations never lose an entry.
func AddRule(cwd, rule string) (*Config, error) {
	dir := filepath.Join(cwd, Dir)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	unlock, err := filelock.Lock(filepath.Join(dir, FileName+".lock"))
	if err != nil {
		return nil, fmt.Errorf("locking config: %w", err)
	}
	defer func() { _ = unlock() }()

	cfg, err := Load(cwd)
	if err != nil {
		return nil, err
	}
	cfg.Rules = append(cfg.Rules, rule)
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}
