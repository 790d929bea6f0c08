package config

import (
	"os"
	"path/filepath"
)

// manifestHint maps a project manifest file to detected language and the
// conventional validation commands for its ecosystem.
type manifestHint struct {
	file     string
	language string
	commands CommandsConfig
}

var manifestHints = []manifestHint{
	{"go.mod", "Go", CommandsConfig{Test: "go test ./...", Lint: "go vet ./...", Build: "go build ./..."}},
	{"package.json", "JavaScript", CommandsConfig{Test: "npm test", Lint: "npm run lint", Build: "npm run build"}},
	{"Cargo.toml", "Rust", CommandsConfig{Test: "cargo test", Lint: "cargo clippy", Build: "cargo build"}},
	{"pyproject.toml", "Python", CommandsConfig{Test: "pytest", Lint: "ruff check ."}},
	{"pom.xml", "Java", CommandsConfig{Test: "mvn test", Build: "mvn package"}},
}

// Detect inspects cwd for well-known project manifests and builds a
// starting config. Unknown projects get only their directory name.
func Detect(cwd string) *Config {
	cfg := &Config{
		Project: ProjectConfig{Name: filepath.Base(cwd)},
	}
	for _, hint := range manifestHints {
		if _, err := os.Stat(filepath.Join(cwd, hint.file)); err == nil {
			cfg.Project.Language = hint.language
			cfg.Commands = hint.commands
			break
		}
	}
	return cfg
}
