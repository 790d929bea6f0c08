package prompt

import (
	"strings"
	"testing"

	"github.com/twiced-technology-gmbh/ralphy/internal/config"
)

func TestCompose_Minimal(t *testing.T) {
	got := Compose(Options{Task: "Add login"})
	if !strings.Contains(got, "## Task") || !strings.Contains(got, "Add login") {
		t.Errorf("prompt = %q", got)
	}
	if !strings.Contains(got, "Do not commit") {
		t.Error("no-commit instruction missing when autoCommit is off")
	}
}

func TestCompose_WithConfig(t *testing.T) {
	cfg := &config.Config{
		Project:  config.ProjectConfig{Name: "demo", Language: "Go"},
		Commands: config.CommandsConfig{Test: "go test ./...", Lint: "go vet ./..."},
		Rules:    []string{"keep functions small"},
		Boundaries: config.Boundaries{
			NeverTouch: []string{"vendor/"},
		},
	}
	got := Compose(Options{Task: "T", Config: cfg, AutoCommit: true})

	for _, want := range []string{
		"Name: demo",
		"Language: Go",
		"keep functions small",
		"vendor/",
		"go test ./...",
		"Commit your changes",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestCompose_SkipsValidationCommands(t *testing.T) {
	cfg := &config.Config{
		Commands: config.CommandsConfig{Test: "go test ./...", Lint: "go vet ./..."},
	}
	got := Compose(Options{Task: "T", Config: cfg, SkipTests: true, SkipLint: true})
	if strings.Contains(got, "go test") || strings.Contains(got, "go vet") {
		t.Errorf("skipped commands still present:\n%s", got)
	}
}

func TestCompose_IssueBody(t *testing.T) {
	got := Compose(Options{Task: "Fix crash", IssueBody: "Stack trace attached"})
	if !strings.Contains(got, "## Issue details") || !strings.Contains(got, "Stack trace attached") {
		t.Errorf("issue body missing:\n%s", got)
	}
}
