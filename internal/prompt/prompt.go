// Package prompt composes the instruction text handed to the agent CLI.
package prompt

import (
	"fmt"
	"strings"

	"github.com/twiced-technology-gmbh/ralphy/internal/config"
)

// Options shape the composed prompt.
type Options struct {
	Task       string
	Config     *config.Config // nil when no project config exists
	SkipTests  bool
	SkipLint   bool
	AutoCommit bool
	Mode       string // prompt-mode hint, e.g. "single" or "prd"
	TaskSource string // task-source hint, e.g. "github"
	IssueBody  string // issue body when the task came from an issue tracker
}

// Compose renders the prompt for one task.
func Compose(opts Options) string {
	var b strings.Builder

	b.WriteString("You are an autonomous coding agent working on this repository.\n\n")
	fmt.Fprintf(&b, "## Task\n\n%s\n", strings.TrimSpace(opts.Task))
	if opts.IssueBody != "" {
		fmt.Fprintf(&b, "\n## Issue details\n\n%s\n", strings.TrimSpace(opts.IssueBody))
	}

	if cfg := opts.Config; cfg != nil {
		writeProject(&b, cfg)
		writeRules(&b, cfg.Rules)
		writeBoundaries(&b, cfg.Boundaries.NeverTouch)
	}

	b.WriteString("\n## Workflow\n\n")
	b.WriteString("- Implement the task completely before finishing.\n")
	if cmds := commands(opts); len(cmds) > 0 {
		fmt.Fprintf(&b, "- Validate your changes: %s.\n", strings.Join(cmds, ", then "))
	}
	if opts.AutoCommit {
		b.WriteString("- Commit your changes with a descriptive message when done.\n")
	} else {
		b.WriteString("- Do not commit; leave the changes in the working tree.\n")
	}

	return b.String()
}

func writeProject(b *strings.Builder, cfg *config.Config) {
	p := cfg.Project
	if p.Name == "" && p.Language == "" && p.Description == "" {
		return
	}
	b.WriteString("\n## Project\n\n")
	if p.Name != "" {
		fmt.Fprintf(b, "- Name: %s\n", p.Name)
	}
	if p.Language != "" {
		fmt.Fprintf(b, "- Language: %s\n", p.Language)
	}
	if p.Framework != "" {
		fmt.Fprintf(b, "- Framework: %s\n", p.Framework)
	}
	if p.Description != "" {
		fmt.Fprintf(b, "- Description: %s\n", p.Description)
	}
}

func writeRules(b *strings.Builder, rules []string) {
	if len(rules) == 0 {
		return
	}
	b.WriteString("\n## Rules\n\n")
	for _, r := range rules {
		fmt.Fprintf(b, "- %s\n", r)
	}
}

func writeBoundaries(b *strings.Builder, never []string) {
	if len(never) == 0 {
		return
	}
	b.WriteString("\n## Never touch\n\n")
	for _, path := range never {
		fmt.Fprintf(b, "- %s\n", path)
	}
}

// commands collects the validation commands that remain after skips.
func commands(opts Options) []string {
	var cmds []string
	if opts.Config == nil {
		return cmds
	}
	if opts.Config.Commands.Build != "" {
		cmds = append(cmds, "run "+opts.Config.Commands.Build)
	}
	if !opts.SkipTests && opts.Config.Commands.Test != "" {
		cmds = append(cmds, "run "+opts.Config.Commands.Test)
	}
	if !opts.SkipLint && opts.Config.Commands.Lint != "" {
		cmds = append(cmds, "run "+opts.Config.Commands.Lint)
	}
	return cmds
}
