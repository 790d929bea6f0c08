package task

import "github.com/twiced-technology-gmbh/ralphy/internal/execx"

// SelectOptions choose which backlog a run reads from.
type SelectOptions struct {
	PRDPath     string // Markdown checklist path, default PRD.md
	YAMLPath    string
	GitHubRepo  string
	GitHubLabel string

	// Runner overrides subprocess execution for the GitHub source.
	Runner execx.Runner
}

// Select picks the task source by precedence: github over yaml over
// Markdown (the default).
func Select(opts SelectOptions) TaskSource {
	if opts.GitHubRepo != "" {
		return NewGitHubSource(opts.GitHubRepo, opts.GitHubLabel, opts.Runner)
	}
	if opts.YAMLPath != "" {
		return NewYAMLSource(opts.YAMLPath)
	}
	return NewMarkdownSource(opts.PRDPath)
}
