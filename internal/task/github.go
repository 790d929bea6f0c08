package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/twiced-technology-gmbh/ralphy/internal/execx"
)

// GitHubSource reads tasks from a repository's open issues via the gh CLI.
type GitHubSource struct {
	repo  string
	label string
	run   execx.Runner
}

// NewGitHubSource creates a GitHub issue source. repo may be empty to use
// the repository of the current directory; label optionally filters issues.
func NewGitHubSource(repo, label string, run execx.Runner) *GitHubSource {
	if run == nil {
		run = execx.Run
	}
	return &GitHubSource{repo: repo, label: label, run: run}
}

// Type reports SourceGitHub.
func (s *GitHubSource) Type() Source { return SourceGitHub }

// gh invokes the gh CLI and returns stdout, converting a failing exit code
// into an error carrying the trimmed stderr.
func (s *GitHubSource) gh(args ...string) (string, error) {
	res, err := s.run(context.Background(), "", nil, "gh", args...)
	if err != nil {
		return "", fmt.Errorf("running gh: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s", execx.ErrorMessage(res, "gh", args...))
	}
	return res.Stdout, nil
}

// listArgs builds the issue list argv for the given state.
func (s *GitHubSource) listArgs(state string) []string {
	args := []string{"issue", "list", "--state", state, "--json", "number,title,url"}
	if s.label != "" {
		args = append(args, "--label", s.label)
	}
	if s.repo != "" {
		args = append(args, "--repo", s.repo)
	}
	return args
}

// Next lists open issues and returns the first as a task, or nil when no
// open issues match.
func (s *GitHubSource) Next() (*Task, error) {
	out, err := s.gh(s.listArgs("open")...)
	if err != nil {
		return nil, err
	}

	issues := gjson.Parse(out).Array()
	if len(issues) == 0 {
		return nil, nil
	}
	first := issues[0]
	return &Task{
		Source: SourceGitHub,
		Text:   strings.TrimSpace(first.Get("title").String()),
		Number: int(first.Get("number").Int()),
		URL:    first.Get("url").String(),
	}, nil
}

// Complete closes the issue whose title exactly matches the given trimmed
// title. A closed issue reports already-complete; no match reports
// not-found.
func (s *GitHubSource) Complete(title string) (CompleteStatus, error) {
	out, err := s.gh(s.listArgs("all")...)
	if err != nil {
		return "", err
	}

	title = strings.TrimSpace(title)
	var number int
	found := false
	for _, issue := range gjson.Parse(out).Array() {
		if strings.TrimSpace(issue.Get("title").String()) == title {
			number = int(issue.Get("number").Int())
			found = true
			break
		}
	}
	if !found {
		return StatusNotFound, nil
	}

	viewArgs := []string{"issue", "view", fmt.Sprint(number), "--json", "state"}
	if s.repo != "" {
		viewArgs = append(viewArgs, "--repo", s.repo)
	}
	view, err := s.gh(viewArgs...)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(gjson.Get(view, "state").String(), "closed") {
		return StatusAlreadyComplete, nil
	}

	closeArgs := []string{"issue", "close", fmt.Sprint(number)}
	if s.repo != "" {
		closeArgs = append(closeArgs, "--repo", s.repo)
	}
	if _, err := s.gh(closeArgs...); err != nil {
		return "", err
	}
	return StatusUpdated, nil
}
