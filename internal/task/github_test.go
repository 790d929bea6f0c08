package task

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/twiced-technology-gmbh/ralphy/internal/execx"
)

// fakeGH scripts gh invocations keyed by subcommand.
type fakeGH struct {
	calls     []string
	listOpen  string
	listAll   string
	viewState string
	closeErr  string
}

func (f *fakeGH) runner() execx.Runner {
	return func(_ context.Context, _ string, _ []string, name string, args ...string) (*execx.Result, error) {
		if name != "gh" {
			return nil, fmt.Errorf("unexpected command %q", name)
		}
		call := strings.Join(args, " ")
		f.calls = append(f.calls, call)

		switch {
		case strings.HasPrefix(call, "issue list --state open"):
			return &execx.Result{Stdout: f.listOpen}, nil
		case strings.HasPrefix(call, "issue list --state all"):
			return &execx.Result{Stdout: f.listAll}, nil
		case strings.HasPrefix(call, "issue view"):
			return &execx.Result{Stdout: fmt.Sprintf(`{"state":%q}`, f.viewState)}, nil
		case strings.HasPrefix(call, "issue close"):
			if f.closeErr != "" {
				return &execx.Result{ExitCode: 1, Stderr: f.closeErr}, nil
			}
			return &execx.Result{}, nil
		}
		return nil, fmt.Errorf("unscripted call %q", call)
	}
}

func TestGitHubNext(t *testing.T) {
	gh := &fakeGH{listOpen: `[{"number":7,"title":"Fix login","url":"https://example.com/7"},{"number":8,"title":"Other","url":"u"}]`}
	s := NewGitHubSource("owner/repo", "bug", gh.runner())

	next, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next == nil {
		t.Fatal("expected a task")
	}
	if next.Text != "Fix login" || next.Number != 7 || next.URL != "https://example.com/7" {
		t.Errorf("task = %+v", next)
	}
	if next.Source != SourceGitHub {
		t.Errorf("source = %q", next.Source)
	}
	if !strings.Contains(gh.calls[0], "--label bug") || !strings.Contains(gh.calls[0], "--repo owner/repo") {
		t.Errorf("filters missing from %q", gh.calls[0])
	}
}

func TestGitHubNext_Empty(t *testing.T) {
	gh := &fakeGH{listOpen: `[]`}
	s := NewGitHubSource("", "", gh.runner())

	next, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != nil {
		t.Fatalf("expected no task, got %+v", next)
	}
}

func TestGitHubComplete_ClosesOpenIssue(t *testing.T) {
	gh := &fakeGH{
		listAll:   `[{"number":7,"title":"Fix login","url":"u"}]`,
		viewState: "OPEN",
	}
	s := NewGitHubSource("owner/repo", "", gh.runner())

	status, err := s.Complete("Fix login")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if status != StatusUpdated {
		t.Errorf("status = %q", status)
	}

	var closed bool
	for _, c := range gh.calls {
		if strings.HasPrefix(c, "issue close 7") {
			closed = true
		}
	}
	if !closed {
		t.Errorf("issue close not invoked: %v", gh.calls)
	}
}

func TestGitHubComplete_AlreadyClosed(t *testing.T) {
	gh := &fakeGH{
		listAll:   `[{"number":7,"title":"Fix login","url":"u"}]`,
		viewState: "CLOSED",
	}
	s := NewGitHubSource("", "", gh.runner())

	status, err := s.Complete("Fix login")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if status != StatusAlreadyComplete {
		t.Errorf("status = %q", status)
	}
	for _, c := range gh.calls {
		if strings.HasPrefix(c, "issue close") {
			t.Errorf("closed an already-closed issue")
		}
	}
}

func TestGitHubComplete_NotFound(t *testing.T) {
	gh := &fakeGH{listAll: `[{"number":7,"title":"Fix login","url":"u"}]`}
	s := NewGitHubSource("", "", gh.runner())

	status, err := s.Complete("Unknown task")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if status != StatusNotFound {
		t.Errorf("status = %q", status)
	}
}

func TestGitHubErrorsCarryStderr(t *testing.T) {
	run := func(_ context.Context, _ string, _ []string, _ string, _ ...string) (*execx.Result, error) {
		return &execx.Result{ExitCode: 1, Stderr: "auth required\n"}, nil
	}
	s := NewGitHubSource("", "", run)

	_, err := s.Next()
	if err == nil || !strings.Contains(err.Error(), "auth required") {
		t.Fatalf("err = %v, want stderr message", err)
	}
}

func TestSelectPrecedence(t *testing.T) {
	s := Select(SelectOptions{PRDPath: "a.md", YAMLPath: "b.yaml", GitHubRepo: "o/r"})
	if s.Type() != SourceGitHub {
		t.Errorf("github should win, got %q", s.Type())
	}
	s = Select(SelectOptions{PRDPath: "a.md", YAMLPath: "b.yaml"})
	if s.Type() != SourceYAML {
		t.Errorf("yaml should beat markdown, got %q", s.Type())
	}
	s = Select(SelectOptions{})
	if s.Type() != SourceMarkdown {
		t.Errorf("markdown is the default, got %q", s.Type())
	}
	if md, ok := s.(*MarkdownSource); !ok || md.Path() != DefaultPRDPath {
		t.Errorf("default path = %v", s)
	}
}
