// Package task defines the task model and the task-source adapters that
// read and update task backlogs (Markdown checklists, structured YAML,
// GitHub issues).
package task

import "strings"

// Source identifies the kind of backlog a task came from.
type Source string

// Supported task sources.
const (
	SourceMarkdown Source = "markdown"
	SourceYAML     Source = "yaml"
	SourceGitHub   Source = "github"
)

// DefaultGroup is the parallel group assigned to tasks whose source has no
// grouping concept (Markdown checklists).
const DefaultGroup = "default"

// Task is a single backlog item.
type Task struct {
	Source    Source `json:"source"`
	Text      string `json:"text"`
	Line      int    `json:"line,omitempty"`   // 1-indexed line in the source file
	URL       string `json:"url,omitempty"`    // issue URL (github only)
	Number    int    `json:"number,omitempty"` // issue number (github only)
	Group     string `json:"group,omitempty"`  // parallel group tag
	Index     int    `json:"-"`                // position in source order
	Completed bool   `json:"completed"`
}

// Title returns the trimmed task text. Task identity is the trimmed title;
// completion requests match by exact trimmed-string equality.
func (t Task) Title() string {
	return strings.TrimSpace(t.Text)
}

// CompleteStatus is the outcome of a Complete call.
type CompleteStatus string

// Complete outcomes.
const (
	StatusUpdated         CompleteStatus = "updated"
	StatusAlreadyComplete CompleteStatus = "already-complete"
	StatusNotFound        CompleteStatus = "not-found"
)

// TaskSource is the uniform next/complete contract over backlog back-ends.
type TaskSource interface {
	// Type reports which back-end this source is.
	Type() Source

	// Next returns the first incomplete task, or nil when the backlog has
	// no incomplete tasks left.
	Next() (*Task, error)

	// Complete marks the task with the given trimmed title as done in the
	// backing store. Completing an already-complete task is not an error.
	Complete(title string) (CompleteStatus, error)
}

// FileSource is implemented by file-backed sources (Markdown, YAML). The
// parallel scheduler uses it to parse the full backlog up front and to
// rebind a source to the copy inside a worktree.
type FileSource interface {
	TaskSource

	// Path returns the backing file path.
	Path() string

	// Tasks parses the whole file and returns every task in source order.
	Tasks() ([]Task, error)

	// Rebind returns a source of the same kind reading a different path.
	Rebind(path string) FileSource
}
