package task

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultPRDPath is the Markdown backlog consulted when no source is
// configured explicitly.
const DefaultPRDPath = "PRD.md"

const fileMode = 0o600

// checkboxLine matches a Markdown checklist item. Capture groups: prefix
// (indentation and list marker), status letter, task text.
var checkboxLine = regexp.MustCompile(`^([\t ]*[-*][\t ]+)\[( |x|X)\][\t ]+(.*)$`)

// MarkdownSource reads tasks from a Markdown checklist file.
type MarkdownSource struct {
	path string
}

// NewMarkdownSource creates a Markdown source for the given file path.
// An empty path falls back to DefaultPRDPath.
func NewMarkdownSource(path string) *MarkdownSource {
	if path == "" {
		path = DefaultPRDPath
	}
	return &MarkdownSource{path: path}
}

// Type reports SourceMarkdown.
func (s *MarkdownSource) Type() Source { return SourceMarkdown }

// Path returns the backing file path.
func (s *MarkdownSource) Path() string { return s.path }

// Rebind returns a Markdown source reading a different path.
func (s *MarkdownSource) Rebind(path string) FileSource {
	return NewMarkdownSource(path)
}

// Tasks parses the checklist and returns every task in source order.
// Lines are 1-indexed; every task lives in the default parallel group.
func (s *MarkdownSource) Tasks() ([]Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	var tasks []Task
	for i, line := range splitLines(string(data)) {
		m := checkboxLine.FindStringSubmatch(trimCR(line))
		if m == nil {
			continue
		}
		status := m[2]
		tasks = append(tasks, Task{
			Source:    SourceMarkdown,
			Text:      strings.TrimSpace(m[3]),
			Line:      i + 1,
			Group:     DefaultGroup,
			Index:     len(tasks),
			Completed: status == "x" || status == "X",
		})
	}
	return tasks, nil
}

// Next returns the first unchecked task, or nil when all boxes are checked.
func (s *MarkdownSource) Next() (*Task, error) {
	tasks, err := s.Tasks()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if !tasks[i].Completed {
			return &tasks[i], nil
		}
	}
	return nil, nil
}

// Complete checks the box of the task with the given title. Only the
// matched line changes; its marker and indentation are preserved verbatim.
func (s *MarkdownSource) Complete(title string) (CompleteStatus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("reading task file: %w", err)
	}

	title = strings.TrimSpace(title)
	lines := splitLines(string(data))
	for i, line := range lines {
		m := checkboxLine.FindStringSubmatch(trimCR(line))
		if m == nil || strings.TrimSpace(m[3]) != title {
			continue
		}
		if m[2] == "x" || m[2] == "X" {
			return StatusAlreadyComplete, nil
		}
		lines[i] = strings.Replace(line, "[ ]", "[x]", 1)
		if err := os.WriteFile(s.path, []byte(strings.Join(lines, "\n")), fileMode); err != nil {
			return "", fmt.Errorf("writing task file: %w", err)
		}
		return StatusUpdated, nil
	}
	return StatusNotFound, nil
}

// splitLines splits content on newlines. Carriage returns stay attached
// to their lines so a Join round-trip reproduces the file byte-for-byte;
// strip them with trimCR before matching.
func splitLines(content string) []string {
	return strings.Split(content, "\n")
}

// trimCR drops a trailing carriage return left by CRLF terminators.
func trimCR(line string) string {
	return strings.TrimSuffix(line, "\r")
}
