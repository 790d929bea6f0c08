package task

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// The YAML backlog is edited line-by-line rather than through a YAML
// round-trip: completion must preserve every byte outside the single line
// it changes, including comments and idiosyncratic indentation a marshal
// cycle would normalize away.
var (
	yamlTasksHeader = regexp.MustCompile(`^(\s*)tasks:\s*$`)
	yamlListItem    = regexp.MustCompile(`^(\s*)-\s+(.*)$`)
	yamlProperty    = regexp.MustCompile(`^(\s*)([A-Za-z_][A-Za-z0-9_]*):\s*(.*)$`)
	yamlCompleted   = regexp.MustCompile(`^(\s*completed:\s*)(\S+)(.*)$`)
)

// YAMLSource reads tasks from a structured YAML backlog.
type YAMLSource struct {
	path string
}

// NewYAMLSource creates a YAML source for the given file path.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

// Type reports SourceYAML.
func (s *YAMLSource) Type() Source { return SourceYAML }

// Path returns the backing file path.
func (s *YAMLSource) Path() string { return s.path }

// Rebind returns a YAML source reading a different path.
func (s *YAMLSource) Rebind(path string) FileSource {
	return NewYAMLSource(path)
}

// yamlBlock is one parsed list item under the tasks: header, with the line
// positions needed to rewrite it in place.
type yamlBlock struct {
	task          Task
	titleLine     int    // 0-based index of the line carrying title:
	completedLine int    // 0-based index of the completed: line, -1 if absent
	propIndent    string // indentation for an inserted property line
}

// parseBlocks walks the lines under the tasks: header and collects list
// items. Recognized keys are title, completed, and parallel_group; anything
// else is carried untouched.
func parseBlocks(lines []string) ([]yamlBlock, error) {
	headerIdx := -1
	headerIndent := 0
	for i, line := range lines {
		if m := yamlTasksHeader.FindStringSubmatch(line); m != nil {
			headerIdx = i
			headerIndent = len(m[1])
			break
		}
	}
	if headerIdx < 0 {
		return nil, fmt.Errorf("no tasks: section found")
	}

	var blocks []yamlBlock
	var cur *yamlBlock

	flush := func() {
		if cur == nil {
			return
		}
		if cur.task.Group == "" {
			cur.task.Group = "0"
		}
		cur.task.Index = len(blocks)
		blocks = append(blocks, *cur)
		cur = nil
	}

	for i := headerIdx + 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent <= headerIndent {
			break
		}

		if m := yamlListItem.FindStringSubmatch(line); m != nil {
			flush()
			cur = &yamlBlock{
				titleLine:     -1,
				completedLine: -1,
				propIndent:    m[1] + "  ",
			}
			cur.task.Source = SourceYAML
			if pm := yamlProperty.FindStringSubmatch(m[2]); pm != nil {
				applyProperty(cur, pm[2], pm[3], i, m[1]+"  ")
			}
			continue
		}

		if cur == nil {
			continue
		}
		if pm := yamlProperty.FindStringSubmatch(line); pm != nil {
			applyProperty(cur, pm[2], pm[3], i, pm[1])
		}
	}
	flush()

	return blocks, nil
}

// applyProperty records a recognized key/value pair on the current block.
func applyProperty(b *yamlBlock, key, rawValue string, lineIdx int, indent string) {
	value := unquote(stripComment(rawValue))
	switch key {
	case "title":
		b.task.Text = value
		b.task.Line = lineIdx + 1
		b.titleLine = lineIdx
		b.propIndent = indent
	case "completed":
		b.task.Completed = value == "true"
		b.completedLine = lineIdx
	case "parallel_group":
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			b.task.Group = strconv.Itoa(n)
		}
	}
}

// stripComment removes a trailing " # …" comment from an unquoted value.
func stripComment(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, `"`) || strings.HasPrefix(v, `'`) {
		return v
	}
	if idx := strings.Index(v, " #"); idx >= 0 {
		v = v[:idx]
	}
	return strings.TrimSpace(v)
}

// unquote strips one layer of single or double quotes.
func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// Tasks parses the backlog and returns every task in source order.
func (s *YAMLSource) Tasks() ([]Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}
	blocks, err := parseBlocks(splitLines(string(data)))
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(blocks))
	for _, b := range blocks {
		if b.task.Text == "" {
			continue
		}
		t := b.task
		t.Index = len(tasks)
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Next returns the first task without completed: true, or nil when every
// task is complete.
func (s *YAMLSource) Next() (*Task, error) {
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

// Complete marks the task with the given title as done. If the block has a
// completed: line its value is rewritten to true, preserving any trailing
// comment; otherwise a completed: true line is inserted immediately after
// the title line at the block's property indentation.
func (s *YAMLSource) Complete(title string) (CompleteStatus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("reading task file: %w", err)
	}

	title = strings.TrimSpace(title)
	lines := splitLines(string(data))
	blocks, err := parseBlocks(lines)
	if err != nil {
		return "", err
	}

	for _, b := range blocks {
		if strings.TrimSpace(b.task.Text) != title {
			continue
		}
		if b.task.Completed {
			return StatusAlreadyComplete, nil
		}
		if b.completedLine >= 0 {
			m := yamlCompleted.FindStringSubmatch(lines[b.completedLine])
			if m == nil {
				return "", fmt.Errorf("malformed completed line %d", b.completedLine+1)
			}
			lines[b.completedLine] = m[1] + "true" + m[3]
		} else {
			if b.titleLine < 0 {
				return "", fmt.Errorf("task %q has no title line", title)
			}
			inserted := b.propIndent + "completed: true"
			if strings.HasSuffix(lines[b.titleLine], "\r") {
				inserted += "\r"
			}
			lines = append(lines[:b.titleLine+1],
				append([]string{inserted}, lines[b.titleLine+1:]...)...)
		}
		if err := os.WriteFile(s.path, []byte(strings.Join(lines, "\n")), fileMode); err != nil {
			return "", fmt.Errorf("writing task file: %w", err)
		}
		return StatusUpdated, nil
	}
	return StatusNotFound, nil
}
