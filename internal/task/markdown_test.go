package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func writeBacklog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "PRD.md")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing backlog: %v", err)
	}
	return path
}

func TestMarkdownNext(t *testing.T) {
	path := writeBacklog(t, "- [ ] First task\n- [x] Done\n")
	s := NewMarkdownSource(path)

	next, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next == nil {
		t.Fatal("expected a task")
	}
	if next.Text != "First task" {
		t.Errorf("text = %q, want %q", next.Text, "First task")
	}
	if next.Line != 1 {
		t.Errorf("line = %d, want 1", next.Line)
	}
	if next.Source != SourceMarkdown {
		t.Errorf("source = %q", next.Source)
	}
}

func TestMarkdownNext_SkipsCompleted(t *testing.T) {
	path := writeBacklog(t, "- [x] Done\n- [X] Also done\n- [ ] Pending\n")
	s := NewMarkdownSource(path)

	next, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next == nil || next.Text != "Pending" {
		t.Fatalf("next = %+v, want Pending", next)
	}
}

func TestMarkdownNext_Empty(t *testing.T) {
	path := writeBacklog(t, "- [x] Done\n\nsome prose\n")
	s := NewMarkdownSource(path)

	next, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != nil {
		t.Fatalf("expected no task, got %+v", next)
	}
}

func TestMarkdownComplete_PreservesIndent(t *testing.T) {
	path := writeBacklog(t, "- [ ] First\n  - [ ] Second")
	s := NewMarkdownSource(path)

	status, err := s.Complete("Second")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if status != StatusUpdated {
		t.Errorf("status = %q, want updated", status)
	}

	data, _ := os.ReadFile(path)
	want := "- [ ] First\n  - [x] Second"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestMarkdownComplete_StarMarker(t *testing.T) {
	path := writeBacklog(t, "* [ ] Star task\n")
	s := NewMarkdownSource(path)

	if _, err := s.Complete("Star task"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "* [x] Star task\n" {
		t.Errorf("file = %q", data)
	}
}

func TestMarkdownComplete_PreservesCRLF(t *testing.T) {
	path := writeBacklog(t, "- [ ] First\r\n- [ ] Second\r\n")
	s := NewMarkdownSource(path)

	status, err := s.Complete("Second")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if status != StatusUpdated {
		t.Errorf("status = %q", status)
	}

	data, _ := os.ReadFile(path)
	want := "- [ ] First\r\n- [x] Second\r\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestMarkdownComplete_Idempotent(t *testing.T) {
	path := writeBacklog(t, "- [ ] Only task\n")
	s := NewMarkdownSource(path)

	if status, _ := s.Complete("Only task"); status != StatusUpdated {
		t.Fatalf("first complete = %q", status)
	}
	status, err := s.Complete("Only task")
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if status != StatusAlreadyComplete {
		t.Errorf("second complete = %q, want already-complete", status)
	}
}

func TestMarkdownComplete_NotFound(t *testing.T) {
	path := writeBacklog(t, "- [ ] Only task\n")
	s := NewMarkdownSource(path)

	status, err := s.Complete("Missing")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if status != StatusNotFound {
		t.Errorf("status = %q, want not-found", status)
	}
}

func TestMarkdownTasks_Order(t *testing.T) {
	path := writeBacklog(t, "# Title\n\n- [ ] A\n- [x] B\n- [ ] C\n")
	s := NewMarkdownSource(path)

	tasks, err := s.Tasks()
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("len = %d, want 3", len(tasks))
	}
	for i, want := range []string{"A", "B", "C"} {
		if tasks[i].Text != want {
			t.Errorf("tasks[%d].Text = %q, want %q", i, tasks[i].Text, want)
		}
		if tasks[i].Index != i {
			t.Errorf("tasks[%d].Index = %d", i, tasks[i].Index)
		}
		if tasks[i].Group != DefaultGroup {
			t.Errorf("tasks[%d].Group = %q", i, tasks[i].Group)
		}
	}
	if tasks[0].Line != 3 || tasks[2].Line != 5 {
		t.Errorf("lines = %d, %d; want 3, 5", tasks[0].Line, tasks[2].Line)
	}
	if tasks[1].Completed != true || tasks[0].Completed || tasks[2].Completed {
		t.Error("completed flags do not reflect file state")
	}
}

// Completion must change only the single matched checkbox line.
func TestMarkdownComplete_SourcePreservation(t *testing.T) {
	dir := t.TempDir()
	seq := 0
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		target := rapid.IntRange(0, n-1).Draw(t, "target")

		var lines []string
		for i := range n {
			title := "Task " + string(rune('A'+i))
			indent := strings.Repeat(" ", rapid.IntRange(0, 4).Draw(t, "indent"))
			lines = append(lines, indent+"- [ ] "+title)
		}
		content := strings.Join(lines, "\n") + "\n"

		seq++
		path := filepath.Join(dir, fmt.Sprintf("PRD-%d.md", seq))
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}

		s := NewMarkdownSource(path)
		title := "Task " + string(rune('A'+target))
		if status, err := s.Complete(title); err != nil || status != StatusUpdated {
			t.Fatalf("complete: %v %v", status, err)
		}

		data, _ := os.ReadFile(path)
		got := strings.Split(string(data), "\n")
		want := strings.Split(content, "\n")
		for i := range want {
			if i == target {
				if got[i] != strings.Replace(want[i], "[ ]", "[x]", 1) {
					t.Fatalf("line %d = %q", i, got[i])
				}
				continue
			}
			if got[i] != want[i] {
				t.Fatalf("line %d changed: %q -> %q", i, want[i], got[i])
			}
		}
	})
}
