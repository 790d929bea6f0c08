package task

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing backlog: %v", err)
	}
	return path
}

const yamlBacklog = `name: demo
tasks:
  - title: First task
    completed: true
  - title: Second task
  - title: "Quoted task"
    parallel_group: 2
  - title: 'Third task'
    completed: false # still open
    parallel_group: 1
`

func TestYAMLTasks(t *testing.T) {
	s := NewYAMLSource(writeYAML(t, yamlBacklog))

	tasks, err := s.Tasks()
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("len = %d, want 4", len(tasks))
	}

	want := []struct {
		text      string
		group     string
		completed bool
	}{
		{"First task", "0", true},
		{"Second task", "0", false},
		{"Quoted task", "2", false},
		{"Third task", "1", false},
	}
	for i, w := range want {
		if tasks[i].Text != w.text {
			t.Errorf("tasks[%d].Text = %q, want %q", i, tasks[i].Text, w.text)
		}
		if tasks[i].Group != w.group {
			t.Errorf("tasks[%d].Group = %q, want %q", i, tasks[i].Group, w.group)
		}
		if tasks[i].Completed != w.completed {
			t.Errorf("tasks[%d].Completed = %v", i, tasks[i].Completed)
		}
	}
}

func TestYAMLNext(t *testing.T) {
	s := NewYAMLSource(writeYAML(t, yamlBacklog))

	next, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next == nil || next.Text != "Second task" {
		t.Fatalf("next = %+v, want Second task", next)
	}
	if next.Source != SourceYAML {
		t.Errorf("source = %q", next.Source)
	}
}

func TestYAMLComplete_InsertsAfterTitle(t *testing.T) {
	path := writeYAML(t, "tasks:\n  - title: First task\n    completed: true\n  - title: Second task\n")
	s := NewYAMLSource(path)

	status, err := s.Complete("Second task")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if status != StatusUpdated {
		t.Errorf("status = %q", status)
	}

	data, _ := os.ReadFile(path)
	want := "tasks:\n  - title: First task\n    completed: true\n  - title: Second task\n    completed: true\n"
	if string(data) != want {
		t.Errorf("file =\n%q\nwant\n%q", data, want)
	}
}

func TestYAMLComplete_RewritesValueKeepingComment(t *testing.T) {
	path := writeYAML(t, "tasks:\n  - title: Task one\n    completed: false # needs review\n")
	s := NewYAMLSource(path)

	if status, err := s.Complete("Task one"); err != nil || status != StatusUpdated {
		t.Fatalf("complete: %v %v", status, err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "completed: true # needs review") {
		t.Errorf("comment not preserved: %q", data)
	}
}

func TestYAMLComplete_PreservesCRLF(t *testing.T) {
	path := writeYAML(t, "tasks:\r\n  - title: Task one\r\n  - title: Task two\r\n")
	s := NewYAMLSource(path)

	if status, err := s.Complete("Task one"); err != nil || status != StatusUpdated {
		t.Fatalf("complete: %v %v", status, err)
	}

	data, _ := os.ReadFile(path)
	want := "tasks:\r\n  - title: Task one\r\n    completed: true\r\n  - title: Task two\r\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestYAMLComplete_Idempotent(t *testing.T) {
	path := writeYAML(t, "tasks:\n  - title: Task one\n")
	s := NewYAMLSource(path)

	if status, _ := s.Complete("Task one"); status != StatusUpdated {
		t.Fatal("first complete should update")
	}
	status, err := s.Complete("Task one")
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if status != StatusAlreadyComplete {
		t.Errorf("status = %q, want already-complete", status)
	}
}

func TestYAMLComplete_NotFound(t *testing.T) {
	s := NewYAMLSource(writeYAML(t, "tasks:\n  - title: Task one\n"))

	status, err := s.Complete("Missing")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if status != StatusNotFound {
		t.Errorf("status = %q", status)
	}
}

// Content outside the tasks: section, and unrelated properties within it,
// must survive a completion byte-for-byte.
func TestYAMLComplete_PreservesSurroundings(t *testing.T) {
	content := "# backlog\nname: demo\ntasks:\n  - title: Task one\n    owner: me\n  - title: Task two\nfooter: keep\n"
	path := writeYAML(t, content)
	s := NewYAMLSource(path)

	if status, err := s.Complete("Task one"); err != nil || status != StatusUpdated {
		t.Fatalf("complete: %v %v", status, err)
	}

	data, _ := os.ReadFile(path)
	want := "# backlog\nname: demo\ntasks:\n  - title: Task one\n    completed: true\n    owner: me\n  - title: Task two\nfooter: keep\n"
	if string(data) != want {
		t.Errorf("file =\n%q\nwant\n%q", data, want)
	}
}

func TestYAMLTasks_NoHeader(t *testing.T) {
	s := NewYAMLSource(writeYAML(t, "name: demo\n"))
	if _, err := s.Tasks(); err == nil {
		t.Fatal("expected error for missing tasks: section")
	}
}
