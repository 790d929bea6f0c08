package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/twiced-technology-gmbh/ralphy/internal/gitx"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"git", "init", "-b", "main"},
		{"git", "config", "user.name", "Test User"},
		{"git", "config", "user.email", "test@example.com"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("running %v: %v\n%s", args, err, out)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "tasks.yaml"), []byte("tasks:\n  - title: A\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{
		{"git", "add", "."},
		{"git", "commit", "-m", "initial"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("running %v: %v\n%s", args, err, out)
		}
	}
	return dir
}

func TestAllocate(t *testing.T) {
	dir := initRepo(t)
	g := gitx.New(dir, nil)
	m := New(g, "", "")

	rec, err := m.Allocate("1", "", filepath.Join(dir, "tasks.yaml"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if rec.Branch != "ralphy/parallel/1" {
		t.Errorf("branch = %q", rec.Branch)
	}
	if !strings.HasPrefix(rec.Path, filepath.Join(dir, DefaultRoot)) {
		t.Errorf("path = %q not under root", rec.Path)
	}
	if _, err := os.Stat(filepath.Join(rec.Path, ".git")); err != nil {
		t.Errorf("worktree missing .git: %v", err)
	}
	if rec.CopiedTaskSource != filepath.Join(rec.Path, "tasks.yaml") {
		t.Errorf("copied source = %q", rec.CopiedTaskSource)
	}
	if data, err := os.ReadFile(rec.CopiedTaskSource); err != nil || !strings.Contains(string(data), "title: A") {
		t.Errorf("task source not copied: %v", err)
	}
}

func TestAllocate_DisambiguatesBranchesAndPaths(t *testing.T) {
	dir := initRepo(t)
	g := gitx.New(dir, nil)
	m := New(g, "", "")

	first, err := m.Allocate("web", "", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Allocate("web", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Branch == second.Branch {
		t.Errorf("branch collision: %q", first.Branch)
	}
	if first.Path == second.Path {
		t.Errorf("path collision: %q", first.Path)
	}
}

func TestCleanup_RemovesWorktreesAndBranches(t *testing.T) {
	dir := initRepo(t)
	g := gitx.New(dir, nil)
	m := New(g, "", "")

	rec, err := m.Allocate("1", "", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Cleanup(CleanupOptions{RemoveBranches: true}); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(rec.Path); !os.IsNotExist(err) {
		t.Error("worktree directory still present")
	}
	branches, _ := g.Branches()
	for _, b := range branches {
		if b == rec.Branch {
			t.Errorf("branch %q still present", b)
		}
	}
	if len(m.Records()) != 0 {
		t.Errorf("records not cleared: %v", m.Records())
	}
}

func TestCleanup_PreservesDirty(t *testing.T) {
	dir := initRepo(t)
	g := gitx.New(dir, nil)
	m := New(g, "", "")

	rec, err := m.Allocate("1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rec.Path, "wip.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := m.Cleanup(CleanupOptions{PreserveDirty: true}); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(rec.Path); err != nil {
		t.Error("dirty worktree was removed")
	}
	if len(m.Records()) != 1 {
		t.Errorf("retained record lost: %v", m.Records())
	}
}

func TestAllocate_ExplicitBase(t *testing.T) {
	dir := initRepo(t)
	g := gitx.New(dir, nil)
	if err := g.CreateBranch("feature", "main"); err != nil {
		t.Fatal(err)
	}
	m := New(g, "", "")

	rec, err := m.Allocate("2", "feature", "")
	if err != nil {
		t.Fatal(err)
	}
	head, err := g.In(rec.Path).Output("rev-parse", "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	featureHead, _ := g.Output("rev-parse", "feature")
	if head != featureHead {
		t.Errorf("worktree HEAD %q != feature %q", head, featureHead)
	}
}
