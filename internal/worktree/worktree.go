// Package worktree allocates and destroys isolated git worktrees for
// parallel task execution. The manager owns the disk paths under its root
// and the branches it creates.
package worktree

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/twiced-technology-gmbh/ralphy/internal/gitx"
	"github.com/twiced-technology-gmbh/ralphy/internal/task"
)

// DefaultRoot is the worktree root relative to the repository, created on
// first allocation.
const DefaultRoot = ".ralphy/worktrees"

const parallelBranchPrefix = "ralphy/parallel/"

// Record describes one allocated worktree.
type Record struct {
	Group            string
	Branch           string
	Path             string
	TaskSourcePath   string // original task-source path, if one was copied in
	CopiedTaskSource string // path of the copy inside the worktree
}

// Manager allocates worktrees under a root directory.
type Manager struct {
	git        *gitx.Git
	root       string
	baseBranch string
	records    []Record
}

// New creates a Manager over the given repository. root defaults to
// DefaultRoot under the repository directory; baseBranch defaults to the
// current HEAD of the main working directory at allocation time.
func New(git *gitx.Git, root, baseBranch string) *Manager {
	if root == "" {
		root = filepath.Join(git.Dir(), DefaultRoot)
	}
	return &Manager{git: git, root: root, baseBranch: baseBranch}
}

// Records returns the live allocation records.
func (m *Manager) Records() []Record { return m.records }

// Allocate creates a worktree for the given parallel group, on a fresh
// branch forked from base (explicit argument, then the manager default,
// then current HEAD). If taskSourcePath is non-empty the file is copied
// into the worktree at the same repository-relative location, or its
// basename when it lives outside the repository.
func (m *Manager) Allocate(group, base, taskSourcePath string) (*Record, error) {
	if base == "" {
		base = m.baseBranch
	}
	if base == "" {
		head, err := m.git.CurrentBranch()
		if err != nil {
			return nil, fmt.Errorf("resolving base branch: %w", err)
		}
		base = head
	}

	slug := task.Slug(group)

	branches, err := m.git.Branches()
	if err != nil {
		return nil, err
	}
	branch := gitx.UniqueBranch(parallelBranchPrefix+slug, branches)

	path, err := m.uniquePath(slug)
	if err != nil {
		return nil, err
	}

	if err := m.git.Exec("worktree", "add", "-b", branch, path, base); err != nil {
		return nil, fmt.Errorf("adding worktree for group %s: %w", group, err)
	}

	rec := Record{Group: group, Branch: branch, Path: path}
	if taskSourcePath != "" {
		copied, err := m.copyTaskSource(taskSourcePath, path)
		if err != nil {
			return nil, err
		}
		rec.TaskSourcePath = taskSourcePath
		rec.CopiedTaskSource = copied
	}

	m.records = append(m.records, rec)
	return &m.records[len(m.records)-1], nil
}

// uniquePath picks a directory under the root named after the slug,
// disambiguating against paths already on disk.
func (m *Manager) uniquePath(slug string) (string, error) {
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return "", fmt.Errorf("creating worktree root: %w", err)
	}
	candidate := filepath.Join(m.root, slug)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}
	for n := 2; ; n++ {
		candidate = filepath.Join(m.root, fmt.Sprintf("%s-%d", slug, n))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}

// copyTaskSource copies the task source file into the worktree, creating
// intermediate directories.
func (m *Manager) copyTaskSource(src, wtPath string) (string, error) {
	rel, err := filepath.Rel(m.git.Dir(), src)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(src)
	}
	dst := filepath.Join(wtPath, rel)

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("creating task source directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening task source: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating task source copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("copying task source: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// CleanupOptions control worktree teardown.
type CleanupOptions struct {
	// RemoveBranches deletes the branch created for each removed worktree.
	RemoveBranches bool
	// PreserveDirty retains worktrees with uncommitted changes so a human
	// can inspect partial work.
	PreserveDirty bool
}

// Cleanup removes allocated worktrees and, optionally, their branches.
// Dirty worktrees are retained when PreserveDirty is set; retained records
// stay on the list for a later cleanup. Errors are collected and returned
// in aggregate after the pass.
func (m *Manager) Cleanup(opts CleanupOptions) error {
	var retained []Record
	var errs []string

	for _, rec := range m.records {
		if opts.PreserveDirty {
			dirty, err := m.git.In(rec.Path).IsDirty()
			if err == nil && dirty {
				retained = append(retained, rec)
				continue
			}
		}
		if err := m.git.Exec("worktree", "remove", "--force", rec.Path); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", rec.Path, err))
			retained = append(retained, rec)
			continue
		}
		if opts.RemoveBranches {
			if err := m.git.DeleteBranch(rec.Branch, true); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", rec.Branch, err))
			}
		}
	}

	m.records = retained
	if len(errs) > 0 {
		return fmt.Errorf("worktree cleanup: %s", strings.Join(errs, "; "))
	}
	return nil
}
