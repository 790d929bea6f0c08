package gitx

import (
	"fmt"

	"github.com/twiced-technology-gmbh/ralphy/internal/task"
)

// stashMessage marks stashes created by branch-per-task runs so a human
// can spot them in git stash list.
const stashMessage = "ralphy: branch-per-task"

// branchPrefix namespaces per-task branches.
const branchPrefix = "ralphy/"

// BranchManager drives the four-phase branch lifecycle of a sequential
// branch-per-task run: prepare, checkout per task, finish task, cleanup.
type BranchManager struct {
	git *Git

	baseBranch     string
	originalBranch string
	stashRef       string
	prepared       bool
}

// NewBranchManager creates a manager over the given repository. baseBranch
// may be empty to adopt the branch checked out at Prepare time.
func NewBranchManager(git *Git, baseBranch string) *BranchManager {
	return &BranchManager{git: git, baseBranch: baseBranch}
}

// BaseBranch returns the branch per-task branches fork from. Only valid
// after Prepare.
func (m *BranchManager) BaseBranch() string { return m.baseBranch }

// Prepare captures the original branch, stashes a dirty working tree, and
// switches to the base branch when it differs from the original.
func (m *BranchManager) Prepare() error {
	original, err := m.git.CurrentBranch()
	if err != nil {
		return fmt.Errorf("resolving current branch: %w", err)
	}
	m.originalBranch = original
	if m.baseBranch == "" {
		m.baseBranch = original
	}

	dirty, err := m.git.IsDirty()
	if err != nil {
		return err
	}
	if dirty {
		if err := m.git.Exec("stash", "push", "-u", "-m", stashMessage); err != nil {
			return fmt.Errorf("stashing working tree: %w", err)
		}
		ref, err := m.git.Output("stash", "list", "--format=%gd", "-n", "1")
		if err != nil {
			return fmt.Errorf("resolving stash ref: %w", err)
		}
		m.stashRef = ref
	}

	if m.baseBranch != m.originalBranch {
		if err := m.git.Checkout(m.baseBranch); err != nil {
			return err
		}
	}

	m.prepared = true
	return nil
}

// CheckoutForTask creates and switches to a fresh branch for the given
// task title, disambiguated against the live branch list. Returns the
// branch name.
func (m *BranchManager) CheckoutForTask(title string) (string, error) {
	branches, err := m.git.Branches()
	if err != nil {
		return "", err
	}
	branch := UniqueBranch(branchPrefix+task.Slug(title), branches)
	if err := m.git.CheckoutNew(branch, m.baseBranch); err != nil {
		return "", err
	}
	return branch, nil
}

// FinishTask returns to the base branch. The per-task branch stays in
// place; its commits belong to the agent.
func (m *BranchManager) FinishTask() error {
	return m.git.Checkout(m.baseBranch)
}

// Cleanup restores the original branch and pops the stash recorded at
// Prepare, if any.
func (m *BranchManager) Cleanup() error {
	if !m.prepared {
		return nil
	}
	if err := m.git.Checkout(m.originalBranch); err != nil {
		return err
	}
	if m.stashRef != "" {
		if err := m.git.Exec("stash", "pop"); err != nil {
			return fmt.Errorf("restoring stash %s: %w", m.stashRef, err)
		}
		m.stashRef = ""
	}
	m.prepared = false
	return nil
}
