// Package gitx shells out to git through argv arrays. It owns the branch
// lifecycle used by branch-per-task runs and the primitives the parallel
// scheduler builds its integration chain from.
package gitx

import (
	"context"
	"fmt"
	"strings"

	"github.com/twiced-technology-gmbh/ralphy/internal/execx"
)

// Git runs git commands in a fixed working directory.
type Git struct {
	dir string
	run execx.Runner
}

// New creates a Git bound to dir. A nil runner uses the real subprocess
// runner.
func New(dir string, run execx.Runner) *Git {
	if run == nil {
		run = execx.Run
	}
	return &Git{dir: dir, run: run}
}

// Dir returns the working directory commands run in.
func (g *Git) Dir() string { return g.dir }

// In returns a Git sharing this runner but bound to a different directory.
func (g *Git) In(dir string) *Git {
	return &Git{dir: dir, run: g.run}
}

// Output runs git with the given args and returns trimmed stdout. A
// failing exit code yields the trimmed stderr (or a generic message) as
// the error.
func (g *Git) Output(args ...string) (string, error) {
	res, err := g.run(context.Background(), g.dir, nil, "git", args...)
	if err != nil {
		return "", fmt.Errorf("running git %s: %w", strings.Join(args, " "), err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), execx.ErrorMessage(res, "git", args...))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Exec runs git discarding stdout.
func (g *Git) Exec(args ...string) error {
	_, err := g.Output(args...)
	return err
}

// CurrentBranch returns the abbreviated name of HEAD.
func (g *Git) CurrentBranch() (string, error) {
	return g.Output("rev-parse", "--abbrev-ref", "HEAD")
}

// IsDirty reports whether the working tree has uncommitted changes.
func (g *Git) IsDirty() (bool, error) {
	out, err := g.Output("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Branches returns the short names of all local branches.
func (g *Git) Branches() ([]string, error) {
	out, err := g.Output("branch", "--format", "%(refname:short)")
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// Checkout switches to an existing ref.
func (g *Git) Checkout(ref string) error {
	return g.Exec("checkout", ref)
}

// CheckoutNew creates branch from base and switches to it.
func (g *Git) CheckoutNew(branch, base string) error {
	return g.Exec("checkout", "-b", branch, base)
}

// CreateBranch creates branch pointing at base without switching to it.
func (g *Git) CreateBranch(branch, base string) error {
	return g.Exec("branch", branch, base)
}

// DeleteBranch deletes a branch; force uses -D.
func (g *Git) DeleteBranch(branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	return g.Exec("branch", flag, branch)
}

// Merge merges ref into the current branch without opening an editor.
func (g *Git) Merge(ref string) error {
	return g.Exec("merge", "--no-edit", ref)
}

// MergeAbort aborts an in-progress merge.
func (g *Git) MergeAbort() error {
	return g.Exec("merge", "--abort")
}

// MergeInProgress reports whether MERGE_HEAD exists.
func (g *Git) MergeInProgress() bool {
	out, err := g.Output("rev-parse", "-q", "--verify", "MERGE_HEAD")
	return err == nil && out != ""
}

// CommitNoEdit finalizes the in-progress commit with its prepared message.
func (g *Git) CommitNoEdit() error {
	return g.Exec("commit", "--no-edit")
}

// ConflictedFiles lists paths that are unmerged after a conflicting merge.
func (g *Git) ConflictedFiles() ([]string, error) {
	out, err := g.Output("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// UniqueBranch disambiguates a candidate branch name against the given
// live branch list by appending -2, -3, … until it is unused.
func UniqueBranch(candidate string, existing []string) string {
	used := make(map[string]bool, len(existing))
	for _, b := range existing {
		used[b] = true
	}
	if !used[candidate] {
		return candidate
	}
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s-%d", candidate, n)
		if !used[name] {
			return name
		}
	}
}
