package prd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twiced-technology-gmbh/ralphy/internal/agent"
)

// resolveConflicts asks the agent to resolve an in-progress merge
// conflict in the main checkout. The agent is invoked once; if conflicts
// remain afterwards the merge is aborted.
func (s *scheduler) resolveConflicts(ctx context.Context) error {
	files, err := s.git.ConflictedFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	engine := s.opts.Engine
	if engine == "" {
		engine = agent.DefaultEngine
	}

	invoker := agent.NewInvoker(s.deps.Runner)
	_, err = invoker.Invoke(ctx, agent.InvokeOptions{
		Engine: engine,
		Prompt: conflictPrompt(files),
		Dir:    s.opts.Dir,
	})
	if err != nil {
		_ = s.git.MergeAbort()
		return fmt.Errorf("invoking merge resolver: %w", err)
	}

	remaining, err := s.git.ConflictedFiles()
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		_ = s.git.MergeAbort()
		return errors.New("Merge conflict could not be resolved automatically")
	}
	if s.git.MergeInProgress() {
		if err := s.git.CommitNoEdit(); err != nil {
			return err
		}
	}
	return nil
}

// conflictPrompt lists the conflicted files and instructs the agent to
// finish the merge.
func conflictPrompt(files []string) string {
	var b strings.Builder
	b.WriteString("A git merge in this repository stopped on conflicts. The following files contain conflict markers:\n\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nRead each file, resolve the conflict by removing the markers and keeping the correct combined content, ")
	b.WriteString("then run `git add` on the resolved files and `git commit --no-edit` to finish the merge.\n")
	return b.String()
}
