package prd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/twiced-technology-gmbh/ralphy/internal/agent"
	"github.com/twiced-technology-gmbh/ralphy/internal/executor"
	"github.com/twiced-technology-gmbh/ralphy/internal/gitx"
	"github.com/twiced-technology-gmbh/ralphy/internal/task"
	"github.com/twiced-technology-gmbh/ralphy/internal/worktree"
)

const integrationBranchPrefix = "ralphy/integration-group-"

// group is an ordered partition of the backlog that must run serially
// within itself.
type group struct {
	key   string
	tasks []task.Task
}

// groupOutcome is what a worker hands to the serialization point after
// finishing a group.
type groupOutcome struct {
	group  string
	record *worktree.Record
	runs   []TaskRun
	usage  agent.Usage
	stage  Stage
	errMsg string
	failed string // offending task title
}

// groupHandoff pairs a group result with an ack the critical section
// closes once the result is fully processed.
type groupHandoff struct {
	out groupOutcome
	ack chan struct{}
}

// runParallel partitions the backlog into dependency groups, fans the
// groups out across isolated worktrees bounded by the parallelism limit,
// then serially promotes their branches into chained integration branches
// and merges the result back to the base branch.
func runParallel(ctx context.Context, opts RunOptions) *Result {
	res := Result{Status: "ok", Tasks: []TaskRun{}}

	if opts.BranchPerTask || opts.CreatePR || opts.DraftPR {
		return errorResult(res, StagePR, "", "Parallel mode cannot be combined with branch-per-task or PR creation")
	}

	d := opts.deps()
	source := opts.source(d)
	fileSource, ok := source.(task.FileSource)
	if !ok {
		return errorResult(res, StageTaskSource, "", "Parallel mode requires a file-backed task source")
	}

	if failures := CheckRequirements(opts.Dir, opts); len(failures) > 0 {
		return &Result{Status: "error", Failures: failures, Tasks: []TaskRun{}}
	}
	if opts.MaxIters != nil && *opts.MaxIters == 0 {
		res.Stopped = StopMaxIterations
		return &res
	}

	groups, err := loadGroups(fileSource, opts.MaxIters)
	if err != nil {
		return errorResult(res, StageTaskSource, "", err.Error())
	}
	if len(groups) == 0 {
		res.Stopped = StopNoTasks
		return &res
	}

	sched, err := newScheduler(opts, d, fileSource, groups)
	if err != nil {
		return errorResult(res, StageTaskSource, "", err.Error())
	}
	return sched.run(ctx, &res)
}

// loadGroups parses the full backlog once, drops completed tasks,
// truncates to the iteration limit, and partitions into groups preserving
// first-seen order.
func loadGroups(source task.FileSource, maxIters *int) ([]group, error) {
	all, err := source.Tasks()
	if err != nil {
		return nil, err
	}

	var pending []task.Task
	for _, t := range all {
		if !t.Completed {
			pending = append(pending, t)
		}
	}
	if maxIters != nil && len(pending) > *maxIters {
		pending = pending[:*maxIters]
	}

	index := make(map[string]int)
	var groups []group
	for _, t := range pending {
		key := t.Group
		if key == "" {
			key = task.DefaultGroup
		}
		i, seen := index[key]
		if !seen {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{key: key})
		}
		groups[i].tasks = append(groups[i].tasks, t)
	}
	return groups, nil
}

// scheduler owns the shared state of one parallel run. Everything it
// mutates after launch is touched only inside the serialization point.
type scheduler struct {
	opts   RunOptions
	deps   *Deps
	source task.FileSource
	groups []group

	git       *gitx.Git
	worktrees *worktree.Manager

	mu           sync.Mutex // guards currentBase and worktree allocation
	currentBase  string
	originalBase string

	integrationBranches []string
	groupBranches       []string // parallel branches in completion order
}

func newScheduler(opts RunOptions, d *Deps, source task.FileSource, groups []group) (*scheduler, error) {
	git := gitx.New(opts.Dir, d.Runner)
	base := opts.BaseBranch
	if base == "" {
		head, err := git.CurrentBranch()
		if err != nil {
			return nil, fmt.Errorf("resolving base branch: %w", err)
		}
		base = head
	}
	return &scheduler{
		opts:         opts,
		deps:         d,
		source:       source,
		groups:       groups,
		git:          git,
		worktrees:    worktree.New(git, "", base),
		currentBase:  base,
		originalBase: base,
	}, nil
}

// run launches the worker pool, serializes group results, and performs the
// final integration.
func (s *scheduler) run(ctx context.Context, res *Result) *Result {
	stopSignals := s.trapSignals()
	defer stopSignals()

	workerCount := s.opts.MaxParallel
	if workerCount <= 0 || workerCount > len(s.groups) {
		workerCount = len(s.groups)
	}
	if workerCount < 1 {
		workerCount = 1
	}

	groupCh := make(chan group)
	resultCh := make(chan groupHandoff) // single-slot: the serialization point

	var wg sync.WaitGroup
	for range workerCount {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range groupCh {
				// Hand the result over and wait until the critical
				// section has processed it, so this worker's next group
				// observes the advanced base branch.
				ack := make(chan struct{})
				resultCh <- groupHandoff{out: s.runGroup(ctx, g), ack: ack}
				<-ack
			}
		}()
	}
	go func() {
		for _, g := range s.groups {
			groupCh <- g
		}
		close(groupCh)
	}()

	// The critical section: results are consumed strictly one at a time,
	// in completion order. Branch promotion and shared-state mutation
	// happen only here.
	var failure *groupOutcome
	var mergeErr string
	chained := s.source.Type() == task.SourceYAML && len(s.groups) > 1
	for range s.groups {
		h := <-resultCh
		out := h.out
		res.Iterations += len(out.runs)
		res.Usage.Add(out.usage)
		res.Tasks = append(res.Tasks, out.runs...)
		for _, r := range out.runs {
			if r.Status == "completed" {
				res.Completed++
			}
		}
		if out.stage != "" {
			if failure == nil {
				failure = &out
			}
		} else {
			s.groupBranches = append(s.groupBranches, out.record.Branch)
			if chained && failure == nil && mergeErr == "" {
				if err := s.promoteGroup(out); err != nil {
					mergeErr = err.Error()
				}
			}
		}
		close(h.ack)
	}
	wg.Wait()

	sort.SliceStable(res.Tasks, func(i, j int) bool {
		return res.Tasks[i].index < res.Tasks[j].index
	})

	if failure != nil {
		_ = s.worktrees.Cleanup(worktree.CleanupOptions{PreserveDirty: true})
		return errorResult(*res, failure.stage, failure.failed, failure.errMsg)
	}
	if mergeErr != "" {
		_ = s.worktrees.Cleanup(worktree.CleanupOptions{PreserveDirty: true})
		return errorResult(*res, StageMerge, "", mergeErr)
	}

	if err := s.finalIntegration(ctx); err != nil {
		return errorResult(*res, StageMerge, "", err.Error())
	}
	return res
}

// trapSignals registers a one-shot SIGINT/SIGTERM handler that preserves
// dirty worktrees and exits with the conventional signal code. The
// returned stop function removes the handler on normal exit.
func (s *scheduler) trapSignals() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var once sync.Once
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		once.Do(func() {
			_ = s.worktrees.Cleanup(worktree.CleanupOptions{PreserveDirty: true})
			code := 130
			if sig == syscall.SIGTERM {
				code = 143
			}
			os.Exit(code)
		})
	}()
	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}

// runGroup executes one group's tasks serially inside an ephemeral
// worktree, completing each against the worktree's copy of the backlog.
func (s *scheduler) runGroup(ctx context.Context, g group) groupOutcome {
	out := groupOutcome{group: g.key}

	s.mu.Lock()
	base := s.currentBase
	rec, err := s.worktrees.Allocate(g.key, base, s.source.Path())
	s.mu.Unlock()
	if err != nil {
		out.stage = StageAgent
		out.errMsg = err.Error()
		return out
	}
	out.record = rec

	wtSource := s.source.Rebind(rec.CopiedTaskSource)
	for _, t := range g.tasks {
		title := t.Title()
		s.deps.notify(Event{Group: g.key, Task: title, Phase: "running"})

		outcome := s.runWorktreeTask(ctx, t, rec.Path)
		if outcome.Status != executor.StatusOK {
			msg := outcome.Error
			if outcome.Status == executor.StatusDryRun {
				msg = "Dry run not supported for PRD execution"
			}
			out.runs = append(out.runs, TaskRun{
				Task: title, Source: t.Source, Status: "failed",
				Attempts: outcome.Attempts, Error: msg, index: t.Index,
			})
			out.stage = StageAgent
			out.errMsg = msg
			out.failed = title
			appendProgress(s.opts.Dir, false, title)
			s.deps.notify(Event{Group: g.key, Task: title, Phase: "failed"})
			return out
		}

		out.usage.Add(outcome.Usage)
		out.runs = append(out.runs, TaskRun{
			Task: title, Source: t.Source, Status: "completed",
			Attempts: outcome.Attempts, Response: outcome.Response, index: t.Index,
		})
		appendProgress(s.opts.Dir, true, title)

		status, err := wtSource.Complete(title)
		if err != nil || status == task.StatusNotFound {
			msg := "Task not found in source"
			if err != nil {
				msg = err.Error()
			}
			out.stage = StageComplete
			out.errMsg = msg
			out.failed = title
			return out
		}
		s.deps.notify(Event{Group: g.key, Task: title, Phase: "completed"})
	}
	return out
}

// runWorktreeTask runs one task with the working directory pointed at the
// group's worktree.
func (s *scheduler) runWorktreeTask(ctx context.Context, t task.Task, dir string) *executor.Outcome {
	execOpts := executor.Options{
		Engine:     s.opts.Engine,
		Dir:        dir,
		SkipTests:  s.opts.SkipTests,
		SkipLint:   s.opts.SkipLint,
		AutoCommit: s.opts.AutoCommit,
		DryRun:     s.opts.DryRun,
		MaxRetries: s.opts.MaxRetries,
		RetryDelay: s.opts.RetryDelay,
		PromptMode: "prd",
		TaskSource: string(t.Source),
	}
	outcome, err := s.deps.Execute(ctx, t.Text, execOpts)
	if err != nil {
		return &executor.Outcome{Status: executor.StatusError, Error: err.Error()}
	}
	return outcome
}

// promoteGroup folds a finished group's branch into a fresh integration
// branch forked from the current base, then advances the base pointer.
// Runs only inside the serialization point.
func (s *scheduler) promoteGroup(out groupOutcome) error {
	s.deps.notify(Event{Group: out.group, Phase: "merging"})

	// The lock also keeps these main-checkout git operations from racing
	// a concurrent worktree allocation.
	s.mu.Lock()
	defer s.mu.Unlock()

	branches, err := s.git.Branches()
	if err != nil {
		return err
	}
	integration := gitx.UniqueBranch(integrationBranchPrefix+task.Slug(out.group), branches)

	priorHead, err := s.git.CurrentBranch()
	if err != nil {
		return err
	}

	base := s.currentBase

	if err := s.git.CreateBranch(integration, base); err != nil {
		return err
	}
	if err := s.git.Checkout(integration); err != nil {
		_ = s.git.DeleteBranch(integration, true)
		return err
	}
	if err := s.git.Merge(out.record.Branch); err != nil {
		_ = s.git.MergeAbort()
		_ = s.git.Checkout(priorHead)
		_ = s.git.DeleteBranch(integration, true)
		return fmt.Errorf("merging %s into %s: %w", out.record.Branch, integration, err)
	}
	if err := s.git.Checkout(priorHead); err != nil {
		return err
	}

	s.integrationBranches = append(s.integrationBranches, integration)
	s.currentBase = integration
	return nil
}

// finalIntegration lands the run back on the original base branch. With a
// chain, only the last integration branch is merged (it transitively
// contains all prior ones); without one, each parallel branch merges
// directly, with the AI resolver handling conflicts.
func (s *scheduler) finalIntegration(ctx context.Context) error {
	// Worktrees must be gone before their branches can be deleted or the
	// branches merged from the main checkout.
	if err := s.worktrees.Cleanup(worktree.CleanupOptions{}); err != nil {
		return err
	}

	if err := s.git.Checkout(s.originalBase); err != nil {
		return err
	}

	if len(s.integrationBranches) > 0 {
		last := s.integrationBranches[len(s.integrationBranches)-1]
		if err := s.git.Merge(last); err != nil {
			return fmt.Errorf("merging %s: %w", last, err)
		}
		for _, b := range append(s.integrationBranches, s.groupBranches...) {
			if b == s.originalBase {
				continue
			}
			_ = s.git.DeleteBranch(b, true)
		}
		return nil
	}

	var unresolved []string
	for _, b := range s.groupBranches {
		if err := s.git.Merge(b); err != nil {
			if resolveErr := s.resolveConflicts(ctx); resolveErr != nil {
				unresolved = append(unresolved, b)
				continue
			}
		}
		_ = s.git.DeleteBranch(b, false)
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("Merge conflicts remain in: %s", strings.Join(unresolved, ", "))
	}
	return nil
}
