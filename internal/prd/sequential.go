package prd

import (
	"context"
	"os"

	"github.com/twiced-technology-gmbh/ralphy/internal/executor"
	"github.com/twiced-technology-gmbh/ralphy/internal/gitx"
	"github.com/twiced-technology-gmbh/ralphy/internal/pr"
	"github.com/twiced-technology-gmbh/ralphy/internal/task"
)

// Run validates the project and drives the backlog to completion, either
// sequentially or through the parallel scheduler.
func Run(ctx context.Context, opts RunOptions) *Result {
	if opts.Dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			opts.Dir = cwd
		} else {
			opts.Dir = "."
		}
	}

	if opts.Parallel {
		return runParallel(ctx, opts)
	}
	return runSequential(ctx, opts)
}

func runSequential(ctx context.Context, opts RunOptions) *Result {
	if failures := CheckRequirements(opts.Dir, opts); len(failures) > 0 {
		return &Result{Status: "error", Failures: failures, Tasks: []TaskRun{}}
	}

	res := Result{Status: "ok", Tasks: []TaskRun{}}
	if opts.MaxIters != nil && *opts.MaxIters == 0 {
		res.Stopped = StopMaxIterations
		return &res
	}

	d := opts.deps()
	source := opts.source(d)

	var bm branchManager
	if opts.BranchPerTask {
		if d.NewBranchManager != nil {
			bm = d.NewBranchManager(opts.Dir, opts.BaseBranch)
		} else {
			bm = gitx.NewBranchManager(gitx.New(opts.Dir, d.Runner), opts.BaseBranch)
		}
		if err := bm.Prepare(); err != nil {
			return errorResult(res, StageAgent, "", err.Error())
		}
		defer func() { _ = bm.Cleanup() }()
	}

	for opts.MaxIters == nil || res.Iterations < *opts.MaxIters {
		next, err := source.Next()
		if err != nil {
			return errorResult(res, StageTaskSource, "", err.Error())
		}
		if next == nil {
			res.Stopped = StopNoTasks
			return &res
		}

		res.Iterations++
		title := next.Title()

		var taskBranch string
		if bm != nil {
			taskBranch, err = bm.CheckoutForTask(title)
			if err != nil {
				return errorResult(res, StageAgent, title, err.Error())
			}
		}

		outcome := runTask(ctx, d, *next, opts)
		if bm != nil {
			if err := bm.FinishTask(); err != nil {
				return errorResult(res, StageAgent, title, err.Error())
			}
		}

		if outcome.Status != executor.StatusOK {
			msg := outcome.Error
			if outcome.Status == executor.StatusDryRun {
				msg = "Dry run not supported for PRD execution"
			}
			res.Tasks = append(res.Tasks, TaskRun{
				Task: title, Source: next.Source, Status: "failed",
				Attempts: outcome.Attempts, Error: msg,
			})
			appendProgress(opts.Dir, false, title)
			return errorResult(res, StageAgent, title, msg)
		}

		res.Usage.Add(outcome.Usage)
		appendProgress(opts.Dir, true, title)
		res.Tasks = append(res.Tasks, TaskRun{
			Task: title, Source: next.Source, Status: "completed",
			Attempts: outcome.Attempts, Response: outcome.Response,
		})
		res.Completed++

		status, err := source.Complete(title)
		if err != nil {
			return errorResult(res, StageComplete, title, err.Error())
		}
		switch status {
		case task.StatusUpdated, task.StatusAlreadyComplete:
			if opts.CreatePR || opts.DraftPR {
				if err := openPR(d, opts, title, taskBranch, bm); err != nil {
					return errorResult(res, StagePR, title, err.Error())
				}
			}
		case task.StatusNotFound:
			return errorResult(res, StageComplete, title, "Task not found in source")
		}
	}

	res.Stopped = StopMaxIterations
	return &res
}

// runTask executes one task through the single-task executor with the
// run's settings applied.
func runTask(ctx context.Context, d *Deps, t task.Task, opts RunOptions) *executor.Outcome {
	execOpts := executor.Options{
		Engine:     opts.Engine,
		Dir:        opts.Dir,
		SkipTests:  opts.SkipTests,
		SkipLint:   opts.SkipLint,
		AutoCommit: opts.AutoCommit,
		DryRun:     opts.DryRun,
		MaxRetries: opts.MaxRetries,
		RetryDelay: opts.RetryDelay,
		PromptMode: "prd",
		TaskSource: string(t.Source),
	}
	outcome, err := d.Execute(ctx, t.Text, execOpts)
	if err != nil {
		return &executor.Outcome{Status: executor.StatusError, Error: err.Error()}
	}
	return outcome
}

// openPR creates a pull request for a completed task. The head branch is
// the per-task branch name, passed to gh exactly as generated.
func openPR(d *Deps, opts RunOptions, title, taskBranch string, bm branchManager) error {
	base := opts.BaseBranch
	if bm != nil {
		base = bm.BaseBranch()
	}
	_, err := d.CreatePR(pr.Options{
		Dir:        opts.Dir,
		Title:      title,
		Body:       "Automated change for task: " + title,
		HeadBranch: taskBranch,
		BaseBranch: base,
		Draft:      opts.DraftPR,
		Runner:     d.Runner,
	})
	return err
}
