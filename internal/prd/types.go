// Package prd drives a whole backlog: the sequential requirement/next/
// execute/complete loop and the parallel scheduler that fans groups out
// across git worktrees and chains their branches back together.
package prd

import (
	"context"
	"path/filepath"
	"time"

	"github.com/twiced-technology-gmbh/ralphy/internal/agent"
	"github.com/twiced-technology-gmbh/ralphy/internal/execx"
	"github.com/twiced-technology-gmbh/ralphy/internal/executor"
	"github.com/twiced-technology-gmbh/ralphy/internal/pr"
	"github.com/twiced-technology-gmbh/ralphy/internal/task"
)

// Stage labels the failure point of a run so callers can route errors.
type Stage string

// Run stages.
const (
	StageTaskSource Stage = "task-source"
	StageAgent      Stage = "agent"
	StageComplete   Stage = "complete"
	StagePR         Stage = "pr"
	StageMerge      Stage = "merge"
)

// StopReason explains why a successful run stopped.
type StopReason string

// Stop reasons.
const (
	StopNoTasks       StopReason = "no-tasks"
	StopMaxIterations StopReason = "max-iterations"
)

// TaskRun is the record of one attempted task. Result.Tasks lists these in
// attempt order for a sequential run and in source order for a parallel
// run.
type TaskRun struct {
	Task     string      `json:"task"`
	Source   task.Source `json:"source"`
	Status   string      `json:"status"` // completed | failed
	Attempts int         `json:"attempts,omitempty"`
	Response string      `json:"response,omitempty"`
	Error    string      `json:"error,omitempty"`

	index int // original source order, parallel mode only
}

// Result is the outcome of a PRD run.
type Result struct {
	Status     string      `json:"status"` // ok | error
	Stopped    StopReason  `json:"stopped,omitempty"`
	Stage      Stage       `json:"stage,omitempty"`
	Message    string      `json:"message,omitempty"`
	Task       string      `json:"task,omitempty"`
	Failures   []string    `json:"failures,omitempty"`
	Iterations int         `json:"iterations"`
	Completed  int         `json:"completed"`
	Tasks      []TaskRun   `json:"tasks"`
	Usage      agent.Usage `json:"usage"`
}

// errorResult builds a stage-tagged error result carrying accumulated
// state.
func errorResult(base Result, stage Stage, taskTitle, message string) *Result {
	base.Status = "error"
	base.Stage = stage
	base.Task = taskTitle
	base.Message = message
	if base.Tasks == nil {
		base.Tasks = []TaskRun{}
	}
	return &base
}

// RunOptions parameterize a PRD run.
type RunOptions struct {
	Dir string // repository root; defaults to the process cwd

	PRDPath     string
	YAMLPath    string
	GitHubRepo  string
	GitHubLabel string

	Engine     agent.Engine
	MaxIters   *int // nil = unbounded; 0 = return immediately with no work
	MaxRetries int
	RetryDelay time.Duration

	SkipTests  bool
	SkipLint   bool
	AutoCommit bool
	DryRun     bool

	BranchPerTask bool
	BaseBranch    string
	CreatePR      bool
	DraftPR       bool

	Parallel    bool
	MaxParallel int

	Deps *Deps
}

// branchManager is the seam over gitx.BranchManager.
type branchManager interface {
	Prepare() error
	BaseBranch() string
	CheckoutForTask(title string) (string, error)
	FinishTask() error
	Cleanup() error
}

// Deps swaps external touchpoints for tests: the subprocess runner (used
// for git, gh and the merge resolver's agent, and by the worktree manager
// through git), the agent executor, the branch manager factory, the PR
// creator, and the task source itself. The worktree manager has no
// factory of its own here.
type Deps struct {
	Runner           execx.Runner
	Source           task.TaskSource
	Execute          func(ctx context.Context, text string, opts executor.Options) (*executor.Outcome, error)
	NewBranchManager func(dir, base string) branchManager
	CreatePR         func(opts pr.Options) (string, error)

	// ProgressFn observes per-task lifecycle events (used by the live
	// monitor); nil means no observer.
	ProgressFn func(ev Event)
}

// Event is a progress notification from a running scheduler.
type Event struct {
	Group string
	Task  string
	Phase string // running | completed | failed | merging
}

// notify reports an event if an observer is attached.
func (d *Deps) notify(ev Event) {
	if d != nil && d.ProgressFn != nil {
		d.ProgressFn(ev)
	}
}

// deps returns the injected dependencies with defaults filled in.
func (o *RunOptions) deps() *Deps {
	d := o.Deps
	if d == nil {
		d = &Deps{}
	}
	if d.Runner == nil {
		d.Runner = execx.Run
	}
	if d.Execute == nil {
		d.Execute = executor.Execute
	}
	if d.CreatePR == nil {
		d.CreatePR = pr.Create
	}
	return d
}

// source resolves the task source by the configured precedence unless one
// was injected.
func (o *RunOptions) source(d *Deps) task.TaskSource {
	if d.Source != nil {
		return d.Source
	}
	return task.Select(task.SelectOptions{
		PRDPath:     o.resolve(o.prdPath()),
		YAMLPath:    o.resolve(o.YAMLPath),
		GitHubRepo:  o.GitHubRepo,
		GitHubLabel: o.GitHubLabel,
		Runner:      d.Runner,
	})
}

func (o *RunOptions) prdPath() string {
	if o.PRDPath != "" {
		return o.PRDPath
	}
	return task.DefaultPRDPath
}

// resolve anchors a relative source path at the run's project directory.
func (o *RunOptions) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || o.Dir == "" {
		return path
	}
	return filepath.Join(o.Dir, path)
}
