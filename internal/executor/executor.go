// Package executor runs a single task through an agent with bounded
// retries.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/twiced-technology-gmbh/ralphy/internal/agent"
	"github.com/twiced-technology-gmbh/ralphy/internal/config"
	"github.com/twiced-technology-gmbh/ralphy/internal/prompt"
)

// Defaults for the retry loop.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

// Status classifies an execution outcome.
type Status string

// Execution outcomes. Exactly one is returned per task.
const (
	StatusOK     Status = "ok"
	StatusError  Status = "error"
	StatusDryRun Status = "dry-run"
)

// Options parameterize one task execution.
type Options struct {
	Engine     agent.Engine
	Dir        string
	SkipTests  bool
	SkipLint   bool
	AutoCommit bool
	DryRun     bool
	MaxRetries int           // default 3
	RetryDelay time.Duration // default 5s, no backoff

	PromptMode     string
	TaskSource     string
	TaskSourcePath string
	IssueBody      string

	// Invoker overrides agent spawning; nil uses the real subprocess
	// invoker.
	Invoker agent.Invoker

	// Sleep overrides the inter-attempt delay; nil sleeps wall time.
	Sleep func(time.Duration)
}

// Outcome is the run record of one task execution.
type Outcome struct {
	Status   Status       `json:"status"`
	Engine   agent.Engine `json:"engine"`
	Attempts int          `json:"attempts,omitempty"`
	Response string       `json:"response,omitempty"`
	Usage    agent.Usage  `json:"usage"`
	Error    string       `json:"error,omitempty"`
	Prompt   string       `json:"prompt,omitempty"` // dry-run only
	Stdout   string       `json:"-"`
	Stderr   string       `json:"-"`
	ExitCode int          `json:"exitCode,omitempty"`
}

// Execute builds the prompt and drives the agent until it succeeds or the
// retry budget is exhausted. A dry run returns the composed prompt without
// side effects: no files written, no agent spawned.
func Execute(ctx context.Context, taskText string, opts Options) (*Outcome, error) {
	if opts.Engine == "" {
		opts.Engine = agent.DefaultEngine
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Invoker == nil {
		opts.Invoker = agent.NewInvoker(nil)
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	cfg, err := config.Load(orCwd(opts.Dir))
	if err != nil {
		cfg = nil // prompts work without a project config
	}
	composed := prompt.Compose(prompt.Options{
		Task:       taskText,
		Config:     cfg,
		SkipTests:  opts.SkipTests,
		SkipLint:   opts.SkipLint,
		AutoCommit: opts.AutoCommit,
		Mode:       opts.PromptMode,
		TaskSource: opts.TaskSource,
		IssueBody:  opts.IssueBody,
	})

	if opts.DryRun {
		return &Outcome{Status: StatusDryRun, Engine: opts.Engine, Prompt: composed}, nil
	}

	out := &Outcome{Status: StatusError, Engine: opts.Engine}
	for out.Attempts = 1; out.Attempts <= opts.MaxRetries; out.Attempts++ {
		errMsg, done := attempt(ctx, composed, opts, out)
		if done {
			return out, nil
		}
		out.Error = errMsg
		if out.Attempts < opts.MaxRetries {
			opts.Sleep(opts.RetryDelay)
		}
	}
	out.Attempts = opts.MaxRetries
	return out, nil
}

// attempt performs one agent invocation. It reports the retry-eligible
// error message, or done=true on success with out filled in. The last
// process output is always recorded so an exhausted run carries it.
func attempt(ctx context.Context, composed string, opts Options, out *Outcome) (string, bool) {
	invOpts := agent.InvokeOptions{
		Engine: opts.Engine,
		Prompt: composed,
		Dir:    opts.Dir,
	}

	// codex writes its final message to a scratch file that lives only
	// for this attempt.
	if opts.Engine == agent.EngineCodex {
		scratch, err := os.MkdirTemp("", "ralphy-codex-*")
		if err != nil {
			return fmt.Sprintf("creating codex scratch dir: %v", err), false
		}
		defer os.RemoveAll(scratch)
		invOpts.LastMessagePath = filepath.Join(scratch, "last-message.txt")
	}

	inv, err := opts.Invoker.Invoke(ctx, invOpts)
	if err != nil {
		return err.Error(), false
	}
	out.Stdout = inv.Stdout
	out.Stderr = inv.Stderr
	out.ExitCode = inv.ExitCode

	parsed := agent.Parse(opts.Engine, inv.Stdout, invOpts.LastMessagePath)
	switch {
	case parsed.Err != "":
		return parsed.Err, false
	case inv.ExitCode != 0:
		return fmt.Sprintf("Agent exited with code %d", inv.ExitCode), false
	case parsed.Response == "":
		return "Empty response from agent", false
	}

	out.Status = StatusOK
	out.Response = parsed.Response
	out.Usage = parsed.Usage
	out.Error = ""
	return "", true
}

func orCwd(dir string) string {
	if dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}
