package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/twiced-technology-gmbh/ralphy/internal/execx"
)

// Invocation is the raw outcome of one agent spawn, without
// classification.
type Invocation struct {
	Command  []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// InvokeOptions parameterize one agent spawn.
type InvokeOptions struct {
	Engine          Engine
	Prompt          string
	Dir             string
	Env             []string // caller overrides, applied after engine env
	LastMessagePath string   // codex only
}

// Invoker spawns an agent subprocess and captures its output to
// completion.
type Invoker interface {
	Invoke(ctx context.Context, opts InvokeOptions) (*Invocation, error)
}

// ProcInvoker is the subprocess-backed Invoker.
type ProcInvoker struct {
	run execx.Runner
}

// NewInvoker creates an Invoker. A nil runner uses the real subprocess
// runner.
func NewInvoker(run execx.Runner) *ProcInvoker {
	if run == nil {
		run = execx.Run
	}
	return &ProcInvoker{run: run}
}

// Invoke spawns the engine binary with its fixed argument template. The
// environment is the inherited one merged with the engine's variables and
// any caller overrides; later sources win.
func (p *ProcInvoker) Invoke(ctx context.Context, opts InvokeOptions) (*Invocation, error) {
	args := opts.Engine.Args(opts.Prompt, opts.LastMessagePath)
	env := append(opts.Engine.Env(), opts.Env...)

	res, err := p.run(ctx, opts.Dir, env, opts.Engine.Binary(), args...)
	if err != nil {
		return nil, fmt.Errorf("spawning %s: %w", opts.Engine.Binary(), err)
	}
	return &Invocation{
		Command:  append([]string{opts.Engine.Binary()}, args...),
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}, nil
}

// CommandString renders the invocation's argv for diagnostics.
func (inv *Invocation) CommandString() string {
	return strings.Join(inv.Command, " ")
}
