// Package pr opens GitHub pull requests through the gh CLI.
package pr

import (
	"context"
	"fmt"
	"strings"

	"github.com/twiced-technology-gmbh/ralphy/internal/execx"
)

// Options describe the pull request to open. HeadBranch is passed to gh
// exactly as given.
type Options struct {
	Dir        string
	Title      string
	Body       string
	HeadBranch string
	BaseBranch string
	Draft      bool

	Runner execx.Runner
}

// Create opens a pull request and returns the URL gh printed.
func Create(opts Options) (string, error) {
	run := opts.Runner
	if run == nil {
		run = execx.Run
	}

	args := []string{"pr", "create", "--title", opts.Title, "--body", opts.Body}
	if opts.HeadBranch != "" {
		args = append(args, "--head", opts.HeadBranch)
	}
	if opts.BaseBranch != "" {
		args = append(args, "--base", opts.BaseBranch)
	}
	if opts.Draft {
		args = append(args, "--draft")
	}

	res, err := run(context.Background(), opts.Dir, nil, "gh", args...)
	if err != nil {
		return "", fmt.Errorf("running gh: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s", execx.ErrorMessage(res, "gh", args...))
	}
	return strings.TrimSpace(res.Stdout), nil
}
