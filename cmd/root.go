// Package cmd implements the ralphy CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/ralphy/internal/clierr"
	"github.com/twiced-technology-gmbh/ralphy/internal/output"
)

// version is set at build time via ldflags.
var version = "dev"

// Global flags.
var (
	flagInit    bool
	flagConfig  bool
	flagAddRule string

	flagPRD         string
	flagYAML        string
	flagGitHub      string
	flagGitHubLabel string

	flagMaxIterations int
	flagMaxRetries    int
	flagRetryDelay    int

	flagSkipTests bool
	flagNoTests   bool
	flagSkipLint  bool
	flagNoLint    bool
	flagFast      bool
	flagDryRun    bool

	flagClaude   bool
	flagOpencode bool
	flagCursor   bool
	flagAgent    bool
	flagCodex    bool
	flagQwen     bool
	flagDroid    bool

	flagParallel    bool
	flagMaxParallel int

	flagBranchPerTask bool
	flagBaseBranch    string
	flagCreatePR      bool
	flagDraftPR       bool

	flagCommit   bool
	flagNoCommit bool

	flagVerbose bool
	flagJSON    bool
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:   "ralphy [task...]",
	Short: "Autonomous code-change driver for AI agents",
	Long: `ralphy works through a task backlog (Markdown checklist, YAML file, or
GitHub issues), delegating each task to a command-line AI agent and
marking it complete when the agent succeeds.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runRoot,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if flagNoColor || !output.ColorEnabled() {
			output.DisableColor()
		}
	},
}

func init() {
	f := rootCmd.Flags()
	f.BoolVar(&flagInit, "init", false, "create .ralphy/config.yaml for this project")
	f.BoolVar(&flagConfig, "config", false, "print the project config")
	f.StringVar(&flagAddRule, "add-rule", "", "append a rule to the project config")

	f.StringVar(&flagPRD, "prd", "", "path to Markdown task backlog (default PRD.md)")
	f.StringVar(&flagYAML, "yaml", "", "path to YAML task backlog")
	f.StringVar(&flagGitHub, "github", "", "GitHub repository to read issues from (owner/repo)")
	f.StringVar(&flagGitHubLabel, "github-label", "", "only consider issues with this label")

	f.IntVar(&flagMaxIterations, "max-iterations", -1, "stop after N tasks (-1 for unbounded)")
	f.IntVar(&flagMaxRetries, "max-retries", 0, "agent attempts per task (default 3)")
	f.IntVar(&flagRetryDelay, "retry-delay", 0, "seconds between attempts (default 5)")

	f.BoolVar(&flagSkipTests, "skip-tests", false, "do not ask the agent to run tests")
	f.BoolVar(&flagNoTests, "no-tests", false, "alias for --skip-tests")
	f.BoolVar(&flagSkipLint, "skip-lint", false, "do not ask the agent to run the linter")
	f.BoolVar(&flagNoLint, "no-lint", false, "alias for --skip-lint")
	f.BoolVar(&flagFast, "fast", false, "skip tests and lint")
	f.BoolVar(&flagDryRun, "dry-run", false, "print the composed prompt without running the agent")

	f.BoolVar(&flagClaude, "claude", false, "use the claude engine (default)")
	f.BoolVar(&flagOpencode, "opencode", false, "use the opencode engine")
	f.BoolVar(&flagCursor, "cursor", false, "use the cursor engine")
	f.BoolVar(&flagAgent, "agent", false, "alias for --cursor")
	f.BoolVar(&flagCodex, "codex", false, "use the codex engine")
	f.BoolVar(&flagQwen, "qwen", false, "use the qwen engine")
	f.BoolVar(&flagDroid, "droid", false, "use the droid engine")

	f.BoolVar(&flagParallel, "parallel", false, "run task groups concurrently in git worktrees")
	f.IntVar(&flagMaxParallel, "max-parallel", 0, "max concurrent groups (default: one worker per group)")

	f.BoolVar(&flagBranchPerTask, "branch-per-task", false, "create a branch per task")
	f.StringVar(&flagBaseBranch, "base-branch", "", "base branch for per-task branches")
	f.BoolVar(&flagCreatePR, "create-pr", false, "open a pull request per completed task")
	f.BoolVar(&flagDraftPR, "draft-pr", false, "open pull requests as drafts")

	f.BoolVar(&flagCommit, "commit", true, "ask the agent to commit its changes")
	f.BoolVar(&flagNoCommit, "no-commit", false, "leave changes uncommitted")

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "print agent output details")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable color output")
}

// Execute runs the root command.
func Execute() {
	_, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}

	// Handle SilentError — exit with code, no output.
	var silent *clierr.SilentError
	if errors.As(err, &silent) {
		os.Exit(silent.Code)
	}

	if output.Detect(flagJSON) == output.FormatJSON {
		var cliErr *clierr.Error
		if errors.As(err, &cliErr) {
			output.JSONError(os.Stdout, cliErr.Code, cliErr.Message, cliErr.Details)
			os.Exit(cliErr.ExitCode())
		}
		output.JSONError(os.Stdout, clierr.InternalError, err.Error(), nil)
		os.Exit(2) //nolint:mnd // exit code 2 for internal errors
	}

	fmt.Fprintln(os.Stderr, err)
	var cliErr *clierr.Error
	if errors.As(err, &cliErr) {
		os.Exit(cliErr.ExitCode())
	}
	os.Exit(1)
}

// runRoot dispatches by flag precedence: init, config, add-rule,
// positional task, PRD run.
func runRoot(_ *cobra.Command, args []string) error {
	switch {
	case flagInit:
		return runInit()
	case flagConfig:
		return runConfigPrint()
	case flagAddRule != "":
		return runAddRule(flagAddRule)
	case len(args) > 0:
		return runSingle(strings.Join(args, " "))
	default:
		return runPRD()
	}
}

// engineName resolves the engine boolean flags; the first set flag wins.
func engineName() string {
	switch {
	case flagClaude:
		return "claude"
	case flagOpencode:
		return "opencode"
	case flagCursor || flagAgent:
		return "cursor"
	case flagCodex:
		return "codex"
	case flagQwen:
		return "qwen"
	case flagDroid:
		return "droid"
	}
	return ""
}

func skipTests() bool { return flagSkipTests || flagNoTests || flagFast }
func skipLint() bool  { return flagSkipLint || flagNoLint || flagFast }
func autoCommit() bool {
	return flagCommit && !flagNoCommit
}
