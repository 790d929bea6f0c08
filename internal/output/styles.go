package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/twiced-technology-gmbh/ralphy/internal/prd"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

// DisableColor strips all styling from text output.
func DisableColor() {
	headerStyle = lipgloss.NewStyle()
	dimStyle = lipgloss.NewStyle()
	successStyle = lipgloss.NewStyle()
	failureStyle = lipgloss.NewStyle()
	warnStyle = lipgloss.NewStyle()
}

// Messagef prints a plain formatted line.
func Messagef(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}

// RunResult renders a PRD run result as human-readable text.
func RunResult(w io.Writer, res *prd.Result) {
	for _, t := range res.Tasks {
		if t.Status == "completed" {
			fmt.Fprintf(w, "%s %s %s\n", successStyle.Render("✓"), t.Task, dimStyle.Render(attempts(t.Attempts)))
		} else {
			fmt.Fprintf(w, "%s %s %s\n", failureStyle.Render("✗"), t.Task, dimStyle.Render(t.Error))
		}
	}

	if res.Status == "ok" {
		fmt.Fprintf(w, "%s %d task(s) completed in %d iteration(s)\n",
			headerStyle.Render("Done:"), res.Completed, res.Iterations)
	} else {
		for _, f := range res.Failures {
			fmt.Fprintf(w, "%s %s\n", failureStyle.Render("✗"), f)
		}
		if res.Message != "" {
			stage := ""
			if res.Stage != "" {
				stage = " [" + string(res.Stage) + "]"
			}
			fmt.Fprintf(w, "%s%s %s\n", failureStyle.Render("Error:"), warnStyle.Render(stage), res.Message)
		}
	}

	if res.Usage.InputTokens > 0 || res.Usage.OutputTokens > 0 {
		line := fmt.Sprintf("Tokens: %d in / %d out", res.Usage.InputTokens, res.Usage.OutputTokens)
		if res.Usage.Cost != nil {
			line += fmt.Sprintf(", cost $%.4f", *res.Usage.Cost)
		}
		fmt.Fprintln(w, dimStyle.Render(line))
	}
}

func attempts(n int) string {
	if n <= 1 {
		return ""
	}
	return fmt.Sprintf("(%d attempts)", n)
}
