// Package monitor renders a live progress view for parallel runs: one row
// per group with a spinner, the task in flight, and the group's state.
package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/twiced-technology-gmbh/ralphy/internal/prd"
)

var (
	groupStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	taskStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mergeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
)

type eventMsg prd.Event

type doneMsg struct{}

type row struct {
	task  string
	phase string
}

type model struct {
	spin  spinner.Model
	order []string
	rows  map[string]*row
	done  bool
}

func newModel() model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{spin: s, rows: make(map[string]*row)}
}

func (m model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		r, ok := m.rows[msg.Group]
		if !ok {
			r = &row{}
			m.rows[msg.Group] = r
			m.order = append(m.order, msg.Group)
		}
		if msg.Task != "" {
			r.task = msg.Task
		}
		r.phase = msg.Phase
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	default:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
}

func (m model) View() string {
	var b strings.Builder
	for _, g := range m.order {
		r := m.rows[g]
		marker := m.spin.View()
		switch r.phase {
		case "completed":
			marker = doneStyle.Render("✓")
		case "failed":
			marker = failStyle.Render("✗")
		case "merging":
			marker = mergeStyle.Render("⇅")
		}
		fmt.Fprintf(&b, "%s %s %s\n", marker, groupStyle.Render("["+g+"]"), taskStyle.Render(r.task))
	}
	return b.String()
}

// Monitor feeds scheduler events into a running bubbletea program.
type Monitor struct {
	prog     *tea.Program
	finished chan struct{}
}

// Start launches the progress view. The returned Monitor's Notify is
// handed to the scheduler as its progress observer.
func Start() *Monitor {
	m := &Monitor{finished: make(chan struct{})}
	m.prog = tea.NewProgram(newModel())
	go func() {
		defer close(m.finished)
		_, _ = m.prog.Run()
	}()
	return m
}

// Notify forwards a scheduler event to the view. Safe to call from any
// goroutine.
func (m *Monitor) Notify(ev prd.Event) {
	m.prog.Send(eventMsg(ev))
}

// Stop ends the view and waits for the terminal to be restored.
func (m *Monitor) Stop() {
	m.prog.Send(doneMsg{})
	<-m.finished
}
