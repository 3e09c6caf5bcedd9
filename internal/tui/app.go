// Package tui is the terminal monitor for the running engine: connection
// state, recent evaluation cycles, and a manual-run key. Rule authoring
// happens elsewhere (the extension UI); this view is read-only apart from
// triggering a cycle.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/overtabbed/internal/browser"
	"github.com/lotas/overtabbed/internal/engine"
)

const historyLimit = 12

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	connectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	waitingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	matchStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type cycleMsg struct {
	result engine.CycleResult
}

type tickMsg time.Time

type runDoneMsg struct{}

// Model is the monitor's bubbletea model.
type Model struct {
	engine *engine.Engine
	bridge *browser.Bridge
	cycles <-chan engine.CycleResult

	history    []engine.CycleResult
	runPending bool
	width      int
	height     int
}

// NewModel builds the monitor. cycles receives every CycleResult the engine
// reports; the caller wires it via engine.SetOnCycle before Start.
func NewModel(eng *engine.Engine, bridge *browser.Bridge, cycles <-chan engine.CycleResult) Model {
	return Model{
		engine: eng,
		bridge: bridge,
		cycles: cycles,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForCycle(m.cycles), tick())
}

func waitForCycle(cycles <-chan engine.CycleResult) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-cycles
		if !ok {
			return nil
		}
		return cycleMsg{result: res}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func runNow(eng *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		eng.RunNow(context.Background())
		return runDoneMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tick()

	case cycleMsg:
		m.history = append([]engine.CycleResult{msg.result}, m.history...)
		if len(m.history) > historyLimit {
			m.history = m.history[:historyLimit]
		}
		return m, waitForCycle(m.cycles)

	case runDoneMsg:
		m.runPending = false
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if !m.runPending {
				m.runPending = true
				return m, runNow(m.engine)
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("overtabbed"))
	b.WriteString("  ")
	if m.bridge.Connected() {
		b.WriteString(connectedStyle.Render("● extension connected"))
	} else {
		b.WriteString(waitingStyle.Render("○ waiting for extension"))
	}
	if m.runPending {
		b.WriteString(dimStyle.Render("  (running...)"))
	}
	b.WriteString("\n\n")

	if len(m.history) == 0 {
		b.WriteString(dimStyle.Render("  no evaluation cycles yet"))
		b.WriteString("\n")
	}

	for _, res := range m.history {
		b.WriteString("  ")
		b.WriteString(dimStyle.Render(res.Start.Format("15:04:05")))
		b.WriteString("  ")
		b.WriteString(renderCycle(res))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  r: run now   q: quit"))
	return b.String()
}

func renderCycle(res engine.CycleResult) string {
	if res.Skipped {
		return dimStyle.Render("skipped (cycle in flight)")
	}
	if res.Err != nil {
		return errStyle.Render("failed: " + res.Err.Error())
	}

	line := fmt.Sprintf("%d tabs, %d rules", res.TabCount, res.RulesEvaluated)
	if len(res.Matches) > 0 {
		var names []string
		for _, match := range res.Matches {
			names = append(names, fmt.Sprintf("%s (%d)", match.Name, match.Tabs))
		}
		line += "  " + matchStyle.Render(strings.Join(names, ", "))
	}
	if res.ActionsAttempted > 0 {
		actions := fmt.Sprintf("  %d actions", res.ActionsAttempted)
		if res.ActionsFailed > 0 {
			actions += errStyle.Render(fmt.Sprintf(" (%d failed)", res.ActionsFailed))
		}
		line += actions
	}
	return line
}
