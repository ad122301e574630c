package worker

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/timebox/internal/ui/components"
	"github.com/ldi/timebox/pkg/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Padding(0, 1)

	currentStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, true, true, false).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Margin(1, 0)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

type OutputMsg string
type StatusMsg string
type TaskMsg struct {
	Index int
	Total int
	Task  models.Task
}
type TickMsg struct {
	TaskID    int
	Remaining int
}
type TaskResultMsg components.TaskResult
type DoneMsg struct {
	Run *models.Run
}

type TUIModel struct {
	Mode      models.RunMode
	Index     int
	Total     int
	Estimated int
	Current   *models.Task
	Remaining int
	History   *components.CompletedTasks
	Output    *components.RunLog

	ready         bool
	expanded      bool
	interrupted   bool
	done          bool
	width         int
	height        int
	headerHeight  int
	currentHeight int
	historyHeight int
	err           error
}

func NewTUIModel(mode models.RunMode, tasks []models.Task) *TUIModel {
	estimated := 0
	for _, t := range tasks {
		estimated += t.Duration
	}
	return &TUIModel{
		Mode:      mode,
		Total:     len(tasks),
		Estimated: estimated,
		History:   components.NewCompletedTasks(0),
		Output:    components.NewRunLog(0, 0),
	}
}

// Interrupted reports whether the user aborted the run.
func (m *TUIModel) Interrupted() bool {
	return m.interrupted
}

func (m TUIModel) Init() tea.Cmd {
	return nil
}

func (m *TUIModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	if !m.ready {
		m.Output.SetSize(width, 0)
		m.ready = true
	}
	m.History.Width = width
	m.recalculateLayout()
}

func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.interrupted = true
			return m, tea.Quit
		case "q":
			if m.done {
				return m, tea.Quit
			}
		case "e", tea.KeyEnter.String():
			m.expanded = !m.expanded
			m.recalculateLayout()
		}

	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case OutputMsg:
		m.Output.Println(string(msg))

	case StatusMsg:
		m.Output.Status(string(msg))

	case TaskMsg:
		task := msg.Task
		m.Index = msg.Index
		m.Total = msg.Total
		m.Current = &task
		m.Remaining = task.Duration
		m.Output.Printf("Executing: %s | Priority: %s | Duration: %d seconds", task.Description, task.Priority, task.Duration)
		m.Output.Printf("Time remaining: %d seconds", task.Duration)
		m.recalculateLayout()

	case TickMsg:
		if m.Current != nil && m.Current.ID == msg.TaskID {
			m.Remaining = msg.Remaining
			m.Output.ReplaceLast(fmt.Sprintf("Time remaining: %d seconds", msg.Remaining))
		}

	case TaskResultMsg:
		res := components.TaskResult(msg)
		m.History.Add(res, 5)
		if res.Completed {
			m.Output.ReplaceLast(fmt.Sprintf("Task %d completed: %s", res.ID, res.Description))
		} else {
			m.Output.ReplaceLast(fmt.Sprintf("Task %d stopped: %s", res.ID, res.Description))
		}
		m.Remaining = 0
		m.recalculateLayout()

	case DoneMsg:
		m.done = true
		m.Current = nil
		return m, tea.Quit

	case error:
		m.err = msg
		m.Output.Status("error: " + msg.Error())
	}

	cmds = append(cmds, m.Output.Update(msg))
	return m, tea.Batch(cmds...)
}

func (m *TUIModel) recalculateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}

	m.headerHeight = lipgloss.Height(m.headerView())
	m.currentHeight = lipgloss.Height(m.currentView())

	history := m.History.View()
	m.historyHeight = 0
	if m.History.Count() > 0 {
		m.historyHeight = lipgloss.Height(history)
	}

	footerHeight := lipgloss.Height(m.helpView())

	extraLines := 3
	if m.historyHeight > 0 {
		extraLines = 5
	}
	occupied := m.headerHeight + m.currentHeight + m.historyHeight + footerHeight + extraLines

	vHeight := 10
	if m.expanded {
		vHeight = m.height - occupied
	}
	if occupied+vHeight > m.height {
		vHeight = m.height - occupied
	}
	if vHeight < 2 {
		vHeight = 2
	}

	m.Output.SetSize(m.width, vHeight)
}

func (m TUIModel) headerView() string {
	return headerStyle.Render(fmt.Sprintf("timebox | %s run | Task %d/%d | Estimated: %ds",
		m.Mode, m.Index, m.Total, m.Estimated))
}

func (m TUIModel) currentView() string {
	content := "Waiting for the next task..."
	if m.Current != nil {
		barWidth := m.width - 12
		if barWidth > 40 {
			barWidth = 40
		}
		content = fmt.Sprintf("Task #%d: %s\nPriority: %s\n%s",
			m.Current.ID,
			m.Current.Description,
			m.Current.Priority,
			components.CountdownBar(m.Remaining, m.Current.Duration, barWidth),
		)
	}
	return currentStyle.Width(m.width - 2).Render(content)
}

func (m TUIModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	if m.History.Count() > 0 {
		return fmt.Sprintf("%s\n%s\n\n%s\n%s\n%s",
			m.headerView(),
			m.History.View(),
			m.currentView(),
			m.Output.View(),
			m.helpView(),
		)
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s",
		m.headerView(),
		m.currentView(),
		m.Output.View(),
		m.helpView(),
	)
}

func (m TUIModel) helpView() string {
	help := "Press 'ctrl+c' to abort without saving • 'e'/'enter' to "
	if m.expanded {
		help += "contract"
	} else {
		help += "expand"
	}
	return statusStyle.Render(help)
}
