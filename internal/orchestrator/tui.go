package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/timebox/internal/selection"
	"github.com/ldi/timebox/internal/ui/components"
	"github.com/ldi/timebox/pkg/models"
)

var (
	orbStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	headerTextStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	headerStyle = lipgloss.NewStyle().
			Padding(1, 2)
)

// OrchestratorModel is the full-screen view of a concurrent run: one panel
// per slot plus a sidebar of finished tasks.
type OrchestratorModel struct {
	orchestrator   *Orchestrator
	slotViews      map[int]*SlotView
	slotOrder      []int
	completedTasks *components.CompletedTasks
	spinner        spinner.Model
	focusedSlot    int
	wave           int
	totalWaves     int
	width          int
	height         int
	ready          bool
	quitting       bool
	finished       bool
	result         *models.Run
	err            error
	scrollOffset   int
	sidebarWidth   int
	slotsWidth     int
}

// NewOrchestratorModel builds the view with one panel per slot. slots is
// the effective concurrency of the run.
func NewOrchestratorModel(orch *Orchestrator, slots int) *OrchestratorModel {
	if slots <= 0 || slots > orch.maxConcurrency {
		slots = orch.maxConcurrency
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = orbStyle

	m := &OrchestratorModel{
		orchestrator:   orch,
		slotViews:      make(map[int]*SlotView, slots),
		completedTasks: components.NewCompletedTasks(0),
		spinner:        sp,
		focusedSlot:    1,
	}

	for i := 1; i <= slots; i++ {
		m.slotViews[i] = NewSlotView(i, 80, 6)
		m.slotOrder = append(m.slotOrder, i)
	}
	if len(m.slotOrder) > 0 {
		m.slotViews[1].SetFocused(true)
	}

	return m
}

func (m *OrchestratorModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.pollMessages(),
	)
}

func (m *OrchestratorModel) pollMessages() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.orchestrator.Messages()
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *OrchestratorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.orchestrator.Stop()
			return m, tea.Quit
		case "j", "down":
			if !m.isAnySlotExpanded() {
				m.moveFocus(1)
			}
		case "k", "up":
			if !m.isAnySlotExpanded() {
				m.moveFocus(-1)
			}
		case "e", "enter":
			m.toggleExpanded()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.recalculateLayout()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case WaveStartedMsg:
		m.wave = msg.Wave
		m.totalWaves = msg.TotalWaves
		for _, view := range m.slotViews {
			view.Reset()
		}

	case TaskCompletedMsg:
		m.completedTasks.Add(components.TaskResult{
			ID:          msg.Task.ID,
			Description: msg.Task.Description,
			Completed:   msg.Success,
		}, 100)

	case RunFinishedMsg:
		m.finished = true
		m.result = msg.Run
		m.err = msg.Err
		return m, tea.Quit

	case error:
		m.err = msg
		return m, tea.Quit
	}

	for _, view := range m.slotViews {
		if cmd := view.Update(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}

	switch msg.(type) {
	case WaveStartedMsg, WaveFinishedMsg, TaskStartedMsg, TickMsg, TaskCompletedMsg:
		cmds = append(cmds, m.pollMessages())
	}

	return m, tea.Batch(cmds...)
}

func (m *OrchestratorModel) moveFocus(direction int) {
	if len(m.slotOrder) == 0 {
		return
	}

	currentIdx := -1
	for i, id := range m.slotOrder {
		if id == m.focusedSlot {
			currentIdx = i
			break
		}
	}

	if currentIdx == -1 {
		m.focusedSlot = m.slotOrder[0]
	} else {
		newIdx := (currentIdx + direction + len(m.slotOrder)) % len(m.slotOrder)
		m.focusedSlot = m.slotOrder[newIdx]
	}

	for id, view := range m.slotViews {
		view.SetFocused(id == m.focusedSlot)
	}

	m.scrollIntoView()
}

func (m *OrchestratorModel) availableHeight() int {
	return m.height - m.getHeaderHeight() - 1
}

func (m *OrchestratorModel) scrollIntoView() {
	availableHeight := m.availableHeight()
	if availableHeight <= 0 || len(m.slotOrder) == 0 {
		return
	}

	topPos := 0
	for _, id := range m.slotOrder {
		if id == m.focusedSlot {
			break
		}
		topPos += m.slotViews[id].GetHeight()
	}
	bottomPos := topPos + m.slotViews[m.focusedSlot].GetHeight()

	if topPos < m.scrollOffset {
		m.scrollOffset = topPos
	} else if bottomPos > m.scrollOffset+availableHeight {
		m.scrollOffset = bottomPos - availableHeight
	}
}

func (m *OrchestratorModel) toggleExpanded() {
	view, ok := m.slotViews[m.focusedSlot]
	if !ok {
		return
	}
	expanded := !view.IsExpanded()
	if expanded {
		for _, v := range m.slotViews {
			v.SetExpanded(false)
		}
	}
	view.SetExpanded(expanded)
	m.recalculateLayout()
	m.scrollIntoView()
}

func (m *OrchestratorModel) isAnySlotExpanded() bool {
	for _, v := range m.slotViews {
		if v.IsExpanded() {
			return true
		}
	}
	return false
}

func (m *OrchestratorModel) recalculateLayout() {
	if !m.ready {
		return
	}

	m.sidebarWidth = m.width / 5
	if m.sidebarWidth < 20 {
		m.sidebarWidth = 20
	}
	m.slotsWidth = m.width - m.sidebarWidth

	availableHeight := m.availableHeight()
	if availableHeight < 10 {
		availableHeight = 10
	}

	m.completedTasks.Width = m.sidebarWidth - 1

	for _, view := range m.slotViews {
		view.SetSize(m.slotsWidth-2, availableHeight)
	}
}

func (m *OrchestratorModel) getHeaderHeight() int {
	return lipgloss.Height(m.renderHeader())
}

func (m *OrchestratorModel) View() string {
	if !m.ready {
		return "Starting run..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	header := m.renderHeader()
	help := m.renderHelp()

	availableHeight := m.height - lipgloss.Height(header) - lipgloss.Height(help)
	if availableHeight < 0 {
		availableHeight = 0
	}

	sidebar := lipgloss.NewStyle().
		Width(m.sidebarWidth-1).
		Height(availableHeight).
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(lipgloss.Color("240")).
		Render(m.completedTasks.View())

	var slotList strings.Builder
	for _, id := range m.slotOrder {
		slotList.WriteString(m.slotViews[id].View())
		slotList.WriteString("\n")
	}

	lines := strings.Split(slotList.String(), "\n")
	startLine := max(m.scrollOffset, 0)
	endLine := min(startLine+availableHeight, len(lines))
	startLine = min(startLine, endLine)

	clipped := strings.Join(lines[startLine:endLine], "\n")
	if h := lipgloss.Height(clipped); h < availableHeight {
		clipped += strings.Repeat("\n", availableHeight-h)
	}

	slotsArea := lipgloss.NewStyle().
		Width(m.slotsWidth).
		Height(availableHeight).
		Render(clipped)

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, slotsArea)
	return header + "\n" + mainContent + "\n" + help
}

func (m *OrchestratorModel) renderHeader() string {
	total, completed := m.orchestrator.GetStats()

	status := "Running"
	switch {
	case m.finished:
		status = "Finished"
	case m.quitting:
		status = "Stopping"
	}

	headerText := fmt.Sprintf("timebox | %s | Wave %d/%d | Slots: %d/%d | Completed: %d/%d",
		status,
		m.wave,
		m.totalWaves,
		len(m.orchestrator.GetActiveSlots()),
		len(m.slotOrder),
		completed,
		total,
	)

	orb := m.spinner.View()
	if m.finished {
		orb = orbStyle.Render("⬤")
	}
	text := headerTextStyle.Render(headerText)

	header := lipgloss.JoinHorizontal(lipgloss.Center, orb, "  ", text)
	width := m.width - 4
	if width < 0 {
		width = 0
	}
	return headerStyle.Width(width).Render(header)
}

func (m *OrchestratorModel) renderHelp() string {
	return helpStyle.Render("Press 'q' to stop • 'j'/'k' to navigate • 'e'/'enter' to expand/collapse")
}

// Run executes the selection under a full-screen view. Quitting the view
// or cancelling ctx stops the run; the collection is still saved.
func Run(ctx context.Context, orchestrator *Orchestrator, sel selection.Selection) (*models.Run, error) {
	m := NewOrchestratorModel(orchestrator, min(sel.Count(), orchestrator.maxConcurrency))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Subscribe before the run starts so no message is dropped.
	orchestrator.Messages()

	orchDone := make(chan struct{})
	var (
		run     *models.Run
		orchErr error
	)

	go func() {
		defer close(orchDone)
		run, orchErr = orchestrator.RunConcurrent(ctx, sel)
		time.Sleep(100 * time.Millisecond)
		p.Quit()
	}()

	_, err := p.Run()

	orchestrator.Stop()
	<-orchDone

	if orchErr != nil {
		return run, orchErr
	}
	return run, err
}
