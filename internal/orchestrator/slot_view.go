package orchestrator

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/timebox/internal/ui/components"
	"github.com/ldi/timebox/pkg/models"
)

var (
	slotHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	slotUnderlineStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Padding(0, 1)

	slotActiveStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	slotFocusedStyle = lipgloss.NewStyle().
				Border(lipgloss.ThickBorder()).
				BorderForeground(lipgloss.Color("12")).
				Padding(0, 1)

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("33")).
				Bold(true)

	statusSuccessStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42")).
				Bold(true)

	statusStoppedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")).
				Bold(true)
)

type slotStatus int

const (
	slotIdle slotStatus = iota
	slotRunning
	slotCompleted
	slotStopped
)

const collapsedLogHeight = 4

// SlotView shows the task occupying one concurrency slot: its countdown and
// a short log of what happened in the slot.
type SlotView struct {
	Slot      int
	Task      *models.Task
	Remaining int
	Log       *components.RunLog

	status   slotStatus
	width    int
	height   int
	expanded bool
	focused  bool
	ready    bool
}

func NewSlotView(slot int, width int, height int) *SlotView {
	return &SlotView{
		Slot:   slot,
		width:  width,
		height: height,
		Log:    components.NewRunLog(width, height),
	}
}

func (s *SlotView) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.ready = true
	s.updateLogSize()
}

func (s *SlotView) SetFocused(focused bool) {
	s.focused = focused
}

func (s *SlotView) SetExpanded(expanded bool) {
	s.expanded = expanded
	s.updateLogSize()
}

func (s *SlotView) updateLogSize() {
	if s.expanded {
		fixed := lipgloss.Height(s.renderHeader()) + lipgloss.Height(s.renderUnderline()) + 1
		s.Log.SetSize(s.width-4, s.height-fixed-4)
	} else {
		s.Log.SetSize(s.width-4, collapsedLogHeight)
	}
}

// StartTask puts a task into the slot.
func (s *SlotView) StartTask(task models.Task) {
	s.Task = &task
	s.Remaining = task.Duration
	s.status = slotRunning
	s.Log.Printf("[Slot %d] Executing: %s | Priority: %s | Duration: %ds",
		s.Slot, task.Description, task.Priority, task.Duration)
	s.Log.Printf("Time remaining: %d seconds", task.Duration)
}

// Tick records the seconds left for the running task.
func (s *SlotView) Tick(remaining int) {
	s.Remaining = remaining
	s.Log.ReplaceLast(fmt.Sprintf("Time remaining: %d seconds", remaining))
}

// Finish marks the running task completed or stopped.
func (s *SlotView) Finish(success bool) {
	if s.Task == nil {
		return
	}
	if success {
		s.status = slotCompleted
		s.Remaining = 0
		s.Log.Printf("Task %d completed", s.Task.ID)
	} else {
		s.status = slotStopped
		s.Log.Printf("Task %d stopped with %ds left", s.Task.ID, s.Remaining)
	}
}

// Reset returns the slot to the idle state.
func (s *SlotView) Reset() {
	s.Task = nil
	s.Remaining = 0
	s.status = slotIdle
	s.Log.Reset()
}

func (s *SlotView) GetHeight() int {
	if s.expanded {
		return s.height
	}
	// header + underline + bar + log + borders
	return lipgloss.Height(s.renderHeader()) + lipgloss.Height(s.renderUnderline()) + 1 + s.Log.Height() + 2
}

func (s *SlotView) innerWidth() int {
	width := s.width - 4
	if width < 0 {
		width = 0
	}
	return width
}

func (s *SlotView) renderHeader() string {
	name := "idle"
	if s.Task != nil {
		name = fmt.Sprintf("#%d %s", s.Task.ID, s.Task.Description)
	}
	header := fmt.Sprintf("Slot %d: %s [%s]", s.Slot, name, s.statusString())
	return slotHeaderStyle.Width(s.innerWidth()).Render(header)
}

func (s *SlotView) renderUnderline() string {
	contentWidth := s.innerWidth() - 2
	if contentWidth < 0 {
		contentWidth = 0
	}
	return slotUnderlineStyle.Width(s.innerWidth()).Render(strings.Repeat("─", contentWidth))
}

func (s *SlotView) renderBar() string {
	if s.Task == nil {
		return ""
	}
	barWidth := s.innerWidth() - 10
	if barWidth < 1 {
		barWidth = 1
	}
	return components.CountdownBar(s.Remaining, s.Task.Duration, barWidth)
}

func (s *SlotView) View() string {
	if !s.ready {
		return "Initializing..."
	}

	borderStyle := slotActiveStyle
	if s.focused {
		borderStyle = slotFocusedStyle
	}

	content := fmt.Sprintf("%s\n%s\n%s\n%s", s.renderHeader(), s.renderUnderline(), s.renderBar(), s.Log.View())
	return borderStyle.
		Width(s.width).
		Height(s.GetHeight() - 2).
		Render(content)
}

func (s *SlotView) statusString() string {
	switch s.status {
	case slotRunning:
		return statusRunningStyle.Render("RUNNING")
	case slotCompleted:
		return statusSuccessStyle.Render("COMPLETED")
	case slotStopped:
		return statusStoppedStyle.Render("STOPPED")
	default:
		return "IDLE"
	}
}

// Update routes run messages addressed to this slot.
func (s *SlotView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case TaskStartedMsg:
		if msg.Slot == s.Slot {
			s.Log.Reset()
			s.StartTask(msg.Task)
		}
		return nil
	case TickMsg:
		if msg.Slot == s.Slot && s.Task != nil && s.Task.ID == msg.TaskID {
			s.Tick(msg.Remaining)
		}
		return nil
	case TaskCompletedMsg:
		if msg.Slot == s.Slot {
			s.Finish(msg.Success)
		}
		return nil
	case tea.KeyMsg:
		if !s.expanded {
			return nil
		}
	}

	return s.Log.Update(msg)
}

func (s *SlotView) IsRunning() bool {
	return s.status == slotRunning
}

func (s *SlotView) IsExpanded() bool {
	return s.expanded
}

func (s *SlotView) IsFocused() bool {
	return s.focused
}
