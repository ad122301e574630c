package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user leaves a prompt with esc or ctrl+c.
var ErrCancelled = errors.New("cancelled")

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	gateStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// PromptModel reads one line of input. When validate rejects the value the
// error is shown and the prompt stays open.
type PromptModel struct {
	label     string
	input     textinput.Model
	validate  func(string) error
	err       error
	value     string
	submitted bool
	cancelled bool
}

func NewPromptModel(label, initial string, validate func(string) error) PromptModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 255
	ti.SetValue(initial)
	ti.Focus()

	return PromptModel{
		label:    label,
		input:    ti,
		validate: validate,
	}
}

func (m PromptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			if m.validate != nil {
				if err := m.validate(value); err != nil {
					m.err = err
					return m, nil
				}
			}
			m.err = nil
			m.value = value
			m.submitted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m PromptModel) View() string {
	if m.submitted || m.cancelled {
		return ""
	}
	var s strings.Builder
	s.WriteString(labelStyle.Render(m.label))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	s.WriteString("\n")
	if m.err != nil {
		s.WriteString(errorStyle.Render(m.err.Error()))
		s.WriteString("\n")
	}
	return s.String()
}

func (m PromptModel) Value() string {
	return m.value
}

func (m PromptModel) Cancelled() bool {
	return m.cancelled
}

// Prompt asks for a single value.
func Prompt(label, initial string, validate func(string) error, opts ...tea.ProgramOption) (string, error) {
	p := tea.NewProgram(NewPromptModel(label, initial, validate), opts...)
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m := final.(PromptModel)
	if m.Cancelled() {
		return "", ErrCancelled
	}
	return m.Value(), nil
}

// ParseYesNo accepts y/yes/n/no in any case.
func ParseYesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return false, fmt.Errorf("please answer y or n")
}

// Confirm asks a yes/no question.
func Confirm(question string, opts ...tea.ProgramOption) (bool, error) {
	answer, err := Prompt(question+" (y/n)", "", func(s string) error {
		_, err := ParseYesNo(s)
		return err
	}, opts...)
	if err != nil {
		return false, err
	}
	ok, _ := ParseYesNo(answer)
	return ok, nil
}

// GateModel holds a run until the user presses Enter.
type GateModel struct {
	summary  string
	accepted bool
	done     bool
}

func NewGateModel(summary string) GateModel {
	return GateModel{summary: summary}
}

func (m GateModel) Init() tea.Cmd {
	return nil
}

func (m GateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			m.accepted = true
			m.done = true
			return m, tea.Quit
		case "esc", "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m GateModel) View() string {
	if m.done {
		return ""
	}
	return gateStyle.Render(m.summary) + "\n" + hintStyle.Render("Press Enter to start, esc to go back") + "\n"
}

func (m GateModel) Accepted() bool {
	return m.accepted
}

// WaitForEnter shows summary and blocks until the user confirms the run.
// It returns ErrCancelled when the user backs out.
func WaitForEnter(summary string, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(NewGateModel(summary), opts...)
	final, err := p.Run()
	if err != nil {
		return err
	}
	if !final.(GateModel).Accepted() {
		return ErrCancelled
	}
	return nil
}
