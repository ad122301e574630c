package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	logoStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	itemStyle         = lipgloss.NewStyle().PaddingLeft(2)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("12")).Bold(true)
	hintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const logo = `
 ▀█▀ █ █▀▄▀█ █▀▀ █▄▄ █▀█ ▀▄▀
  █  █ █ ▀ █ ██▄ █▄█ █▄█ █ █
`

// QuitChoice is returned when the user leaves the menu.
const QuitChoice = "quit"

type menuItem struct {
	name string
	hint string
}

var menuItems = []menuItem{
	{"add", "add a new task"},
	{"list", "list all tasks"},
	{"show", "show one task"},
	{"search", "search by keyword or priority"},
	{"delete", "delete a task"},
	{"edit", "edit a task or toggle its status"},
	{"sort", "sort tasks"},
	{"run", "run selected tasks concurrently"},
	{"run-all", "run all pending tasks in order"},
	{"run-one", "run a single task"},
	{"runs", "show run history"},
	{"status", "show a summary"},
	{"snapshot", "export the task snapshot"},
	{QuitChoice, "exit timebox"},
}

type MenuModel struct {
	choices  []menuItem
	cursor   int
	selected string
	quitting bool
}

func NewMenuModel() MenuModel {
	return MenuModel{
		choices: menuItems,
	}
}

func (m MenuModel) Init() tea.Cmd {
	return nil
}

func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.selected = QuitChoice
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}

		case "enter":
			m.selected = m.choices[m.cursor].name
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	s.WriteString(logoStyle.Render(logo))
	s.WriteString("\n\n")

	for i, choice := range m.choices {
		label := fmt.Sprintf("%-9s %s", choice.name, hintStyle.Render(choice.hint))
		if m.cursor == i {
			s.WriteString(selectedItemStyle.Render("> " + label))
		} else {
			s.WriteString(itemStyle.Render("  " + label))
		}
		s.WriteString("\n")
	}

	s.WriteString("\n(use arrow keys or j/k to navigate, enter to select, q to quit)\n")

	return s.String()
}

func (m MenuModel) Selected() string {
	return m.selected
}

// RunMenu shows the menu and returns the chosen command name.
func RunMenu(opts ...tea.ProgramOption) (string, error) {
	m := NewMenuModel()
	p := tea.NewProgram(m, opts...)
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}
	selected := finalModel.(MenuModel).Selected()
	if selected == "" {
		selected = QuitChoice
	}
	return selected, nil
}
