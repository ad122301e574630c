package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	completedTaskStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42")).
				Border(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("42")).
				Padding(0, 1)

	stoppedTaskStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")).
				Border(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("214")).
				Padding(0, 1)

	completedHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252")).
				Padding(0, 1)

	subTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				Padding(0, 1)
)

// TaskResult is the outcome of one executed task. Completed is false when
// the countdown was stopped before reaching zero.
type TaskResult struct {
	ID          int
	Description string
	Completed   bool
}

func (r TaskResult) label() string {
	return fmt.Sprintf("#%d %s", r.ID, r.Description)
}

// CompletedTasks is a sidebar listing finished and stopped tasks in the
// order they ended.
type CompletedTasks struct {
	Completed []TaskResult
	Stopped   []TaskResult
	Width     int
	Title     string
}

func NewCompletedTasks(width int) *CompletedTasks {
	return &CompletedTasks{
		Completed: make([]TaskResult, 0),
		Stopped:   make([]TaskResult, 0),
		Width:     width,
		Title:     "Finished",
	}
}

// Add records a result, keeping at most limit entries per section.
func (c *CompletedTasks) Add(res TaskResult, limit int) {
	if res.Completed {
		c.Completed = appendWithLimit(c.Completed, res, limit)
	} else {
		c.Stopped = appendWithLimit(c.Stopped, res, limit)
	}
}

func (c *CompletedTasks) Count() int {
	return len(c.Completed) + len(c.Stopped)
}

func appendWithLimit(slice []TaskResult, res TaskResult, limit int) []TaskResult {
	slice = append(slice, res)
	if limit > 0 && len(slice) > limit {
		return slice[len(slice)-limit:]
	}
	return slice
}

func (c *CompletedTasks) View() string {
	var boxes []string

	if len(c.Completed) > 0 {
		boxes = append(boxes, c.renderBox("Completed", c.Completed, completedTaskStyle, "✓"))
	}

	if len(c.Stopped) > 0 {
		boxes = append(boxes, c.renderBox("Stopped", c.Stopped, stoppedTaskStyle, "■"))
	}

	var content string
	if len(boxes) == 0 {
		content = placeholderStyle.Render("No finished tasks yet")
	} else {
		content = strings.Join(boxes, "\n")
	}

	if c.Title != "" {
		return completedHeaderStyle.Render(c.Title) + "\n" + content
	}
	return content
}

func (c *CompletedTasks) renderBox(title string, tasks []TaskResult, style lipgloss.Style, icon string) string {
	subTitle := subTitleStyle.Foreground(style.GetForeground()).Render(title)

	nameWidth := c.Width - 6
	if nameWidth < 0 {
		nameWidth = 0
	}

	var lines []string
	for _, t := range tasks {
		wrapped := lipgloss.NewStyle().Width(nameWidth).Render(t.label())
		for i, line := range strings.Split(wrapped, "\n") {
			if i == 0 {
				lines = append(lines, fmt.Sprintf("%s %s", icon, line))
			} else {
				lines = append(lines, fmt.Sprintf("  %s", line))
			}
		}
	}

	boxWidth := c.Width - 2
	if boxWidth < 0 {
		boxWidth = 0
	}
	return style.Width(boxWidth).Render(subTitle + "\n" + strings.Join(lines, "\n"))
}
