package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/timebox/pkg/models"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	detailBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	detailLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				Width(12)

	barFullStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	barEmptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))
)

const descColumnWidth = 40

// TaskTable renders tasks as a fixed-width table in the given order.
func TaskTable(tasks []models.Task) string {
	if len(tasks) == 0 {
		return placeholderStyle.Render("No tasks")
	}

	var sb strings.Builder
	sb.WriteString(tableHeaderStyle.Render(fmt.Sprintf("%-5s %-*s %-8s %9s  %s",
		"ID", descColumnWidth, "Description", "Priority", "Duration", "Status")))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", 5+1+descColumnWidth+1+8+1+9+2+9))
	for _, t := range tasks {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%-5d %-*s %-8s %8ds  %s",
			t.ID, descColumnWidth, Truncate(t.Description, descColumnWidth),
			t.Priority, t.Duration, statusLabel(t)))
	}
	return sb.String()
}

// TaskDetail renders a single task inside a bordered box.
func TaskDetail(t models.Task) string {
	row := func(label, value string) string {
		return detailLabelStyle.Render(label) + value
	}
	body := strings.Join([]string{
		tableHeaderStyle.Render(fmt.Sprintf("Task #%d", t.ID)),
		row("Description", t.Description),
		row("Priority", t.Priority.String()),
		row("Duration", fmt.Sprintf("%d seconds", t.Duration)),
		row("Status", statusLabel(t)),
		row("Created", t.CreatedAt.Local().Format("2006-01-02 15:04:05")),
	}, "\n")
	return detailBoxStyle.Render(body)
}

func statusLabel(t models.Task) string {
	if t.Completed {
		return doneStyle.Render(t.StatusString())
	}
	return pendingStyle.Render(t.StatusString())
}

// CountdownBar renders remaining/total as a bar of the given width followed
// by the seconds left.
func CountdownBar(remaining, total, width int) string {
	if width < 1 {
		width = 1
	}
	if total < 1 {
		total = 1
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > total {
		remaining = total
	}
	done := (total - remaining) * width / total
	return barFullStyle.Render(strings.Repeat("█", done)) +
		barEmptyStyle.Render(strings.Repeat("░", width-done)) +
		fmt.Sprintf(" %ds", remaining)
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
