package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	scrollbarTrackStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("236"))

	scrollbarHandleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
)

// RunLog is a scrolling log of execution events rendered in a viewport.
// It keeps at most MaxLines lines.
type RunLog struct {
	MaxLines int

	viewport viewport.Model
	lines    []string
	ready    bool
}

func NewRunLog(width, height int) *RunLog {
	return &RunLog{
		MaxLines: 500,
		viewport: viewport.New(width, height),
	}
}

func (l *RunLog) SetSize(width, height int) {
	vpWidth := width
	if width > 0 {
		vpWidth = width - 1
	}
	if !l.ready {
		l.viewport = viewport.New(vpWidth, height)
		l.ready = true
	} else {
		l.viewport.Width = vpWidth
		l.viewport.Height = height
	}
	l.refresh()
}

// Println appends one line.
func (l *RunLog) Println(line string) {
	l.lines = append(l.lines, strings.TrimRight(line, "\n"))
	if l.MaxLines > 0 && len(l.lines) > l.MaxLines {
		l.lines = l.lines[len(l.lines)-l.MaxLines:]
	}
	l.refresh()
}

// Printf appends one formatted line.
func (l *RunLog) Printf(format string, args ...any) {
	l.Println(fmt.Sprintf(format, args...))
}

// Status appends a dimmed marker line such as "--- wave 2 ---".
func (l *RunLog) Status(status string) {
	l.Println(statusStyle.Render(fmt.Sprintf("--- %s ---", status)))
}

// ReplaceLast overwrites the most recent line, or appends when empty. Used
// for countdown lines that update in place.
func (l *RunLog) ReplaceLast(line string) {
	if len(l.lines) == 0 {
		l.Println(line)
		return
	}
	l.lines[len(l.lines)-1] = line
	l.refresh()
}

func (l *RunLog) Reset() {
	l.lines = nil
	l.refresh()
}

func (l *RunLog) Lines() []string {
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *RunLog) refresh() {
	content := strings.Join(l.lines, "\n")
	if width := l.viewport.Width; width > 0 {
		content = logStyle.Width(width).Render(content)
	} else {
		content = logStyle.Render(content)
	}
	l.viewport.SetContent(content)
	l.viewport.GotoBottom()
}

func (l *RunLog) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	l.viewport, cmd = l.viewport.Update(msg)
	return cmd
}

func (l *RunLog) View() string {
	if !l.ready {
		return ""
	}

	if l.viewport.TotalLineCount() <= l.viewport.Height {
		return l.viewport.View()
	}

	h := l.viewport.Height
	handlePos := int(float64(h-1) * l.viewport.ScrollPercent())

	var sb strings.Builder
	for i := 0; i < h; i++ {
		if i == handlePos {
			sb.WriteString(scrollbarHandleStyle.Render("┃"))
		} else {
			sb.WriteString(scrollbarTrackStyle.Render("│"))
		}
		if i < h-1 {
			sb.WriteString("\n")
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, l.viewport.View(), sb.String())
}

func (l *RunLog) Height() int {
	return l.viewport.Height
}
