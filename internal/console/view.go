package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// title, status, two rules, help
const chromeLines = 5

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	activeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	faintStyle   = lipgloss.NewStyle().Faint(true)
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dangerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	batteryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func listHeight(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("mirrordeck"))
	b.WriteByte('\n')

	if len(m.devices) == 0 {
		b.WriteString(faintStyle.Render("  no devices"))
		b.WriteByte('\n')
	}
	for i, id := range m.devices {
		marker := "  "
		if id == m.active {
			marker = activeStyle.Render("● ")
		}
		label := m.opts.DeviceName(id)
		if label != id {
			label = fmt.Sprintf("%s (%s)", label, id)
		}
		if i == m.cursor {
			label = cursorStyle.Render(label)
		}
		b.WriteString(marker + label + "\n")
	}

	b.WriteString(ruleStyle.Render(strings.Repeat("─", max(m.width, 1))))
	b.WriteByte('\n')
	b.WriteString(m.statusLine())
	b.WriteByte('\n')
	b.WriteString(ruleStyle.Render(strings.Repeat("─", max(m.width, 1))))
	b.WriteByte('\n')
	b.WriteString(m.logBox.View())
	b.WriteByte('\n')
	b.WriteString(m.helpLine())
	return b.String()
}

func (m Model) statusLine() string {
	if m.active == "" {
		return faintStyle.Render("not connected")
	}
	parts := []string{activeStyle.Render(m.opts.DeviceName(m.active))}
	parts = append(parts, batteryBar(m.battery, 10))
	switch {
	case m.switching:
		parts = append(parts, warnStyle.Render("switching to wireless..."))
	case m.mirroring:
		parts = append(parts, activeStyle.Render("mirroring"))
	default:
		parts = append(parts, faintStyle.Render("idle"))
	}
	return strings.Join(parts, "  ")
}

// batteryBar renders level as a bar of width cells followed by the
// percentage. A negative level renders as unknown.
func batteryBar(level, width int) string {
	if level < 0 {
		return faintStyle.Render("[" + strings.Repeat("·", width) + "] --%")
	}
	if level > 100 {
		level = 100
	}
	filled := (level*width + 50) / 100
	style := batteryStyle
	switch {
	case level < 20:
		style = dangerStyle
	case level < 50:
		style = warnStyle
	}
	bar := style.Render(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %d%%", bar, level)
}

func (m Model) helpLine() string {
	var parts []string
	for _, b := range m.keys.help() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return faintStyle.Render(strings.Join(parts, " · "))
}
