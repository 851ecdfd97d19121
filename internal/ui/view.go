//go:build linux
// +build linux

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	selectedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	noticeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	tabActiveStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62")).Padding(0, 1)
	tabInactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(lipgloss.Color("237")).Padding(0, 1)
	inputStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	statusStyle      = lipgloss.NewStyle().Background(lipgloss.Color("236")).Foreground(lipgloss.Color("250")).Padding(0, 1)
	sidebarStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	mainStyle        = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
)

func (m Model) View() string {
	sidebarWidth := 24
	if m.width > 0 {
		if m.width/4 > sidebarWidth {
			sidebarWidth = m.width / 4
		}
		if sidebarWidth > 32 {
			sidebarWidth = 32
		}
	}

	mainWidth := 80
	if m.width > 0 {
		mainWidth = m.width - sidebarWidth - 1
		if mainWidth < 40 {
			mainWidth = 40
		}
	}

	content := lipgloss.JoinHorizontal(lipgloss.Top, renderSidebar(m, sidebarWidth), renderMain(m, mainWidth))
	return lipgloss.JoinVertical(lipgloss.Left, renderTabs(m), content, renderEvents(m, sidebarWidth+mainWidth), renderStatus(m))
}

func renderTabs(m Model) string {
	labels := make([]string, 0, len(tabs))
	for i, t := range tabs {
		label := fmt.Sprintf(" %d %s ", i+1, t.title())
		if t == m.tab {
			labels = append(labels, tabActiveStyle.Render(label))
		} else {
			labels = append(labels, tabInactiveStyle.Render(label))
		}
	}
	return strings.Join(labels, " ")
}

func renderSidebar(m Model, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.tab.title()))
	b.WriteString("\n")
	if m.filter != "" {
		b.WriteString(dimStyle.Render("filter: " + m.filter))
		b.WriteString("\n")
	}

	if _, ok := m.tab.kind(); !ok {
		b.WriteString(dimStyle.Render("(single object)"))
		return sidebarStyle.Width(width).Render(b.String())
	}

	names := m.visible()
	if len(names) == 0 {
		b.WriteString(dimStyle.Render("None"))
		return sidebarStyle.Width(width).Render(b.String())
	}
	for i, name := range names {
		prefix := "  "
		line := name
		if i == m.selected {
			prefix = "› "
			line = selectedStyle.Render(name)
		}
		b.WriteString(prefix + line + "\n")
	}
	return sidebarStyle.Width(width).Render(b.String())
}

func renderMain(m Model, width int) string {
	var b strings.Builder

	header := m.tab.title()
	if name := m.current(); name != "" {
		header = name
	}
	if m.readOnly {
		header += " (read-only)"
	}
	if m.loading {
		header = fmt.Sprintf("%s %s Loading...", header, m.spinner.View())
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n\n")
	} else if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n\n")
	}

	if len(m.detail) == 0 {
		b.WriteString(dimStyle.Render("No data loaded"))
	} else {
		b.WriteString(strings.Join(m.detail, "\n"))
	}

	if m.inputMode != inputNone {
		b.WriteString("\n\n")
		b.WriteString(renderInput(m))
	}
	return mainStyle.Width(width).Render(b.String())
}

func renderInput(m Model) string {
	label := ""
	switch m.inputMode {
	case inputAddService:
		label = "Add service: "
	case inputRemoveService:
		label = "Remove service: "
	case inputAddPort:
		label = "Add port: "
	case inputFilter:
		label = "Filter: "
	}
	return inputStyle.Render(label) + m.input.View()
}

// renderEvents shows the newest signals that fit below the panes.
func renderEvents(m Model, width int) string {
	rows := 6
	if m.height > 30 {
		rows = m.height / 5
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Events"))
	start := len(m.events) - rows
	if start < 0 {
		start = 0
	}
	for _, ev := range m.events[start:] {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(ev.at.Format("15:04:05")) + " " + ev.text)
	}
	return mainStyle.Width(width).Render(b.String())
}

func renderStatus(m Model) string {
	keys := "1-6: tabs  j/k: move  /: filter  r: refresh  R: reload  q: quit"
	if m.tab == tabZones && !m.readOnly {
		keys = "a/x: add/remove service  p: add port  " + keys
	}
	return statusStyle.Render(keys)
}
