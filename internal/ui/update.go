//go:build linux
// +build linux

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"gofirewalld/internal/firewalld"
	"gofirewalld/internal/settings"
	"gofirewalld/internal/validation"
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchNamesCmd(m.src, m.tab), waitSignalCmd(m.signals))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.inputMode != inputNone {
		if key, ok := msg.(tea.KeyMsg); ok {
			return m.updateInput(key)
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	case namesMsg:
		if msg.tab != m.tab {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.names = msg.names
		if m.selected >= len(m.visible()) {
			m.selected = 0
		}
		return m.loadDetail()
	case detailMsg:
		if msg.tab != m.tab || msg.name != m.pending {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.detail = nil
			return m, nil
		}
		m.err = nil
		m.detail = msg.lines
		return m, nil
	case mutationMsg:
		if msg.err != nil {
			m.err = msg.err
			m.notice = ""
			return m, nil
		}
		m.err = nil
		m.notice = msg.what
		return m, nil
	case signalMsg:
		if msg.closed {
			m.pushEvent(msg.at, "signal stream closed")
			m.signals = nil
			return m, nil
		}
		m.pushEvent(msg.at, msg.event.String())
		cmds := []tea.Cmd{waitSignalCmd(m.signals)}
		if refreshes(msg.event, m.tab) {
			m.loading = true
			cmds = append(cmds, fetchNamesCmd(m.src, m.tab))
		}
		return m, tea.Batch(cmds...)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "1", "2", "3", "4", "5", "6":
		return m.switchTab(tabs[key[0]-'1'])
	case "j", "down":
		if m.selected < len(m.visible())-1 {
			m.selected++
			return m.loadDetail()
		}
	case "k", "up":
		if m.selected > 0 {
			m.selected--
			return m.loadDetail()
		}
	case "r":
		m.loading = true
		m.err = nil
		return m, fetchNamesCmd(m.src, m.tab)
	case "R":
		if m.readOnly {
			m.err = firewalld.ErrPermissionDenied
			return m, nil
		}
		return m, reloadCmd(m.src)
	case "/":
		return m.startInput(inputFilter, m.filter)
	case "a", "x", "p":
		if m.tab != tabZones || m.current() == "" {
			return m, nil
		}
		if m.readOnly {
			m.err = firewalld.ErrPermissionDenied
			return m, nil
		}
		mode := map[string]inputMode{"a": inputAddService, "x": inputRemoveService, "p": inputAddPort}[key]
		return m.startInput(mode, "")
	}
	return m, nil
}

func (m Model) switchTab(t tab) (tea.Model, tea.Cmd) {
	if t == m.tab {
		return m, nil
	}
	m.tab = t
	m.names = nil
	m.selected = 0
	m.filter = ""
	m.detail = nil
	m.err = nil
	m.loading = true
	return m, fetchNamesCmd(m.src, t)
}

// loadDetail requests the detail pane for the current selection.
func (m Model) loadDetail() (tea.Model, tea.Cmd) {
	name := m.current()
	if _, ok := m.tab.kind(); ok && name == "" {
		m.detail = nil
		m.pending = ""
		return m, nil
	}
	m.pending = name
	m.loading = true
	return m, fetchDetailCmd(m.src, m.tab, name)
}

func (m Model) startInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	m.inputMode = mode
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.inputMode = inputNone
		m.input.Blur()
		return m, nil
	case "enter":
		mode := m.inputMode
		value := strings.TrimSpace(m.input.Value())
		m.inputMode = inputNone
		m.input.Blur()
		return m.submitInput(mode, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	if mode == inputFilter {
		m.filter = value
		m.selected = 0
		return m.loadDetail()
	}
	if value == "" {
		return m, nil
	}
	zone := m.current()
	switch mode {
	case inputAddService:
		return m, addServiceCmd(m.src, zone, value)
	case inputRemoveService:
		return m, removeServiceCmd(m.src, zone, value)
	case inputAddPort:
		port, err := parsePortInput(value)
		if err != nil {
			m.err = err
			return m, nil
		}
		return m, addPortCmd(m.src, zone, port)
	}
	return m, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// parsePortInput accepts "80/tcp" or "80 tcp".
func parsePortInput(value string) (settings.Port, error) {
	input := strings.TrimSpace(value)
	if input == "" {
		return settings.Port{}, fmt.Errorf("port input is empty")
	}

	var port, proto string
	if before, after, ok := strings.Cut(input, "/"); ok {
		port, proto = strings.TrimSpace(before), strings.TrimSpace(after)
	} else {
		fields := strings.Fields(input)
		if len(fields) != 2 {
			return settings.Port{}, fmt.Errorf("use format port/proto or \"port proto\"")
		}
		port, proto = fields[0], fields[1]
	}

	p := settings.Port{Port: port, Protocol: strings.ToLower(proto)}
	if err := validation.Port(p); err != nil {
		return settings.Port{}, err
	}
	return p, nil
}
