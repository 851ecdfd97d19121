//go:build linux
// +build linux

package ui

import (
	"fmt"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gofirewalld/internal/firewalld"
	"gofirewalld/internal/settings"
)

type namesMsg struct {
	tab   tab
	names []string
	err   error
}

type detailMsg struct {
	tab   tab
	name  string
	lines []string
	err   error
}

type mutationMsg struct {
	what string
	err  error
}

type signalMsg struct {
	event  firewalld.SignalEvent
	at     time.Time
	closed bool
}

func fetchNamesCmd(src Source, t tab) tea.Cmd {
	return func() tea.Msg {
		k, ok := t.kind()
		if !ok {
			return namesMsg{tab: t}
		}
		names, err := src.Names(k)
		return namesMsg{tab: t, names: names, err: err}
	}
}

func fetchDetailCmd(src Source, t tab, name string) tea.Cmd {
	return func() tea.Msg {
		switch t {
		case tabDirect:
			d, err := src.Direct()
			if err != nil {
				return detailMsg{tab: t, err: err}
			}
			return detailMsg{tab: t, lines: describeDirect(d)}
		case tabSettings:
			props, err := src.Properties()
			if err != nil {
				return detailMsg{tab: t, err: err}
			}
			return detailMsg{tab: t, lines: describeProperties(props)}
		}
		k, _ := t.kind()
		rec, err := src.Settings(k, name)
		if err != nil {
			return detailMsg{tab: t, name: name, err: err}
		}
		return detailMsg{tab: t, name: name, lines: describeRecord(rec)}
	}
}

func addServiceCmd(src Source, zone, service string) tea.Cmd {
	return func() tea.Msg {
		return mutationMsg{what: fmt.Sprintf("service %s added to %s", service, zone), err: src.AddService(zone, service)}
	}
}

func removeServiceCmd(src Source, zone, service string) tea.Cmd {
	return func() tea.Msg {
		return mutationMsg{what: fmt.Sprintf("service %s removed from %s", service, zone), err: src.RemoveService(zone, service)}
	}
}

func addPortCmd(src Source, zone string, port settings.Port) tea.Cmd {
	return func() tea.Msg {
		return mutationMsg{what: fmt.Sprintf("port %s/%s added to %s", port.Port, port.Protocol, zone), err: src.AddPort(zone, port)}
	}
}

func reloadCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		return mutationMsg{what: "reloaded", err: src.Reload()}
	}
}

func waitSignalCmd(signals <-chan firewalld.SignalEvent) tea.Cmd {
	if signals == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-signals
		return signalMsg{event: ev, at: time.Now(), closed: !ok}
	}
}

// refreshes reports whether an event can change what tab t shows.
func refreshes(ev firewalld.SignalEvent, t tab) bool {
	switch ev.Interface {
	case "org.fedoraproject.FirewallD1.config.direct":
		return t == tabDirect
	case "org.freedesktop.DBus.Properties":
		return t == tabSettings
	case "org.fedoraproject.FirewallD1.config.policies":
		return false
	}
	k, ok := t.kind()
	if !ok {
		return false
	}
	if ev.Interface == "org.fedoraproject.FirewallD1.config" {
		return slices.Contains([]string{"ZoneAdded", "ServiceAdded", "IcmpTypeAdded", "IPSetAdded"}, ev.Name)
	}
	return ev.Interface == "org.fedoraproject.FirewallD1.config."+k.String()
}
