//go:build linux
// +build linux

package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"

	"gofirewalld/internal/firewalld"
	"gofirewalld/internal/settings"
)

const defaultEventLimit = 200

// Source is the part of the bus client the monitor reads from.
type Source interface {
	Names(k settings.Kind) ([]string, error)
	Settings(k settings.Kind, name string) (settings.Record, error)
	Direct() (*settings.Direct, error)
	Properties() (map[string]any, error)
	AddService(zone, service string) error
	RemoveService(zone, service string) error
	AddPort(zone string, port settings.Port) error
	Reload() error
	ReadOnly() bool
	SubscribeSignals() (<-chan firewalld.SignalEvent, func(), error)
}

type tab int

const (
	tabZones tab = iota
	tabServices
	tabIcmpTypes
	tabIPSets
	tabDirect
	tabSettings
)

var tabs = []tab{tabZones, tabServices, tabIcmpTypes, tabIPSets, tabDirect, tabSettings}

func (t tab) kind() (settings.Kind, bool) {
	switch t {
	case tabZones:
		return settings.KindZone, true
	case tabServices:
		return settings.KindService, true
	case tabIcmpTypes:
		return settings.KindIcmpType, true
	case tabIPSets:
		return settings.KindIPSet, true
	default:
		return 0, false
	}
}

func (t tab) title() string {
	switch t {
	case tabZones:
		return "Zones"
	case tabServices:
		return "Services"
	case tabIcmpTypes:
		return "ICMP types"
	case tabIPSets:
		return "IP sets"
	case tabDirect:
		return "Direct"
	default:
		return "Settings"
	}
}

type inputMode int

const (
	inputNone inputMode = iota
	inputAddService
	inputRemoveService
	inputAddPort
	inputFilter
)

type event struct {
	at   time.Time
	text string
}

type Model struct {
	src      Source
	signals  <-chan firewalld.SignalEvent
	readOnly bool

	tab      tab
	names    []string
	selected int
	filter   string
	detail   []string
	pending  string
	loading  bool
	err      error
	notice   string

	events     []event
	eventLimit int

	width     int
	height    int
	spinner   spinner.Model
	input     textinput.Model
	inputMode inputMode
}

func NewModel(src Source, signals <-chan firewalld.SignalEvent, opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Line

	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 32
	ti.Prompt = ""

	limit := opts.EventLimit
	if limit <= 0 {
		limit = defaultEventLimit
	}

	return Model{
		src:        src,
		signals:    signals,
		readOnly:   src.ReadOnly(),
		tab:        tabZones,
		loading:    true,
		eventLimit: limit,
		spinner:    sp,
		input:      ti,
	}
}

// visible returns the names matching the filter.
func (m Model) visible() []string {
	if m.filter == "" {
		return m.names
	}
	var out []string
	for _, n := range m.names {
		if containsFold(n, m.filter) {
			out = append(out, n)
		}
	}
	return out
}

func (m Model) current() string {
	names := m.visible()
	if m.selected < 0 || m.selected >= len(names) {
		return ""
	}
	return names[m.selected]
}

func (m *Model) pushEvent(at time.Time, text string) {
	m.events = append(m.events, event{at: at, text: text})
	if over := len(m.events) - m.eventLimit; over > 0 {
		m.events = m.events[over:]
	}
}
