// Package watch turns file system changes under the configuration
// directories into graph updates.
package watch

import (
	"log/slog"

	"gofirewalld/internal/metrics"
	"gofirewalld/internal/persist"
	"gofirewalld/internal/settings"
)

// Class is how a changed path was routed.
type Class string

const (
	ClassConf      Class = "conf"
	ClassRecord    Class = "record"
	ClassWhitelist Class = "whitelist"
	ClassDirect    Class = "direct"
	ClassIgnored   Class = "ignored"
)

// Graph is the part of *graph.Graph the dispatcher drives.
type Graph interface {
	ReloadConf() error
	ApplyChange(ch settings.Change) error
	ReloadLockdownWhitelist() error
	ReloadDirect() error
}

// Resolver maps record files onto graph changes. *persist.Backend
// implements it.
type Resolver interface {
	KindOfPath(path string) (settings.Kind, bool, bool)
	ResolvePathChange(path string) (settings.Change, error)
}

type Dispatcher struct {
	graph    Graph
	resolver Resolver
	layout   persist.Layout
	metrics  *metrics.Registry
}

func NewDispatcher(g Graph, r Resolver, layout persist.Layout, m *metrics.Registry) *Dispatcher {
	return &Dispatcher{graph: g, resolver: r, layout: layout, metrics: m}
}

// Dispatch routes one changed path. Failures are logged and the graph keeps
// its previous state.
func (d *Dispatcher) Dispatch(path string) Class {
	class, err := d.dispatch(path)
	d.metrics.WatchEvent(string(class))
	if err != nil {
		d.metrics.WatchError()
		slog.Warn("config change not applied", "path", path, "class", class, "error", err)
		return class
	}
	if class != ClassIgnored {
		slog.Debug("config change applied", "path", path, "class", class)
	}
	return class
}

func (d *Dispatcher) dispatch(path string) (Class, error) {
	if path == d.layout.ConfFile() {
		return ClassConf, d.graph.ReloadConf()
	}
	if _, _, ok := d.resolver.KindOfPath(path); ok {
		ch, err := d.resolver.ResolvePathChange(path)
		if err != nil {
			return ClassRecord, err
		}
		if ch.Action == settings.ActionNone {
			return ClassRecord, nil
		}
		return ClassRecord, d.graph.ApplyChange(ch)
	}
	switch path {
	case d.layout.LockdownWhitelistFile():
		return ClassWhitelist, d.graph.ReloadLockdownWhitelist()
	case d.layout.DirectFile():
		return ClassDirect, d.graph.ReloadDirect()
	}
	return ClassIgnored, nil
}

// Dirs lists the record directories of both layers.
func Dirs(layout persist.Layout) []string {
	var dirs []string
	for _, k := range settings.Kinds {
		dirs = append(dirs, layout.KindDir(k, true), layout.KindDir(k, false))
	}
	return dirs
}

// Files lists the single files that are watched.
func Files(layout persist.Layout) []string {
	return []string{layout.LockdownWhitelistFile(), layout.DirectFile(), layout.ConfFile()}
}
