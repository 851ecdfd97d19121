//go:build linux
// +build linux

package server

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"gofirewalld/internal/settings"
	"gofirewalld/internal/wire"
)

// mainObject is the small part of the daemon interface clients probe
// before talking to the config object.
type mainObject struct{ s *Server }

func (o *mainObject) GetDefaultZone() (string, *dbus.Error) {
	return o.s.graph.DefaultZone(), nil
}

// AuthorizeAll fails for callers the graph would refuse.
func (o *mainObject) AuthorizeAll(sender dbus.Sender) *dbus.Error {
	return busError(o.s.graph.Authorize(o.s.caller(sender)))
}

func (o *mainObject) Reload(sender dbus.Sender) *dbus.Error {
	if err := o.s.graph.Authorize(o.s.caller(sender)); err != nil {
		return busError(err)
	}
	slog.Info("reload requested", "sender", sender)
	return busError(o.s.graph.Reload())
}

type configObject struct{ s *Server }

func (o *configObject) paths(k settings.Kind) []dbus.ObjectPath {
	var out []dbus.ObjectPath
	for _, p := range o.s.graph.Paths(k) {
		out = append(out, dbus.ObjectPath(p))
	}
	if out == nil {
		out = []dbus.ObjectPath{}
	}
	return out
}

func (o *configObject) byName(k settings.Kind, name string) (dbus.ObjectPath, *dbus.Error) {
	e, err := o.s.graph.ByName(k, name)
	if err != nil {
		return "", busError(err)
	}
	return dbus.ObjectPath(e.Path()), nil
}

func (o *configObject) names(k settings.Kind) []string {
	names := o.s.graph.Names(k)
	if names == nil {
		names = []string{}
	}
	return names
}

func (o *configObject) add(sender dbus.Sender, k settings.Kind, name string, raw map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
	rec, err := wire.Decode(k, raw)
	if err != nil {
		return "", busError(err)
	}
	e, err := o.s.graph.Add(o.s.caller(sender), k, name, rec)
	if err != nil {
		return "", busError(err)
	}
	return dbus.ObjectPath(e.Path()), nil
}

func (o *configObject) ListZones() ([]dbus.ObjectPath, *dbus.Error) {
	return o.paths(settings.KindZone), nil
}

func (o *configObject) GetZoneByName(name string) (dbus.ObjectPath, *dbus.Error) {
	return o.byName(settings.KindZone, name)
}

func (o *configObject) GetZoneNames() ([]string, *dbus.Error) {
	return o.names(settings.KindZone), nil
}

func (o *configObject) AddZone(sender dbus.Sender, name string, raw map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
	return o.add(sender, settings.KindZone, name, raw)
}

func (o *configObject) GetZoneOfInterface(iface string) (string, *dbus.Error) {
	zone, err := o.s.graph.ZoneOfInterface(iface)
	return zone, busError(err)
}

func (o *configObject) GetZoneOfSource(source string) (string, *dbus.Error) {
	zone, err := o.s.graph.ZoneOfSource(source)
	return zone, busError(err)
}

func (o *configObject) ListServices() ([]dbus.ObjectPath, *dbus.Error) {
	return o.paths(settings.KindService), nil
}

func (o *configObject) GetServiceByName(name string) (dbus.ObjectPath, *dbus.Error) {
	return o.byName(settings.KindService, name)
}

func (o *configObject) GetServiceNames() ([]string, *dbus.Error) {
	return o.names(settings.KindService), nil
}

func (o *configObject) AddService(sender dbus.Sender, name string, raw map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
	return o.add(sender, settings.KindService, name, raw)
}

func (o *configObject) ListIcmpTypes() ([]dbus.ObjectPath, *dbus.Error) {
	return o.paths(settings.KindIcmpType), nil
}

func (o *configObject) GetIcmpTypeByName(name string) (dbus.ObjectPath, *dbus.Error) {
	return o.byName(settings.KindIcmpType, name)
}

func (o *configObject) GetIcmpTypeNames() ([]string, *dbus.Error) {
	return o.names(settings.KindIcmpType), nil
}

func (o *configObject) AddIcmpType(sender dbus.Sender, name string, raw map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
	return o.add(sender, settings.KindIcmpType, name, raw)
}

func (o *configObject) ListIPSets() ([]dbus.ObjectPath, *dbus.Error) {
	return o.paths(settings.KindIPSet), nil
}

func (o *configObject) GetIPSetByName(name string) (dbus.ObjectPath, *dbus.Error) {
	return o.byName(settings.KindIPSet, name)
}

func (o *configObject) GetIPSetNames() ([]string, *dbus.Error) {
	return o.names(settings.KindIPSet), nil
}

func (o *configObject) AddIPSet(sender dbus.Sender, name string, raw map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
	return o.add(sender, settings.KindIPSet, name, raw)
}
