//go:build linux
// +build linux

package server

import (
	"github.com/godbus/dbus/v5"
)

func unknownInterface(iface string) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface", []any{"unknown interface '" + iface + "'"})
}

func unknownProperty(name string) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.InvalidArgs", []any{"unknown property '" + name + "'"})
}

// configProps exposes the daemon settings file. Writable keys go through
// the graph so lockdown applies.
type configProps struct{ s *Server }

func (p *configProps) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	if iface != ifaceConfig {
		return dbus.Variant{}, unknownInterface(iface)
	}
	v, err := p.s.graph.Property(name)
	if err != nil {
		return dbus.Variant{}, busError(err)
	}
	return dbus.MakeVariant(v), nil
}

func (p *configProps) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != ifaceConfig {
		return nil, unknownInterface(iface)
	}
	return variants(p.s.graph.Properties()), nil
}

func (p *configProps) Set(sender dbus.Sender, iface, name string, value dbus.Variant) *dbus.Error {
	if iface != ifaceConfig {
		return unknownInterface(iface)
	}
	return busError(p.s.graph.SetProperty(p.s.caller(sender), name, value.Value()))
}

type mainProps struct{ s *Server }

func (p *mainProps) values() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"version":           dbus.MakeVariant(p.s.version),
		"interface_version": dbus.MakeVariant(p.s.version),
		"state":             dbus.MakeVariant("RUNNING"),
	}
}

func (p *mainProps) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	if iface != ifaceMain {
		return dbus.Variant{}, unknownInterface(iface)
	}
	v, ok := p.values()[name]
	if !ok {
		return dbus.Variant{}, unknownProperty(name)
	}
	return v, nil
}

func (p *mainProps) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != ifaceMain {
		return nil, unknownInterface(iface)
	}
	return p.values(), nil
}

func (p *mainProps) Set(iface, name string, _ dbus.Variant) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", []any{name})
}
