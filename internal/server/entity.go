//go:build linux
// +build linux

package server

import (
	"slices"

	"github.com/godbus/dbus/v5"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/graph"
	"gofirewalld/internal/settings"
	"gofirewalld/internal/wire"
)

type entityObject struct {
	s *Server
	e *graph.Entity
}

func newEntityObject(s *Server, e *graph.Entity) any {
	base := &entityObject{s: s, e: e}
	switch e.Kind() {
	case settings.KindZone:
		return &zoneObject{base}
	case settings.KindIPSet:
		return &ipsetObject{base}
	default:
		return base
	}
}

func (o *entityObject) GetSettings() (map[string]dbus.Variant, *dbus.Error) {
	return wire.Encode(o.s.graph.Settings(o.e)), nil
}

func (o *entityObject) Update(sender dbus.Sender, raw map[string]dbus.Variant) *dbus.Error {
	rec, err := wire.Decode(o.e.Kind(), raw)
	if err != nil {
		return busError(err)
	}
	return busError(o.s.graph.Update(o.s.caller(sender), o.e, rec))
}

func (o *entityObject) Remove(sender dbus.Sender) *dbus.Error {
	return busError(o.s.graph.Remove(o.s.caller(sender), o.e))
}

// edit applies fn to the current settings and stores the result.
func (o *entityObject) edit(sender dbus.Sender, fn func(rec settings.Record) error) *dbus.Error {
	return busError(o.s.graph.Edit(o.s.caller(sender), o.e, fn))
}

func addName(list *[]string, name, what, owner string) error {
	if slices.Contains(*list, name) {
		return fwerr.Errorf(fwerr.AlreadyEnabled, "%s '%s' already in '%s'", what, name, owner)
	}
	*list = append(*list, name)
	return nil
}

func removeName(list *[]string, name, what, owner string) error {
	i := slices.Index(*list, name)
	if i < 0 {
		return fwerr.Errorf(fwerr.NotEnabled, "%s '%s' not in '%s'", what, name, owner)
	}
	*list = slices.Delete(*list, i, i+1)
	return nil
}

type zoneObject struct{ *entityObject }

func (o *zoneObject) zone(fn func(z *settings.Zone) error) func(settings.Record) error {
	return func(rec settings.Record) error { return fn(rec.(*settings.Zone)) }
}

func (o *zoneObject) QueryService(service string) (bool, *dbus.Error) {
	z := o.s.graph.Settings(o.e).(*settings.Zone)
	return slices.Contains(z.Services, service), nil
}

func (o *zoneObject) AddService(sender dbus.Sender, service string) *dbus.Error {
	return o.edit(sender, o.zone(func(z *settings.Zone) error {
		return addName(&z.Services, service, "service", z.Name)
	}))
}

func (o *zoneObject) RemoveService(sender dbus.Sender, service string) *dbus.Error {
	return o.edit(sender, o.zone(func(z *settings.Zone) error {
		return removeName(&z.Services, service, "service", z.Name)
	}))
}

func (o *zoneObject) QueryIcmpBlock(icmp string) (bool, *dbus.Error) {
	z := o.s.graph.Settings(o.e).(*settings.Zone)
	return slices.Contains(z.IcmpBlocks, icmp), nil
}

func (o *zoneObject) AddIcmpBlock(sender dbus.Sender, icmp string) *dbus.Error {
	return o.edit(sender, o.zone(func(z *settings.Zone) error {
		return addName(&z.IcmpBlocks, icmp, "icmp block", z.Name)
	}))
}

func (o *zoneObject) RemoveIcmpBlock(sender dbus.Sender, icmp string) *dbus.Error {
	return o.edit(sender, o.zone(func(z *settings.Zone) error {
		return removeName(&z.IcmpBlocks, icmp, "icmp block", z.Name)
	}))
}

func (o *zoneObject) QueryPort(port, protocol string) (bool, *dbus.Error) {
	z := o.s.graph.Settings(o.e).(*settings.Zone)
	return slices.Contains(z.Ports, settings.Port{Port: port, Protocol: protocol}), nil
}

func (o *zoneObject) AddPort(sender dbus.Sender, port, protocol string) *dbus.Error {
	p := settings.Port{Port: port, Protocol: protocol}
	return o.edit(sender, o.zone(func(z *settings.Zone) error {
		if slices.Contains(z.Ports, p) {
			return fwerr.Errorf(fwerr.AlreadyEnabled, "port '%s/%s' already in '%s'", port, protocol, z.Name)
		}
		z.Ports = append(z.Ports, p)
		return nil
	}))
}

func (o *zoneObject) RemovePort(sender dbus.Sender, port, protocol string) *dbus.Error {
	p := settings.Port{Port: port, Protocol: protocol}
	return o.edit(sender, o.zone(func(z *settings.Zone) error {
		i := slices.Index(z.Ports, p)
		if i < 0 {
			return fwerr.Errorf(fwerr.NotEnabled, "port '%s/%s' not in '%s'", port, protocol, z.Name)
		}
		z.Ports = slices.Delete(z.Ports, i, i+1)
		return nil
	}))
}

type ipsetObject struct{ *entityObject }

func (o *ipsetObject) GetEntries() ([]string, *dbus.Error) {
	set := o.s.graph.Settings(o.e).(*settings.IPSet)
	if set.Entries == nil {
		return []string{}, nil
	}
	return set.Entries, nil
}

func (o *ipsetObject) QueryEntry(entry string) (bool, *dbus.Error) {
	set := o.s.graph.Settings(o.e).(*settings.IPSet)
	return slices.Contains(set.Entries, entry), nil
}

func (o *ipsetObject) AddEntry(sender dbus.Sender, entry string) *dbus.Error {
	return o.edit(sender, func(rec settings.Record) error {
		set := rec.(*settings.IPSet)
		return addName(&set.Entries, entry, "entry", set.Name)
	})
}

func (o *ipsetObject) RemoveEntry(sender dbus.Sender, entry string) *dbus.Error {
	return o.edit(sender, func(rec settings.Record) error {
		set := rec.(*settings.IPSet)
		return removeName(&set.Entries, entry, "entry", set.Name)
	})
}

// entityProps serves the identity of an entity as read-only properties.
type entityProps struct {
	s *Server
	e *graph.Entity
}

func (p *entityProps) values() map[string]dbus.Variant {
	m := p.s.graph.Settings(p.e).Base()
	return map[string]dbus.Variant{
		"name":     dbus.MakeVariant(m.Name),
		"filename": dbus.MakeVariant(m.Filename),
		"path":     dbus.MakeVariant(m.Path),
		"builtin":  dbus.MakeVariant(m.Builtin),
		"default":  dbus.MakeVariant(m.Default),
	}
}

func (p *entityProps) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	if iface != entityInterface(p.e.Kind()) {
		return dbus.Variant{}, unknownInterface(iface)
	}
	v, ok := p.values()[name]
	if !ok {
		return dbus.Variant{}, unknownProperty(name)
	}
	return v, nil
}

func (p *entityProps) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != entityInterface(p.e.Kind()) {
		return nil, unknownInterface(iface)
	}
	return p.values(), nil
}

func (p *entityProps) Set(iface, name string, _ dbus.Variant) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", []any{name})
}
