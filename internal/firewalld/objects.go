//go:build linux
// +build linux

package firewalld

import (
	"log/slog"
	"slices"

	"github.com/godbus/dbus/v5"

	"gofirewalld/internal/settings"
	"gofirewalld/internal/wire"
)

// kindMethod names the config method for k, e.g. getZoneNames.
func kindMethod(prefix string, k settings.Kind, suffix string) string {
	noun := map[settings.Kind]string{
		settings.KindZone:     "Zone",
		settings.KindService:  "Service",
		settings.KindIcmpType: "IcmpType",
		settings.KindIPSet:    "IPSet",
	}[k]
	return configInterface + "." + prefix + noun + suffix
}

func entityInterface(k settings.Kind) string {
	return configInterface + "." + k.String()
}

// Names lists the permanent objects of kind k, sorted.
func (c *Client) Names(k settings.Kind) ([]string, error) {
	var names []string
	if err := c.call(dbusConfigPath, kindMethod("get", k, "Names"), &names); err != nil {
		return nil, err
	}
	slices.Sort(names)
	slog.Debug("names listed", "kind", k, "count", len(names))
	return names, nil
}

func (c *Client) path(k settings.Kind, name string) (dbus.ObjectPath, error) {
	var p dbus.ObjectPath
	if err := c.call(dbusConfigPath, kindMethod("get", k, "ByName"), &p, name); err != nil {
		return "", err
	}
	return p, nil
}

// Settings fetches the settings of one object.
func (c *Client) Settings(k settings.Kind, name string) (settings.Record, error) {
	p, err := c.path(k, name)
	if err != nil {
		return nil, err
	}
	var raw map[string]dbus.Variant
	if err := c.call(p, entityInterface(k)+".getSettings", &raw); err != nil {
		return nil, err
	}
	rec, err := wire.Decode(k, raw)
	if err != nil {
		return nil, err
	}
	rec.Base().Name = name
	return rec, nil
}

func (c *Client) Add(k settings.Kind, name string, rec settings.Record) error {
	if c.readOnly {
		return ErrPermissionDenied
	}
	slog.Info("adding object", "kind", k, "name", name)
	var p dbus.ObjectPath
	return c.call(dbusConfigPath, kindMethod("add", k, ""), &p, name, wire.Encode(rec))
}

func (c *Client) Update(k settings.Kind, name string, rec settings.Record) error {
	return c.entityCall(k, name, "update", wire.Encode(rec))
}

func (c *Client) Remove(k settings.Kind, name string) error {
	return c.entityCall(k, name, "remove")
}

func (c *Client) entityCall(k settings.Kind, name, method string, args ...any) error {
	if c.readOnly {
		return ErrPermissionDenied
	}
	p, err := c.path(k, name)
	if err != nil {
		return err
	}
	slog.Info("object call", "kind", k, "name", name, "method", method)
	return c.call(p, entityInterface(k)+"."+method, nil, args...)
}

func (c *Client) AddService(zone, service string) error {
	return c.entityCall(settings.KindZone, zone, "addService", service)
}

func (c *Client) RemoveService(zone, service string) error {
	return c.entityCall(settings.KindZone, zone, "removeService", service)
}

func (c *Client) AddPort(zone string, port settings.Port) error {
	return c.entityCall(settings.KindZone, zone, "addPort", port.Port, port.Protocol)
}

func (c *Client) RemovePort(zone string, port settings.Port) error {
	return c.entityCall(settings.KindZone, zone, "removePort", port.Port, port.Protocol)
}

func (c *Client) AddIPSetEntry(set, entry string) error {
	return c.entityCall(settings.KindIPSet, set, "addEntry", entry)
}

func (c *Client) RemoveIPSetEntry(set, entry string) error {
	return c.entityCall(settings.KindIPSet, set, "removeEntry", entry)
}

func (c *Client) ZoneOfInterface(iface string) (string, error) {
	var zone string
	err := c.call(dbusConfigPath, configInterface+".getZoneOfInterface", &zone, iface)
	return zone, err
}

func (c *Client) ZoneOfSource(source string) (string, error) {
	var zone string
	err := c.call(dbusConfigPath, configInterface+".getZoneOfSource", &zone, source)
	return zone, err
}

// Direct returns the permanent direct ruleset.
func (c *Client) Direct() (*settings.Direct, error) {
	var d wire.Direct
	if err := c.call(dbusConfigPath, configInterface+".direct.getSettings", &d); err != nil {
		return nil, err
	}
	return d.Settings(), nil
}

func (c *Client) LockdownWhitelist() (*settings.LockdownWhitelist, error) {
	var w wire.Whitelist
	if err := c.call(dbusConfigPath, configInterface+".policies.getLockdownWhitelist", &w); err != nil {
		return nil, err
	}
	return w.Settings(), nil
}

// Properties returns the daemon settings exported on the config object.
func (c *Client) Properties() (map[string]any, error) {
	var raw map[string]dbus.Variant
	if err := c.call(dbusConfigPath, "org.freedesktop.DBus.Properties.GetAll", &raw, configInterface); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v.Value()
	}
	return out, nil
}

func (c *Client) SetProperty(name string, value any) error {
	if c.readOnly {
		return ErrPermissionDenied
	}
	return c.call(dbusConfigPath, "org.freedesktop.DBus.Properties.Set", nil, configInterface, name, dbus.MakeVariant(value))
}
