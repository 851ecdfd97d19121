// Package wire converts settings records to and from the a{sv} maps carried
// on the bus.
package wire

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/godbus/dbus/v5"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
)

// Encode renders the settings of rec. Lists are always present, possibly
// empty, so clients can rely on every key.
func Encode(rec settings.Record) map[string]dbus.Variant {
	out := map[string]dbus.Variant{}
	put := func(key string, v any) { out[key] = dbus.MakeVariant(v) }

	switch r := rec.(type) {
	case *settings.Zone:
		put("version", r.Version)
		put("short", r.Short)
		put("description", r.Description)
		put("target", r.Target)
		put("services", strs(r.Services))
		put("ports", portTuples(r.Ports))
		put("icmp_blocks", strs(r.IcmpBlocks))
		put("masquerade", r.Masquerade)
		put("forward_ports", forwardTuples(r.ForwardPorts))
		put("interfaces", strs(r.Interfaces))
		put("sources", strs(r.Sources))
		put("protocols", strs(r.Protocols))
		put("source_ports", portTuples(r.SourcePorts))
		put("icmp_block_inversion", r.IcmpBlockInversion)
	case *settings.Service:
		put("version", r.Version)
		put("short", r.Short)
		put("description", r.Description)
		put("ports", portTuples(r.Ports))
		put("module_names", strs(r.Modules))
		put("destination", strMap(r.Destination))
		put("protocols", strs(r.Protocols))
		put("source_ports", portTuples(r.SourcePorts))
	case *settings.IcmpType:
		put("version", r.Version)
		put("short", r.Short)
		put("description", r.Description)
		put("destination", strs(r.Destination))
	case *settings.IPSet:
		put("version", r.Version)
		put("short", r.Short)
		put("description", r.Description)
		put("type", r.Type)
		put("options", strMap(r.Options))
		put("entries", strs(r.Entries))
	}
	return out
}

// Decode builds a record of kind k from a settings map. Missing keys keep
// their zero value; unknown keys and mistyped values are INVALID_VALUE.
func Decode(k settings.Kind, in map[string]dbus.Variant) (settings.Record, error) {
	rec := settings.New(k, "")
	d := decoder{in: in}

	switch r := rec.(type) {
	case *settings.Zone:
		d.str("version", &r.Version)
		d.str("short", &r.Short)
		d.str("description", &r.Description)
		d.str("target", &r.Target)
		d.list("services", &r.Services)
		d.ports("ports", &r.Ports)
		d.list("icmp_blocks", &r.IcmpBlocks)
		d.flag("masquerade", &r.Masquerade)
		d.forwardPorts("forward_ports", &r.ForwardPorts)
		d.list("interfaces", &r.Interfaces)
		d.list("sources", &r.Sources)
		d.list("protocols", &r.Protocols)
		d.ports("source_ports", &r.SourcePorts)
		d.flag("icmp_block_inversion", &r.IcmpBlockInversion)
	case *settings.Service:
		d.str("version", &r.Version)
		d.str("short", &r.Short)
		d.str("description", &r.Description)
		d.ports("ports", &r.Ports)
		d.list("module_names", &r.Modules)
		d.dict("destination", &r.Destination)
		d.list("protocols", &r.Protocols)
		d.ports("source_ports", &r.SourcePorts)
	case *settings.IcmpType:
		d.str("version", &r.Version)
		d.str("short", &r.Short)
		d.str("description", &r.Description)
		d.list("destination", &r.Destination)
	case *settings.IPSet:
		d.str("version", &r.Version)
		d.str("short", &r.Short)
		d.str("description", &r.Description)
		d.str("type", &r.Type)
		d.dict("options", &r.Options)
		d.list("entries", &r.Entries)
	default:
		return nil, fwerr.Errorf(fwerr.InvalidObject, "kind %s", k)
	}
	if d.err != nil {
		return nil, d.err
	}
	for key := range in {
		if !d.seen[key] {
			return nil, fwerr.Errorf(fwerr.InvalidValue, "unknown %s setting '%s'", k, key)
		}
	}
	return rec, nil
}

type decoder struct {
	in   map[string]dbus.Variant
	seen map[string]bool
	err  error
}

func (d *decoder) take(key string) (any, bool) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[key] = true
	v, ok := d.in[key]
	if !ok || d.err != nil {
		return nil, false
	}
	return v.Value(), true
}

func (d *decoder) fail(key string, v any) {
	d.err = fwerr.Errorf(fwerr.InvalidValue, "setting '%s' has type %T", key, v)
}

func (d *decoder) str(key string, dst *string) {
	v, ok := d.take(key)
	if !ok {
		return
	}
	s, ok := v.(string)
	if !ok {
		d.fail(key, v)
		return
	}
	*dst = s
}

func (d *decoder) flag(key string, dst *bool) {
	v, ok := d.take(key)
	if !ok {
		return
	}
	b, ok := v.(bool)
	if !ok {
		d.fail(key, v)
		return
	}
	*dst = b
}

func (d *decoder) list(key string, dst *[]string) {
	v, ok := d.take(key)
	if !ok {
		return
	}
	items, err := StringSlice(v)
	if err != nil {
		d.err = fwerr.Wrap(fwerr.InvalidValue, err, key)
		return
	}
	*dst = items
}

func (d *decoder) dict(key string, dst *map[string]string) {
	v, ok := d.take(key)
	if !ok {
		return
	}
	switch m := v.(type) {
	case map[string]string:
		if len(m) > 0 {
			*dst = maps.Clone(m)
		}
	case map[string]dbus.Variant:
		out := make(map[string]string, len(m))
		for k, item := range m {
			s, ok := item.Value().(string)
			if !ok {
				d.fail(key+"."+k, item.Value())
				return
			}
			out[k] = s
		}
		if len(out) > 0 {
			*dst = out
		}
	default:
		d.fail(key, v)
	}
}

func (d *decoder) ports(key string, dst *[]settings.Port) {
	v, ok := d.take(key)
	if !ok {
		return
	}
	tuples, err := Tuples(v, 2)
	if err != nil {
		d.err = fwerr.Wrap(fwerr.InvalidPort, err, key)
		return
	}
	for _, t := range tuples {
		*dst = append(*dst, settings.Port{Port: t[0], Protocol: t[1]})
	}
}

func (d *decoder) forwardPorts(key string, dst *[]settings.ForwardPort) {
	v, ok := d.take(key)
	if !ok {
		return
	}
	tuples, err := Tuples(v, 4)
	if err != nil {
		d.err = fwerr.Wrap(fwerr.InvalidForward, err, key)
		return
	}
	for _, t := range tuples {
		*dst = append(*dst, settings.ForwardPort{Port: t[0], Protocol: t[1], ToPort: t[2], ToAddr: t[3]})
	}
}

// StringSlice accepts the shapes an "as" value takes after decoding.
func StringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case []string:
		return slices.Clone(val), nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected item type %T in string list", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected type %T for string list", val)
	}
}

// Tuples accepts lists of fixed size string tuples, sent either as "aas" or
// as an array of structs.
func Tuples(v any, size int) ([][]string, error) {
	var rows [][]string
	switch val := v.(type) {
	case [][]string:
		rows = val
	case [][]interface{}:
		for _, item := range val {
			row, err := StringSlice(item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	case []interface{}:
		for _, item := range val {
			row, err := StringSlice(item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	default:
		return nil, fmt.Errorf("unexpected tuple list type %T", val)
	}
	for _, row := range rows {
		if len(row) != size {
			slog.Debug("bad tuple", "row", row, "size", size)
			return nil, fmt.Errorf("tuple %v has %d fields, want %d", row, len(row), size)
		}
	}
	return rows, nil
}

func strs(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func strMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func portTuples(ports []settings.Port) [][]string {
	out := make([][]string, 0, len(ports))
	for _, p := range ports {
		out = append(out, []string{p.Port, p.Protocol})
	}
	return out
}

func forwardTuples(fps []settings.ForwardPort) [][]string {
	out := make([][]string, 0, len(fps))
	for _, fp := range fps {
		out = append(out, []string{fp.Port, fp.Protocol, fp.ToPort, fp.ToAddr})
	}
	return out
}
