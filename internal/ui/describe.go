//go:build linux
// +build linux

package ui

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"gofirewalld/internal/settings"
)

func describeRecord(rec settings.Record) []string {
	var lines []string
	add := func(label string, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%-14s %s", label+":", value))
		}
	}
	list := func(label string, values []string) {
		add(label, strings.Join(values, " "))
	}
	meta := rec.Base()

	switch r := rec.(type) {
	case *settings.Zone:
		add("short", r.Short)
		add("target", r.Target)
		list("services", r.Services)
		list("ports", ports(r.Ports))
		list("protocols", r.Protocols)
		list("source ports", ports(r.SourcePorts))
		list("icmp blocks", r.IcmpBlocks)
		if r.IcmpBlockInversion {
			add("icmp inverse", "yes")
		}
		if r.Masquerade {
			add("masquerade", "yes")
		}
		for _, fp := range r.ForwardPorts {
			add("forward", fmt.Sprintf("%s/%s -> %s:%s", fp.Port, fp.Protocol, fp.ToAddr, fp.ToPort))
		}
		list("interfaces", r.Interfaces)
		list("sources", r.Sources)
	case *settings.Service:
		add("short", r.Short)
		list("ports", ports(r.Ports))
		list("protocols", r.Protocols)
		list("modules", r.Modules)
		list("destination", pairs(r.Destination))
	case *settings.IcmpType:
		add("short", r.Short)
		list("destination", r.Destination)
	case *settings.IPSet:
		add("short", r.Short)
		add("type", r.Type)
		list("options", pairs(r.Options))
		lines = append(lines, fmt.Sprintf("%-14s %d", "entries:", len(r.Entries)))
		for _, e := range r.Entries {
			lines = append(lines, "  "+e)
		}
	}

	origin := "user"
	if meta.Builtin {
		origin = "builtin"
	}
	lines = append(lines, "", dimStyle.Render(fmt.Sprintf("%s/%s (%s)", meta.Path, meta.Filename, origin)))
	return lines
}

func describeDirect(d *settings.Direct) []string {
	var lines []string
	for _, c := range d.Chains {
		lines = append(lines, fmt.Sprintf("chain %s %s %s", c.IPv, c.Table, c.Chain))
	}
	for _, r := range d.Rules {
		lines = append(lines, fmt.Sprintf("rule %s %s %s %d %s", r.IPv, r.Table, r.Chain, r.Priority, strings.Join(r.Args, " ")))
	}
	for _, p := range d.Passthroughs {
		lines = append(lines, fmt.Sprintf("passthrough %s %s", p.IPv, strings.Join(p.Args, " ")))
	}
	if len(lines) == 0 {
		lines = append(lines, dimStyle.Render("(empty)"))
	}
	return lines
}

func describeProperties(props map[string]any) []string {
	lines := make([]string, 0, len(props))
	for _, k := range sortedKeys(props) {
		lines = append(lines, fmt.Sprintf("%-16s %v", k, props[k]))
	}
	return lines
}

func ports(ps []settings.Port) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Port+"/"+p.Protocol)
	}
	return out
}

func pairs(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, k+"="+m[k])
	}
	return out
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[M ~map[K]V, K cmp.Ordered, V any](m M) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
