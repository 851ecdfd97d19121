//go:build linux
// +build linux

package server

import (
	"github.com/godbus/dbus/v5"

	"gofirewalld/internal/wire"
)

// directObject serves the permanent direct ruleset.
type directObject struct{ s *Server }

func (o *directObject) GetSettings() (wire.Direct, *dbus.Error) {
	return wire.FromDirect(o.s.graph.DirectSettings()), nil
}

func (o *directObject) Update(sender dbus.Sender, d wire.Direct) *dbus.Error {
	return busError(o.s.graph.SetDirect(o.s.caller(sender), d.Settings()))
}

func (o *directObject) AddChain(sender dbus.Sender, ipv, table, chain string) *dbus.Error {
	return busError(o.s.graph.AddChain(o.s.caller(sender), ipv, table, chain))
}

func (o *directObject) RemoveChain(sender dbus.Sender, ipv, table, chain string) *dbus.Error {
	return busError(o.s.graph.RemoveChain(o.s.caller(sender), ipv, table, chain))
}

func (o *directObject) QueryChain(ipv, table, chain string) (bool, *dbus.Error) {
	return o.s.graph.QueryChain(ipv, table, chain), nil
}

func (o *directObject) GetChains(ipv, table string) ([]string, *dbus.Error) {
	return nonNil(o.s.graph.Chains(ipv, table)), nil
}

func (o *directObject) GetAllChains() ([][]string, *dbus.Error) {
	out := [][]string{}
	for _, c := range o.s.graph.AllChains() {
		out = append(out, []string{c.IPv, c.Table, c.Chain})
	}
	return out, nil
}

func (o *directObject) AddRule(sender dbus.Sender, ipv, table, chain string, priority int32, args []string) *dbus.Error {
	return busError(o.s.graph.AddRule(o.s.caller(sender), ipv, table, chain, priority, args))
}

func (o *directObject) RemoveRule(sender dbus.Sender, ipv, table, chain string, priority int32, args []string) *dbus.Error {
	return busError(o.s.graph.RemoveRule(o.s.caller(sender), ipv, table, chain, priority, args))
}

func (o *directObject) RemoveRules(sender dbus.Sender, ipv, table, chain string) *dbus.Error {
	return busError(o.s.graph.RemoveRules(o.s.caller(sender), ipv, table, chain))
}

func (o *directObject) QueryRule(ipv, table, chain string, priority int32, args []string) (bool, *dbus.Error) {
	return o.s.graph.QueryRule(ipv, table, chain, priority, args), nil
}

type rule struct {
	Priority int32
	Args     []string
}

func (o *directObject) GetRules(ipv, table, chain string) ([]rule, *dbus.Error) {
	out := []rule{}
	for _, r := range o.s.graph.Rules(ipv, table, chain) {
		out = append(out, rule{Priority: r.Priority, Args: r.Args})
	}
	return out, nil
}

type fullRule struct {
	IPv      string
	Table    string
	Chain    string
	Priority int32
	Args     []string
}

func (o *directObject) GetAllRules() ([]fullRule, *dbus.Error) {
	out := []fullRule{}
	for _, r := range o.s.graph.AllRules() {
		out = append(out, fullRule{r.IPv, r.Table, r.Chain, r.Priority, r.Args})
	}
	return out, nil
}

func (o *directObject) AddPassthrough(sender dbus.Sender, ipv string, args []string) *dbus.Error {
	return busError(o.s.graph.AddPassthrough(o.s.caller(sender), ipv, args))
}

func (o *directObject) RemovePassthrough(sender dbus.Sender, ipv string, args []string) *dbus.Error {
	return busError(o.s.graph.RemovePassthrough(o.s.caller(sender), ipv, args))
}

func (o *directObject) QueryPassthrough(ipv string, args []string) (bool, *dbus.Error) {
	return o.s.graph.QueryPassthrough(ipv, args), nil
}

func (o *directObject) GetPassthroughs(ipv string) ([][]string, *dbus.Error) {
	out := o.s.graph.Passthroughs(ipv)
	if out == nil {
		out = [][]string{}
	}
	return out, nil
}

type passthrough struct {
	IPv  string
	Args []string
}

func (o *directObject) GetAllPassthroughs() ([]passthrough, *dbus.Error) {
	out := []passthrough{}
	for _, p := range o.s.graph.AllPassthroughs() {
		out = append(out, passthrough{p.IPv, p.Args})
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
