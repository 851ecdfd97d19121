package graph

import (
	"fmt"
	"slices"
	"strings"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
)

var directTables = map[string][]string{
	"ipv4": {"filter", "nat", "mangle", "raw", "security"},
	"ipv6": {"filter", "nat", "mangle", "raw", "security"},
	"eb":   {"broute", "nat", "filter"},
}

func checkDirectTable(ipv, table string) error {
	tables, ok := directTables[ipv]
	if !ok {
		return fwerr.New(fwerr.InvalidIPv, ipv)
	}
	if !slices.Contains(tables, table) {
		return fwerr.Errorf(fwerr.InvalidTable, "'%s' is not a valid %s table", table, ipv)
	}
	return nil
}

func checkDirectChain(c settings.DirectChain) error {
	if err := checkDirectTable(c.IPv, c.Table); err != nil {
		return err
	}
	if c.Chain == "" || strings.ContainsAny(c.Chain, " \t\n") {
		return fwerr.New(fwerr.InvalidChain, c.Chain)
	}
	return nil
}

func checkDirectRule(r settings.DirectRule) error {
	if err := checkDirectChain(settings.DirectChain{IPv: r.IPv, Table: r.Table, Chain: r.Chain}); err != nil {
		return err
	}
	if len(r.Args) == 0 {
		return fwerr.Errorf(fwerr.InvalidValue, "empty rule in chain '%s'", r.Chain)
	}
	return checkArgs(r.Args)
}

func checkPassthrough(p settings.Passthrough) error {
	if _, ok := directTables[p.IPv]; !ok {
		return fwerr.New(fwerr.InvalidIPv, p.IPv)
	}
	if len(p.Args) == 0 {
		return fwerr.New(fwerr.InvalidValue, "empty passthrough")
	}
	return checkArgs(p.Args)
}

// checkArgs refuses empty arguments; the stored argument line cannot carry
// them across a reload.
func checkArgs(args []string) error {
	if i := slices.Index(args, ""); i >= 0 {
		return fwerr.Errorf(fwerr.InvalidValue, "empty argument at position %d", i+1)
	}
	return nil
}

// mutateDirect applies fn to a copy of the ruleset and commits the copy only
// when fn and the save both succeed.
func (g *Graph) mutateDirect(c Caller, fn func(d *settings.Direct) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkAccess(c); err != nil {
		return err
	}
	d := g.direct.Clone()
	if err := fn(d); err != nil {
		return err
	}
	if err := g.backend.SaveDirect(d); err != nil {
		return fmt.Errorf("save direct ruleset: %w", err)
	}
	g.direct = d
	g.metrics.Mutation("direct", "update")
	g.sink.DirectUpdated()
	return nil
}

func (g *Graph) readDirect(fn func(d *settings.Direct)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.direct)
}

// DirectSettings returns a copy of the whole ruleset.
func (g *Graph) DirectSettings() *settings.Direct {
	var out *settings.Direct
	g.readDirect(func(d *settings.Direct) { out = d.Clone() })
	return out
}

// SetDirect replaces the whole ruleset.
func (g *Graph) SetDirect(c Caller, d *settings.Direct) error {
	for _, ch := range d.Chains {
		if err := checkDirectChain(ch); err != nil {
			return err
		}
	}
	for _, r := range d.Rules {
		if err := checkDirectRule(r); err != nil {
			return err
		}
	}
	for _, p := range d.Passthroughs {
		if err := checkPassthrough(p); err != nil {
			return err
		}
	}
	return g.mutateDirect(c, func(cur *settings.Direct) error {
		*cur = *d.Clone()
		return nil
	})
}

// ReloadDirect reads the ruleset from disk and announces it. A file that
// cannot be read leaves the current ruleset in place.
func (g *Graph) ReloadDirect() error {
	d, err := g.backend.LoadDirect()
	if err != nil {
		return fmt.Errorf("reload direct ruleset: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.direct = d
	g.sink.DirectUpdated()
	return nil
}

func (g *Graph) AddChain(c Caller, ipv, table, chain string) error {
	ch := settings.DirectChain{IPv: ipv, Table: table, Chain: chain}
	if err := checkDirectChain(ch); err != nil {
		return err
	}
	return g.mutateDirect(c, func(d *settings.Direct) error {
		if d.HasChain(ch) {
			return fwerr.Errorf(fwerr.AlreadyEnabled, "chain '%s' already is in '%s:%s'", chain, ipv, table)
		}
		d.Chains = append(d.Chains, ch)
		return nil
	})
}

func (g *Graph) RemoveChain(c Caller, ipv, table, chain string) error {
	ch := settings.DirectChain{IPv: ipv, Table: table, Chain: chain}
	if err := checkDirectChain(ch); err != nil {
		return err
	}
	return g.mutateDirect(c, func(d *settings.Direct) error {
		i := slices.Index(d.Chains, ch)
		if i < 0 {
			return fwerr.Errorf(fwerr.NotEnabled, "chain '%s' is not in '%s:%s'", chain, ipv, table)
		}
		d.Chains = slices.Delete(d.Chains, i, i+1)
		return nil
	})
}

func (g *Graph) QueryChain(ipv, table, chain string) bool {
	var ok bool
	g.readDirect(func(d *settings.Direct) {
		ok = d.HasChain(settings.DirectChain{IPv: ipv, Table: table, Chain: chain})
	})
	return ok
}

// Chains lists the chain names added to one table.
func (g *Graph) Chains(ipv, table string) []string {
	var out []string
	g.readDirect(func(d *settings.Direct) {
		for _, ch := range d.Chains {
			if ch.IPv == ipv && ch.Table == table {
				out = append(out, ch.Chain)
			}
		}
	})
	return out
}

func (g *Graph) AllChains() []settings.DirectChain {
	var out []settings.DirectChain
	g.readDirect(func(d *settings.Direct) { out = slices.Clone(d.Chains) })
	return out
}

func (g *Graph) AddRule(c Caller, ipv, table, chain string, priority int32, args []string) error {
	r := settings.DirectRule{IPv: ipv, Table: table, Chain: chain, Priority: priority, Args: slices.Clone(args)}
	if err := checkDirectRule(r); err != nil {
		return err
	}
	return g.mutateDirect(c, func(d *settings.Direct) error {
		if d.HasRule(r) {
			return fwerr.Errorf(fwerr.AlreadyEnabled, "rule '%s' already is in '%s:%s:%s'", strings.Join(args, " "), ipv, table, chain)
		}
		d.Rules = append(d.Rules, r)
		return nil
	})
}

func (g *Graph) RemoveRule(c Caller, ipv, table, chain string, priority int32, args []string) error {
	r := settings.DirectRule{IPv: ipv, Table: table, Chain: chain, Priority: priority, Args: args}
	if err := checkDirectRule(r); err != nil {
		return err
	}
	return g.mutateDirect(c, func(d *settings.Direct) error {
		i := slices.IndexFunc(d.Rules, r.Equal)
		if i < 0 {
			return fwerr.Errorf(fwerr.NotEnabled, "rule '%s' is not in '%s:%s:%s'", strings.Join(args, " "), ipv, table, chain)
		}
		d.Rules = slices.Delete(d.Rules, i, i+1)
		return nil
	})
}

// RemoveRules drops every rule of one chain. Rules of other chains in the
// same table are kept.
func (g *Graph) RemoveRules(c Caller, ipv, table, chain string) error {
	if err := checkDirectChain(settings.DirectChain{IPv: ipv, Table: table, Chain: chain}); err != nil {
		return err
	}
	return g.mutateDirect(c, func(d *settings.Direct) error {
		d.Rules = slices.DeleteFunc(d.Rules, func(r settings.DirectRule) bool {
			return r.IPv == ipv && r.Table == table && r.Chain == chain
		})
		return nil
	})
}

func (g *Graph) QueryRule(ipv, table, chain string, priority int32, args []string) bool {
	var ok bool
	g.readDirect(func(d *settings.Direct) {
		ok = d.HasRule(settings.DirectRule{IPv: ipv, Table: table, Chain: chain, Priority: priority, Args: args})
	})
	return ok
}

// Rules lists the rules of one chain.
func (g *Graph) Rules(ipv, table, chain string) []settings.DirectRule {
	var out []settings.DirectRule
	g.readDirect(func(d *settings.Direct) {
		for _, r := range d.Rules {
			if r.IPv == ipv && r.Table == table && r.Chain == chain {
				r.Args = slices.Clone(r.Args)
				out = append(out, r)
			}
		}
	})
	return out
}

func (g *Graph) AllRules() []settings.DirectRule {
	var out []settings.DirectRule
	g.readDirect(func(d *settings.Direct) { out = d.Clone().Rules })
	return out
}

func (g *Graph) AddPassthrough(c Caller, ipv string, args []string) error {
	p := settings.Passthrough{IPv: ipv, Args: slices.Clone(args)}
	if err := checkPassthrough(p); err != nil {
		return err
	}
	return g.mutateDirect(c, func(d *settings.Direct) error {
		if d.HasPassthrough(p) {
			return fwerr.Errorf(fwerr.AlreadyEnabled, "passthrough '%s' already is in '%s'", strings.Join(args, " "), ipv)
		}
		d.Passthroughs = append(d.Passthroughs, p)
		return nil
	})
}

func (g *Graph) RemovePassthrough(c Caller, ipv string, args []string) error {
	p := settings.Passthrough{IPv: ipv, Args: args}
	if err := checkPassthrough(p); err != nil {
		return err
	}
	return g.mutateDirect(c, func(d *settings.Direct) error {
		i := slices.IndexFunc(d.Passthroughs, p.Equal)
		if i < 0 {
			return fwerr.Errorf(fwerr.NotEnabled, "passthrough '%s' is not in '%s'", strings.Join(args, " "), ipv)
		}
		d.Passthroughs = slices.Delete(d.Passthroughs, i, i+1)
		return nil
	})
}

func (g *Graph) QueryPassthrough(ipv string, args []string) bool {
	var ok bool
	g.readDirect(func(d *settings.Direct) {
		ok = d.HasPassthrough(settings.Passthrough{IPv: ipv, Args: args})
	})
	return ok
}

// Passthroughs lists the argument vectors of one address family.
func (g *Graph) Passthroughs(ipv string) [][]string {
	var out [][]string
	g.readDirect(func(d *settings.Direct) {
		for _, p := range d.Passthroughs {
			if p.IPv == ipv {
				out = append(out, slices.Clone(p.Args))
			}
		}
	})
	return out
}

func (g *Graph) AllPassthroughs() []settings.Passthrough {
	var out []settings.Passthrough
	g.readDirect(func(d *settings.Direct) { out = d.Clone().Passthroughs })
	return out
}
