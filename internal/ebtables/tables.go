//go:build linux
// +build linux

package ebtables

import "slices"

// Rule is one argument vector. A "-t <table>" pair selects the table for this
// and every following rule of a batch.
type Rule []string

// Table names a rule namespace and the chains the kernel predefines in it.
type Table struct {
	Name   string
	Chains []string
}

// Registry is the static table layout. It is built once and never mutated;
// accessors return copies.
type Registry struct {
	tables []Table
	index  map[string]int
}

func NewRegistry(tables ...Table) *Registry {
	r := &Registry{index: make(map[string]int, len(tables))}
	for _, t := range tables {
		if _, dup := r.index[t.Name]; dup {
			continue
		}
		r.index[t.Name] = len(r.tables)
		r.tables = append(r.tables, Table{Name: t.Name, Chains: slices.Clone(t.Chains)})
	}
	return r
}

// DefaultRegistry describes the bridge tables.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Table{Name: "broute", Chains: []string{"BROUTING"}},
		Table{Name: "nat", Chains: []string{"PREROUTING", "POSTROUTING", "OUTPUT"}},
		Table{Name: "filter", Chains: []string{"INPUT", "OUTPUT", "FORWARD"}},
	)
}

func (r *Registry) Tables() []string {
	names := make([]string, len(r.tables))
	for i, t := range r.tables {
		names[i] = t.Name
	}
	return names
}

func (r *Registry) IsValid(table string) bool {
	_, ok := r.index[table]
	return ok
}

func (r *Registry) BuiltinChains(table string) []string {
	i, ok := r.index[table]
	if !ok {
		return nil
	}
	return slices.Clone(r.tables[i].Chains)
}

func (r *Registry) IsBuiltinChain(table, chain string) bool {
	i, ok := r.index[table]
	return ok && slices.Contains(r.tables[i].Chains, chain)
}

// DirectChain is the companion chain managed rules are inserted into.
func DirectChain(builtin string) string {
	return builtin + "_direct"
}

// OurChains lists the chains created by bootstrap in table.
func (r *Registry) OurChains(table string) []string {
	var chains []string
	for _, c := range r.BuiltinChains(table) {
		chains = append(chains, DirectChain(c))
	}
	return chains
}

// DefaultRules returns the bootstrap rules of table, without a table
// selector: each builtin chain gets a companion chain with a RETURN policy
// and a jump to it in first position.
func (r *Registry) DefaultRules(table string) []Rule {
	var rules []Rule
	for _, c := range r.BuiltinChains(table) {
		rules = append(rules,
			Rule{"-N", DirectChain(c), "-P", "RETURN"},
			Rule{"-I", c, "1", "-j", DirectChain(c)},
		)
	}
	return rules
}

// MissingDefaultRules compares a table listing against the bootstrap rules
// and returns only the ones that still have to be applied.
func (r *Registry) MissingDefaultRules(table string, l Listing) []Rule {
	var rules []Rule
	for _, c := range r.BuiltinChains(table) {
		direct := DirectChain(c)
		if dc, ok := l.Chains[direct]; !ok {
			rules = append(rules, Rule{"-N", direct, "-P", "RETURN"})
		} else if dc.Policy != "RETURN" {
			rules = append(rules, Rule{"-P", direct, "RETURN"})
		}
		jump := "-j " + direct
		bc := l.Chains[c]
		switch {
		case len(bc.Rules) > 0 && bc.Rules[0] == jump:
		case slices.Contains(bc.Rules, jump):
			// present but not first: move it
			rules = append(rules,
				Rule{"-D", c, "-j", direct},
				Rule{"-I", c, "1", "-j", direct},
			)
		default:
			rules = append(rules, Rule{"-I", c, "1", "-j", direct})
		}
	}
	return rules
}
