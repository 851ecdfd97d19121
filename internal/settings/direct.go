package settings

import "slices"

type DirectChain struct {
	IPv   string
	Table string
	Chain string
}

type DirectRule struct {
	IPv      string
	Table    string
	Chain    string
	Priority int32
	Args     []string
}

func (r DirectRule) Equal(o DirectRule) bool {
	return r.IPv == o.IPv && r.Table == o.Table && r.Chain == o.Chain &&
		r.Priority == o.Priority && slices.Equal(r.Args, o.Args)
}

type Passthrough struct {
	IPv  string
	Args []string
}

func (p Passthrough) Equal(o Passthrough) bool {
	return p.IPv == o.IPv && slices.Equal(p.Args, o.Args)
}

// Direct is the single persisted record of user supplied low level rules.
// Each collection behaves as an ordered set.
type Direct struct {
	Chains       []DirectChain
	Rules        []DirectRule
	Passthroughs []Passthrough
}

func (d *Direct) Clone() *Direct {
	c := &Direct{
		Chains:       slices.Clone(d.Chains),
		Rules:        make([]DirectRule, len(d.Rules)),
		Passthroughs: make([]Passthrough, len(d.Passthroughs)),
	}
	for i, r := range d.Rules {
		r.Args = slices.Clone(r.Args)
		c.Rules[i] = r
	}
	for i, p := range d.Passthroughs {
		p.Args = slices.Clone(p.Args)
		c.Passthroughs[i] = p
	}
	return c
}

func (d *Direct) HasChain(c DirectChain) bool {
	return slices.Contains(d.Chains, c)
}

func (d *Direct) HasRule(r DirectRule) bool {
	return slices.ContainsFunc(d.Rules, r.Equal)
}

func (d *Direct) HasPassthrough(p Passthrough) bool {
	return slices.ContainsFunc(d.Passthroughs, p.Equal)
}

// LockdownWhitelist lists the callers allowed to mutate configuration while
// lockdown is enabled.
type LockdownWhitelist struct {
	Commands []string
	Contexts []string
	Users    []string
	UIDs     []int
}

func (w *LockdownWhitelist) Clone() *LockdownWhitelist {
	return &LockdownWhitelist{
		Commands: slices.Clone(w.Commands),
		Contexts: slices.Clone(w.Contexts),
		Users:    slices.Clone(w.Users),
		UIDs:     slices.Clone(w.UIDs),
	}
}

// Action is the effect of an on-disk change on the live graph.
type Action int

const (
	ActionNone Action = iota
	ActionNew
	ActionUpdate
	ActionRemove
)

func (a Action) String() string {
	switch a {
	case ActionNew:
		return "new"
	case ActionUpdate:
		return "update"
	case ActionRemove:
		return "remove"
	default:
		return "none"
	}
}

// Change describes how a path change maps onto the graph. For updates Old is
// the record the live object currently wraps and New its replacement; for
// new entities only New is set, for removals only Old.
type Change struct {
	Action Action
	Kind   Kind
	Old    Record
	New    Record
}
