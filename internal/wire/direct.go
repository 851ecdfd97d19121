package wire

import "gofirewalld/internal/settings"

// Direct is the (a(sss)a(sssias)a(sas)) form of the direct ruleset.
type Direct struct {
	Chains       []settings.DirectChain
	Rules        []settings.DirectRule
	Passthroughs []settings.Passthrough
}

func FromDirect(d *settings.Direct) Direct {
	c := d.Clone()
	return Direct{Chains: c.Chains, Rules: c.Rules, Passthroughs: c.Passthroughs}
}

func (d Direct) Settings() *settings.Direct {
	return (&settings.Direct{Chains: d.Chains, Rules: d.Rules, Passthroughs: d.Passthroughs}).Clone()
}

// Whitelist is the (asasasai) form of the lockdown whitelist.
type Whitelist struct {
	Commands []string
	Contexts []string
	Users    []string
	UIDs     []int32
}

func FromWhitelist(w *settings.LockdownWhitelist) Whitelist {
	c := w.Clone()
	out := Whitelist{Commands: c.Commands, Contexts: c.Contexts, Users: c.Users}
	for _, uid := range c.UIDs {
		out.UIDs = append(out.UIDs, int32(uid))
	}
	return out
}

func (w Whitelist) Settings() *settings.LockdownWhitelist {
	out := &settings.LockdownWhitelist{Commands: w.Commands, Contexts: w.Contexts, Users: w.Users}
	for _, uid := range w.UIDs {
		out.UIDs = append(out.UIDs, int(uid))
	}
	return out.Clone()
}
