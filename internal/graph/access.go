package graph

import (
	"log/slog"
	"slices"
	"strings"

	"gofirewalld/internal/config"
	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
)

// Caller identifies the originator of a mutation. A Caller without a Sender
// is the daemon itself and always passes the gate.
type Caller struct {
	Sender  string
	UID     int // negative when unknown
	User    string
	Command string
	Context string
}

// Internal is the identity used for changes the daemon makes on its own.
var Internal = Caller{UID: -1}

func (c Caller) internal() bool { return c.Sender == "" }

type AccessGate interface {
	Allow(c Caller) bool
}

type GateFunc func(c Caller) bool

func (f GateFunc) Allow(c Caller) bool { return f(c) }

// checkAccess runs before any mutation. Callers must hold g.mu.
func (g *Graph) checkAccess(c Caller) error {
	if c.internal() {
		return nil
	}
	if g.conf.Bool(config.Lockdown) && !whitelisted(g.whitelist, c) {
		slog.Warn("access denied", "sender", c.Sender, "uid", c.UID, "command", c.Command)
		return fwerr.New(fwerr.AccessDenied, "lockdown is enabled")
	}
	if g.gate != nil && !g.gate.Allow(c) {
		slog.Warn("access denied", "sender", c.Sender, "uid", c.UID)
		return fwerr.New(fwerr.AccessDenied, c.Sender)
	}
	return nil
}

// whitelisted checks context, uid, user and command in that order.
func whitelisted(w *settings.LockdownWhitelist, c Caller) bool {
	if c.Context != "" && slices.Contains(w.Contexts, c.Context) {
		return true
	}
	if c.UID >= 0 && slices.Contains(w.UIDs, c.UID) {
		return true
	}
	if c.User != "" && slices.Contains(w.Users, c.User) {
		return true
	}
	if c.Command != "" {
		for _, cmd := range w.Commands {
			if matchCommand(cmd, c.Command) {
				return true
			}
		}
	}
	return false
}

// matchCommand compares a whitelist entry with a command line. An entry
// ending in '*' matches every command line starting with the rest.
func matchCommand(entry, cmdline string) bool {
	if prefix, ok := strings.CutSuffix(entry, "*"); ok {
		return strings.HasPrefix(cmdline, prefix)
	}
	return entry == cmdline
}

// Authorize runs the checks a mutation by c would go through.
func (g *Graph) Authorize(c Caller) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkAccess(c)
}
