//go:build linux
// +build linux

package server

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"

	"gofirewalld/internal/graph"
)

// Resolver turns the sender of a method call into the identity the lockdown
// whitelist is matched against.
type Resolver interface {
	Caller(sender dbus.Sender) graph.Caller
}

// anonymous keeps only the sender name. Callers it resolves never match a
// uid entry of the whitelist.
type anonymous struct{}

func (anonymous) Caller(sender dbus.Sender) graph.Caller {
	return graph.Caller{Sender: string(sender), UID: -1}
}

// BusResolver asks the bus daemon about the peer.
type BusResolver struct {
	bus  dbus.BusObject
	proc string
}

func NewBusResolver(conn *dbus.Conn) *BusResolver {
	return &BusResolver{bus: conn.BusObject(), proc: "/proc"}
}

func (r *BusResolver) Caller(sender dbus.Sender) graph.Caller {
	c := graph.Caller{Sender: string(sender), UID: -1}
	if sender == "" {
		return c
	}

	var uid uint32
	if err := r.bus.Call("org.freedesktop.DBus.GetConnectionUnixUser", 0, string(sender)).Store(&uid); err != nil {
		slog.Debug("caller uid unknown", "sender", sender, "error", err)
	} else {
		c.UID = int(uid)
		if u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10)); err == nil {
			c.User = u.Username
		}
	}

	var pid uint32
	if err := r.bus.Call("org.freedesktop.DBus.GetConnectionUnixProcessID", 0, string(sender)).Store(&pid); err != nil {
		slog.Debug("caller pid unknown", "sender", sender, "error", err)
	} else if cmd, err := commandLine(r.proc, int(pid)); err == nil {
		c.Command = cmd
	} else {
		slog.Debug("caller command unknown", "pid", pid, "error", err)
	}

	var ctx []byte
	if err := r.bus.Call("org.freedesktop.DBus.GetConnectionSELinuxSecurityContext", 0, string(sender)).Store(&ctx); err == nil {
		c.Context = string(bytes.TrimRight(ctx, "\x00"))
	}
	return c
}

// commandLine reads the argv of pid joined by spaces.
func commandLine(proc string, pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%d/cmdline", proc, pid))
	if err != nil {
		return "", fmt.Errorf("read cmdline: %w", err)
	}
	args := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	return strings.Join(args, " "), nil
}
