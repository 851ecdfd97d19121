//go:build linux
// +build linux

package server

import (
	"github.com/godbus/dbus/v5"

	"gofirewalld/internal/wire"
)

// policiesObject serves the lockdown whitelist.
type policiesObject struct{ s *Server }

func (o *policiesObject) GetLockdownWhitelist() (wire.Whitelist, *dbus.Error) {
	return wire.FromWhitelist(o.s.graph.LockdownWhitelist()), nil
}

func (o *policiesObject) SetLockdownWhitelist(sender dbus.Sender, w wire.Whitelist) *dbus.Error {
	return busError(o.s.graph.SetLockdownWhitelist(o.s.caller(sender), w.Settings()))
}

func (o *policiesObject) AddLockdownWhitelistCommand(sender dbus.Sender, command string) *dbus.Error {
	return busError(o.s.graph.AddLockdownWhitelistCommand(o.s.caller(sender), command))
}

func (o *policiesObject) RemoveLockdownWhitelistCommand(sender dbus.Sender, command string) *dbus.Error {
	return busError(o.s.graph.RemoveLockdownWhitelistCommand(o.s.caller(sender), command))
}

func (o *policiesObject) QueryLockdownWhitelistCommand(command string) (bool, *dbus.Error) {
	return o.s.graph.QueryLockdownWhitelistCommand(command), nil
}

func (o *policiesObject) GetLockdownWhitelistCommands() ([]string, *dbus.Error) {
	return nonNil(o.s.graph.LockdownWhitelist().Commands), nil
}

func (o *policiesObject) AddLockdownWhitelistContext(sender dbus.Sender, context string) *dbus.Error {
	return busError(o.s.graph.AddLockdownWhitelistContext(o.s.caller(sender), context))
}

func (o *policiesObject) RemoveLockdownWhitelistContext(sender dbus.Sender, context string) *dbus.Error {
	return busError(o.s.graph.RemoveLockdownWhitelistContext(o.s.caller(sender), context))
}

func (o *policiesObject) QueryLockdownWhitelistContext(context string) (bool, *dbus.Error) {
	return o.s.graph.QueryLockdownWhitelistContext(context), nil
}

func (o *policiesObject) GetLockdownWhitelistContexts() ([]string, *dbus.Error) {
	return nonNil(o.s.graph.LockdownWhitelist().Contexts), nil
}

func (o *policiesObject) AddLockdownWhitelistUser(sender dbus.Sender, user string) *dbus.Error {
	return busError(o.s.graph.AddLockdownWhitelistUser(o.s.caller(sender), user))
}

func (o *policiesObject) RemoveLockdownWhitelistUser(sender dbus.Sender, user string) *dbus.Error {
	return busError(o.s.graph.RemoveLockdownWhitelistUser(o.s.caller(sender), user))
}

func (o *policiesObject) QueryLockdownWhitelistUser(user string) (bool, *dbus.Error) {
	return o.s.graph.QueryLockdownWhitelistUser(user), nil
}

func (o *policiesObject) GetLockdownWhitelistUsers() ([]string, *dbus.Error) {
	return nonNil(o.s.graph.LockdownWhitelist().Users), nil
}

func (o *policiesObject) AddLockdownWhitelistUid(sender dbus.Sender, uid int32) *dbus.Error {
	return busError(o.s.graph.AddLockdownWhitelistUID(o.s.caller(sender), int(uid)))
}

func (o *policiesObject) RemoveLockdownWhitelistUid(sender dbus.Sender, uid int32) *dbus.Error {
	return busError(o.s.graph.RemoveLockdownWhitelistUID(o.s.caller(sender), int(uid)))
}

func (o *policiesObject) QueryLockdownWhitelistUid(uid int32) (bool, *dbus.Error) {
	return o.s.graph.QueryLockdownWhitelistUID(int(uid)), nil
}

func (o *policiesObject) GetLockdownWhitelistUids() ([]int32, *dbus.Error) {
	out := []int32{}
	for _, uid := range o.s.graph.LockdownWhitelist().UIDs {
		out = append(out, int32(uid))
	}
	return out, nil
}
