package graph

import (
	"fmt"
	"slices"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
)

func (g *Graph) mutateWhitelist(c Caller, fn func(w *settings.LockdownWhitelist) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkAccess(c); err != nil {
		return err
	}
	w := g.whitelist.Clone()
	if err := fn(w); err != nil {
		return err
	}
	if err := g.backend.SaveLockdownWhitelist(w); err != nil {
		return fmt.Errorf("save lockdown whitelist: %w", err)
	}
	g.whitelist = w
	g.metrics.Mutation("whitelist", "update")
	g.sink.LockdownWhitelistUpdated()
	return nil
}

func addItem[T comparable](list *[]T, item T, what string) error {
	if slices.Contains(*list, item) {
		return fwerr.Errorf(fwerr.AlreadyEnabled, "%s '%v' already whitelisted", what, item)
	}
	*list = append(*list, item)
	return nil
}

func removeItem[T comparable](list *[]T, item T, what string) error {
	i := slices.Index(*list, item)
	if i < 0 {
		return fwerr.Errorf(fwerr.NotEnabled, "%s '%v' not whitelisted", what, item)
	}
	*list = slices.Delete(*list, i, i+1)
	return nil
}

func (g *Graph) queryWhitelist(fn func(w *settings.LockdownWhitelist) bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.whitelist)
}

// LockdownWhitelist returns a copy of the whitelist.
func (g *Graph) LockdownWhitelist() *settings.LockdownWhitelist {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.whitelist.Clone()
}

func (g *Graph) SetLockdownWhitelist(c Caller, w *settings.LockdownWhitelist) error {
	if slices.ContainsFunc(w.UIDs, func(uid int) bool { return uid < 0 }) {
		return fwerr.New(fwerr.InvalidUID, "negative uid")
	}
	return g.mutateWhitelist(c, func(cur *settings.LockdownWhitelist) error {
		*cur = *w.Clone()
		return nil
	})
}

// ReloadLockdownWhitelist reads the whitelist from disk and announces it.
func (g *Graph) ReloadLockdownWhitelist() error {
	w, err := g.backend.LoadLockdownWhitelist()
	if err != nil {
		return fmt.Errorf("reload lockdown whitelist: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.whitelist = w
	g.sink.LockdownWhitelistUpdated()
	return nil
}

func (g *Graph) AddLockdownWhitelistCommand(c Caller, command string) error {
	if command == "" {
		return fwerr.New(fwerr.InvalidCommand, command)
	}
	return g.mutateWhitelist(c, func(w *settings.LockdownWhitelist) error {
		return addItem(&w.Commands, command, "command")
	})
}

func (g *Graph) RemoveLockdownWhitelistCommand(c Caller, command string) error {
	return g.mutateWhitelist(c, func(w *settings.LockdownWhitelist) error {
		return removeItem(&w.Commands, command, "command")
	})
}

func (g *Graph) QueryLockdownWhitelistCommand(command string) bool {
	return g.queryWhitelist(func(w *settings.LockdownWhitelist) bool { return slices.Contains(w.Commands, command) })
}

func (g *Graph) AddLockdownWhitelistContext(c Caller, context string) error {
	if context == "" {
		return fwerr.New(fwerr.InvalidContext, context)
	}
	return g.mutateWhitelist(c, func(w *settings.LockdownWhitelist) error {
		return addItem(&w.Contexts, context, "context")
	})
}

func (g *Graph) RemoveLockdownWhitelistContext(c Caller, context string) error {
	return g.mutateWhitelist(c, func(w *settings.LockdownWhitelist) error {
		return removeItem(&w.Contexts, context, "context")
	})
}

func (g *Graph) QueryLockdownWhitelistContext(context string) bool {
	return g.queryWhitelist(func(w *settings.LockdownWhitelist) bool { return slices.Contains(w.Contexts, context) })
}

func (g *Graph) AddLockdownWhitelistUser(c Caller, user string) error {
	if user == "" {
		return fwerr.New(fwerr.InvalidUser, user)
	}
	return g.mutateWhitelist(c, func(w *settings.LockdownWhitelist) error {
		return addItem(&w.Users, user, "user")
	})
}

func (g *Graph) RemoveLockdownWhitelistUser(c Caller, user string) error {
	return g.mutateWhitelist(c, func(w *settings.LockdownWhitelist) error {
		return removeItem(&w.Users, user, "user")
	})
}

func (g *Graph) QueryLockdownWhitelistUser(user string) bool {
	return g.queryWhitelist(func(w *settings.LockdownWhitelist) bool { return slices.Contains(w.Users, user) })
}

func (g *Graph) AddLockdownWhitelistUID(c Caller, uid int) error {
	if uid < 0 {
		return fwerr.Errorf(fwerr.InvalidUID, "%d", uid)
	}
	return g.mutateWhitelist(c, func(w *settings.LockdownWhitelist) error {
		return addItem(&w.UIDs, uid, "uid")
	})
}

func (g *Graph) RemoveLockdownWhitelistUID(c Caller, uid int) error {
	return g.mutateWhitelist(c, func(w *settings.LockdownWhitelist) error {
		return removeItem(&w.UIDs, uid, "uid")
	})
}

func (g *Graph) QueryLockdownWhitelistUID(uid int) bool {
	return g.queryWhitelist(func(w *settings.LockdownWhitelist) bool { return slices.Contains(w.UIDs, uid) })
}
