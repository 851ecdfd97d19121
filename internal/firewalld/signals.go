//go:build linux
// +build linux

package firewalld

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// SignalEvent is one change announced by the daemon. Name is the member,
// e.g. ZoneAdded, Updated or PropertiesChanged.
type SignalEvent struct {
	Interface string
	Name      string
	Path      string
	Object    string
	Changed   []string
}

func (e SignalEvent) String() string {
	if e.Object != "" {
		return e.Name + " " + e.Object
	}
	if len(e.Changed) > 0 {
		return e.Name + " " + strings.Join(e.Changed, ",")
	}
	return e.Name
}

func eventFromSignal(sig *dbus.Signal) SignalEvent {
	iface, member := sig.Name, sig.Name
	if i := strings.LastIndex(sig.Name, "."); i >= 0 {
		iface, member = sig.Name[:i], sig.Name[i+1:]
	}
	event := SignalEvent{Interface: iface, Name: member, Path: string(sig.Path)}
	if len(sig.Body) == 0 {
		return event
	}
	if member == "PropertiesChanged" && len(sig.Body) >= 2 {
		if changed, ok := sig.Body[1].(map[string]dbus.Variant); ok {
			for k := range changed {
				event.Changed = append(event.Changed, k)
			}
			slices.Sort(event.Changed)
		}
		return event
	}
	if name, ok := sig.Body[0].(string); ok {
		event.Object = name
	}
	return event
}

func (c *Client) SubscribeSignals() (<-chan SignalEvent, func(), error) {
	if c.conn == nil {
		return nil, nil, fmt.Errorf("dbus connection not initialized")
	}

	rule := "type='signal',sender='" + dbusInterface + "',path_namespace='" + dbusConfigPath + "'"
	slog.Debug("dbus add match", "rule", rule)
	c.waitDBusRateLimit()
	ctx, cancelCtx := context.WithTimeout(context.Background(), dbusTimeout)
	defer cancelCtx()
	if call := c.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return nil, nil, fmt.Errorf("dbus add match: %w", call.Err)
	}

	raw := make(chan *dbus.Signal, 16)
	out := make(chan SignalEvent, 16)
	done := make(chan struct{})
	c.conn.Signal(raw)

	go func() {
		defer close(out)
		for {
			select {
			case sig := <-raw:
				if sig == nil {
					return
				}
				if !strings.HasPrefix(string(sig.Path), dbusConfigPath) {
					continue
				}
				select {
				case out <- eventFromSignal(sig):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	cancel := idempotentCancel(func() {
		close(done)
		c.conn.RemoveSignal(raw)
		slog.Debug("dbus remove match", "rule", rule)
		c.waitDBusRateLimit()
		ctx, cancelCtx := context.WithTimeout(context.Background(), dbusTimeout)
		defer cancelCtx()
		_ = c.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.RemoveMatch", 0, rule).Err
	})

	return out, cancel, nil
}

func idempotentCancel(fn func()) func() {
	var once sync.Once
	return func() {
		once.Do(fn)
	}
}
