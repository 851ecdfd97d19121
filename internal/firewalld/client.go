//go:build linux
// +build linux

// Package firewalld is a client of the configuration objects gofirewalld
// exports on the system bus.
package firewalld

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"gofirewalld/internal/fwerr"
)

const (
	dbusInterface  = "org.fedoraproject.FirewallD1"
	dbusPath       = "/org/fedoraproject/FirewallD1"
	dbusConfigPath = "/org/fedoraproject/FirewallD1/config"
	dbusException  = "org.fedoraproject.FirewallD1.Exception"
	dbusBusPath    = "/org/freedesktop/DBus"
	dbusBusName    = "org.freedesktop.DBus"

	configInterface = dbusInterface + ".config"

	dbusTimeout    = 5 * time.Second
	dbusMinCallGap = 20 * time.Millisecond
)

type Client struct {
	conn     *dbus.Conn
	object   func(path dbus.ObjectPath) dbus.BusObject
	version  string
	readOnly bool

	mu           sync.Mutex
	lastDBusCall time.Time
}

func NewClient() (*Client, error) {
	slog.Debug("connecting to system bus")

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	busObj := conn.Object(dbusBusName, dbusBusPath)
	var hasOwner bool
	if err := busObj.Call("org.freedesktop.DBus.NameHasOwner", 0, dbusInterface).Store(&hasOwner); err != nil {
		conn.Close()
		return nil, fmt.Errorf("check daemon owner: %w", err)
	}
	if !hasOwner {
		conn.Close()
		return nil, ErrNotRunning
	}

	client := newClient(func(path dbus.ObjectPath) dbus.BusObject {
		return conn.Object(dbusInterface, path)
	})
	client.conn = conn

	var stateVar dbus.Variant
	if err := client.call(dbusPath, "org.freedesktop.DBus.Properties.Get", &stateVar, dbusInterface, "state"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read daemon state: %w", err)
	}
	state, _ := stateVar.Value().(string)
	slog.Info("daemon state", "state", state)

	if err := client.detectVersion(); err != nil {
		slog.Warn("version detection failed", "error", err)
	}
	if err := client.detectPermissions(); err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

func newClient(object func(dbus.ObjectPath) dbus.BusObject) *Client {
	return &Client{object: object}
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Version() string {
	return c.version
}

// ReadOnly reports whether the daemon refused authorizeAll, usually because
// lockdown is on and this process is not whitelisted.
func (c *Client) ReadOnly() bool {
	return c.readOnly
}

func (c *Client) detectPermissions() error {
	slog.Debug("checking permissions")

	if err := c.call(dbusPath, dbusInterface+".authorizeAll", nil); err != nil {
		if isPermissionDenied(err) {
			c.readOnly = true
			slog.Warn("read-only mode enabled", "error", err)
			return nil
		}
		return err
	}
	c.readOnly = false
	return nil
}

func isPermissionDenied(err error) bool {
	if fwerr.Is(err, fwerr.AccessDenied) {
		return true
	}
	if de, ok := busError(err); ok {
		switch de.Name {
		case "org.freedesktop.DBus.Error.AccessDenied",
			"org.fedoraproject.FirewallD1.AccessDenied",
			"org.fedoraproject.FirewallD1.NotAuthorized":
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "accessdenied") ||
		strings.Contains(msg, "access_denied") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "not authorized")
}

func busError(err error) (*dbus.Error, bool) {
	var ptr *dbus.Error
	if errors.As(err, &ptr) {
		return ptr, true
	}
	var val dbus.Error
	if errors.As(err, &val) {
		return &val, true
	}
	return nil, false
}

// remoteError turns a daemon exception back into the coded error it was
// raised from.
func remoteError(err error) error {
	de, ok := busError(err)
	if !ok || de.Name != dbusException || len(de.Body) == 0 {
		return err
	}
	text, ok := de.Body[0].(string)
	if !ok {
		return err
	}
	return fwerr.Parse(text)
}

func (c *Client) nextDBusDelay(now time.Time) time.Duration {
	if c.lastDBusCall.IsZero() {
		return 0
	}
	wait := dbusMinCallGap - now.Sub(c.lastDBusCall)
	if wait < 0 {
		return 0
	}
	return wait
}

// waitDBusRateLimit spaces calls so a busy monitor cannot flood the daemon.
func (c *Client) waitDBusRateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := c.nextDBusDelay(time.Now()); d > 0 {
		time.Sleep(d)
	}
	c.lastDBusCall = time.Now()
}

func (c *Client) call(path dbus.ObjectPath, method string, out any, args ...any) error {
	slog.Debug("dbus call", "path", path, "method", method, "args", args)
	c.waitDBusRateLimit()

	ctx, cancel := context.WithTimeout(context.Background(), dbusTimeout)
	defer cancel()
	call := c.object(path).CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		err := remoteError(call.Err)
		slog.Debug("dbus call failed", "method", method, "error", err)
		var fe *fwerr.Error
		if errors.As(err, &fe) {
			return fe
		}
		return fmt.Errorf("dbus %s: %w", method, err)
	}
	if out == nil {
		return nil
	}
	if err := call.Store(out); err != nil {
		slog.Error("dbus store failed", "method", method, "error", err)
		return fmt.Errorf("dbus store %s: %w", method, err)
	}
	return nil
}

func (c *Client) detectVersion() error {
	var v dbus.Variant
	if err := c.call(dbusPath, "org.freedesktop.DBus.Properties.Get", &v, dbusInterface, "version"); err != nil {
		return fmt.Errorf("detect daemon version: %w", err)
	}
	version, ok := v.Value().(string)
	if !ok {
		return fmt.Errorf("invalid version type: %T (expected string)", v.Value())
	}
	if version == "" {
		return fmt.Errorf("empty version string returned")
	}
	c.version = version
	slog.Info("daemon detected", "version", version)
	return nil
}

func (c *Client) GetDefaultZone() (string, error) {
	var zone string
	if err := c.call(dbusPath, dbusInterface+".getDefaultZone", &zone); err != nil {
		return "", err
	}
	return zone, nil
}

func (c *Client) Reload() error {
	if c.readOnly {
		return ErrPermissionDenied
	}
	slog.Info("reloading daemon")
	return c.call(dbusPath, dbusInterface+".reload", nil)
}
