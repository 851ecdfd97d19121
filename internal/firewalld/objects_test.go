//go:build linux
// +build linux

package firewalld

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
	"gofirewalld/internal/wire"
)

// fakeDaemon answers calls from canned replies keyed by "path method".
type fakeDaemon struct {
	mu      sync.Mutex
	replies map[string][]any
	errs    map[string]error
	calls   []string
}

func (d *fakeDaemon) handle(path dbus.ObjectPath, method string, args []any) *dbus.Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := string(path) + " " + method
	d.calls = append(d.calls, fmt.Sprintf("%s %v", key, args))
	return &dbus.Call{Body: d.replies[key], Err: d.errs[key]}
}

type fakeObject struct {
	dbus.BusObject
	path   dbus.ObjectPath
	daemon *fakeDaemon
}

func (o *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...any) *dbus.Call {
	return o.daemon.handle(o.path, method, args)
}

func newFakeClient() (*Client, *fakeDaemon) {
	d := &fakeDaemon{replies: map[string][]any{}, errs: map[string]error{}}
	c := newClient(func(p dbus.ObjectPath) dbus.BusObject {
		return &fakeObject{path: p, daemon: d}
	})
	return c, d
}

const zonePath = dbus.ObjectPath("/org/fedoraproject/FirewallD1/config/zone/0")

func TestNamesSorted(t *testing.T) {
	c, d := newFakeClient()
	d.replies[dbusConfigPath+" "+configInterface+".getServiceNames"] = []any{[]string{"ssh", "dns", "http"}}

	names, err := c.Names(settings.KindService)
	require.NoError(t, err)
	assert.Equal(t, []string{"dns", "http", "ssh"}, names)
}

func TestSettingsDecodesZone(t *testing.T) {
	c, d := newFakeClient()
	d.replies[dbusConfigPath+" "+configInterface+".getZoneByName"] = []any{zonePath}
	d.replies[string(zonePath)+" "+configInterface+".zone.getSettings"] = []any{wire.Encode(&settings.Zone{
		Target:   "default",
		Services: []string{"ssh"},
		Ports:    []settings.Port{{Port: "8080", Protocol: "tcp"}},
	})}

	rec, err := c.Settings(settings.KindZone, "public")
	require.NoError(t, err)
	z := rec.(*settings.Zone)
	assert.Equal(t, "public", z.Name)
	assert.Equal(t, []string{"ssh"}, z.Services)
	assert.Equal(t, []settings.Port{{Port: "8080", Protocol: "tcp"}}, z.Ports)
}

func TestZoneEditsReportCodes(t *testing.T) {
	c, d := newFakeClient()
	d.replies[dbusConfigPath+" "+configInterface+".getZoneByName"] = []any{zonePath}
	d.errs[string(zonePath)+" "+configInterface+".zone.addService"] = dbus.Error{
		Name: dbusException,
		Body: []any{"ALREADY_ENABLED: service 'ssh' already in 'public'"},
	}

	err := c.AddService("public", "ssh")
	require.Error(t, err)
	assert.True(t, fwerr.Is(err, fwerr.AlreadyEnabled))

	require.NoError(t, c.AddPort("public", settings.Port{Port: "80", Protocol: "tcp"}))
	assert.Contains(t, d.calls, string(zonePath)+" "+configInterface+".zone.addPort [80 tcp]")
}

func TestUnknownNameFailsBeforeEntityCall(t *testing.T) {
	c, d := newFakeClient()
	d.errs[dbusConfigPath+" "+configInterface+".getIPSetByName"] = dbus.Error{
		Name: dbusException,
		Body: []any{"INVALID_IPSET: blocked"},
	}

	err := c.AddIPSetEntry("blocked", "10.0.0.1")
	assert.True(t, fwerr.Is(err, fwerr.InvalidIPSet))
	assert.Len(t, d.calls, 1)
}

func TestReadOnlyRefusesMutations(t *testing.T) {
	c, d := newFakeClient()
	c.readOnly = true

	assert.ErrorIs(t, c.RemoveService("public", "ssh"), ErrPermissionDenied)
	assert.ErrorIs(t, c.Add(settings.KindZone, "lab", &settings.Zone{}), ErrPermissionDenied)
	assert.ErrorIs(t, c.SetProperty("Lockdown", "yes"), ErrPermissionDenied)
	assert.ErrorIs(t, c.Reload(), ErrPermissionDenied)
	assert.Empty(t, d.calls)
}

func TestDetectPermissions(t *testing.T) {
	c, d := newFakeClient()
	d.errs[dbusPath+" "+dbusInterface+".authorizeAll"] = dbus.Error{
		Name: dbusException,
		Body: []any{"ACCESS_DENIED: lockdown is enabled"},
	}
	require.NoError(t, c.detectPermissions())
	assert.True(t, c.ReadOnly())

	c, d = newFakeClient()
	d.errs[dbusPath+" "+dbusInterface+".authorizeAll"] = dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"}
	assert.Error(t, c.detectPermissions())
}

func TestPropertiesAndDirect(t *testing.T) {
	c, d := newFakeClient()
	d.replies[dbusConfigPath+" org.freedesktop.DBus.Properties.GetAll"] = []any{map[string]dbus.Variant{
		"DefaultZone": dbus.MakeVariant("public"),
		"MinimalMark": dbus.MakeVariant(int32(100)),
	}}
	d.replies[dbusConfigPath+" "+configInterface+".direct.getSettings"] = []any{wire.Direct{
		Chains: []settings.DirectChain{{IPv: "eb", Table: "filter", Chain: "mine"}},
	}}

	props, err := c.Properties()
	require.NoError(t, err)
	assert.Equal(t, "public", props["DefaultZone"])
	assert.Equal(t, int32(100), props["MinimalMark"])

	direct, err := c.Direct()
	require.NoError(t, err)
	assert.Equal(t, []settings.DirectChain{{IPv: "eb", Table: "filter", Chain: "mine"}}, direct.Chains)
}
