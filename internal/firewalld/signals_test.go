//go:build linux
// +build linux

package firewalld

import (
	"sync/atomic"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestIdempotentCancel(t *testing.T) {
	var called int32
	cancel := idempotentCancel(func() {
		atomic.AddInt32(&called, 1)
	})

	cancel()
	cancel()
	cancel()

	if got := atomic.LoadInt32(&called); got != 1 {
		t.Fatalf("cancel callback called %d times, want 1", got)
	}
}

func TestEventFromSignal(t *testing.T) {
	tests := []struct {
		sig  *dbus.Signal
		want string
	}{
		{
			sig:  &dbus.Signal{Name: configInterface + ".ZoneAdded", Path: dbusConfigPath, Body: []any{"lab"}},
			want: "ZoneAdded lab",
		},
		{
			sig:  &dbus.Signal{Name: configInterface + ".zone.Updated", Path: dbusConfigPath + "/zone/3", Body: []any{"public"}},
			want: "Updated public",
		},
		{
			sig: &dbus.Signal{Name: "org.freedesktop.DBus.Properties.PropertiesChanged", Path: dbusConfigPath, Body: []any{
				configInterface,
				map[string]dbus.Variant{"Lockdown": dbus.MakeVariant("yes"), "CleanupOnExit": dbus.MakeVariant("no")},
				[]string{},
			}},
			want: "PropertiesChanged CleanupOnExit,Lockdown",
		},
		{
			sig:  &dbus.Signal{Name: configInterface + ".direct.Updated", Path: dbusConfigPath},
			want: "Updated",
		},
	}
	for _, tt := range tests {
		if got := eventFromSignal(tt.sig).String(); got != tt.want {
			t.Fatalf("eventFromSignal(%s) = %q, want %q", tt.sig.Name, got, tt.want)
		}
	}
}
