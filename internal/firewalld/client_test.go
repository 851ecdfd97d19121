//go:build linux
// +build linux

package firewalld

import (
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"gofirewalld/internal/fwerr"
)

func TestIsPermissionDenied(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "dbus access denied name",
			err:  &dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"},
			want: true,
		},
		{
			name: "dbus error by value",
			err:  dbus.Error{Name: "org.fedoraproject.FirewallD1.NotAuthorized"},
			want: true,
		},
		{
			name: "lockdown refusal",
			err:  fwerr.New(fwerr.AccessDenied, "lockdown is enabled"),
			want: true,
		},
		{
			name: "message contains permission denied",
			err:  errors.New("permission denied by polkit"),
			want: true,
		},
		{
			name: "unrelated error",
			err:  errors.New("temporary network issue"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPermissionDenied(tt.err)
			if got != tt.want {
				t.Fatalf("isPermissionDenied(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRemoteError(t *testing.T) {
	err := remoteError(dbus.Error{Name: dbusException, Body: []any{"INVALID_ZONE: lab"}})
	if !fwerr.Is(err, fwerr.InvalidZone) {
		t.Fatalf("remoteError() = %v, want INVALID_ZONE", err)
	}

	plain := errors.New("closed")
	if got := remoteError(plain); got != plain {
		t.Fatalf("remoteError(%v) = %v, want unchanged", plain, got)
	}

	other := dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown", Body: []any{"gone"}}
	if got := remoteError(other); fwerr.CodeOf(got) != fwerr.UnknownError {
		t.Fatalf("remoteError(%v) = %v, want bus error", other, got)
	}
}

func TestNextDBusDelay(t *testing.T) {
	now := time.Unix(1000, 0)

	tests := []struct {
		name         string
		lastCall     time.Time
		wantPositive bool
		wantZero     bool
	}{
		{
			name:     "no previous call",
			lastCall: time.Time{},
			wantZero: true,
		},
		{
			name:         "too soon",
			lastCall:     now.Add(-(dbusMinCallGap - time.Millisecond)),
			wantPositive: true,
		},
		{
			name:     "after gap",
			lastCall: now.Add(-(dbusMinCallGap + time.Millisecond)),
			wantZero: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{lastDBusCall: tt.lastCall}
			got := c.nextDBusDelay(now)
			if tt.wantZero && got != 0 {
				t.Fatalf("nextDBusDelay() = %v, want 0", got)
			}
			if tt.wantPositive && got <= 0 {
				t.Fatalf("nextDBusDelay() = %v, want positive delay", got)
			}
		})
	}
}
