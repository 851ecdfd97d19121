package wire

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
)

func TestZoneRoundTrip(t *testing.T) {
	z := &settings.Zone{
		Meta:         settings.Meta{Name: "dmz", Path: "/etc/firewalld/zones"},
		Short:        "DMZ",
		Target:       "DROP",
		Services:     []string{"ssh"},
		Ports:        []settings.Port{{Port: "8080", Protocol: "tcp"}},
		IcmpBlocks:   []string{"echo-request"},
		Masquerade:   true,
		ForwardPorts: []settings.ForwardPort{{Port: "80", Protocol: "tcp", ToPort: "8080"}},
		Interfaces:   []string{"eth1"},
		Sources:      []string{"10.0.0.0/8"},
	}
	rec, err := Decode(settings.KindZone, Encode(z))
	require.NoError(t, err)

	got := rec.(*settings.Zone)
	assert.Empty(t, got.Name, "identity is not part of the settings")
	assert.Equal(t, z.Services, got.Services)
	assert.Equal(t, z.Ports, got.Ports)
	assert.Equal(t, z.ForwardPorts, got.ForwardPorts)
	assert.True(t, got.Masquerade)
	assert.Equal(t, "DROP", got.Target)
	assert.Empty(t, got.SourcePorts)
}

func TestServiceAndIPSetRoundTrip(t *testing.T) {
	svc := &settings.Service{
		Ports:       []settings.Port{{Port: "5353", Protocol: "udp"}},
		Modules:     []string{"nf_conntrack_netbios_ns"},
		Destination: map[string]string{"ipv4": "224.0.0.251"},
	}
	rec, err := Decode(settings.KindService, Encode(svc))
	require.NoError(t, err)
	assert.Equal(t, svc.Destination, rec.(*settings.Service).Destination)
	assert.Equal(t, svc.Modules, rec.(*settings.Service).Modules)

	set := &settings.IPSet{Type: "hash:ip", Options: map[string]string{"family": "inet"}, Entries: []string{"10.0.0.1"}}
	rec, err = Decode(settings.KindIPSet, Encode(set))
	require.NoError(t, err)
	assert.Equal(t, set.Options, rec.(*settings.IPSet).Options)
	assert.Equal(t, set.Entries, rec.(*settings.IPSet).Entries)
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode(settings.KindService, map[string]dbus.Variant{"colour": dbus.MakeVariant("red")})
	assert.True(t, fwerr.Is(err, fwerr.InvalidValue))

	_, err = Decode(settings.KindZone, map[string]dbus.Variant{"masquerade": dbus.MakeVariant("yes")})
	assert.True(t, fwerr.Is(err, fwerr.InvalidValue))

	_, err = Decode(settings.KindZone, map[string]dbus.Variant{"ports": dbus.MakeVariant([][]string{{"22"}})})
	assert.True(t, fwerr.Is(err, fwerr.InvalidPort))
}

func TestTuplesAcceptStructArrays(t *testing.T) {
	rows, err := Tuples([]interface{}{[]interface{}{"22", "tcp"}, []string{"53", "udp"}}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"22", "tcp"}, {"53", "udp"}}, rows)

	_, err = Tuples("22/tcp", 2)
	assert.Error(t, err)
}

func TestWhitelistConversion(t *testing.T) {
	w := &settings.LockdownWhitelist{Users: []string{"root"}, UIDs: []int{0, 1000}}
	assert.Equal(t, []int32{0, 1000}, FromWhitelist(w).UIDs)
	assert.Equal(t, w.UIDs, FromWhitelist(w).Settings().UIDs)
}
