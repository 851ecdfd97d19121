package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
)

type knownSet map[settings.Kind][]string

func (k knownSet) Has(kind settings.Kind, name string) bool {
	for _, n := range k[kind] {
		if n == name {
			return true
		}
	}
	return false
}

func TestRecordZone(t *testing.T) {
	known := knownSet{
		settings.KindService:  {"ssh"},
		settings.KindIcmpType: {"echo-request"},
		settings.KindIPSet:    {"blocklist"},
	}

	tests := []struct {
		name string
		zone *settings.Zone
		want fwerr.Code
	}{
		{
			name: "valid",
			zone: &settings.Zone{
				Meta:       settings.Meta{Name: "public"},
				Target:     "default",
				Services:   []string{"ssh"},
				IcmpBlocks: []string{"echo-request"},
				Ports:      []settings.Port{{Port: "8080-8090", Protocol: "tcp"}},
				Sources:    []string{"10.0.0.0/8", "ipset:blocklist", "00:11:22:33:44:55"},
				Interfaces: []string{"eth0"},
				ForwardPorts: []settings.ForwardPort{
					{Port: "80", Protocol: "tcp", ToPort: "8080"},
				},
			},
		},
		{name: "bad name", zone: &settings.Zone{Meta: settings.Meta{Name: "../x"}}, want: fwerr.InvalidName},
		{name: "name too long", zone: &settings.Zone{Meta: settings.Meta{Name: "abcdefghijklmnopqr"}}, want: fwerr.InvalidName},
		{name: "bad target", zone: &settings.Zone{Meta: settings.Meta{Name: "z"}, Target: "LOG"}, want: fwerr.InvalidTarget},
		{name: "unknown service", zone: &settings.Zone{Meta: settings.Meta{Name: "z"}, Services: []string{"ftp"}}, want: fwerr.InvalidService},
		{name: "unknown icmptype", zone: &settings.Zone{Meta: settings.Meta{Name: "z"}, IcmpBlocks: []string{"x"}}, want: fwerr.InvalidIcmpType},
		{name: "unknown ipset source", zone: &settings.Zone{Meta: settings.Meta{Name: "z"}, Sources: []string{"ipset:nope"}}, want: fwerr.InvalidIPSet},
		{name: "bad port", zone: &settings.Zone{Meta: settings.Meta{Name: "z"}, Ports: []settings.Port{{Port: "70000", Protocol: "tcp"}}}, want: fwerr.InvalidPort},
		{name: "bad protocol", zone: &settings.Zone{Meta: settings.Meta{Name: "z"}, Ports: []settings.Port{{Port: "22", Protocol: "icmp"}}}, want: fwerr.InvalidProtocol},
		{name: "forward without target", zone: &settings.Zone{Meta: settings.Meta{Name: "z"}, ForwardPorts: []settings.ForwardPort{{Port: "80", Protocol: "tcp"}}}, want: fwerr.InvalidForward},
		{name: "bad source", zone: &settings.Zone{Meta: settings.Meta{Name: "z"}, Sources: []string{"not-an-addr"}}, want: fwerr.InvalidAddr},
		{name: "bad interface", zone: &settings.Zone{Meta: settings.Meta{Name: "z"}, Interfaces: []string{"this-name-is-too-long"}}, want: fwerr.InvalidInterface},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Record(tt.zone, known)
			if tt.want == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, fwerr.CodeOf(err), "error: %v", err)
		})
	}
}

func TestRecordZoneWithoutLookup(t *testing.T) {
	z := &settings.Zone{Meta: settings.Meta{Name: "z"}, Services: []string{"unknown"}}
	assert.NoError(t, Record(z, nil))
}

func TestRecordService(t *testing.T) {
	ok := &settings.Service{
		Meta:        settings.Meta{Name: "ssh"},
		Ports:       []settings.Port{{Port: "22", Protocol: "tcp"}},
		Modules:     []string{"nf_conntrack_ftp"},
		Destination: map[string]string{"ipv4": "224.0.0.251", "ipv6": "ff02::fb"},
	}
	assert.NoError(t, Record(ok, nil))

	bad := &settings.Service{Meta: settings.Meta{Name: "mdns"}, Destination: map[string]string{"ipv4": "ff02::fb"}}
	assert.Equal(t, fwerr.InvalidAddr, fwerr.CodeOf(Record(bad, nil)))

	badIPv := &settings.Service{Meta: settings.Meta{Name: "mdns"}, Destination: map[string]string{"eb": "x"}}
	assert.Equal(t, fwerr.InvalidIPv, fwerr.CodeOf(Record(badIPv, nil)))
}

func TestRecordIcmpType(t *testing.T) {
	assert.NoError(t, Record(&settings.IcmpType{Meta: settings.Meta{Name: "echo-request"}, Destination: []string{"ipv4", "ipv6"}}, nil))
	assert.Equal(t, fwerr.InvalidIPv, fwerr.CodeOf(Record(&settings.IcmpType{Meta: settings.Meta{Name: "x"}, Destination: []string{"ipx"}}, nil)))
}

func TestRecordIPSet(t *testing.T) {
	tests := []struct {
		name string
		set  *settings.IPSet
		want fwerr.Code
	}{
		{name: "hash ip", set: &settings.IPSet{Meta: settings.Meta{Name: "a"}, Type: "hash:ip", Entries: []string{"10.0.0.1", "10.0.0.1-10.0.0.9"}}},
		{name: "hash net", set: &settings.IPSet{Meta: settings.Meta{Name: "a"}, Type: "hash:net", Options: map[string]string{"family": "inet6"}, Entries: []string{"2001:db8::/32"}}},
		{name: "hash mac", set: &settings.IPSet{Meta: settings.Meta{Name: "a"}, Type: "hash:mac", Entries: []string{"00:11:22:33:44:55"}}},
		{name: "hash ip port", set: &settings.IPSet{Meta: settings.Meta{Name: "a"}, Type: "hash:ip,port", Entries: []string{"10.0.0.1,tcp:80"}}},
		{name: "bad type", set: &settings.IPSet{Meta: settings.Meta{Name: "a"}, Type: "list:set"}, want: fwerr.InvalidType},
		{name: "bad option", set: &settings.IPSet{Meta: settings.Meta{Name: "a"}, Type: "hash:ip", Options: map[string]string{"size": "1"}}, want: fwerr.InvalidOption},
		{name: "bad family", set: &settings.IPSet{Meta: settings.Meta{Name: "a"}, Type: "hash:ip", Options: map[string]string{"family": "ipx"}}, want: fwerr.InvalidOption},
		{name: "bad timeout", set: &settings.IPSet{Meta: settings.Meta{Name: "a"}, Type: "hash:ip", Options: map[string]string{"timeout": "soon"}}, want: fwerr.InvalidOption},
		{name: "bad entry", set: &settings.IPSet{Meta: settings.Meta{Name: "a"}, Type: "hash:mac", Entries: []string{"10.0.0.1"}}, want: fwerr.InvalidEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Record(tt.set, nil)
			if tt.want == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, fwerr.CodeOf(err), "error: %v", err)
		})
	}
}

func TestPortRange(t *testing.T) {
	lo, hi, err := PortRange("1000-2000")
	assert.NoError(t, err)
	assert.Equal(t, 1000, lo)
	assert.Equal(t, 2000, hi)

	_, _, err = PortRange("2000-1000")
	assert.Error(t, err)
	_, _, err = PortRange("0")
	assert.Error(t, err)
	_, _, err = PortRange("http")
	assert.Error(t, err)
}
