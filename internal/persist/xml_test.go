package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/settings"
	"gofirewalld/internal/validation"
)

const publicZone = `<?xml version="1.0" encoding="utf-8"?>
<zone>
  <short>Public</short>
  <description>For use in public areas.</description>
  <interface name="eth0"/>
  <source address="10.0.0.0/8"/>
  <source mac="00:11:22:33:44:55"/>
  <source ipset="blocklist"/>
  <service name="ssh"/>
  <service name="dhcpv6-client"/>
  <service name="ssh"/>
  <port port="8080" protocol="tcp"/>
  <icmp-block name="echo-request"/>
  <masquerade/>
  <forward-port port="80" protocol="tcp" to-port="8080"/>
</zone>
`

func TestDecodeZone(t *testing.T) {
	rec, err := Decode(settings.KindZone, []byte(publicZone))
	require.NoError(t, err)
	z := rec.(*settings.Zone)

	assert.Equal(t, "Public", z.Short)
	assert.Equal(t, validation.DefaultZoneTarget, z.Target)
	assert.Equal(t, []string{"ssh", "dhcpv6-client"}, z.Services, "duplicates dropped")
	assert.Equal(t, []string{"10.0.0.0/8", "00:11:22:33:44:55", "ipset:blocklist"}, z.Sources)
	assert.Equal(t, []string{"echo-request"}, z.IcmpBlocks)
	assert.True(t, z.Masquerade)
	assert.False(t, z.IcmpBlockInversion)
	assert.Equal(t, []settings.ForwardPort{{Port: "80", Protocol: "tcp", ToPort: "8080"}}, z.ForwardPorts)
}

func TestEncodeZoneOmitsDefaultTarget(t *testing.T) {
	z := &settings.Zone{Target: validation.DefaultZoneTarget, Services: []string{"ssh"}, Sources: []string{"ipset:x", "00:11:22:33:44:55"}}
	data, err := Encode(z)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "target=")
	assert.Contains(t, string(data), `<source ipset="x"></source>`)
	assert.Contains(t, string(data), `<source mac="00:11:22:33:44:55"></source>`)

	z.Target = "DROP"
	data, err = Encode(z)
	require.NoError(t, err)
	assert.Contains(t, string(data), `target="DROP"`)

	back, err := Decode(settings.KindZone, data)
	require.NoError(t, err)
	assert.Equal(t, z.Sources, back.(*settings.Zone).Sources)
}

func TestDecodeServiceAndIcmpType(t *testing.T) {
	svc, err := Decode(settings.KindService, []byte(`<service>
  <short>mDNS</short>
  <port port="5353" protocol="udp"/>
  <module name="nf_conntrack_netbios_ns"/>
  <destination ipv4="224.0.0.251" ipv6="ff02::fb"/>
</service>`))
	require.NoError(t, err)
	s := svc.(*settings.Service)
	assert.Equal(t, map[string]string{"ipv4": "224.0.0.251", "ipv6": "ff02::fb"}, s.Destination)
	assert.Equal(t, []string{"nf_conntrack_netbios_ns"}, s.Modules)

	icmp, err := Decode(settings.KindIcmpType, []byte(`<icmptype><short>Echo Request</short><destination ipv4="yes"/></icmptype>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"ipv4"}, icmp.(*settings.IcmpType).Destination)
}

func TestDecodeIPSet(t *testing.T) {
	rec, err := Decode(settings.KindIPSet, []byte(`<ipset type="hash:ip">
  <option name="family" value="inet"/>
  <option name="timeout" value="60"/>
  <entry>10.0.0.1</entry>
  <entry> 10.0.0.2 </entry>
</ipset>`))
	require.NoError(t, err)
	s := rec.(*settings.IPSet)
	assert.Equal(t, "hash:ip", s.Type)
	assert.Equal(t, map[string]string{"family": "inet", "timeout": "60"}, s.Options)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, s.Entries)

	data, err := Encode(s)
	require.NoError(t, err)
	assert.Regexp(t, `(?s)name="family".*name="timeout"`, string(data), "options sorted")
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode(settings.KindZone, []byte(`<zone><service name="ssh">`))
	assert.True(t, fwerr.Is(err, fwerr.ParseError))
}

func TestDirectXML(t *testing.T) {
	d := &settings.Direct{
		Chains: []settings.DirectChain{{IPv: "eb", Table: "filter", Chain: "blocked"}},
		Rules: []settings.DirectRule{
			{IPv: "eb", Table: "filter", Chain: "INPUT_direct", Priority: -1, Args: []string{"--log-prefix", "it's blocked", "-j", "DROP"}},
		},
		Passthroughs: []settings.Passthrough{{IPv: "eb", Args: []string{"-t", "nat", "-L"}}},
	}
	data, err := EncodeDirect(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `priority="-1"`)

	back, err := DecodeDirect(data)
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestLockdownWhitelistXML(t *testing.T) {
	raw := `<whitelist>
  <command name="/usr/bin/python3 -s /usr/bin/firewall-config*"/>
  <selinux context="system_u:system_r:NetworkManager_t:s0"/>
  <user name="admin"/>
  <user id="0"/>
</whitelist>`
	w, err := DecodeLockdownWhitelist([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/bin/python3 -s /usr/bin/firewall-config*"}, w.Commands)
	assert.Equal(t, []string{"system_u:system_r:NetworkManager_t:s0"}, w.Contexts)
	assert.Equal(t, []string{"admin"}, w.Users)
	assert.Equal(t, []int{0}, w.UIDs)

	data, err := EncodeLockdownWhitelist(w)
	require.NoError(t, err)
	back, err := DecodeLockdownWhitelist(data)
	require.NoError(t, err)
	assert.Equal(t, w, back)

	_, err = DecodeLockdownWhitelist([]byte(`<whitelist><user id="root"/></whitelist>`))
	assert.True(t, fwerr.Is(err, fwerr.ParseError))
}

func TestJoinSplitArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"-p", "ARP", "-j", "DROP"}, want: "-p ARP -j DROP"},
		{args: []string{"--log-prefix", "a b"}, want: "--log-prefix 'a b'"},
		{args: []string{"it's"}, want: `'it'\''s'`},
	}
	for _, tt := range tests {
		got := JoinArgs(tt.args)
		assert.Equal(t, tt.want, got)
		back, err := SplitArgs(got)
		require.NoError(t, err)
		assert.Equal(t, tt.args, back)
	}
}
