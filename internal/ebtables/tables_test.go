//go:build linux
// +build linux

package ebtables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()

	assert.Equal(t, []string{"broute", "nat", "filter"}, reg.Tables())
	assert.Equal(t, []string{"PREROUTING", "POSTROUTING", "OUTPUT"}, reg.BuiltinChains("nat"))
	assert.True(t, reg.IsValid("broute"))
	assert.False(t, reg.IsValid("mangle"))
	assert.True(t, reg.IsBuiltinChain("filter", "FORWARD"))
	assert.False(t, reg.IsBuiltinChain("broute", "FORWARD"))
	assert.Equal(t, []string{"BROUTING_direct"}, reg.OurChains("broute"))
	assert.Equal(t, []Rule{
		{"-N", "BROUTING_direct", "-P", "RETURN"},
		{"-I", "BROUTING", "1", "-j", "BROUTING_direct"},
	}, reg.DefaultRules("broute"))
}

func TestRegistryIsImmutable(t *testing.T) {
	reg := DefaultRegistry()
	chains := reg.BuiltinChains("filter")
	chains[0] = "MUTATED"
	assert.Equal(t, "INPUT", reg.BuiltinChains("filter")[0])
}

func TestParseListing(t *testing.T) {
	out := `Bridge table: filter

Bridge chain: INPUT, entries: 2, policy: ACCEPT
-j INPUT_direct 
-p ARP -j ACCEPT 

Bridge chain: FORWARD, entries: 0, policy: DROP

Bridge chain: INPUT_direct, entries: 0, policy: RETURN
`
	l := ParseListing(out)
	assert.Equal(t, "filter", l.Table)
	assert.Equal(t, []string{"INPUT", "FORWARD", "INPUT_direct"}, l.Order)
	assert.Equal(t, []string{"-j INPUT_direct", "-p ARP -j ACCEPT"}, l.Chains["INPUT"].Rules)
	assert.Equal(t, "DROP", l.Chains["FORWARD"].Policy)
	assert.Equal(t, "RETURN", l.Chains["INPUT_direct"].Policy)
}

func TestMissingDefaultRules(t *testing.T) {
	reg := DefaultRegistry()
	l := ParseListing(`Bridge table: broute

Bridge chain: BROUTING, entries: 0, policy: ACCEPT
`)
	assert.Equal(t, reg.DefaultRules("broute"), reg.MissingDefaultRules("broute", l))

	l = ParseListing(`Bridge table: broute

Bridge chain: BROUTING, entries: 1, policy: ACCEPT
-j BROUTING_direct

Bridge chain: BROUTING_direct, entries: 0, policy: RETURN
`)
	assert.Empty(t, reg.MissingDefaultRules("broute", l))
}

func TestComm(t *testing.T) {
	assert.Equal(t, "ebtables", comm("ebtables"))
	assert.Equal(t, "ebtables-restor", comm("ebtables-restore"))
}
