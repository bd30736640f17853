package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tempocoord/config"
	"tempocoord/pkg/cluster"
)

func defaultTable() RoleTable {
	return TableFromConfig(config.DefaultRoles())
}

// fullMembership returns one distinct address per required role.
func fullMembership() map[cluster.Role][]string {
	members := make(map[cluster.Role][]string)
	for i, role := range cluster.NonMetaRoles() {
		members[role] = []string{string(rune('a'+i)) + ".cluster.local"}
	}
	return members
}

func TestResolveReady(t *testing.T) {
	verdict := Resolve(defaultTable(), fullMembership())

	assert.True(t, verdict.Ready)
	assert.Empty(t, verdict.Unmet)
	assert.Empty(t, verdict.MissingCapabilities)
	assert.Len(t, verdict.Members, len(cluster.NonMetaRoles()))
}

func TestResolveNoMembers(t *testing.T) {
	verdict := Resolve(defaultTable(), nil)

	assert.False(t, verdict.Ready)
	// every required role is reported, not just the first
	assert.Len(t, verdict.Unmet, len(cluster.NonMetaRoles()))
	assert.ElementsMatch(t, []Capability{CapabilityIngestion, CapabilityQuery}, verdict.MissingCapabilities)

	// unmet roles are sorted and carry counts
	assert.Equal(t, cluster.RoleCompactor, verdict.Unmet[0].Role)
	assert.Equal(t, 1, verdict.Unmet[0].Required)
	assert.Equal(t, 0, verdict.Unmet[0].Observed)
	assert.Equal(t, "compactor (need 1, have 0)", verdict.Unmet[0].String())
}

func TestResolvePartialMembership(t *testing.T) {
	members := fullMembership()
	delete(members, cluster.RoleIngester)

	verdict := Resolve(defaultTable(), members)

	assert.False(t, verdict.Ready)
	assert.Len(t, verdict.Unmet, 1)
	assert.Equal(t, cluster.RoleIngester, verdict.Unmet[0].Role)
	// distributor still covers ingestion, so no capability is missing
	assert.Empty(t, verdict.MissingCapabilities)
}

// A table can be satisfied on counts and still lack a whole capability when
// the minimums are zero.
func TestResolveMissingCapability(t *testing.T) {
	table := RoleTable{
		cluster.RoleIngester:  {MinReplicas: 0, Capabilities: []Capability{CapabilityIngestion}},
		cluster.RoleQuerier:   {MinReplicas: 0, Capabilities: []Capability{CapabilityQuery}},
		cluster.RoleCompactor: {MinReplicas: 1},
	}
	observed := map[cluster.Role][]string{
		cluster.RoleCompactor: {"c.cluster.local"},
	}

	verdict := Resolve(table, observed)

	assert.False(t, verdict.Ready)
	assert.Empty(t, verdict.Unmet)
	assert.ElementsMatch(t, []Capability{CapabilityIngestion, CapabilityQuery}, verdict.MissingCapabilities)
}

// Capabilities nobody declared are never demanded.
func TestResolveUndeclaredCapabilityNotRequired(t *testing.T) {
	table := RoleTable{
		cluster.RoleCompactor: {MinReplicas: 1},
	}
	observed := map[cluster.Role][]string{
		cluster.RoleCompactor: {"c.cluster.local"},
	}

	verdict := Resolve(table, observed)

	assert.True(t, verdict.Ready)
	assert.Empty(t, verdict.MissingCapabilities)
}

func TestResolveDeduplicatesAddresses(t *testing.T) {
	table := RoleTable{
		cluster.RoleIngester: {MinReplicas: 2, Capabilities: []Capability{CapabilityIngestion}},
	}
	observed := map[cluster.Role][]string{
		// duplicates collapse and empty addresses are absent members
		cluster.RoleIngester: {"a.cluster.local", "a.cluster.local", "", "b.cluster.local"},
	}

	verdict := Resolve(table, observed)

	assert.True(t, verdict.Ready)
	assert.Equal(t, []string{"a.cluster.local", "b.cluster.local"}, verdict.Members[cluster.RoleIngester])
}

func TestResolveDuplicatesDoNotMeetMinimum(t *testing.T) {
	table := RoleTable{
		cluster.RoleIngester: {MinReplicas: 2},
	}
	observed := map[cluster.Role][]string{
		cluster.RoleIngester: {"a.cluster.local", "a.cluster.local"},
	}

	verdict := Resolve(table, observed)

	assert.False(t, verdict.Ready)
	assert.Equal(t, 1, verdict.Unmet[0].Observed)
}
