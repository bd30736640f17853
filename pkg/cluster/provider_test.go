package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempocoord/storage"
)

func newTestProvider(t *testing.T) (*Provider, *RelationStore) {
	t.Helper()
	rels := NewRelationStore(storage.NewMemoryStore())
	return NewProvider(rels), rels
}

func addWorker(t *testing.T, rels *RelationStore, relID string, role Role, units map[string]string) {
	t.Helper()
	ctx := context.Background()

	appBag, err := WorkerAppData{Role: role}.Dump()
	require.NoError(t, err)
	require.NoError(t, rels.SetAppBag(ctx, DefaultEndpoint, relID, appBag))

	for unit, addr := range units {
		unitBag, err := WorkerUnitData{Unit: unit, Address: addr}.Dump()
		require.NoError(t, err)
		require.NoError(t, rels.SetUnitBag(ctx, DefaultEndpoint, relID, unit, unitBag))
	}
}

func TestGatherAddressesByRole(t *testing.T) {
	provider, rels := newTestProvider(t)
	ctx := context.Background()

	addWorker(t, rels, "0", RoleIngester, map[string]string{
		"ingester/0": "10.0.0.1",
		"ingester/1": "10.0.0.1", // duplicate address collapses
		"ingester/2": "",         // no address yet, absent
	})
	addWorker(t, rels, "1", RoleQuerier, map[string]string{
		"querier/0": "10.0.0.2",
	})

	byRole, err := provider.GatherAddressesByRole(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1"}, byRole[RoleIngester])
	assert.Equal(t, []string{"10.0.0.2"}, byRole[RoleQuerier])
	assert.NotContains(t, byRole, RoleCompactor)
}

func TestGatherExpandsMetaRole(t *testing.T) {
	provider, rels := newTestProvider(t)

	addWorker(t, rels, "0", RoleAll, map[string]string{"worker/0": "10.0.0.9"})

	byRole, err := provider.GatherAddressesByRole(context.Background())
	require.NoError(t, err)

	for _, role := range NonMetaRoles() {
		assert.Equal(t, []string{"10.0.0.9"}, byRole[role], "role %s", role)
	}
	assert.NotContains(t, byRole, RoleAll)
}

func TestGatherSkipsMalformedRelations(t *testing.T) {
	provider, rels := newTestProvider(t)
	ctx := context.Background()

	// relation 0 declares a role this coordinator does not know
	require.NoError(t, rels.SetAppBag(ctx, DefaultEndpoint, "0", Databag{"role": `"stagehand"`}))
	unitBag, err := WorkerUnitData{Unit: "x/0", Address: "10.0.0.1"}.Dump()
	require.NoError(t, err)
	require.NoError(t, rels.SetUnitBag(ctx, DefaultEndpoint, "0", "x/0", unitBag))

	addWorker(t, rels, "1", RoleCompactor, map[string]string{"compactor/0": "10.0.0.2"})

	byRole, err := provider.GatherAddressesByRole(ctx)
	require.NoError(t, err)

	// the malformed relation contributes nothing, the healthy one survives
	assert.Len(t, byRole, 1)
	assert.Equal(t, []string{"10.0.0.2"}, byRole[RoleCompactor])
}

func TestGatherAddressesFlattensRoles(t *testing.T) {
	provider, rels := newTestProvider(t)

	addWorker(t, rels, "0", RoleIngester, map[string]string{"ingester/0": "10.0.0.2"})
	addWorker(t, rels, "1", RoleQuerier, map[string]string{
		"querier/0": "10.0.0.1",
		"querier/1": "10.0.0.2", // shared with the ingester host, collapses
	})

	addrs, err := provider.GatherAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, addrs)
}

func TestPublishConfig(t *testing.T) {
	provider, rels := newTestProvider(t)
	ctx := context.Background()

	addWorker(t, rels, "0", RoleAll, map[string]string{"worker/0": "10.0.0.1"})

	data := CoordinatorAppData{Version: 1, ConfigYAML: "config: v1\n"}
	require.NoError(t, provider.PublishConfig(ctx, data))

	bag, err := rels.LocalBag(ctx, DefaultEndpoint, "0")
	require.NoError(t, err)
	published, err := LoadCoordinatorAppData(bag)
	require.NoError(t, err)
	assert.Equal(t, int64(1), published.Version)
}

func TestPublishConfigReachesLateJoiner(t *testing.T) {
	provider, rels := newTestProvider(t)
	ctx := context.Background()

	addWorker(t, rels, "0", RoleAll, map[string]string{"worker/0": "10.0.0.1"})
	data := CoordinatorAppData{Version: 3, ConfigYAML: "config: v3\n"}
	require.NoError(t, provider.PublishConfig(ctx, data))

	// a second deployment relates after version 3 was already current
	addWorker(t, rels, "1", RoleAll, map[string]string{"worker/0": "10.0.0.2"})
	require.NoError(t, provider.PublishConfig(ctx, data))

	bag, err := rels.LocalBag(ctx, DefaultEndpoint, "1")
	require.NoError(t, err)
	published, err := LoadCoordinatorAppData(bag)
	require.NoError(t, err)
	assert.Equal(t, int64(3), published.Version)
}

func TestHasWorkers(t *testing.T) {
	provider, rels := newTestProvider(t)
	ctx := context.Background()

	has, err := provider.HasWorkers(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	addWorker(t, rels, "0", RoleAll, nil)
	has, err = provider.HasWorkers(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}
