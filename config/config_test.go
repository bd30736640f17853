package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "coordinator", cfg.Cluster.Mode)
	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, "all", cfg.Cluster.Role)
	assert.Equal(t, []string{"otlp_http", "otlp_grpc"}, cfg.Tempo.Receivers)
	assert.Equal(t, 720, cfg.Tempo.RetentionHours)
	// a unit id is generated when none is configured
	assert.NotEmpty(t, cfg.Cluster.UnitID)
	assert.Len(t, cfg.Roles, 6)
}

func TestDefaultRolesCoverBothCapabilities(t *testing.T) {
	roles := DefaultRoles()

	capabilities := make(map[string]bool)
	for _, role := range roles {
		require.GreaterOrEqual(t, role.MinReplicas, 1)
		for _, cap := range role.Capabilities {
			capabilities[cap] = true
		}
	}
	assert.True(t, capabilities["ingestion"])
	assert.True(t, capabilities["query"])
}

func TestValidateConfigRejectsBadMode(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cluster.Mode = "spectator"
	assert.Error(t, validateConfig(cfg))
}

func TestValidateConfigRejectsBadRole(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Roles = map[string]RoleConfig{
		"ingester": {MinReplicas: -1},
	}
	assert.Error(t, validateConfig(cfg))

	cfg.Roles = map[string]RoleConfig{
		"ingester": {MinReplicas: 1, Capabilities: []string{"clairvoyance"}},
	}
	assert.Error(t, validateConfig(cfg))
}

func TestValidateConfigRejectsBadPortAndRetention(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 0
	assert.Error(t, validateConfig(cfg))

	cfg = GetDefaultConfig()
	cfg.Tempo.RetentionHours = 0
	assert.Error(t, validateConfig(cfg))
}

func TestValidateConfigFillsDefaults(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Roles = nil
	cfg.Cluster.UnitID = ""

	require.NoError(t, validateConfig(cfg))
	assert.Len(t, cfg.Roles, 6)
	assert.NotEmpty(t, cfg.Cluster.UnitID)
}
