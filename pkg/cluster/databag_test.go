package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBagIgnoresUnknownFields(t *testing.T) {
	bag := Databag{
		"role":             `"ingester"`,
		"some_new_field":   `{"added": "by a newer peer"}`,
		"another_addition": `42`,
	}

	var data WorkerAppData
	require.NoError(t, LoadBag(bag, &data))
	assert.Equal(t, RoleIngester, data.Role)
}

func TestLoadBagEmpty(t *testing.T) {
	var data WorkerAppData
	assert.ErrorIs(t, LoadBag(Databag{}, &data), ErrEmptyBag)
	assert.ErrorIs(t, LoadBag(nil, &data), ErrEmptyBag)
}

func TestLoadBagInvalidJSON(t *testing.T) {
	bag := Databag{"role": `not json`}

	var data WorkerAppData
	err := LoadBag(bag, &data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expecting json at field role")
}

func TestWorkerAppDataValidate(t *testing.T) {
	assert.NoError(t, WorkerAppData{Role: RoleAll}.Validate())
	assert.NoError(t, WorkerAppData{Role: RoleCompactor}.Validate())
	assert.Error(t, WorkerAppData{}.Validate())
	assert.Error(t, WorkerAppData{Role: "stagehand"}.Validate())
}

func TestCoordinatorAppDataRoundTrip(t *testing.T) {
	data := CoordinatorAppData{
		Version:    7,
		ConfigYAML: "server:\n  http_listen_port: 3200\n",
		CACert:     "-----BEGIN CERTIFICATE-----",
		PrivKeyRef: "secret:abc123",
		ReceiverEndpoints: map[string]string{
			"otlp_http": "https://tempo.example.com:4318",
		},
	}

	bag, err := data.Dump()
	require.NoError(t, err)
	// one JSON value per field, string fields quoted
	assert.Equal(t, `7`, bag["version"])
	assert.Equal(t, `"secret:abc123"`, bag["privkey_secret_id"])

	loaded, err := LoadCoordinatorAppData(bag)
	require.NoError(t, err)
	assert.Equal(t, data, loaded)
}

func TestDumpBagOmitsEmptyOptionalFields(t *testing.T) {
	bag, err := CoordinatorAppData{Version: 1, ConfigYAML: "x"}.Dump()
	require.NoError(t, err)
	assert.NotContains(t, bag, "ca_cert")
	assert.NotContains(t, bag, "receiver_endpoints")
}
