package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempocoord/config"
	"tempocoord/pkg/cluster"
	"tempocoord/pkg/reconcile"
	"tempocoord/pkg/worker"
	"tempocoord/storage"
)

func coordinatorConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Host: "localhost", Port: 9180},
		Cluster: config.ClusterConfig{Mode: "coordinator"},
		Roles:   config.DefaultRoles(),
		Tempo: config.TempoConfig{
			Receivers:      []string{"otlp_http"},
			RetentionHours: 720,
		},
	}
}

func newCoordinatorServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := storage.NewMemoryStore()
	cfg := coordinatorConfig()
	driver := reconcile.New(store, cfg, "tempo-coordinator-0", nil)
	srv := NewServer(cfg, cluster.NewRelationStore(store), driver, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestEventIntake(t *testing.T) {
	ts := newCoordinatorServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/events", reconcile.Event{Kind: reconcile.KindStart})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "waiting", body["severity"])
	assert.Contains(t, body["message"], "s3")
}

func TestEventIntakeRejectsInvalid(t *testing.T) {
	ts := newCoordinatorServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/events", reconcile.Event{Kind: "rumor"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "unknown event kind")
}

func TestRelationWritesDriveReconciliation(t *testing.T) {
	ts := newCoordinatorServer(t)

	// the runtime mirrors in the s3 credentials, then a worker deployment
	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/v1/relations/s3/0/app", cluster.Databag{
		"endpoint":   `"https://minio.local:9000"`,
		"bucket":     `"tempo"`,
		"access-key": `"AKIA"`,
		"secret-key": `"hunter2"`,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/v1/relations/tempo-cluster/1/app", cluster.Databag{
		"role": `"all"`,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/v1/relations/tempo-cluster/1/unit/tempo-worker%2F0", cluster.Databag{
		"unit":    `"tempo-worker/0"`,
		"address": `"10.0.0.1"`,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", body["severity"])
	assert.Equal(t, float64(1), body["version"])

	// published config is now served
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/config", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])
	assert.Contains(t, body["document"], "bucket: tempo")

	// topology reflects the all-role worker
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/topology", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ready"])

	// relation inspection shows both sides
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/relations/tempo-cluster/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	local, ok := body["local"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1", local["version"])
}

func TestRelationDelete(t *testing.T) {
	ts := newCoordinatorServer(t)

	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/v1/relations/tempo-cluster/1/app", cluster.Databag{
		"role": `"all"`,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodDelete, ts.URL+"/v1/relations/tempo-cluster/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "waiting", body["severity"])
}

func TestConfigNotPublishedYet(t *testing.T) {
	ts := newCoordinatorServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/config", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "no config published")
}

func TestStatusEndpoint(t *testing.T) {
	ts := newCoordinatorServer(t)

	_, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/events", reconcile.Event{Kind: reconcile.KindStart})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "coordinator", body["mode"])
	assert.Equal(t, float64(1), body["passes"])
}

func TestWorkerModeHidesCoordinatorSurfaces(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 9180},
		Cluster: config.ClusterConfig{
			Mode:       "worker",
			UnitID:     "tempo-worker/0",
			Address:    "10.0.0.5",
			Role:       "ingester",
			ConfigPath: filepath.Join(t.TempDir(), "tempo.yaml"),
		},
	}
	srv := NewServer(cfg, cluster.NewRelationStore(store), worker.New(store, cfg), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	for _, path := range []string{"/v1/topology", "/v1/config"} {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "worker", body["mode"])
	assert.NotContains(t, body, "passes")
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newCoordinatorServer(t)

	for path, method := range map[string]string{
		"/v1/events": http.MethodGet,
		"/v1/status": http.MethodPost,
	} {
		resp, _ := doJSON(t, method, ts.URL+path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, fmt.Sprintf("%s %s", method, path))
	}
}
