// Package client is a typed SDK for the tempocoord admin HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tempocoord/pkg/cluster"
	"tempocoord/pkg/reconcile"
	"tempocoord/pkg/topology"
)

// Client talks to one tempocoord process.
type Client struct {
	base string
	http *http.Client
}

// Options control Client behavior.
type Options struct {
	// Timeout bounds every request (default 5s).
	Timeout time.Duration
}

// New returns a Client for the server at address (host:port or URL).
func New(address string, opts *Options) *Client {
	if opts == nil {
		opts = &Options{Timeout: 5 * time.Second}
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: opts.Timeout},
	}
}

// SendEvent delivers a runtime event and returns the resulting status.
func (c *Client) SendEvent(ctx context.Context, ev reconcile.Event) (reconcile.Status, error) {
	var status reconcile.Status
	err := c.do(ctx, http.MethodPost, "/v1/events", ev, &status)
	return status, err
}

// SetAppBag replaces the remote application databag of a relation and
// triggers a reconciliation pass.
func (c *Client) SetAppBag(ctx context.Context, endpoint, relID string, bag cluster.Databag) (reconcile.Status, error) {
	var status reconcile.Status
	err := c.do(ctx, http.MethodPut, relationPath(endpoint, relID)+"/app", bag, &status)
	return status, err
}

// SetUnitBag replaces one remote unit databag of a relation and triggers a
// reconciliation pass.
func (c *Client) SetUnitBag(ctx context.Context, endpoint, relID, unit string, bag cluster.Databag) (reconcile.Status, error) {
	var status reconcile.Status
	err := c.do(ctx, http.MethodPut, relationPath(endpoint, relID)+"/unit/"+url.PathEscape(unit), bag, &status)
	return status, err
}

// DepartUnit signals that a remote unit left a relation.
func (c *Client) DepartUnit(ctx context.Context, endpoint, relID, unit string) (reconcile.Status, error) {
	var status reconcile.Status
	err := c.do(ctx, http.MethodDelete, relationPath(endpoint, relID)+"/unit/"+url.PathEscape(unit), nil, &status)
	return status, err
}

// BreakRelation signals that a whole relation went away.
func (c *Client) BreakRelation(ctx context.Context, endpoint, relID string) (reconcile.Status, error) {
	var status reconcile.Status
	err := c.do(ctx, http.MethodDelete, relationPath(endpoint, relID), nil, &status)
	return status, err
}

// StatusResponse is the reply of the status endpoint.
type StatusResponse struct {
	Mode   string           `json:"mode"`
	Status reconcile.Status `json:"status"`
	Passes int64            `json:"passes,omitempty"`
}

// Status returns the process status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &resp)
	return resp, err
}

// Topology returns the coordinator's current readiness verdict.
func (c *Client) Topology(ctx context.Context) (topology.Verdict, error) {
	var verdict topology.Verdict
	err := c.do(ctx, http.MethodGet, "/v1/topology", nil, &verdict)
	return verdict, err
}

// ConfigResponse is the reply of the config endpoint.
type ConfigResponse struct {
	Version  int64  `json:"version"`
	Document string `json:"document"`
}

// Config returns the last published runtime config.
func (c *Client) Config(ctx context.Context) (ConfigResponse, error) {
	var resp ConfigResponse
	err := c.do(ctx, http.MethodGet, "/v1/config", nil, &resp)
	return resp, err
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

func relationPath(endpoint, relID string) string {
	return "/v1/relations/" + url.PathEscape(endpoint) + "/" + url.PathEscape(relID)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
