package reconcile

import (
	"context"
	"fmt"

	"tempocoord/pkg/cluster"
	"tempocoord/pkg/tempo"
)

// Output relation endpoints the coordinator publishes derived facts on.
const (
	EndpointTracingOut   = "tracing"
	EndpointGrafanaSrc   = "grafana-source"
	EndpointDashboards   = "grafana-dashboard"
	EndpointScrapeTarget = "metrics-endpoint"
)

// assetPrefix is where the daemon caches dashboard blobs in the store.
const assetPrefix = "assets/dashboards/"

// publishOutputs updates the derived facts on all output relations: receiver
// endpoints for tracing requirers, the datasource URL for grafana, scrape
// targets for metrics collection, and dashboard blobs forwarded verbatim.
// Bags already carrying the same content are left untouched.
func (d *Driver) publishOutputs(ctx context.Context, data cluster.CoordinatorAppData, externalURL string, workerAddrs []string) error {
	tracingBag, err := cluster.DumpBag(struct {
		Receivers map[string]string `json:"receivers"`
	}{Receivers: data.ReceiverEndpoints})
	if err != nil {
		return err
	}
	if err := d.publishTo(ctx, EndpointTracingOut, tracingBag); err != nil {
		return err
	}

	sourceBag, err := cluster.DumpBag(struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}{Type: "tempo", URL: fmt.Sprintf("%s:%d", externalURL, tempo.HTTPServerPort)})
	if err != nil {
		return err
	}
	if err := d.publishTo(ctx, EndpointGrafanaSrc, sourceBag); err != nil {
		return err
	}

	scrapeBag, err := cluster.DumpBag(struct {
		Jobs []scrapeJob `json:"scrape_jobs"`
	}{Jobs: scrapeJobs(workerAddrs)})
	if err != nil {
		return err
	}
	if err := d.publishTo(ctx, EndpointScrapeTarget, scrapeBag); err != nil {
		return err
	}

	return d.publishDashboards(ctx)
}

type scrapeJob struct {
	Targets []string `json:"targets"`
}

// scrapeJobs lists every worker unit's metrics port as a scrape target.
func scrapeJobs(addrs []string) []scrapeJob {
	if len(addrs) == 0 {
		return nil
	}
	targets := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		targets = append(targets, fmt.Sprintf("%s:%d", addr, tempo.HTTPServerPort))
	}
	return []scrapeJob{{Targets: targets}}
}

// publishDashboards forwards cached dashboard blobs, untouched, to every
// dashboard relation.
func (d *Driver) publishDashboards(ctx context.Context) error {
	assets, err := d.store.List(ctx, assetPrefix)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		return nil
	}
	bag := make(cluster.Databag, len(assets))
	for key, blob := range assets {
		bag[key[len(assetPrefix):]] = string(blob)
	}
	return d.publishTo(ctx, EndpointDashboards, bag)
}

// publishTo writes bag to the local side of every relation on endpoint,
// skipping relations whose bag is already identical.
func (d *Driver) publishTo(ctx context.Context, endpoint string, bag cluster.Databag) error {
	ids, err := d.rels.IDs(ctx, endpoint)
	if err != nil {
		return err
	}
	for _, relID := range ids {
		current, err := d.rels.LocalBag(ctx, endpoint, relID)
		if err != nil {
			return err
		}
		if bagsEqual(current, bag) {
			continue
		}
		if err := d.rels.SetLocalBag(ctx, endpoint, relID, bag); err != nil {
			return err
		}
	}
	return nil
}

func bagsEqual(a, b cluster.Databag) bool {
	if len(a) != len(b) {
		return false
	}
	for field, value := range a {
		if b[field] != value {
			return false
		}
	}
	return true
}
