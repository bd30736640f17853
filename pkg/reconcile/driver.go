// Package reconcile implements the event-driven control loop: every external
// event triggers one full resolve-synthesize-publish pass, run to completion
// before the next event is considered.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"tempocoord/config"
	"tempocoord/pkg/cluster"
	"tempocoord/pkg/facts"
	"tempocoord/pkg/synth"
	"tempocoord/pkg/topology"
	"tempocoord/storage"
)

// keyPasses counts completed reconciliation passes across restarts.
const keyPasses = "state/reconcile/passes"

// Driver converges the cluster on every event. It is a pure consumer of the
// persisted state store: the runtime delivers events and databags, the
// driver recomputes the desired config and publishes derived facts.
type Driver struct {
	// mu serializes passes. The event intake may deliver concurrently, but
	// reconciliation is strictly one pass at a time, run to completion.
	mu sync.Mutex

	store    storage.Store
	rels     *cluster.RelationStore
	provider *cluster.Provider
	synth    *synth.Synthesizer
	table    topology.RoleTable
	cfg      *config.Config
	metrics  *Metrics

	// serverName is this coordinator's hostname, used for TLS SNI and as
	// the fallback external host.
	serverName string

	status Status
}

// New creates a driver. metrics may be nil.
func New(store storage.Store, cfg *config.Config, serverName string, metrics *Metrics) *Driver {
	rels := cluster.NewRelationStore(store)
	return &Driver{
		store:      store,
		rels:       rels,
		provider:   cluster.NewProvider(rels),
		synth:      synth.New(store, facts.NewSource(rels), cfg),
		table:      topology.TableFromConfig(cfg.Roles),
		cfg:        cfg,
		metrics:    metrics,
		serverName: serverName,
		status:     Status{Severity: SeverityWaiting, Message: "waiting for: first reconciliation"},
	}
}

// Status returns the outcome of the last completed pass.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Topology returns the current resolver verdict without reconciling.
func (d *Driver) Topology(ctx context.Context) (topology.Verdict, error) {
	observed, err := d.provider.GatherAddressesByRole(ctx)
	if err != nil {
		return topology.Verdict{}, err
	}
	return topology.Resolve(d.table, observed), nil
}

// LastPublished returns the persisted config version and document.
func (d *Driver) LastPublished(ctx context.Context) (int64, string, error) {
	return d.synth.LastPublished(ctx)
}

// Passes returns how many reconciliation passes completed since install.
func (d *Driver) Passes(ctx context.Context) (int64, error) {
	return d.store.Increment(ctx, keyPasses, 0)
}

// Reconcile runs one full pass for the event: fold the event into the
// store, resolve topology, synthesize, publish, update status.
//
// Precondition failures become status text, never errors; only unexpected
// internal failures propagate to the caller.
func (d *Driver) Reconcile(ctx context.Context, ev Event) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ev.Validate(); err != nil {
		return d.status, err
	}
	log.Printf("reconcile: %s", ev)

	if err := d.applyEvent(ctx, ev); err != nil {
		return d.status, err
	}

	observed, err := d.provider.GatherAddressesByRole(ctx)
	if err != nil {
		return d.status, err
	}
	verdict := topology.Resolve(d.table, observed)

	result, err := d.synth.Synthesize(ctx, verdict, d.serverName)
	if err != nil {
		if errors.Is(err, synth.ErrVersionRegression) {
			// fatal to this pass only: keep last-known-good published state
			log.Printf("reconcile: INVARIANT VIOLATION, skipping publish: %v", err)
			d.metrics.observe("invariant_violation", d.status.Version, verdict.Ready, 0)
			return d.status, nil
		}
		return d.status, err
	}

	publishedVersion, _, err := d.synth.LastPublished(ctx)
	if err != nil {
		return d.status, err
	}

	if result.Synthesized() {
		// publish even when the version is unchanged: relations that do not
		// carry the current version yet (late joiners) get it now, everyone
		// else is skipped.
		if err := d.provider.PublishConfig(ctx, result.Data); err != nil {
			return d.status, err
		}
		workerAddrs, err := d.provider.GatherAddresses(ctx)
		if err != nil {
			return d.status, err
		}
		if err := d.publishOutputs(ctx, result.Data, d.externalURL(ctx), workerAddrs); err != nil {
			return d.status, err
		}
		if result.Changed {
			log.Printf("reconcile: published config version %d", result.Version)
		}
	} else {
		// leave the last published config in place for workers running it
		log.Printf("reconcile: not publishing, %d unmet precondition(s)", len(result.Unmet))
	}

	d.status = statusFor(result, publishedVersion)

	if _, err := d.store.Increment(ctx, keyPasses, 1); err != nil {
		return d.status, err
	}
	d.metrics.observe(outcomeOf(result), d.status.Version, verdict.Ready, len(result.Unmet))

	return d.status, nil
}

// applyEvent folds relation lifecycle events into the store before
// resolution. Data updates (relation-changed) are written by the intake
// before the event is delivered, so only removals are handled here.
func (d *Driver) applyEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindRelationDeparted:
		return d.rels.DeleteUnitBag(ctx, ev.Endpoint, ev.RelationID, ev.Unit)
	case KindRelationBroken:
		return d.rels.Remove(ctx, ev.Endpoint, ev.RelationID)
	}
	return nil
}

// externalURL is the ingress URL when routed, otherwise this host.
func (d *Driver) externalURL(ctx context.Context) string {
	source := facts.NewSource(d.rels)
	ingress, err := source.Ingress(ctx)
	if err == nil {
		return ingress.URL()
	}
	scheme := "http"
	if d.cfg.Tempo.TLSEnabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, d.serverName)
}

func outcomeOf(result synth.Result) string {
	switch {
	case !result.Synthesized():
		return "unmet"
	case result.Changed:
		return "published"
	default:
		return "unchanged"
	}
}

// LoadAssets caches dashboard blobs into the store for forwarding. Called
// by the daemon at startup with the contents of the dashboards directory.
func (d *Driver) LoadAssets(ctx context.Context, blobs map[string][]byte) error {
	for name, blob := range blobs {
		if err := d.store.Set(ctx, assetPrefix+name, blob); err != nil {
			return err
		}
	}
	return nil
}
