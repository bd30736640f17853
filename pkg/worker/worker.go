// Package worker implements the worker half of the coordination protocol:
// advertise role and address, and apply coordinator-published config behind
// a monotonic version gate.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"tempocoord/config"
	"tempocoord/pkg/cluster"
	"tempocoord/pkg/reconcile"
	"tempocoord/pkg/tempo"
	"tempocoord/storage"
)

// keyApplied is the persisted version of the config this worker last
// applied. It survives restarts so a redelivered or out-of-order bag can
// never roll the worker back.
const keyApplied = "worker/applied/version"

// Worker reacts to events on the worker side of the cluster relation.
type Worker struct {
	mu sync.Mutex

	store storage.Store
	rels  *cluster.RelationStore
	cfg   *config.Config

	// relID is the current cluster relation. Empty until joined or until
	// recovered from the store, which survives a process restart.
	relID string

	status reconcile.Status
}

// New creates a worker.
func New(store storage.Store, cfg *config.Config) *Worker {
	return &Worker{
		store:  store,
		rels:   cluster.NewRelationStore(store),
		cfg:    cfg,
		status: reconcile.Status{Severity: reconcile.SeverityWaiting, Message: "waiting for: cluster relation"},
	}
}

// Status returns the outcome of the last completed pass.
func (w *Worker) Status() reconcile.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// AppliedVersion returns the persisted version of the last applied config.
func (w *Worker) AppliedVersion(ctx context.Context) (int64, error) {
	raw, found, err := w.store.Get(ctx, keyApplied)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	version, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt applied version %q: %w", raw, err)
	}
	return version, nil
}

// Reconcile runs one worker pass for the event: track the cluster relation,
// republish this unit's declaration, and apply any newer config.
func (w *Worker) Reconcile(ctx context.Context, ev reconcile.Event) (reconcile.Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ev.Validate(); err != nil {
		return w.status, err
	}

	switch ev.Kind {
	case reconcile.KindRelationChanged:
		if ev.Endpoint == cluster.DefaultEndpoint {
			w.relID = ev.RelationID
		}
	case reconcile.KindRelationBroken:
		if ev.Endpoint == cluster.DefaultEndpoint {
			// keep running the applied config; only the relation is gone.
			// Drop its bags so it cannot be recovered from the store below.
			if err := w.rels.Remove(ctx, ev.Endpoint, ev.RelationID); err != nil {
				return w.status, err
			}
			if ev.RelationID == w.relID {
				w.relID = ""
			}
		}
	}

	// A restart loses the in-memory relation id while the store still holds
	// the relation and the coordinator's bag; re-read it rather than waiting
	// for the next relation event.
	if w.relID == "" {
		ids, err := w.rels.IDs(ctx, cluster.DefaultEndpoint)
		if err != nil {
			return w.status, err
		}
		if len(ids) > 0 {
			w.relID = ids[0]
		}
	}

	if w.relID == "" {
		applied, err := w.AppliedVersion(ctx)
		if err != nil {
			return w.status, err
		}
		w.status = reconcile.Status{
			Severity: reconcile.SeverityWaiting,
			Message:  "waiting for: cluster relation",
			Version:  applied,
		}
		return w.status, nil
	}

	requirer := cluster.NewRequirer(w.rels, w.relID, w.cfg.Cluster.UnitID)
	role := cluster.Role(w.cfg.Cluster.Role)
	if err := requirer.PublishDeclaration(ctx, role, w.cfg.Cluster.Address); err != nil {
		return w.status, err
	}

	data, found, err := requirer.CoordinatorData(ctx)
	if err != nil {
		return w.status, err
	}
	if !found {
		w.status = reconcile.Status{
			Severity: reconcile.SeverityWaiting,
			Message:  "waiting for: coordinator config",
		}
		return w.status, nil
	}

	applied, err := w.AppliedVersion(ctx)
	if err != nil {
		return w.status, err
	}

	switch {
	case data.Version < applied:
		// stale redelivery, ignore
		log.Printf("worker: ignoring config version %d, already applied %d", data.Version, applied)
	case data.Version == applied:
		// already applied, nothing to do
	default:
		if err := w.apply(ctx, data); err != nil {
			return w.status, err
		}
		log.Printf("worker: applied config version %d (was %d)", data.Version, applied)
		applied = data.Version
	}

	w.status = reconcile.Status{
		Severity: reconcile.SeverityActive,
		Message:  fmt.Sprintf("running config version %d as %s", applied, role),
		Version:  applied,
	}
	return w.status, nil
}

// Shutdown withdraws this unit's declaration so the coordinator stops
// counting it towards topology. The applied config stays on disk; a restart
// republishes the declaration on its first pass.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.relID == "" {
		return nil
	}
	return cluster.NewRequirer(w.rels, w.relID, w.cfg.Cluster.UnitID).Withdraw(ctx)
}

// apply writes the config document and certificate material to their
// workload paths, then persists the applied version. The version is written
// last: a crash mid-apply re-applies the same version on the next event
// rather than recording a config that never landed.
func (w *Worker) apply(ctx context.Context, data cluster.CoordinatorAppData) error {
	if err := writeFile(w.cfg.Cluster.ConfigPath, []byte(data.ConfigYAML)); err != nil {
		return err
	}
	if data.ServerCert != "" {
		if err := writeFile(tempo.TLSCertPath, []byte(data.ServerCert)); err != nil {
			return err
		}
	}
	if data.CACert != "" {
		if err := writeFile(tempo.TLSCAPath, []byte(data.CACert)); err != nil {
			return err
		}
	}
	return w.store.Set(ctx, keyApplied, []byte(strconv.FormatInt(data.Version, 10)))
}

func writeFile(path string, contents []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
