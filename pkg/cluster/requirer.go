package cluster

import (
	"context"
	"errors"
)

// Requirer is the worker-side endpoint wrapper for the cluster relation: it
// advertises this deployment's role and this unit's address, and reads back
// whatever config the coordinator last published.
//
// From a worker process the coordinator's published bag is remote data, and
// the worker's own declaration is local data; the runtime mirrors each side
// to the other.
type Requirer struct {
	rels     *RelationStore
	endpoint string
	relID    string
	unitID   string
}

// NewRequirer creates a requirer bound to one cluster relation.
func NewRequirer(rels *RelationStore, relID, unitID string) *Requirer {
	return &Requirer{rels: rels, endpoint: DefaultEndpoint, relID: relID, unitID: unitID}
}

// PublishDeclaration writes the worker's role and this unit's address. It is
// called on startup and whenever the local topology changes.
func (r *Requirer) PublishDeclaration(ctx context.Context, role Role, address string) error {
	appData := WorkerAppData{Role: role}
	if err := appData.Validate(); err != nil {
		return err
	}
	appBag, err := appData.Dump()
	if err != nil {
		return err
	}
	if err := r.rels.SetLocalBag(ctx, r.endpoint, r.relID, appBag); err != nil {
		return err
	}

	unitBag, err := WorkerUnitData{Unit: r.unitID, Address: address}.Dump()
	if err != nil {
		return err
	}
	return r.rels.SetLocalUnitBag(ctx, r.endpoint, r.relID, r.unitID, unitBag)
}

// Withdraw removes this unit's bag, e.g. on clean shutdown.
func (r *Requirer) Withdraw(ctx context.Context) error {
	return r.rels.DeleteLocalUnitBag(ctx, r.endpoint, r.relID, r.unitID)
}

// CoordinatorData reads the coordinator's published bag. The boolean is
// false when the coordinator has not published anything yet.
func (r *Requirer) CoordinatorData(ctx context.Context) (CoordinatorAppData, bool, error) {
	bag, err := r.rels.AppBag(ctx, r.endpoint, r.relID)
	if err != nil {
		return CoordinatorAppData{}, false, err
	}
	data, err := LoadCoordinatorAppData(bag)
	if err != nil {
		if errors.Is(err, ErrEmptyBag) {
			return CoordinatorAppData{}, false, nil
		}
		return CoordinatorAppData{}, false, err
	}
	return data, true, nil
}
