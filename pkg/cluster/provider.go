package cluster

import (
	"context"
	"errors"
	"log"
	"sort"
)

// Provider is the coordinator-side endpoint wrapper for the cluster
// relation. It aggregates the declarations workers publish into a topology
// view, and fans the synthesized config out to every related worker.
type Provider struct {
	rels     *RelationStore
	endpoint string
}

// NewProvider creates a provider over the given relation store.
func NewProvider(rels *RelationStore) *Provider {
	return &Provider{rels: rels, endpoint: DefaultEndpoint}
}

// HasWorkers reports whether any worker deployment is related at all. The
// check is on relation presence, not addresses, so it fails early.
func (p *Provider) HasWorkers(ctx context.Context) (bool, error) {
	ids, err := p.rels.IDs(ctx, p.endpoint)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// GatherAddressesByRole collects every address published by worker units,
// grouped by the role their deployment declared. Addresses are deduplicated
// within a role; malformed bags are skipped, not fatal. A deployment whose
// units published no addresses contributes nothing.
func (p *Provider) GatherAddressesByRole(ctx context.Context) (map[Role][]string, error) {
	ids, err := p.rels.IDs(ctx, p.endpoint)
	if err != nil {
		return nil, err
	}

	sets := make(map[Role]map[string]bool)
	for _, relID := range ids {
		appBag, err := p.rels.AppBag(ctx, p.endpoint, relID)
		if err != nil {
			return nil, err
		}
		appData, err := LoadWorkerAppData(appBag)
		if err != nil {
			if !errors.Is(err, ErrEmptyBag) {
				log.Printf("cluster: skipping relation %s: invalid app databag: %v", relID, err)
			}
			continue
		}

		unitBags, err := p.rels.UnitBags(ctx, p.endpoint, relID)
		if err != nil {
			return nil, err
		}
		for unit, bag := range unitBags {
			unitData, err := LoadWorkerUnitData(bag)
			if err != nil {
				log.Printf("cluster: skipping unit %s on relation %s: invalid unit databag: %v", unit, relID, err)
				continue
			}
			if unitData.Address == "" {
				continue
			}
			for _, role := range expandRole(appData.Role) {
				if sets[role] == nil {
					sets[role] = make(map[string]bool)
				}
				sets[role][unitData.Address] = true
			}
		}
	}

	out := make(map[Role][]string, len(sets))
	for role, addrs := range sets {
		list := make([]string, 0, len(addrs))
		for addr := range addrs {
			list = append(list, addr)
		}
		sort.Strings(list)
		out[role] = list
	}
	return out, nil
}

// GatherAddresses returns the deduplicated addresses of all worker units
// regardless of role, sorted. Used for the published scrape targets.
func (p *Provider) GatherAddresses(ctx context.Context) ([]string, error) {
	byRole, err := p.GatherAddressesByRole(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, addrs := range byRole {
		for _, addr := range addrs {
			set[addr] = true
		}
	}
	out := make([]string, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out, nil
}

// PublishConfig writes the coordinator databag to every current cluster
// relation not already carrying this version. A relation that is current is
// left alone, so reconciling with unchanged inputs rewrites nothing; a
// worker that joins later finds an empty local bag and gets the latest
// version immediately instead of waiting for the next change event.
func (p *Provider) PublishConfig(ctx context.Context, data CoordinatorAppData) error {
	bag, err := data.Dump()
	if err != nil {
		return err
	}
	ids, err := p.rels.IDs(ctx, p.endpoint)
	if err != nil {
		return err
	}
	for _, relID := range ids {
		current, err := p.rels.LocalBag(ctx, p.endpoint, relID)
		if err != nil {
			return err
		}
		if published, err := LoadCoordinatorAppData(current); err == nil && published.Version == data.Version {
			continue
		}
		if err := p.rels.SetLocalBag(ctx, p.endpoint, relID, bag); err != nil {
			return err
		}
	}
	return nil
}

// expandRole maps the meta-role "all" to every concrete role.
func expandRole(role Role) []Role {
	if role == RoleAll {
		return NonMetaRoles()
	}
	return []Role{role}
}
