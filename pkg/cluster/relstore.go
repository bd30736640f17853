package cluster

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"tempocoord/storage"
)

// RelationStore gives structured access to relation databags held in the
// persisted state store. The "relation/" side holds what the remote peer
// published, mirrored in by the orchestration runtime; the "local/" side is
// what this process published. On a coordinator the remote side is worker
// declarations, on a worker it is the coordinator's config bag.
//
// Key layout:
//
//	relation/<endpoint>/<rel-id>/app/<field>           remote application bag
//	relation/<endpoint>/<rel-id>/unit/<unit>/<field>   remote unit bags
//	local/<endpoint>/<rel-id>/app/<field>              what we published
type RelationStore struct {
	store storage.Store
}

// NewRelationStore wraps a state store.
func NewRelationStore(store storage.Store) *RelationStore {
	return &RelationStore{store: store}
}

func relationPrefix(endpoint, relID string) string {
	return fmt.Sprintf("relation/%s/%s/", endpoint, relID)
}

func localPrefix(endpoint, relID string) string {
	return fmt.Sprintf("local/%s/%s/", endpoint, relID)
}

// IDs returns the ids of all current relations on the endpoint, sorted.
func (r *RelationStore) IDs(ctx context.Context, endpoint string) ([]string, error) {
	prefix := fmt.Sprintf("relation/%s/", endpoint)
	pairs, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for key := range pairs {
		rest := strings.TrimPrefix(key, prefix)
		if relID, _, ok := strings.Cut(rest, "/"); ok {
			seen[relID] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for relID := range seen {
		ids = append(ids, relID)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppBag returns the remote application databag of a relation.
func (r *RelationStore) AppBag(ctx context.Context, endpoint, relID string) (Databag, error) {
	return r.readBag(ctx, relationPrefix(endpoint, relID)+"app/")
}

// UnitBags returns the remote unit databags of a relation, keyed by unit id.
func (r *RelationStore) UnitBags(ctx context.Context, endpoint, relID string) (map[string]Databag, error) {
	prefix := relationPrefix(endpoint, relID) + "unit/"
	pairs, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	bags := make(map[string]Databag)
	for key, value := range pairs {
		rest := strings.TrimPrefix(key, prefix)
		escaped, field, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		unit, err := url.PathUnescape(escaped)
		if err != nil {
			continue
		}
		if bags[unit] == nil {
			bags[unit] = make(Databag)
		}
		bags[unit][field] = string(value)
	}
	return bags, nil
}

// LocalBag returns what this process last published on a relation.
func (r *RelationStore) LocalBag(ctx context.Context, endpoint, relID string) (Databag, error) {
	return r.readBag(ctx, localPrefix(endpoint, relID)+"app/")
}

// SetAppBag replaces the remote application bag of a relation. Used by the
// event intake when the runtime delivers relation data, and by a worker
// process publishing its own declaration.
func (r *RelationStore) SetAppBag(ctx context.Context, endpoint, relID string, bag Databag) error {
	return r.writeBag(ctx, relationPrefix(endpoint, relID)+"app/", bag)
}

// SetUnitBag replaces one remote unit bag of a relation. Unit ids may
// contain slashes (app/0), so the unit key segment is path-escaped.
func (r *RelationStore) SetUnitBag(ctx context.Context, endpoint, relID, unit string, bag Databag) error {
	return r.writeBag(ctx, relationPrefix(endpoint, relID)+"unit/"+url.PathEscape(unit)+"/", bag)
}

// DeleteUnitBag removes a departed unit's bag.
func (r *RelationStore) DeleteUnitBag(ctx context.Context, endpoint, relID, unit string) error {
	_, err := r.store.DeletePrefix(ctx, relationPrefix(endpoint, relID)+"unit/"+url.PathEscape(unit)+"/")
	return err
}

// SetLocalBag replaces the local application bag of a relation.
func (r *RelationStore) SetLocalBag(ctx context.Context, endpoint, relID string, bag Databag) error {
	return r.writeBag(ctx, localPrefix(endpoint, relID)+"app/", bag)
}

// SetLocalUnitBag replaces this unit's local bag on a relation.
func (r *RelationStore) SetLocalUnitBag(ctx context.Context, endpoint, relID, unit string, bag Databag) error {
	return r.writeBag(ctx, localPrefix(endpoint, relID)+"unit/"+url.PathEscape(unit)+"/", bag)
}

// DeleteLocalUnitBag removes this unit's local bag on a relation.
func (r *RelationStore) DeleteLocalUnitBag(ctx context.Context, endpoint, relID, unit string) error {
	_, err := r.store.DeletePrefix(ctx, localPrefix(endpoint, relID)+"unit/"+url.PathEscape(unit)+"/")
	return err
}

// Remove drops every bag of a broken relation, both sides.
func (r *RelationStore) Remove(ctx context.Context, endpoint, relID string) error {
	if _, err := r.store.DeletePrefix(ctx, relationPrefix(endpoint, relID)); err != nil {
		return err
	}
	_, err := r.store.DeletePrefix(ctx, localPrefix(endpoint, relID))
	return err
}

func (r *RelationStore) readBag(ctx context.Context, prefix string) (Databag, error) {
	pairs, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	bag := make(Databag, len(pairs))
	for key, value := range pairs {
		bag[strings.TrimPrefix(key, prefix)] = string(value)
	}
	return bag, nil
}

func (r *RelationStore) writeBag(ctx context.Context, prefix string, bag Databag) error {
	// clear before writing so removed fields do not linger
	if _, err := r.store.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	for field, value := range bag {
		if err := r.store.Set(ctx, prefix+field, []byte(value)); err != nil {
			return err
		}
	}
	return nil
}
