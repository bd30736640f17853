// Package facts reads externally-owned relation data into typed values.
//
// Every fact is ephemeral: the latest databag wins, nothing is merged
// historically. A fact can be missing (endpoint not related, or related but
// nothing published yet) or malformed (published but structurally invalid);
// the two are reported distinctly so an operator can tell "not configured"
// from "misconfigured".
package facts

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"tempocoord/pkg/cluster"
)

// Relation endpoint names the runtime delivers data on.
const (
	EndpointS3          = "s3"
	EndpointTLS         = "certificates"
	EndpointIngress     = "ingress"
	EndpointLogging     = "logging"
	EndpointRemoteWrite = "remote-write"
	EndpointTracing     = "tracing"
)

// ErrMissing indicates the fact's endpoint has no usable data yet. Routine,
// surfaced as a "waiting" status, never fatal.
var ErrMissing = errors.New("relation data not available")

// MalformedError indicates a fact was published but failed validation.
type MalformedError struct {
	Endpoint string
	Reason   error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s relation data: %v", e.Endpoint, e.Reason)
}

func (e *MalformedError) Unwrap() error { return e.Reason }

// Source reads facts from the relation store.
type Source struct {
	rels *cluster.RelationStore
}

// NewSource creates a fact source over the given relation store.
func NewSource(rels *cluster.RelationStore) *Source {
	return &Source{rels: rels}
}

// appData returns the remote application bag of the first relation on the
// endpoint (sorted by relation id, so re-reads are stable when several are
// related). ErrMissing when there is none or it is empty.
func (s *Source) appData(ctx context.Context, endpoint string) (cluster.Databag, error) {
	ids, err := s.rels.IDs(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	for _, relID := range ids {
		bag, err := s.rels.AppBag(ctx, endpoint, relID)
		if err != nil {
			return nil, err
		}
		if len(bag) > 0 {
			return bag, nil
		}
	}
	return nil, ErrMissing
}

// allAppData returns the remote application bags of every relation on the
// endpoint that has published anything, keyed by relation id.
func (s *Source) allAppData(ctx context.Context, endpoint string) (map[string]cluster.Databag, error) {
	ids, err := s.rels.IDs(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	out := make(map[string]cluster.Databag)
	for _, relID := range ids {
		bag, err := s.rels.AppBag(ctx, endpoint, relID)
		if err != nil {
			return nil, err
		}
		if len(bag) > 0 {
			out[relID] = bag
		}
	}
	if len(out) == 0 {
		return nil, ErrMissing
	}
	return out, nil
}

func decode(endpoint string, bag cluster.Databag, into interface{ Validate() error }) error {
	if err := cluster.LoadBag(bag, into); err != nil {
		if errors.Is(err, cluster.ErrEmptyBag) {
			return ErrMissing
		}
		return &MalformedError{Endpoint: endpoint, Reason: err}
	}
	if err := into.Validate(); err != nil {
		return &MalformedError{Endpoint: endpoint, Reason: err}
	}
	return nil
}

// S3 returns the object storage credentials fact.
func (s *Source) S3(ctx context.Context) (S3Fact, error) {
	bag, err := s.appData(ctx, EndpointS3)
	if err != nil {
		return S3Fact{}, err
	}
	var fact S3Fact
	if err := decode(EndpointS3, bag, &fact); err != nil {
		return S3Fact{}, err
	}
	return fact, nil
}

// TLS returns the certificate bundle fact.
func (s *Source) TLS(ctx context.Context) (TLSFact, error) {
	bag, err := s.appData(ctx, EndpointTLS)
	if err != nil {
		return TLSFact{}, err
	}
	var fact TLSFact
	if err := decode(EndpointTLS, bag, &fact); err != nil {
		return TLSFact{}, err
	}
	return fact, nil
}

// Ingress returns the external URL fact, if any.
func (s *Source) Ingress(ctx context.Context) (IngressFact, error) {
	bag, err := s.appData(ctx, EndpointIngress)
	if err != nil {
		return IngressFact{}, err
	}
	var fact IngressFact
	if err := decode(EndpointIngress, bag, &fact); err != nil {
		return IngressFact{}, err
	}
	return fact, nil
}

// LokiEndpoints aggregates log push targets across all logging relations,
// keyed by relation id.
func (s *Source) LokiEndpoints(ctx context.Context) (map[string]string, error) {
	bags, err := s.allAppData(ctx, EndpointLogging)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	relIDs := make([]string, 0, len(bags))
	for relID := range bags {
		relIDs = append(relIDs, relID)
	}
	sort.Strings(relIDs)
	for _, relID := range relIDs {
		var fact LoggingFact
		if err := decode(EndpointLogging, bags[relID], &fact); err != nil {
			return nil, err
		}
		out[relID] = fact.Endpoint
	}
	return out, nil
}

// RemoteWriteEndpoints aggregates metrics remote-write targets across all
// remote-write relations, deduplicated and sorted.
func (s *Source) RemoteWriteEndpoints(ctx context.Context) ([]string, error) {
	bags, err := s.allAppData(ctx, EndpointRemoteWrite)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, bag := range bags {
		var fact RemoteWriteFact
		if err := decode(EndpointRemoteWrite, bag, &fact); err != nil {
			return nil, err
		}
		for _, url := range fact.Endpoints {
			if url != "" {
				seen[url] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for url := range seen {
		out = append(out, url)
	}
	sort.Strings(out)
	return out, nil
}

// RequestedReceivers returns the union of receiver protocols requested by
// all tracing requirers, sorted.
func (s *Source) RequestedReceivers(ctx context.Context) ([]string, error) {
	bags, err := s.allAppData(ctx, EndpointTracing)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, bag := range bags {
		var fact TracingFact
		if err := decode(EndpointTracing, bag, &fact); err != nil {
			return nil, err
		}
		for _, proto := range fact.Receivers {
			seen[proto] = true
		}
	}
	out := make([]string, 0, len(seen))
	for proto := range seen {
		out = append(out, proto)
	}
	sort.Strings(out)
	return out, nil
}
