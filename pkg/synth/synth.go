// Package synth turns observed relation facts and a topology verdict into a
// complete runtime configuration, or a diagnosis of why it cannot.
//
// Synthesis is all-or-nothing: a config referencing TLS transport without a
// CA, or storage without credentials, cannot be applied safely by workers,
// so nothing is emitted until every precondition holds at once.
package synth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tempocoord/config"
	"tempocoord/pkg/cluster"
	"tempocoord/pkg/facts"
	"tempocoord/pkg/tempo"
	"tempocoord/pkg/topology"
	"tempocoord/storage"
)

// State store keys owned by the synthesizer.
const (
	keyVersion     = "state/config/version"
	keyDocument    = "state/config/document"
	keyFingerprint = "state/config/fingerprint"
)

// ErrVersionRegression reports that the persisted version counter moved
// backwards. This is an internal invariant violation: the pass is abandoned
// and persisted state is left untouched.
var ErrVersionRegression = errors.New("persisted config version regressed")

// Unmet is one failed precondition.
type Unmet struct {
	// Subject names what is unmet: an endpoint name or "topology".
	Subject string `json:"subject"`
	Reason  string `json:"reason"`
	// Malformed distinguishes misconfigured input from absent input.
	Malformed bool `json:"malformed,omitempty"`
}

func (u Unmet) String() string {
	return fmt.Sprintf("%s: %s", u.Subject, u.Reason)
}

// Result is the outcome of one synthesis pass.
type Result struct {
	// Unmet is non-empty when nothing was synthesized. It lists every
	// failed precondition, not just the first.
	Unmet []Unmet

	// Version of the synthesized config. Unchanged inputs yield the same
	// version as the previous pass.
	Version int64
	// Changed is true when this pass advanced the version.
	Changed bool
	// Data is the full payload to fan out over the cluster relation.
	Data cluster.CoordinatorAppData
}

// Synthesized reports whether a complete config was produced.
func (r Result) Synthesized() bool { return len(r.Unmet) == 0 }

// Synthesizer derives RuntimeConfig documents and owns the persisted
// version counter.
type Synthesizer struct {
	store  storage.Store
	source *facts.Source
	cfg    *config.Config

	// highWater is the largest persisted version observed by this process,
	// used to detect counter regression.
	highWater int64
}

// New creates a synthesizer.
func New(store storage.Store, source *facts.Source, cfg *config.Config) *Synthesizer {
	return &Synthesizer{store: store, source: source, cfg: cfg}
}

// LastPublished returns the persisted version and document, zero-valued
// when nothing was ever published.
func (s *Synthesizer) LastPublished(ctx context.Context) (int64, string, error) {
	version, err := s.readVersion(ctx)
	if err != nil {
		return 0, "", err
	}
	raw, _, err := s.store.Get(ctx, keyDocument)
	if err != nil {
		return 0, "", err
	}
	return version, string(raw), nil
}

// Synthesize checks every precondition independently, and on success renders
// the config and assigns it a version.
//
// Version semantics: strictly monotonic and durable. An input set identical
// to the last published one re-yields the previous version, so reconciling
// twice with unchanged facts is a no-op.
func (s *Synthesizer) Synthesize(ctx context.Context, verdict topology.Verdict, serverName string) (Result, error) {
	var result Result

	s3Fact, s3Unmet, err := checkFact(func() (facts.S3Fact, error) { return s.source.S3(ctx) }, facts.EndpointS3)
	if err != nil {
		return result, err
	}
	if s3Unmet != nil {
		result.Unmet = append(result.Unmet, *s3Unmet)
	}

	var tlsFact *facts.TLSFact
	if s.cfg.Tempo.TLSEnabled {
		fact, tlsUnmet, err := checkFact(func() (facts.TLSFact, error) { return s.source.TLS(ctx) }, facts.EndpointTLS)
		if err != nil {
			return result, err
		}
		if tlsUnmet != nil {
			result.Unmet = append(result.Unmet, *tlsUnmet)
		} else {
			tlsFact = &fact
		}
	}

	if !verdict.Ready {
		result.Unmet = append(result.Unmet, describeTopology(verdict))
	}

	// Optional facts: absence is fine, malformed data is not. A malformed
	// ingress or logging bag would propagate bad endpoints to every worker.
	ingress, ingressUnmet, err := checkOptionalFact(func() (facts.IngressFact, error) { return s.source.Ingress(ctx) }, facts.EndpointIngress)
	if err != nil {
		return result, err
	}
	if ingressUnmet != nil {
		result.Unmet = append(result.Unmet, *ingressUnmet)
	}

	lokiEndpoints, err := s.source.LokiEndpoints(ctx)
	if err != nil {
		if unmet := optionalUnmet(err, facts.EndpointLogging); unmet != nil {
			result.Unmet = append(result.Unmet, *unmet)
		} else if !errors.Is(err, facts.ErrMissing) {
			return result, err
		}
	}

	remoteWrite, err := s.source.RemoteWriteEndpoints(ctx)
	if err != nil {
		if unmet := optionalUnmet(err, facts.EndpointRemoteWrite); unmet != nil {
			result.Unmet = append(result.Unmet, *unmet)
		} else if !errors.Is(err, facts.ErrMissing) {
			return result, err
		}
	}

	requested, err := s.source.RequestedReceivers(ctx)
	if err != nil {
		if unmet := optionalUnmet(err, facts.EndpointTracing); unmet != nil {
			result.Unmet = append(result.Unmet, *unmet)
		} else if !errors.Is(err, facts.ErrMissing) {
			return result, err
		}
	}

	if len(result.Unmet) > 0 {
		sort.Slice(result.Unmet, func(i, j int) bool { return result.Unmet[i].Subject < result.Unmet[j].Subject })
		return result, nil
	}

	receivers := append(append([]string{}, s.cfg.Tempo.Receivers...), requested...)
	doc := tempo.Build(tempo.BuildInput{
		S3:             s3Fact,
		TLS:            tlsFact,
		ServerName:     serverName,
		Receivers:      receivers,
		MembersByRole:  verdict.Members,
		RetentionHours: s.cfg.Tempo.RetentionHours,
	})
	rendered, err := tempo.Render(doc)
	if err != nil {
		return result, err
	}

	data := cluster.CoordinatorAppData{
		ConfigYAML:           rendered,
		LokiEndpoints:        lokiEndpoints,
		RemoteWriteEndpoints: remoteWrite,
		ReceiverEndpoints:    receiverEndpoints(doc, ingress, serverName, tlsFact != nil),
	}
	if tlsFact != nil {
		data.CACert = tlsFact.CACert
		data.ServerCert = tlsFact.ServerCert
		data.PrivKeyRef = tlsFact.PrivKeyRef
	}

	version, changed, err := s.assignVersion(ctx, data)
	if err != nil {
		return result, err
	}
	data.Version = version

	result.Version = version
	result.Changed = changed
	result.Data = data
	return result, nil
}

// assignVersion gives the payload its version: the previous one when the
// content fingerprint is unchanged, otherwise the next counter value. The
// new state is persisted before the caller publishes anything, so a crash
// between the two never reuses a version number.
func (s *Synthesizer) assignVersion(ctx context.Context, data cluster.CoordinatorAppData) (int64, bool, error) {
	current, err := s.readVersion(ctx)
	if err != nil {
		return 0, false, err
	}

	fingerprint := fingerprintOf(data)
	prevFingerprint, _, err := s.store.Get(ctx, keyFingerprint)
	if err != nil {
		return 0, false, err
	}

	if current > 0 && string(prevFingerprint) == fingerprint {
		return current, false, nil
	}

	next := current + 1
	if err := s.store.Set(ctx, keyVersion, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, false, err
	}
	if err := s.store.Set(ctx, keyFingerprint, []byte(fingerprint)); err != nil {
		return 0, false, err
	}
	if err := s.store.Set(ctx, keyDocument, []byte(data.ConfigYAML)); err != nil {
		return 0, false, err
	}
	s.highWater = next
	return next, true, nil
}

// readVersion loads the persisted counter and checks it never moved
// backwards relative to what this process already saw.
func (s *Synthesizer) readVersion(ctx context.Context) (int64, error) {
	raw, found, err := s.store.Get(ctx, keyVersion)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	version, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt version counter %q: %w", raw, err)
	}
	if version < s.highWater {
		return 0, fmt.Errorf("%w: persisted %d, last seen %d", ErrVersionRegression, version, s.highWater)
	}
	if version > s.highWater {
		s.highWater = version
	}
	return version, nil
}

// fingerprintOf hashes everything workers act on. Version is excluded: it is
// assigned from the fingerprint comparison, not part of it.
func fingerprintOf(data cluster.CoordinatorAppData) string {
	h := sha256.New()
	h.Write([]byte(data.ConfigYAML))
	h.Write([]byte(data.CACert))
	h.Write([]byte(data.ServerCert))
	h.Write([]byte(data.PrivKeyRef))
	writeSortedMap(h, data.ReceiverEndpoints)
	writeSortedMap(h, data.LokiEndpoints)
	for _, url := range data.RemoteWriteEndpoints {
		h.Write([]byte(url))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeSortedMap(h interface{ Write(p []byte) (int, error) }, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(m[k]))
		h.Write([]byte{0})
	}
}

// receiverEndpoints derives the externally reachable URL per enabled
// receiver protocol: the ingress URL when routed, this host otherwise.
func receiverEndpoints(doc tempo.Document, ingress facts.IngressFact, serverName string, tls bool) map[string]string {
	scheme := "http"
	host := serverName
	if ingress.ExternalHost != "" {
		scheme = ingress.Scheme
		host = ingress.ExternalHost
	} else if tls {
		scheme = "https"
	}

	out := make(map[string]string)
	for proto, port := range tempo.ReceiverPorts {
		if receiverEnabled(doc.Distributor.Receivers, proto) {
			out[proto] = fmt.Sprintf("%s://%s:%d", scheme, host, port)
		}
	}
	return out
}

func receiverEnabled(receivers map[string]any, proto string) bool {
	switch proto {
	case "zipkin":
		_, ok := receivers["zipkin"]
		return ok
	case "otlp_http", "otlp_grpc":
		return nestedEnabled(receivers, "otlp", map[string]string{"otlp_http": "http", "otlp_grpc": "grpc"}[proto])
	case "jaeger_thrift_http", "jaeger_grpc":
		return nestedEnabled(receivers, "jaeger", map[string]string{"jaeger_thrift_http": "thrift_http", "jaeger_grpc": "grpc"}[proto])
	}
	return false
}

func nestedEnabled(receivers map[string]any, group, key string) bool {
	raw, ok := receivers[group]
	if !ok {
		return false
	}
	wrapper, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	protocols, ok := wrapper["protocols"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = protocols[key]
	return ok
}

func describeTopology(verdict topology.Verdict) Unmet {
	var parts []string
	if len(verdict.Unmet) > 0 {
		names := make([]string, 0, len(verdict.Unmet))
		for _, unmet := range verdict.Unmet {
			names = append(names, unmet.String())
		}
		parts = append(parts, "missing roles: "+strings.Join(names, ", "))
	}
	for _, cap := range verdict.MissingCapabilities {
		parts = append(parts, fmt.Sprintf("no %s-capable role present", cap))
	}
	if len(parts) == 0 {
		parts = append(parts, "cluster not ready")
	}
	return Unmet{Subject: "topology", Reason: strings.Join(parts, ", ")}
}

// checkFact evaluates one required fact into an optional Unmet.
func checkFact[T any](read func() (T, error), endpoint string) (T, *Unmet, error) {
	fact, err := read()
	if err == nil {
		return fact, nil, nil
	}
	var zero T
	if errors.Is(err, facts.ErrMissing) {
		return zero, &Unmet{Subject: endpoint, Reason: "not related or no data published"}, nil
	}
	var malformed *facts.MalformedError
	if errors.As(err, &malformed) {
		return zero, &Unmet{Subject: endpoint, Reason: malformed.Reason.Error(), Malformed: true}, nil
	}
	return zero, nil, err
}

// checkOptionalFact is like checkFact but absence is acceptable.
func checkOptionalFact[T any](read func() (T, error), endpoint string) (T, *Unmet, error) {
	fact, err := read()
	if err == nil {
		return fact, nil, nil
	}
	var zero T
	if errors.Is(err, facts.ErrMissing) {
		return zero, nil, nil
	}
	var malformed *facts.MalformedError
	if errors.As(err, &malformed) {
		return zero, &Unmet{Subject: endpoint, Reason: malformed.Reason.Error(), Malformed: true}, nil
	}
	return zero, nil, err
}

func optionalUnmet(err error, endpoint string) *Unmet {
	var malformed *facts.MalformedError
	if errors.As(err, &malformed) {
		return &Unmet{Subject: endpoint, Reason: malformed.Reason.Error(), Malformed: true}
	}
	return nil
}
