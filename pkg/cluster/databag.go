package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Databag is one side of a relation: a flat field->value mapping where every
// value is a JSON document. This mirrors how the orchestration runtime stores
// relation data, so both sides tolerate unknown fields and the schema can
// grow without breaking old peers.
type Databag map[string]string

// ErrEmptyBag is returned when a databag holds none of the model's fields.
// Callers treat this as "peer has not published yet", distinct from a
// malformed bag.
var ErrEmptyBag = errors.New("databag is empty")

// LoadBag decodes a databag into the given model. Fields present in the bag
// but unknown to the model are ignored.
func LoadBag(bag Databag, into any) error {
	if len(bag) == 0 {
		return ErrEmptyBag
	}
	merged := make(map[string]json.RawMessage, len(bag))
	for field, raw := range bag {
		var value json.RawMessage
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return fmt.Errorf("invalid databag contents, expecting json at field %s: %w", field, err)
		}
		merged[field] = value
	}
	doc, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, into); err != nil {
		return fmt.Errorf("failed to validate databag: %w", err)
	}
	return nil
}

// DumpBag encodes a model into databag form, one JSON value per field.
func DumpBag(from any) (Databag, error) {
	doc, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, err
	}
	bag := make(Databag, len(fields))
	for field, value := range fields {
		bag[field] = string(value)
	}
	return bag, nil
}

// WorkerAppData is the application databag a worker deployment publishes:
// the role all of its units run.
type WorkerAppData struct {
	Role Role `json:"role"`
}

// Validate reports whether the declared role is usable.
func (d WorkerAppData) Validate() error {
	if d.Role == "" {
		return errors.New("role is empty")
	}
	if !d.Role.Known() {
		return fmt.Errorf("unknown role %q", d.Role)
	}
	return nil
}

// LoadWorkerAppData decodes and validates a worker application databag.
func LoadWorkerAppData(bag Databag) (WorkerAppData, error) {
	var data WorkerAppData
	if err := LoadBag(bag, &data); err != nil {
		return WorkerAppData{}, err
	}
	if err := data.Validate(); err != nil {
		return WorkerAppData{}, err
	}
	return data, nil
}

// WorkerUnitData is the per-unit databag a worker unit publishes.
type WorkerUnitData struct {
	Unit    string `json:"unit"`
	Address string `json:"address"`
}

// LoadWorkerUnitData decodes a worker unit databag.
func LoadWorkerUnitData(bag Databag) (WorkerUnitData, error) {
	var data WorkerUnitData
	if err := LoadBag(bag, &data); err != nil {
		return WorkerUnitData{}, err
	}
	return data, nil
}

// CoordinatorAppData is the coordinator's side of the cluster relation: the
// synthesized runtime config plus everything a worker needs to apply it.
type CoordinatorAppData struct {
	// Version is the strictly monotonic config version. Workers must not
	// apply a version lower than one they already applied.
	Version int64 `json:"version"`
	// ConfigYAML is the full rendered runtime configuration.
	ConfigYAML string `json:"worker_config"`

	CACert     string `json:"ca_cert,omitempty"`
	ServerCert string `json:"server_cert,omitempty"`
	PrivKeyRef string `json:"privkey_secret_id,omitempty"`

	// ReceiverEndpoints maps enabled receiver protocols to their externally
	// reachable URLs.
	ReceiverEndpoints map[string]string `json:"receiver_endpoints,omitempty"`
	// LokiEndpoints are log push targets forwarded to the workers.
	LokiEndpoints map[string]string `json:"loki_endpoints,omitempty"`
	// RemoteWriteEndpoints are metrics remote-write targets for the
	// metrics-generator role.
	RemoteWriteEndpoints []string `json:"remote_write_endpoints,omitempty"`
}

// LoadCoordinatorAppData decodes a coordinator application databag.
func LoadCoordinatorAppData(bag Databag) (CoordinatorAppData, error) {
	var data CoordinatorAppData
	if err := LoadBag(bag, &data); err != nil {
		return CoordinatorAppData{}, err
	}
	return data, nil
}

// Dump encodes the coordinator data into databag form.
func (d CoordinatorAppData) Dump() (Databag, error) { return DumpBag(d) }

// Dump encodes the worker app data into databag form.
func (d WorkerAppData) Dump() (Databag, error) { return DumpBag(d) }

// Dump encodes the worker unit data into databag form.
func (d WorkerUnitData) Dump() (Databag, error) { return DumpBag(d) }
