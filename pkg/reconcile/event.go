package reconcile

import "fmt"

// Kind tags an external event. Every lifecycle and relation event the
// runtime can deliver collapses into one of these; the driver runs the same
// resolve-synthesize-publish sequence for all of them.
type Kind string

const (
	// KindStart is delivered once when the process comes up.
	KindStart Kind = "start"
	// KindTick is the periodic re-evaluation timer.
	KindTick Kind = "tick"
	// KindConfigChanged signals operator configuration changed.
	KindConfigChanged Kind = "config-changed"
	// KindRelationChanged signals new or updated remote relation data. The
	// databags are already in the store when the event arrives.
	KindRelationChanged Kind = "relation-changed"
	// KindRelationDeparted signals one remote unit left a relation.
	KindRelationDeparted Kind = "relation-departed"
	// KindRelationBroken signals a whole relation went away.
	KindRelationBroken Kind = "relation-broken"
)

// Event is the single tagged-variant event type dispatched through the
// reconciliation entry point.
type Event struct {
	Kind Kind `json:"kind"`
	// Endpoint and RelationID identify the relation for relation events.
	Endpoint   string `json:"endpoint,omitempty"`
	RelationID string `json:"relation_id,omitempty"`
	// Unit identifies the departed unit for relation-departed.
	Unit string `json:"unit,omitempty"`
}

// Validate checks the event carries what its kind requires.
func (e Event) Validate() error {
	switch e.Kind {
	case KindStart, KindTick, KindConfigChanged:
		return nil
	case KindRelationChanged, KindRelationBroken:
		if e.Endpoint == "" || e.RelationID == "" {
			return fmt.Errorf("%s event requires endpoint and relation_id", e.Kind)
		}
		return nil
	case KindRelationDeparted:
		if e.Endpoint == "" || e.RelationID == "" || e.Unit == "" {
			return fmt.Errorf("%s event requires endpoint, relation_id and unit", e.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

func (e Event) String() string {
	switch e.Kind {
	case KindRelationChanged, KindRelationBroken:
		return fmt.Sprintf("%s[%s/%s]", e.Kind, e.Endpoint, e.RelationID)
	case KindRelationDeparted:
		return fmt.Sprintf("%s[%s/%s/%s]", e.Kind, e.Endpoint, e.RelationID, e.Unit)
	default:
		return string(e.Kind)
	}
}
