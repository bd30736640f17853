package reconcile

import (
	"fmt"
	"strings"

	"tempocoord/pkg/synth"
)

// Severity grades a status, mirroring the unit states operators know:
// active when a config is published and current, waiting when routine
// preconditions are missing, blocked when present input is malformed and
// needs operator intervention.
type Severity string

const (
	SeverityActive  Severity = "active"
	SeverityWaiting Severity = "waiting"
	SeverityBlocked Severity = "blocked"
)

// Status is the human-readable outcome of a reconciliation pass.
type Status struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	// Version is the currently published config version, 0 when none.
	Version int64 `json:"version"`
}

// statusFor summarizes a synthesis result. The message enumerates every
// unmet precondition, not just the first, so one status line tells the
// operator everything left to do.
func statusFor(result synth.Result, publishedVersion int64) Status {
	if result.Synthesized() {
		return Status{
			Severity: SeverityActive,
			Message:  fmt.Sprintf("cluster configured, config version %d", result.Version),
			Version:  result.Version,
		}
	}

	severity := SeverityWaiting
	parts := make([]string, 0, len(result.Unmet))
	for _, unmet := range result.Unmet {
		if unmet.Malformed {
			severity = SeverityBlocked
		}
		parts = append(parts, unmet.String())
	}
	return Status{
		Severity: severity,
		Message:  "waiting for: " + strings.Join(parts, "; "),
		Version:  publishedVersion,
	}
}
