package topology

import (
	"fmt"
	"sort"

	"tempocoord/config"
	"tempocoord/pkg/cluster"
)

// Capability classifies what a role contributes to the cluster. A deployment
// where every worker declares the same role can meet any replica total and
// still be unable to ingest or serve queries, so readiness checks
// capabilities separately from counts.
type Capability string

const (
	CapabilityIngestion Capability = "ingestion"
	CapabilityQuery     Capability = "query"
)

// RoleRequirement is one row of the required-role table.
type RoleRequirement struct {
	MinReplicas  int
	Capabilities []Capability
}

// RoleTable maps every required role to its requirement. Which roles count
// toward which capability is operator-configurable, not hardcoded.
type RoleTable map[cluster.Role]RoleRequirement

// TableFromConfig builds the role table from operator configuration.
func TableFromConfig(roles map[string]config.RoleConfig) RoleTable {
	table := make(RoleTable, len(roles))
	for name, rc := range roles {
		req := RoleRequirement{MinReplicas: rc.MinReplicas}
		for _, cap := range rc.Capabilities {
			req.Capabilities = append(req.Capabilities, Capability(cap))
		}
		table[cluster.Role(name)] = req
	}
	return table
}

// UnmetRole describes one required role below its minimum.
type UnmetRole struct {
	Role     cluster.Role `json:"role"`
	Required int          `json:"required"`
	Observed int          `json:"observed"`
}

func (u UnmetRole) String() string {
	return fmt.Sprintf("%s (need %d, have %d)", u.Role, u.Required, u.Observed)
}

// Verdict is the resolver's readiness decision. It is always produced;
// absence of data is "not ready", never an error.
type Verdict struct {
	Ready bool `json:"ready"`
	// Unmet lists every required role below its minimum, sorted by role.
	Unmet []UnmetRole `json:"unmet,omitempty"`
	// MissingCapabilities lists capabilities no present role provides.
	MissingCapabilities []Capability `json:"missing_capabilities,omitempty"`
	// Members is the observed, deduplicated membership per role.
	Members map[cluster.Role][]string `json:"members,omitempty"`
}

// Resolve checks the observed membership against the required-role table.
//
// A role is counted by its distinct addresses: duplicates collapse, and a
// worker that advertised no address is absent rather than a zero-capacity
// member (the provider already drops empty addresses; dedup here keeps the
// resolver correct for any caller).
func Resolve(table RoleTable, observed map[cluster.Role][]string) Verdict {
	members := make(map[cluster.Role][]string, len(observed))
	for role, addrs := range observed {
		members[role] = dedup(addrs)
	}

	verdict := Verdict{Ready: true, Members: members}

	roles := make([]cluster.Role, 0, len(table))
	for role := range table {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	declared := make(map[Capability]bool)
	present := make(map[Capability]bool)
	for _, role := range roles {
		req := table[role]
		count := len(members[role])
		if count < req.MinReplicas {
			verdict.Unmet = append(verdict.Unmet, UnmetRole{
				Role:     role,
				Required: req.MinReplicas,
				Observed: count,
			})
			verdict.Ready = false
		}
		for _, cap := range req.Capabilities {
			declared[cap] = true
			if count > 0 {
				present[cap] = true
			}
		}
	}

	// A capability is only demanded when the table assigns it to some role;
	// a table with no ingestion roles at all would otherwise never be ready.
	for _, cap := range []Capability{CapabilityIngestion, CapabilityQuery} {
		if declared[cap] && !present[cap] {
			verdict.MissingCapabilities = append(verdict.MissingCapabilities, cap)
			verdict.Ready = false
		}
	}

	return verdict
}

func dedup(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
