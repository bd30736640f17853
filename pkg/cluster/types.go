package cluster

// Role indicates a worker's specialization within the Tempo cluster.
//
// References:
//   - https://grafana.com/docs/tempo/latest/operations/architecture/
type Role string

const (
	// RoleAll is a meta-role: the worker runs every component. It is
	// expanded to all non-meta roles when counting.
	RoleAll Role = "all"

	RoleQuerier          Role = "querier"
	RoleQueryFrontend    Role = "query-frontend"
	RoleIngester         Role = "ingester"
	RoleDistributor      Role = "distributor"
	RoleCompactor        Role = "compactor"
	RoleMetricsGenerator Role = "metrics-generator"
)

// NonMetaRoles returns every concrete role, in stable order.
func NonMetaRoles() []Role {
	return []Role{
		RoleQuerier,
		RoleQueryFrontend,
		RoleIngester,
		RoleDistributor,
		RoleCompactor,
		RoleMetricsGenerator,
	}
}

// Known reports whether role names a role this coordinator understands.
func (r Role) Known() bool {
	if r == RoleAll {
		return true
	}
	for _, known := range NonMetaRoles() {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// DefaultEndpoint is the cluster relation endpoint name.
const DefaultEndpoint = "tempo-cluster"
