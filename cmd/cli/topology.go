package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"tempocoord/pkg/cluster"
)

func topologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Show the coordinator's readiness verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			verdict, err := newClient().Topology(ctx)
			if err != nil {
				return err
			}

			if verdict.Ready {
				fmt.Println("Topology: ready")
			} else {
				fmt.Println("Topology: not ready")
			}

			roles := make([]cluster.Role, 0, len(verdict.Members))
			for role := range verdict.Members {
				roles = append(roles, role)
			}
			sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
			for _, role := range roles {
				addrs := verdict.Members[role]
				fmt.Printf("  %-20s %d unit(s)\n", role, len(addrs))
				for _, addr := range addrs {
					fmt.Printf("    - %s\n", addr)
				}
			}

			for _, unmet := range verdict.Unmet {
				fmt.Printf("  missing: %s\n", unmet)
			}
			for _, cap := range verdict.MissingCapabilities {
				fmt.Printf("  missing capability: %s\n", cap)
			}
			return nil
		},
	}
}
