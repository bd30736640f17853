package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"tempocoord/pkg/cluster"
	"tempocoord/pkg/reconcile"
)

func relationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relation",
		Short: "Relation databag operations",
		Long:  "Write and remove relation databags, as the orchestration runtime would",
	}

	cmd.AddCommand(relationSetCmd())
	cmd.AddCommand(relationDepartCmd())
	cmd.AddCommand(relationBreakCmd())

	return cmd
}

func relationSetCmd() *cobra.Command {
	var unit string

	cmd := &cobra.Command{
		Use:   "set <endpoint> <relation-id> <databag-json>",
		Short: "Replace a remote databag and reconcile",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			var bag cluster.Databag
			if err := json.Unmarshal([]byte(args[2]), &bag); err != nil {
				return fmt.Errorf("failed to parse databag: %w", err)
			}

			c := newClient()
			set := c.SetAppBag
			if unit != "" {
				set = func(ctx context.Context, endpoint, relID string, bag cluster.Databag) (reconcile.Status, error) {
					return c.SetUnitBag(ctx, endpoint, relID, unit, bag)
				}
			}
			status, err := set(ctx, args[0], args[1], bag)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", status.Severity, status.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&unit, "unit", "", "Write a unit bag instead of the app bag")
	return cmd
}

func relationDepartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "depart <endpoint> <relation-id> <unit>",
		Short: "Signal a departed unit and reconcile",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			status, err := newClient().DepartUnit(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", status.Severity, status.Message)
			return nil
		},
	}
}

func relationBreakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "break <endpoint> <relation-id>",
		Short: "Signal a broken relation and reconcile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			status, err := newClient().BreakRelation(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", status.Severity, status.Message)
			return nil
		},
	}
}
