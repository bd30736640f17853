package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tempocoord/pkg/reconcile"
)

func eventCmd() *cobra.Command {
	var (
		endpoint   string
		relationID string
		unit       string
	)

	cmd := &cobra.Command{
		Use:   "event <kind>",
		Short: "Deliver a runtime event",
		Long:  "Deliver a runtime event (start, tick, config-changed, relation-changed, relation-departed, relation-broken) and print the resulting status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			ev := reconcile.Event{
				Kind:       reconcile.Kind(args[0]),
				Endpoint:   endpoint,
				RelationID: relationID,
				Unit:       unit,
			}
			if err := ev.Validate(); err != nil {
				return err
			}

			status, err := newClient().SendEvent(ctx, ev)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", status.Severity, status.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Relation endpoint")
	cmd.Flags().StringVar(&relationID, "relation", "", "Relation id")
	cmd.Flags().StringVar(&unit, "unit", "", "Unit id")
	return cmd
}
