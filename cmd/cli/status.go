package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show process status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			resp, err := newClient().Status(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Mode:     %s\n", resp.Mode)
			fmt.Printf("Status:   %s\n", resp.Status.Severity)
			fmt.Printf("Message:  %s\n", resp.Status.Message)
			fmt.Printf("Version:  %d\n", resp.Status.Version)
			if resp.Mode == "coordinator" {
				fmt.Printf("Passes:   %d\n", resp.Passes)
			}
			return nil
		},
	}
}
