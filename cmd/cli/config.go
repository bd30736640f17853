package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	var showVersion bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the last published runtime config",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			resp, err := newClient().Config(ctx)
			if err != nil {
				return err
			}

			if showVersion {
				fmt.Println(resp.Version)
				return nil
			}
			fmt.Printf("# version %d\n%s", resp.Version, resp.Document)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showVersion, "version", false, "Print only the config version")
	return cmd
}
