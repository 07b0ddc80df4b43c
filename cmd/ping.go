package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPingCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the registry's health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, root)
			if err != nil {
				return err
			}
			client, err := newRegistryClient(settings)
			if err != nil {
				return err
			}

			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ registry at %s is healthy\n", client.BaseURL())
			return nil
		},
	}
}
