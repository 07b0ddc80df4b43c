package cmd

import (
	"fmt"

	"regcheck/internal/cli"
	"regcheck/internal/descriptor"
	"regcheck/internal/registry"

	"github.com/spf13/cobra"
)

func newListCmd(root *rootOptions) *cobra.Command {
	var (
		page   int
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registry entries",
		Long: `List prints the registry's entries. Every page is fetched unless --page
selects one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			if page < 0 {
				return fmt.Errorf("page must be at least 1")
			}

			settings, err := loadSettings(cmd, root)
			if err != nil {
				return err
			}
			client, err := newRegistryClient(settings)
			if err != nil {
				return err
			}

			list := cli.ServiceList{}
			if page > 0 {
				idx, err := client.List(cmd.Context(), page, settings.PerPage)
				if err != nil {
					return err
				}
				list.Total, list.Services = idx.Total, idx.Services
			} else {
				list.Services, list.Total, err = registry.ListAll(cmd.Context(), client, settings.PerPage)
				if err != nil {
					return err
				}
			}
			if list.Services == nil {
				list.Services = []descriptor.Service{}
			}

			return cli.NewPrinter(format, cmd.OutOrStdout()).PrintServices(list)
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "Fetch only this 1-based page")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	return cmd
}
