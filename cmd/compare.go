package cmd

import (
	"fmt"

	"regcheck/internal/cli"
	"regcheck/internal/compare"
	"regcheck/internal/descriptor"

	"github.com/spf13/cobra"
)

func newCompareCmd(root *rootOptions) *cobra.Command {
	var (
		mode   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "compare [id]",
		Short: "Compare the template file with a registry entry",
		Long: `Compare reads the --filename template and compares it with the registry
entry stored under id, or, without an id, with the first listed entry that
carries the template's name.

In template mode (the default) the entry may declare apis and docs the
template does not. In round-trip mode every field must be equal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			m, err := compare.ParseMode(mode)
			if err != nil {
				return err
			}

			settings, err := loadSettings(cmd, root)
			if err != nil {
				return err
			}
			template, err := descriptor.LoadFile(settings.Filename)
			if err != nil {
				return err
			}
			client, err := newRegistryClient(settings)
			if err != nil {
				return err
			}

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			actual, err := compare.Lookup(cmd.Context(), client, template, id, settings.PerPage)
			if err != nil {
				return err
			}

			res, err := compare.Compare(template, actual, m)
			if err != nil {
				return err
			}

			err = cli.NewPrinter(format, cmd.OutOrStdout()).PrintComparison(cli.Comparison{
				ID:         actual.ID,
				Name:       actual.NameValue(),
				Mode:       m.String(),
				OK:         res.OK(),
				Mismatches: res.Mismatches(),
			})
			if err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("%d field(s) do not match", len(res.Mismatches()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "template", "Comparison mode: template or round-trip")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	return cmd
}
