package cmd

import (
	"fmt"

	"regcheck/internal/mcpserver"
	"regcheck/internal/mqttreg"
	"regcheck/internal/scenario"
	"regcheck/pkg/logging"

	"github.com/spf13/cobra"
)

const mcpServerCmdName = "mcp-server"

func newMCPServerCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   mcpServerCmdName,
		Short: "Serve the registry checks as MCP tools over stdio",
		Long: `mcp-server runs an MCP server on stdin/stdout exposing the registry checks
as tools, for use from an AI assistant:

  registry_run_scenarios  run the configured or given scenario suite
  registry_probe          wait until a URL answers 200 OK
  registry_compare        compare a template file with a registry entry
  registry_list           list registry entries

Configure it in your assistant's MCP settings with the command
"regcheck mcp-server" and the same flags or environment the run command
uses. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, root)
			if err != nil {
				return err
			}
			client, err := newRegistryClient(settings)
			if err != nil {
				return err
			}

			runner := scenario.NewRunner(client)
			if settings.MQTTBroker != "" {
				// Tool calls decide per call whether mqtt scenarios run, so
				// the broker is dialled on first use.
				cfg := settings.RegistrarConfig()
				cfg.Lazy = true
				registrar, err := mqttreg.New(cfg)
				if err != nil {
					return err
				}
				defer registrar.Close()
				runner.Publisher = registrar
			}

			logging.Info("MCP", "checking registry at %s", client.BaseURL())
			if err := mcpserver.New(settings, client, runner, cmd.Root().Version).ServeStdio(); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}
}
