package cmd

import (
	"fmt"
	"time"

	"regcheck/internal/probe"

	"github.com/spf13/cobra"
)

// For mocking in tests
var newProber = probe.New

func newProbeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [url]",
		Short: "Wait until a URL answers 200 OK",
		Long: `Probe polls a URL once a second until it answers 200 OK or
--service-wait-timeout attempts have been made. Without an argument the
configured service_url is polled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, root)
			if err != nil {
				return err
			}

			url := settings.ServiceURL
			if len(args) == 1 {
				url = args[0]
			}
			if url == "" {
				return fmt.Errorf("no URL to probe: pass one or set service_url")
			}

			report := newProber().Probe(cmd.Context(), url, settings.ServiceWaitTimeout)
			if !report.Available {
				reason := report.LastError
				if reason == "" {
					reason = fmt.Sprintf("last status %d", report.LastStatus)
				}
				return fmt.Errorf("%s not available after %d attempt(s): %s", url, report.Attempts, reason)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s available after %d attempt(s) (%s)\n",
				url, report.Attempts, report.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}
