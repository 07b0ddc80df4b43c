package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"regcheck/internal/config"
	"regcheck/internal/mqttreg"
	"regcheck/internal/scenario"
	"regcheck/pkg/logging"

	"github.com/spf13/cobra"
)

type runOptions struct {
	output     string
	verbose    bool
	failFast   bool
	reportPath string
	scenarios  []string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the registry check scenarios",
		Long: `Run executes the configured scenarios one after another against the
registry and exits non-zero when any of them fails.

Without --suite two scenarios run:
  registration  create _it._tcp under a fresh id, read it back, delete it,
                and check the listing total after each step
  template      find the entry named in the --filename template and compare
                it with the template

When --mqtt-broker is set, mqtt-registration repeats the registration over
MQTT: the descriptor is published on the registration topic and removed
with a will message.

Both scenarios only run when integration_test is present in the
environment or --enable is given; otherwise they are reported as skipped.

Example usage:
  integration_test=1 regcheck run
  regcheck run --enable --base-url http://registry:8082 --service-url http://registry:8082/health
  regcheck run --suite checks.yaml --scenario catalog --fail-fast
  regcheck run --enable --output json --report-path reports/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "console", "Output: console, quiet or json")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show every step and all diagnostics")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "Stop after the first scenario that does not pass")
	cmd.Flags().StringVar(&opts.reportPath, "report-path", "", "Directory for a detailed JSON report")
	cmd.Flags().StringSliceVar(&opts.scenarios, "scenario", nil, "Run only the named scenario (repeatable)")

	_ = cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"console", "quiet", "json"}, cobra.ShellCompDirectiveDefault
	})

	return cmd
}

func runScenarios(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	// Create context with signal handling
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt signal, stopping gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	reporter, err := newReporter(cmd, opts)
	if err != nil {
		return err
	}

	settings, err := loadSettings(cmd, root)
	if err != nil {
		return err
	}

	suiteFile, err := config.Scenarios(settings)
	if err != nil {
		return err
	}
	scenarios, err := selectScenarios(suiteFile.Scenarios, opts.scenarios)
	if err != nil {
		return err
	}

	client, err := newRegistryClient(settings)
	if err != nil {
		return err
	}
	runner := scenario.NewRunner(client)

	if settings.MQTTBroker != "" && needsPublisher(scenarios, settings.Enabled) {
		registrar, err := connectRegistrar(ctx, settings)
		if err != nil {
			return err
		}
		defer registrar.Close()
		runner.Publisher = registrar
	}

	suite := &scenario.Suite{
		Runner:     runner,
		Reporter:   reporter,
		Options:    settings.ScenarioOptions(),
		FailFast:   opts.failFast || suiteFile.FailFast,
		ReportPath: opts.reportPath,
	}

	result, err := suite.Run(ctx, scenarios)
	if err != nil {
		return fmt.Errorf("scenario run failed: %w", err)
	}
	if !result.OK() {
		return fmt.Errorf("%d of %d scenarios did not pass", result.Failed+result.Errors, result.Total)
	}
	return nil
}

func newReporter(cmd *cobra.Command, opts *runOptions) (scenario.Reporter, error) {
	switch opts.output {
	case "console", "":
		return scenario.NewConsoleReporter(cmd.OutOrStdout(), opts.verbose), nil
	case "quiet":
		return scenario.NewQuietReporter(cmd.OutOrStdout()), nil
	case "json":
		return scenario.NewJSONReporter(cmd.OutOrStdout()), nil
	default:
		return nil, fmt.Errorf("invalid output '%s', must be console, quiet or json", opts.output)
	}
}

// selectScenarios keeps the named scenarios in suite order. No names keeps
// them all.
func selectScenarios(all []scenario.Scenario, names []string) ([]scenario.Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]bool, len(all))
	for _, sc := range all {
		byName[sc.Name] = true
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if !byName[name] {
			return nil, fmt.Errorf("scenario '%s' not found", name)
		}
		wanted[name] = true
	}

	var selected []scenario.Scenario
	for _, sc := range all {
		if wanted[sc.Name] {
			selected = append(selected, sc)
		}
	}
	return selected, nil
}

// needsPublisher reports whether any scenario would register over MQTT.
// Scenarios skipped for lack of --enable do not count.
func needsPublisher(scenarios []scenario.Scenario, enabled bool) bool {
	for _, sc := range scenarios {
		if sc.Transport != scenario.TransportMQTT || sc.Variant == scenario.VariantExisting {
			continue
		}
		if sc.RequireEnabled && !enabled {
			continue
		}
		return true
	}
	return false
}

func connectRegistrar(ctx context.Context, settings config.Settings) (*mqttreg.Registrar, error) {
	registrar, err := mqttreg.New(settings.RegistrarConfig())
	if err != nil {
		return nil, err
	}
	if err := registrar.Connect(ctx); err != nil {
		logging.Error("MQTT", err, "could not reach broker %s", settings.MQTTBroker)
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return registrar, nil
}
