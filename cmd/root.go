package cmd

import (
	"fmt"
	"os"

	"regcheck/internal/config"
	"regcheck/internal/mqttreg"
	"regcheck/internal/probe"
	"regcheck/internal/registry"
	"regcheck/pkg/logging"

	"github.com/spf13/cobra"
)

// rootOptions holds the flags every subcommand shares.
type rootOptions struct {
	configFile string
	logLevel   string
	debug      bool
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "regcheck",
		Short: "Check a service registry's create, read and delete lifecycle",
		Long: `regcheck drives a service registry's REST API and checks that stored
service descriptors come back exactly as they were submitted, that the
listing total follows creates and deletes, and that pre-registered
entries match their JSON templates.

Settings come from ~/.config/regcheck/config.yaml, ./.regcheck/config.yaml,
the environment (base_url, filename, service_url, service_wait_timeout, ...)
and flags, in increasing order of precedence. Scenarios that create entries
only run when integration_test is present in the environment or --enable
is given.`,
		// SilenceUsage is set to true to prevent printing usage message on errors
		// handled by us (e.g. invalid settings, failed checks)
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Settings file (default: ./.regcheck/config.yaml or ~/.config/regcheck/config.yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	pf.String("base-url", registry.DefaultBaseURL, "Registry REST root")
	pf.String("filename", config.DefaultFilename, "JSON descriptor template for the template scenario")
	pf.String("service-url", "", "URL polled until it answers 200 before scenarios start")
	pf.Int("service-wait-timeout", probe.DefaultTimeoutSeconds, "Seconds to wait for --service-url")
	pf.Duration("request-timeout", config.DefaultRequestTimeout, "Timeout for each registry request")
	pf.Int("per-page", registry.MaxPerPage, "Listing page size")
	pf.String("suite", "", "YAML scenario suite (default: the built-in scenarios)")
	pf.String("mqtt-broker", "", "MQTT broker URL for mqtt scenarios, e.g. tcp://localhost:1883")
	pf.String("mqtt-reg-topic", mqttreg.DefaultRegTopic, "MQTT registration topic")
	pf.String("mqtt-will-topic", mqttreg.DefaultWillTopic, "MQTT will topic")
	pf.Duration("settle-timeout", config.DefaultSettleTimeout, "How long an MQTT registration may take to become readable")
	pf.Bool("enable", false, "Run scenarios that create entries, as if integration_test were set")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newProbeCmd(opts))
	cmd.AddCommand(newCompareCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newPingCmd(opts))
	cmd.AddCommand(newMCPServerCmd(opts))

	return cmd
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "regcheck version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func initLogging(cmd *cobra.Command, opts *rootOptions) error {
	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	if opts.debug {
		level = logging.LevelDebug
	}

	// stdout is the protocol channel in MCP mode
	if cmd.Name() == mcpServerCmdName {
		logging.InitForStdio(level)
		return nil
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())
	return nil
}

// loadSettings resolves the settings of one invocation: defaults, settings
// file, environment, then the command's flags.
func loadSettings(cmd *cobra.Command, opts *rootOptions) (config.Settings, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Settings{}, err
	}
	if err := config.ReadConfigFile(v, opts.configFile); err != nil {
		return config.Settings{}, err
	}

	settings, err := config.Load(v)
	if err != nil {
		return config.Settings{}, err
	}
	logging.Debug("Config", "registry %s, enabled=%t", settings.BaseURL, settings.Enabled)
	return settings, nil
}

func newRegistryClient(settings config.Settings) (*registry.Client, error) {
	client, err := registry.NewClient(settings.BaseURL, registry.WithTimeout(settings.RequestTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create registry client: %w", err)
	}
	return client, nil
}
