package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"regcheck/internal/descriptor"
	"regcheck/internal/registry"
	"regcheck/pkg/logging"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd
var lookupEnv = os.LookupEnv

const (
	userConfigDir    = ".config/regcheck"
	projectConfigDir = ".regcheck"
	configName       = "config"

	gateEnv = "integration_test"
)

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":             "base_url",
	"filename":             "filename",
	"service-url":          "service_url",
	"service-wait-timeout": "service_wait_timeout",
	"request-timeout":      "request_timeout",
	"per-page":             "per_page",
	"suite":                "suite",
	"mqtt-broker":          "mqtt_broker",
	"mqtt-reg-topic":       "mqtt_reg_topic",
	"mqtt-will-topic":      "mqtt_will_topic",
	"settle-timeout":       "settle_timeout",
	"enable":               "enable",
}

// New returns a viper instance with defaults and environment bindings for
// every key.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key, key, strings.ToUpper(key))
	}
	v.SetDefault("enable", false)
	return v
}

// BindFlags binds every known flag present in fs to its key, so that flags
// override environment and file values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// ReadConfigFile merges a YAML settings file into v. With an empty path the
// project and user locations are searched and a missing file is fine.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return &descriptor.ConfigurationError{Option: "config", Value: path, Err: err}
		}
		logging.Debug("Config", "loaded settings from %s", path)
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if wd, err := osGetwd(); err == nil {
		v.AddConfigPath(filepath.Join(wd, projectConfigDir))
	}
	if home, err := osUserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, userConfigDir))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return &descriptor.ConfigurationError{Option: "config", Value: v.ConfigFileUsed(), Err: err}
	}
	logging.Debug("Config", "loaded settings from %s", v.ConfigFileUsed())
	return nil
}

// Load resolves and validates the settings held by v.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, &descriptor.ConfigurationError{Err: fmt.Errorf("decoding settings: %w", err)}
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	s.Enabled = v.GetBool("enable") || gatePresent()

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func gatePresent() bool {
	for _, name := range []string{gateEnv, strings.ToUpper(gateEnv)} {
		if _, ok := lookupEnv(name); ok {
			return true
		}
	}
	return false
}

// Validate checks the settings, returning a ConfigurationError that names
// the first bad option.
func (s Settings) Validate() error {
	if err := checkHTTPURL("base_url", s.BaseURL, false); err != nil {
		return err
	}
	if err := checkHTTPURL("service_url", s.ServiceURL, true); err != nil {
		return err
	}
	if s.ServiceWaitTimeout <= 0 {
		return invalid("service_wait_timeout", fmt.Sprint(s.ServiceWaitTimeout), "must be a positive number of seconds")
	}
	if s.RequestTimeout <= 0 {
		return invalid("request_timeout", s.RequestTimeout.String(), "must be positive")
	}
	if s.PerPage < 1 || s.PerPage > registry.MaxPerPage {
		return invalid("per_page", fmt.Sprint(s.PerPage), fmt.Sprintf("must be between 1 and %d", registry.MaxPerPage))
	}
	if s.SettleTimeout <= 0 {
		return invalid("settle_timeout", s.SettleTimeout.String(), "must be positive")
	}
	if s.MQTTBroker != "" {
		u, err := url.Parse(s.MQTTBroker)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("mqtt_broker", s.MQTTBroker, "must be a URL such as tcp://localhost:1883")
		}
	}
	return nil
}

func checkHTTPURL(option, raw string, optional bool) error {
	if raw == "" && optional {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &descriptor.ConfigurationError{Option: option, Value: raw, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(option, raw, "must be an absolute http or https URL")
	}
	return nil
}

func invalid(option, value, msg string) error {
	return &descriptor.ConfigurationError{Option: option, Value: value, Err: errors.New(msg)}
}

// LoadSuite reads a YAML scenario suite. Relative template paths are
// resolved against the suite file's directory.
func LoadSuite(path string) (SuiteFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SuiteFile{}, &descriptor.ConfigurationError{Option: "suite", Value: path, Err: err}
	}

	var suite SuiteFile
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return SuiteFile{}, &descriptor.ConfigurationError{Option: "suite", Value: path, Err: err}
	}
	if len(suite.Scenarios) == 0 {
		return SuiteFile{}, invalid("suite", path, "no scenarios defined")
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool, len(suite.Scenarios))
	for i := range suite.Scenarios {
		sc := &suite.Scenarios[i]
		if sc.Name == "" {
			return SuiteFile{}, invalid("suite", path, fmt.Sprintf("scenario %d has no name", i+1))
		}
		if seen[sc.Name] {
			return SuiteFile{}, invalid("suite", path, fmt.Sprintf("duplicate scenario name %q", sc.Name))
		}
		seen[sc.Name] = true

		if sc.Template != "" && !filepath.IsAbs(sc.Template) {
			sc.Template = filepath.Join(base, sc.Template)
		}
		// yaml.v3 decodes meta numbers as int; the registry returns float64.
		if sc.Descriptor != nil {
			normalized, err := descriptor.Normalize(sc.Descriptor)
			if err != nil {
				return SuiteFile{}, invalid("suite", path, fmt.Sprintf("scenario %q: %v", sc.Name, err))
			}
			sc.Descriptor = normalized
		}
	}

	logging.Debug("Config", "loaded %d scenario(s) from %s", len(suite.Scenarios), path)
	return suite, nil
}

// Scenarios returns the suite configured by s: the suite file when one is
// set, DefaultSuite otherwise.
func Scenarios(s Settings) (SuiteFile, error) {
	if s.Suite == "" {
		return SuiteFile{Scenarios: DefaultSuite(s)}, nil
	}
	return LoadSuite(s.Suite)
}
