package config

import (
	"time"

	"regcheck/internal/mqttreg"
	"regcheck/internal/scenario"
)

// Settings is the resolved configuration of one regcheck invocation.
type Settings struct {
	// BaseURL is the registry's REST root
	BaseURL string `mapstructure:"base_url"`
	// Filename is the JSON descriptor template used by the template scenario
	Filename string `mapstructure:"filename"`
	// ServiceURL is probed before scenarios start; empty skips probing
	ServiceURL string `mapstructure:"service_url"`
	// ServiceWaitTimeout bounds the probe, in seconds
	ServiceWaitTimeout int `mapstructure:"service_wait_timeout"`
	// RequestTimeout bounds every registry request
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// PerPage is the listing page size
	PerPage int `mapstructure:"per_page"`
	// Suite is an optional YAML scenario suite
	Suite string `mapstructure:"suite"`

	MQTTBroker    string        `mapstructure:"mqtt_broker"`
	MQTTRegTopic  string        `mapstructure:"mqtt_reg_topic"`
	MQTTWillTopic string        `mapstructure:"mqtt_will_topic"`
	SettleTimeout time.Duration `mapstructure:"settle_timeout"`

	// Enabled is true when integration_test is present in the environment
	// or --enable was given.
	Enabled bool `mapstructure:"-"`
}

// ScenarioOptions converts the settings into runner options.
func (s Settings) ScenarioOptions() scenario.Options {
	return scenario.Options{
		Enabled:       s.Enabled,
		ProbeURL:      s.ServiceURL,
		ProbeTimeout:  s.ServiceWaitTimeout,
		PerPage:       s.PerPage,
		SettleTimeout: s.SettleTimeout,
	}
}

// RegistrarConfig returns the MQTT registrar configuration.
func (s Settings) RegistrarConfig() mqttreg.Config {
	return mqttreg.Config{
		Broker:    s.MQTTBroker,
		RegTopic:  s.MQTTRegTopic,
		WillTopic: s.MQTTWillTopic,
	}
}

// SuiteFile is the YAML layout of a scenario suite.
type SuiteFile struct {
	FailFast  bool                `yaml:"fail_fast,omitempty"`
	Scenarios []scenario.Scenario `yaml:"scenarios"`
}
