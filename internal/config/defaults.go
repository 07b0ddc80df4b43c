package config

import (
	"time"

	"regcheck/internal/descriptor"
	"regcheck/internal/mqttreg"
	"regcheck/internal/probe"
	"regcheck/internal/registry"
	"regcheck/internal/scenario"
)

const (
	DefaultFilename       = "test/dummy.json"
	DefaultRequestTimeout = 10 * time.Second
	DefaultSettleTimeout  = 10 * time.Second
)

// defaults seeds viper with the built-in value of every key.
var defaults = map[string]any{
	"base_url":             registry.DefaultBaseURL,
	"filename":             DefaultFilename,
	"service_url":          "",
	"service_wait_timeout": probe.DefaultTimeoutSeconds,
	"request_timeout":      DefaultRequestTimeout,
	"per_page":             registry.MaxPerPage,
	"suite":                "",
	"mqtt_broker":          "",
	"mqtt_reg_topic":       mqttreg.DefaultRegTopic,
	"mqtt_will_topic":      mqttreg.DefaultWillTopic,
	"settle_timeout":       DefaultSettleTimeout,
}

// RegistrationService is the descriptor the registration scenario submits.
func RegistrationService() *descriptor.Service {
	return &descriptor.Service{
		Name: descriptor.Str("_it._tcp"),
		APIs: map[string]string{"Test API": "http://test:666"},
		Docs: []descriptor.Doc{{
			APIs:        []string{"Test API"},
			Description: descriptor.Str("it's a test!"),
			Type:        descriptor.Str("application/json"),
			URL:         descriptor.Str("http://test:666/docu"),
		}},
	}
}

// DefaultSuite returns the scenarios run when no suite file is given: a
// create/verify/delete registration, a check of the pre-registered entry
// described by the template file, and when a broker is configured the same
// registration over MQTT.
func DefaultSuite(s Settings) []scenario.Scenario {
	suite := []scenario.Scenario{
		{
			Name:           "registration",
			Description:    "create _it._tcp under a fresh id, read it back, delete it",
			Variant:        scenario.VariantCreate,
			Descriptor:     RegistrationService(),
			RequireEnabled: true,
		},
		{
			Name:           "template",
			Description:    "verify the registered entry matching the template file",
			Variant:        scenario.VariantExisting,
			Template:       s.Filename,
			RequireEnabled: true,
		},
	}
	if s.MQTTBroker != "" {
		suite = append(suite, scenario.Scenario{
			Name:           "mqtt-registration",
			Description:    "register _it._tcp over MQTT and remove it with a will message",
			Variant:        scenario.VariantCreate,
			Descriptor:     RegistrationService(),
			Transport:      scenario.TransportMQTT,
			RequireEnabled: true,
		})
	}
	return suite
}
