package scenario

import (
	"context"
	"time"

	"regcheck/internal/compare"
	"regcheck/internal/descriptor"
	"regcheck/internal/probe"
)

// State is a position in the scenario state machine.
type State string

const (
	StateIdle      State = "Idle"
	StateProbing   State = "Probing"
	StateSubmitted State = "Submitted"
	StateVerified  State = "Verified"
	StateCleaned   State = "Cleaned"
	StateDone      State = "Done"
	// StateFailed is reachable from any state.
	StateFailed State = "Failed"
	// StateSkipped is terminal for disabled scenarios.
	StateSkipped State = "Skipped"
)

// Outcome represents the result of a scenario or step
type Outcome string

const (
	// OutcomePassed indicates the check passed
	OutcomePassed Outcome = "PASSED"
	// OutcomeFailed indicates an assertion or comparison failed
	OutcomeFailed Outcome = "FAILED"
	// OutcomeSkipped indicates the scenario was not enabled
	OutcomeSkipped Outcome = "SKIPPED"
	// OutcomeError indicates the registry could not be driven at all
	OutcomeError Outcome = "ERROR"
)

// Variant selects how the descriptor under test reaches the registry.
type Variant string

const (
	// VariantCreate creates a fresh entry, verifies it by id and deletes it.
	VariantCreate Variant = "create"
	// VariantExisting verifies an entry somebody else registered, located by
	// name. It never deletes.
	VariantExisting Variant = "existing"
)

// Transport selects how the create variant registers and removes entries.
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportMQTT Transport = "mqtt"
)

// Scenario defines a single registry check
type Scenario struct {
	// Name is the unique identifier for the scenario
	Name string `yaml:"name" json:"name"`
	// Description provides human-readable scenario description
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Variant defaults to create
	Variant Variant `yaml:"variant,omitempty" json:"variant"`
	// Template is a JSON descriptor file. It takes precedence over Descriptor.
	Template string `yaml:"template,omitempty" json:"template,omitempty"`
	// Descriptor is an inline descriptor literal
	Descriptor *descriptor.Service `yaml:"descriptor,omitempty" json:"descriptor,omitempty"`
	// Transport defaults to http
	Transport Transport `yaml:"transport,omitempty" json:"transport,omitempty"`
	// ExpectedTotal, when set, is asserted against the listing total once
	// the entry is in place.
	ExpectedTotal *int `yaml:"expected_total,omitempty" json:"expected_total,omitempty"`
	// RequireEnabled skips the scenario unless the run is enabled
	RequireEnabled bool `yaml:"require_enabled,omitempty" json:"require_enabled,omitempty"`
	// Timeout for this specific scenario
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// Tags for additional categorization
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Options are the run-wide settings a scenario executes with.
type Options struct {
	// Enabled gates scenarios with RequireEnabled.
	Enabled bool
	// ProbeURL is polled before the scenario starts. Empty skips probing.
	ProbeURL string
	// ProbeTimeout is the probe bound in seconds.
	ProbeTimeout int
	// PerPage is the page size for listings.
	PerPage int
	// SettleTimeout bounds how long MQTT registrations may take to become
	// visible through the REST API.
	SettleTimeout time.Duration
}

// StepResult represents the result of a single state transition
type StepResult struct {
	Step     string        `json:"step"`
	State    State         `json:"state"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result represents the result of a single scenario
type Result struct {
	Scenario Scenario `json:"scenario"`
	// ID is the identifier the entry was created or found under.
	ID          string                `json:"id,omitempty"`
	State       State                 `json:"state"`
	Outcome     Outcome               `json:"outcome"`
	Steps       []StepResult          `json:"steps"`
	Mismatches  []compare.FieldResult `json:"mismatches,omitempty"`
	Diagnostics []string              `json:"diagnostics,omitempty"`
	Probe       *probe.Report         `json:"probe,omitempty"`
	// BaselineTotal is the listing total before the entry was created.
	BaselineTotal *int          `json:"baseline_total,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}

// SuiteResult represents the overall result of a suite run
type SuiteResult struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	Total   int `json:"total_scenarios"`
	Passed  int `json:"passed_scenarios"`
	Failed  int `json:"failed_scenarios"`
	Skipped int `json:"skipped_scenarios"`
	Errors  int `json:"error_scenarios"`

	Results []Result `json:"scenario_results"`
	// ReportFile is where the detailed JSON report was written, if anywhere.
	ReportFile string `json:"-"`
}

// OK reports whether nothing failed or errored.
func (s *SuiteResult) OK() bool {
	return s.Failed == 0 && s.Errors == 0
}

// Publisher registers entries over a channel other than the REST API.
type Publisher interface {
	Register(ctx context.Context, svc *descriptor.Service) error
	Deregister(ctx context.Context, svc *descriptor.Service) error
}

// Reporter defines how suite progress is reported
type Reporter interface {
	// ReportStart is called when the suite begins
	ReportStart(scenarios []Scenario)
	// ReportScenarioStart is called when a scenario begins
	ReportScenarioStart(sc Scenario)
	// ReportStepResult is called when a transition completes
	ReportStepResult(step StepResult)
	// ReportScenarioResult is called when a scenario completes
	ReportScenarioResult(res Result)
	// ReportSuiteResult is called when all scenarios complete
	ReportSuiteResult(res SuiteResult)
}
