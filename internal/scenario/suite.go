package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"regcheck/pkg/logging"
)

// Suite runs scenarios one after another against the same registry.
type Suite struct {
	Runner   *Runner
	Reporter Reporter
	Options  Options
	// FailFast stops after the first scenario that fails or errors.
	FailFast bool
	// ReportPath is a directory for a detailed JSON report. Empty disables it.
	ReportPath string
}

// Run executes scenarios sequentially. Scenarios share the registry, so
// they are never run concurrently.
func (s *Suite) Run(ctx context.Context, scenarios []Scenario) (*SuiteResult, error) {
	result := &SuiteResult{
		StartTime: time.Now(),
		Total:     len(scenarios),
		Results:   make([]Result, 0, len(scenarios)),
	}

	reporter := s.Reporter
	if reporter == nil {
		reporter = NewQuietReporter(nil)
	}
	reporter.ReportStart(scenarios)

	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			_ = s.finish(reporter, result)
			return result, fmt.Errorf("suite interrupted: %w", err)
		}

		reporter.ReportScenarioStart(sc)
		res := s.Runner.run(ctx, sc, s.Options, reporter.ReportStepResult)
		result.Results = append(result.Results, res)
		updateCounters(result, res)
		reporter.ReportScenarioResult(res)

		if s.FailFast && (res.Outcome == OutcomeFailed || res.Outcome == OutcomeError) {
			logging.Info("Scenario", "fail-fast: stopping after %s", sc.Name)
			break
		}
	}

	if err := s.finish(reporter, result); err != nil {
		return result, err
	}
	return result, nil
}

// finish records the end time, writes the detailed report and reports the
// result, partial or not. A report file error is returned after reporting.
func (s *Suite) finish(reporter Reporter, result *SuiteResult) error {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	var reportErr error
	if s.ReportPath != "" {
		path, err := saveDetailedReport(s.ReportPath, result)
		if err != nil {
			reportErr = err
		} else {
			result.ReportFile = path
		}
	}

	reporter.ReportSuiteResult(*result)
	return reportErr
}

func updateCounters(suite *SuiteResult, res Result) {
	switch res.Outcome {
	case OutcomePassed:
		suite.Passed++
	case OutcomeFailed:
		suite.Failed++
	case OutcomeSkipped:
		suite.Skipped++
	case OutcomeError:
		suite.Errors++
	}
}

// saveDetailedReport writes the suite result as JSON into dir.
func saveDetailedReport(dir string, result *SuiteResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	filename := fmt.Sprintf("regcheck-report-%s.json", result.StartTime.Format("20060102-150405"))
	fullPath := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return fullPath, nil
}
