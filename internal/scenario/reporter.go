package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	skipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func outputOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

// consoleReporter prints human readable progress
type consoleReporter struct {
	w       io.Writer
	verbose bool
}

// NewConsoleReporter creates a reporter for terminals. Verbose adds one line
// per state transition.
func NewConsoleReporter(w io.Writer, verbose bool) Reporter {
	return &consoleReporter{w: outputOrStdout(w), verbose: verbose}
}

func (r *consoleReporter) ReportStart(scenarios []Scenario) {
	fmt.Fprintf(r.w, "%s\n", titleStyle.Render("🧪 Registry checks"))
	fmt.Fprintf(r.w, "📋 Scenarios: %d\n\n", len(scenarios))
}

func (r *consoleReporter) ReportScenarioStart(sc Scenario) {
	if r.verbose {
		fmt.Fprintf(r.w, "🎯 %s (%s)\n", sc.Name, variantOrDefault(sc.Variant))
		if sc.Description != "" {
			fmt.Fprintf(r.w, "   📝 %s\n", sc.Description)
		}
		return
	}
	fmt.Fprintf(r.w, "🎯 %s... ", sc.Name)
}

func (r *consoleReporter) ReportStepResult(step StepResult) {
	if !r.verbose {
		return
	}
	fmt.Fprintf(r.w, "   %s %s → %s %s\n", resultSymbol(step.Outcome), step.Step, step.State,
		mutedStyle.Render(fmt.Sprintf("(%v)", step.Duration.Round(time.Microsecond))))
	if step.Error != "" {
		fmt.Fprintf(r.w, "     ❌ %s\n", step.Error)
	}
}

func (r *consoleReporter) ReportScenarioResult(res Result) {
	fmt.Fprintf(r.w, "%s %s\n", styledOutcome(res.Outcome), mutedStyle.Render(fmt.Sprintf("(%v)", res.Duration.Round(time.Microsecond))))

	if res.Error != "" {
		fmt.Fprintf(r.w, "   ❌ %s\n", res.Error)
	}
	if len(res.Mismatches) > 0 {
		fmt.Fprintln(r.w, indent(MismatchTable(res), "   "))
	}
	for _, d := range res.Diagnostics {
		if d == res.Error || isMismatchLine(res, d) {
			continue
		}
		fmt.Fprintf(r.w, "   ℹ️  %s\n", d)
	}
	if r.verbose {
		fmt.Fprintln(r.w)
	}
}

func (r *consoleReporter) ReportSuiteResult(res SuiteResult) {
	fmt.Fprintf(r.w, "\n🏁 %s\n", titleStyle.Render("Suite complete"))
	fmt.Fprintf(r.w, "⏱️  Duration: %v\n", res.Duration.Round(time.Microsecond))
	fmt.Fprintf(r.w, "   ✅ Passed: %d\n", res.Passed)
	if res.Failed > 0 {
		fmt.Fprintf(r.w, "   ❌ Failed: %d\n", res.Failed)
	}
	if res.Errors > 0 {
		fmt.Fprintf(r.w, "   💥 Errors: %d\n", res.Errors)
	}
	if res.Skipped > 0 {
		fmt.Fprintf(r.w, "   ⏭️  Skipped: %d\n", res.Skipped)
	}
	fmt.Fprintf(r.w, "   📈 Total: %d\n", res.Total)

	if res.OK() {
		fmt.Fprintf(r.w, "\n%s\n", passStyle.Render("🎉 All checks passed!"))
	} else {
		fmt.Fprintf(r.w, "\n%s\n", failStyle.Render("💔 Some checks failed"))
	}
	if res.ReportFile != "" {
		fmt.Fprintf(r.w, "📄 Detailed report saved to: %s\n", res.ReportFile)
	}
}

// MismatchTable renders the field mismatches of res as a table.
func MismatchTable(res Result) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("FIELD"),
		text.FgHiCyan.Sprint("KIND"),
		text.FgHiCyan.Sprint("EXPECTED"),
		text.FgHiCyan.Sprint("ACTUAL"),
		text.FgHiCyan.Sprint("DETAIL"),
	})
	for _, m := range res.Mismatches {
		t.AppendRow(table.Row{m.Field, m.Kind.String(), truncate(m.Expected, 40), truncate(m.Actual, 40), truncate(m.Detail, 60)})
	}
	return t.Render()
}

func isMismatchLine(res Result, line string) bool {
	for _, m := range res.Mismatches {
		if m.String() == line {
			return true
		}
	}
	return false
}

func styledOutcome(o Outcome) string {
	switch o {
	case OutcomePassed:
		return passStyle.Render("✅ " + string(o))
	case OutcomeSkipped:
		return skipStyle.Render("⏭️  " + string(o))
	case OutcomeError:
		return failStyle.Render("💥 " + string(o))
	default:
		return failStyle.Render("❌ " + string(o))
	}
}

func resultSymbol(o Outcome) string {
	switch o {
	case OutcomePassed:
		return "✅"
	case OutcomeFailed:
		return "❌"
	case OutcomeSkipped:
		return "⏭️"
	case OutcomeError:
		return "💥"
	default:
		return "❓"
	}
}

func variantOrDefault(v Variant) Variant {
	if v == "" {
		return VariantCreate
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

// NewQuietReporter creates a reporter that only outputs failures and a
// one line summary
func NewQuietReporter(w io.Writer) Reporter {
	return &quietReporter{w: outputOrStdout(w)}
}

// quietReporter implements minimal output for CI
type quietReporter struct {
	w io.Writer
}

func (r *quietReporter) ReportStart([]Scenario)       {}
func (r *quietReporter) ReportScenarioStart(Scenario) {}
func (r *quietReporter) ReportStepResult(StepResult)  {}

func (r *quietReporter) ReportScenarioResult(res Result) {
	if res.Outcome == OutcomeFailed || res.Outcome == OutcomeError {
		fmt.Fprintf(r.w, "%s %s: %s\n", resultSymbol(res.Outcome), res.Scenario.Name, res.Error)
	}
}

func (r *quietReporter) ReportSuiteResult(res SuiteResult) {
	if res.OK() {
		fmt.Fprintf(r.w, "✅ All %d checks passed\n", res.Passed)
		return
	}
	fmt.Fprintf(r.w, "❌ %d/%d checks failed\n", res.Failed+res.Errors, res.Total)
}

// NewJSONReporter creates a reporter that prints the suite result as JSON
func NewJSONReporter(w io.Writer) Reporter {
	return &jsonReporter{w: outputOrStdout(w)}
}

type jsonReporter struct {
	w io.Writer
}

func (r *jsonReporter) ReportStart([]Scenario)       {}
func (r *jsonReporter) ReportScenarioStart(Scenario) {}
func (r *jsonReporter) ReportStepResult(StepResult)  {}
func (r *jsonReporter) ReportScenarioResult(Result)  {}

func (r *jsonReporter) ReportSuiteResult(res SuiteResult) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintf(r.w, `{"error": "failed to marshal results: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(r.w, string(data))
}
