// Package cli renders command results as tables, JSON or YAML.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"regcheck/internal/compare"
	"regcheck/internal/descriptor"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	case "":
		return OutputFormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (use table, json or yaml)", s)
	}
}

// Printer writes results in one format.
type Printer struct {
	Format OutputFormat
	Out    io.Writer
}

// NewPrinter returns a printer writing to w, or stdout when w is nil.
func NewPrinter(format OutputFormat, w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{Format: format, Out: w}
}

// ServiceList is a listing as printed by the list command.
type ServiceList struct {
	Total    int                  `json:"total"`
	Services []descriptor.Service `json:"services"`
}

// Comparison is a comparator outcome as printed by the compare command.
type Comparison struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Mode       string                `json:"mode"`
	OK         bool                  `json:"ok"`
	Mismatches []compare.FieldResult `json:"mismatches,omitempty"`
}

// PrintServices prints a listing.
func (p *Printer) PrintServices(list ServiceList) error {
	if p.Format != OutputFormatTable {
		return p.structured(list)
	}

	if len(list.Services) == 0 {
		fmt.Fprintln(p.Out, text.FgYellow.Sprint("No services registered"))
		return nil
	}

	t := p.newTable("id", "name", "description", "apis", "docs")
	for _, svc := range list.Services {
		t.AppendRow(table.Row{
			svc.ID,
			cell(svc.Name),
			formatDescription(descriptor.Deref(svc.Description)),
			formatAPIs(svc.APIs),
			len(svc.Docs),
		})
	}
	t.Render()

	fmt.Fprintf(p.Out, "\n%s %v %s\n",
		text.FgHiBlue.Sprint("Total:"),
		text.FgHiWhite.Sprint(list.Total),
		pluralize("service", list.Total))
	return nil
}

// PrintComparison prints a comparator outcome.
func (p *Printer) PrintComparison(c Comparison) error {
	if p.Format != OutputFormatTable {
		return p.structured(c)
	}

	header := fmt.Sprintf("%s (%s, %s comparison)", c.Name, c.ID, c.Mode)
	if c.OK {
		fmt.Fprintf(p.Out, "%s %s\n", text.FgGreen.Sprint("✅ All fields match:"), header)
		return nil
	}

	fmt.Fprintf(p.Out, "%s %s\n", text.FgRed.Sprint("❌ Mismatches found:"), header)
	t := p.newTable("field", "kind", "expected", "actual", "detail")
	for _, m := range c.Mismatches {
		t.AppendRow(table.Row{
			m.Field,
			formatKind(m.Kind),
			truncate(m.Expected, 40),
			truncate(m.Actual, 40),
			truncate(m.Detail, 60),
		})
	}
	t.Render()
	return nil
}

func (p *Printer) newTable(columns ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(table.StyleRounded)

	headers := make(table.Row, len(columns))
	for i, col := range columns {
		headers[i] = text.FgHiCyan.Sprint(strings.ToUpper(col))
	}
	t.AppendHeader(headers)
	return t
}

func (p *Printer) structured(v any) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	switch p.Format {
	case OutputFormatJSON:
		fmt.Fprintln(p.Out, string(jsonData))
		return nil
	case OutputFormatYAML:
		return p.outputYAML(jsonData)
	default:
		return fmt.Errorf("unsupported output format: %s", p.Format)
	}
}

// outputYAML converts JSON to YAML so the json field names are kept.
func (p *Printer) outputYAML(jsonData []byte) error {
	var data interface{}
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}

	fmt.Fprint(p.Out, string(yamlData))
	return nil
}

func cell(s *string) interface{} {
	if s == nil {
		return text.FgHiBlack.Sprint("-")
	}
	return *s
}

func formatKind(k compare.Kind) string {
	switch k {
	case compare.PresenceMismatch:
		return text.FgYellow.Sprint(k.String())
	case compare.ValueMismatch:
		return text.FgRed.Sprint(k.String())
	default:
		return k.String()
	}
}

func formatDescription(desc string) interface{} {
	if desc == "" {
		return text.FgHiBlack.Sprint("-")
	}
	return truncate(desc, 40)
}

// formatAPIs lists api labels in a stable order.
func formatAPIs(apis map[string]string) interface{} {
	if len(apis) == 0 {
		return text.FgHiBlack.Sprint("-")
	}
	labels := make([]string, 0, len(apis))
	for label := range apis {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return truncate(strings.Join(labels, ", "), 40)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
