package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"regcheck/internal/compare"
	"regcheck/internal/descriptor"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func init() {
	text.DisableColors()
}

func sampleList() ServiceList {
	return ServiceList{
		Total: 2,
		Services: []descriptor.Service{
			{
				ID:          "a1",
				Name:        descriptor.Str("_it._tcp"),
				Description: descriptor.Str("integration test service"),
				APIs:        map[string]string{"Z API": "http://z", "A API": "http://a"},
				Docs:        []descriptor.Doc{{Description: descriptor.Str("docs")}},
			},
			{ID: "b2"},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputFormatTable, false},
		{"table", OutputFormatTable, false},
		{"JSON", OutputFormatJSON, false},
		{"yaml", OutputFormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintServices_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(OutputFormatTable, &buf).PrintServices(sampleList()))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "_it._tcp")
	assert.Contains(t, out, "A API, Z API")
	assert.Contains(t, out, "b2")
	assert.Contains(t, out, "Total: 2 services")
}

func TestPrintServices_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(OutputFormatTable, &buf).PrintServices(ServiceList{}))
	assert.Contains(t, buf.String(), "No services registered")
}

func TestPrintServices_Structured(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(OutputFormatJSON, &buf).PrintServices(sampleList()))

	var back ServiceList
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, 2, back.Total)
	assert.Equal(t, "_it._tcp", back.Services[0].NameValue())

	buf.Reset()
	require.NoError(t, NewPrinter(OutputFormatYAML, &buf).PrintServices(sampleList()))
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 2, doc["total"])
	assert.Contains(t, buf.String(), "id: a1", "json field names are kept")
}

func TestPrintComparison(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(OutputFormatTable, &buf)

	require.NoError(t, p.PrintComparison(Comparison{ID: "a1", Name: "_it._tcp", Mode: "template", OK: true}))
	assert.Contains(t, buf.String(), "All fields match: _it._tcp (a1, template comparison)")

	buf.Reset()
	require.NoError(t, p.PrintComparison(Comparison{
		ID: "a1", Name: "_it._tcp", Mode: "round-trip",
		Mismatches: []compare.FieldResult{
			{Field: "description", Kind: compare.PresenceMismatch, Expected: `"a"`, Actual: "<absent>"},
		},
	}))
	out := buf.String()
	assert.Contains(t, out, "Mismatches found")
	assert.Contains(t, out, "description")
	assert.Contains(t, out, "presence-mismatch")
	assert.Contains(t, out, "<absent>")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
