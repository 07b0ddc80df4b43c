package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"regcheck/internal/cli"
	"regcheck/internal/compare"
	"regcheck/internal/config"
	"regcheck/internal/descriptor"
	"regcheck/internal/registry"
	"regcheck/internal/scenario"

	"github.com/mark3labs/mcp-go/mcp"
)

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

// handleRunScenarios handles the registry_run_scenarios MCP tool
func (s *Server) handleRunScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	var (
		suite config.SuiteFile
		err   error
	)
	if path, ok := args["suite"].(string); ok && path != "" {
		suite, err = config.LoadSuite(path)
	} else {
		suite, err = config.Scenarios(s.settings)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load scenarios: %v", err)), nil
	}

	scenarios := suite.Scenarios
	if name, ok := args["scenario"].(string); ok && name != "" {
		scenarios = nil
		for _, sc := range suite.Scenarios {
			if sc.Name == name {
				scenarios = append(scenarios, sc)
			}
		}
		if len(scenarios) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("Scenario '%s' not found", name)), nil
		}
	}

	opts := s.settings.ScenarioOptions()
	if enable, ok := args["enable"].(bool); ok && enable {
		opts.Enabled = true
	}
	failFast := suite.FailFast
	if ff, ok := args["fail_fast"].(bool); ok {
		failFast = ff
	}

	// stdout carries the MCP transport, so nothing is reported there.
	runner := &scenario.Suite{
		Runner:   s.runner,
		Reporter: scenario.NewQuietReporter(io.Discard),
		Options:  opts,
		FailFast: failFast,
	}
	result, err := runner.Run(ctx, scenarios)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Scenario run failed: %v", err)), nil
	}
	return jsonResult(result)
}

// handleProbe handles the registry_probe MCP tool
func (s *Server) handleProbe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	url := s.settings.ServiceURL
	if u, ok := args["url"].(string); ok && u != "" {
		url = u
	}
	if url == "" {
		return mcp.NewToolResultError("url is required when no service_url is configured"), nil
	}

	timeout := s.settings.ServiceWaitTimeout
	if t, ok := args["timeout_seconds"].(float64); ok {
		if t < 1 {
			return mcp.NewToolResultError("timeout_seconds must be at least 1"), nil
		}
		timeout = int(t)
	}

	report := s.runner.Prober.Probe(ctx, url, timeout)
	return jsonResult(report)
}

// handleCompare handles the registry_compare MCP tool
func (s *Server) handleCompare(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	path := s.settings.Filename
	if p, ok := args["template"].(string); ok && p != "" {
		path = p
	}
	mode, err := compare.ParseMode(stringArg(args, "mode"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	template, err := descriptor.LoadFile(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	actual, err := compare.Lookup(ctx, s.registry, template, stringArg(args, "id"), s.settings.PerPage)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to find entry: %v", err)), nil
	}

	res, err := compare.Compare(template, actual, mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cli.Comparison{
		ID:         actual.ID,
		Name:       actual.NameValue(),
		Mode:       mode.String(),
		OK:         res.OK(),
		Mismatches: res.Mismatches(),
	})
}

// handleList handles the registry_list MCP tool
func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	perPage := s.settings.PerPage
	if pp, ok := args["per_page"].(float64); ok {
		if pp < 1 || pp > registry.MaxPerPage {
			return mcp.NewToolResultError(fmt.Sprintf("per_page must be between 1 and %d", registry.MaxPerPage)), nil
		}
		perPage = int(pp)
	}

	if page, ok := args["page"].(float64); ok {
		if page < 1 {
			return mcp.NewToolResultError("page must be at least 1"), nil
		}
		idx, err := s.registry.List(ctx, int(page), perPage)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list entries: %v", err)), nil
		}
		return jsonResult(cli.ServiceList{Total: idx.Total, Services: idx.Services})
	}

	all, total, err := registry.ListAll(ctx, s.registry, perPage)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list entries: %v", err)), nil
	}
	if all == nil {
		all = []descriptor.Service{}
	}
	return jsonResult(cli.ServiceList{Total: total, Services: all})
}
