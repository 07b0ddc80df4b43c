// Package mcpserver exposes regcheck's registry checks as MCP tools served
// over stdio, so an agent can run the same scenarios the CLI runs.
package mcpserver

import (
	"regcheck/internal/config"
	"regcheck/internal/registry"
	"regcheck/internal/scenario"
	"regcheck/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverName = "regcheck"

// Server holds the MCP server and the registry it checks.
type Server struct {
	settings config.Settings
	registry registry.Registry
	runner   *scenario.Runner
	mcp      *server.MCPServer
}

// New creates a server for the registry described by settings. runner
// executes scenarios and must use reg.
func New(settings config.Settings, reg registry.Registry, runner *scenario.Runner, version string) *Server {
	s := &Server{
		settings: settings,
		registry: reg,
		runner:   runner,
		mcp: server.NewMCPServer(
			serverName,
			version,
			server.WithToolCapabilities(true),
		),
	}
	s.mcp.AddTools(s.Tools()...)
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP requests on stdin/stdout until stdin closes.
// Nothing else may write to stdout meanwhile.
func (s *Server) ServeStdio() error {
	logging.Info("MCP", "serving %d tools over stdio", len(s.Tools()))
	return server.ServeStdio(s.mcp)
}

// Tools returns the tool definitions with their handlers.
func (s *Server) Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("registry_run_scenarios",
				mcp.WithDescription("Run registry check scenarios and return the suite result as JSON"),
				mcp.WithString("suite",
					mcp.Description("Path to a YAML scenario suite; defaults to the configured suite or the built-in scenarios"),
				),
				mcp.WithString("scenario",
					mcp.Description("Run only the scenario with this name"),
				),
				mcp.WithBoolean("fail_fast",
					mcp.Description("Stop after the first failing scenario"),
				),
				mcp.WithBoolean("enable",
					mcp.Description("Run scenarios that require an enabled run, as if integration_test were set"),
				),
			),
			Handler: s.handleRunScenarios,
		},
		{
			Tool: mcp.NewTool("registry_probe",
				mcp.WithDescription("Poll a URL until it answers 200 OK and report how the wait ended"),
				mcp.WithString("url",
					mcp.Description("URL to poll; defaults to the configured service_url"),
				),
				mcp.WithNumber("timeout_seconds",
					mcp.Description("Number of one second attempts before giving up"),
				),
			),
			Handler: s.handleProbe,
		},
		{
			Tool: mcp.NewTool("registry_compare",
				mcp.WithDescription("Compare a descriptor template file with a registry entry, looked up by id or by the template's name"),
				mcp.WithString("template",
					mcp.Description("Path to the JSON descriptor; defaults to the configured filename"),
				),
				mcp.WithString("id",
					mcp.Description("Entry id to read; when omitted the listing is searched by name"),
				),
				mcp.WithString("mode",
					mcp.Description("Comparison policy"),
					mcp.Enum("template", "round-trip"),
				),
			),
			Handler: s.handleCompare,
		},
		{
			Tool: mcp.NewTool("registry_list",
				mcp.WithDescription("List registry entries; without a page every page is fetched"),
				mcp.WithNumber("page",
					mcp.Description("1-based page to fetch"),
				),
				mcp.WithNumber("per_page",
					mcp.Description("Page size, at most 100"),
				),
			),
			Handler: s.handleList,
		},
	}
}
