// Package tools exposes the analysis pipeline over MCP so editors and
// agents can query access results without shelling out.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/pipeline"
)

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp    *mcp.Server
	runner *pipeline.Runner
}

// NewServer creates an MCP server with the analysis tools registered.
func NewServer(runner *pipeline.Runner) *Server {
	srv := &Server{
		runner: runner,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "rattr",
				Version: "0.1.0",
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "analyse_file",
		Description: "Analyse a Python file and return, per function, the attribute accesses it performs: gets, sets, dels and calls, with callee accesses folded into callers. Follows imports per the configured follow level.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Path to the Python file to analyse"
				},
				"follow_imports": {
					"type": "integer",
					"description": "Import follow level: 0 none, 1 project-local, 2 plus site-packages, 3 plus stdlib (default: configured value)"
				},
				"strict": {
					"type": "boolean",
					"description": "Escalate analysis errors to fatal"
				}
			},
			"required": ["path"]
		}`),
	}, s.handleAnalyseFile)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "analysis_diagnostics",
		Description: "Analyse a Python file and return the diagnostics ledger: every info/warning/error record with its position, plus the accumulated badness total.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Path to the Python file to analyse"
				}
			},
			"required": ["path"]
		}`),
	}, s.handleAnalysisDiagnostics)
}

func (s *Server) handleAnalyseFile(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult("path is required"), nil
	}

	runner := s.runner
	if _, ok := args["follow_imports"]; ok {
		cfg := *runner.Cfg
		cfg.FollowImports = getIntArg(args, "follow_imports", cfg.FollowImports)
		if err := cfg.Compile(); err != nil {
			return errResult(err.Error()), nil
		}
		runner = &pipeline.Runner{Cfg: &cfg, Cache: s.runner.Cache, Log: s.runner.Log}
	}
	if getBoolArg(args, "strict") {
		cfg := *runner.Cfg
		cfg.Strict = true
		runner = &pipeline.Runner{Cfg: &cfg, Cache: runner.Cache, Log: runner.Log}
	}

	led := ledger.New(ledger.SlogSink{Logger: runner.Log})
	led.SetStrict(runner.Cfg.Strict)
	res, err := runner.Analyse(path, led)
	if err != nil {
		return errResult(err.Error()), nil
	}
	if res.Fatal {
		return errResult(fmt.Sprintf("analysis of %s aborted on a fatal error", res.File)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(res.Payload)}},
	}, nil
}

func (s *Server) handleAnalysisDiagnostics(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult("path is required"), nil
	}

	led := ledger.New(ledger.SlogSink{Logger: s.runner.Log})
	led.SetStrict(s.runner.Cfg.Strict)
	res, err := s.runner.Analyse(path, led)
	if err != nil {
		return errResult(err.Error()), nil
	}

	type diag struct {
		Level   string `json:"level"`
		File    string `json:"file"`
		Line    uint   `json:"line,omitempty"`
		Col     uint   `json:"col,omitempty"`
		Message string `json:"message"`
		Badness int    `json:"badness"`
	}
	out := struct {
		File    string `json:"file"`
		Fatal   bool   `json:"fatal"`
		Badness int    `json:"badness"`
		Records []diag `json:"records"`
	}{
		File:    res.File,
		Fatal:   res.Fatal,
		Badness: led.GrandTotal(),
		Records: []diag{},
	}
	for _, r := range led.Records() {
		out.Records = append(out.Records, diag{
			Level:   r.Level.String(),
			File:    r.File,
			Line:    r.Pos.Line,
			Col:     r.Pos.Col,
			Message: r.Message,
			Badness: r.Badness,
		})
	}
	return jsonResult(out), nil
}

// jsonResult marshals data to JSON and returns it as a tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("marshal result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

func getStringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func getIntArg(args map[string]any, key string, defaultVal int) int {
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	f, ok := v.(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

func getBoolArg(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
