// Package mcp exposes a redefinition engine and its host registry as MCP
// tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/redefine/internal/diagnostics"
	"github.com/standardbeagle/redefine/internal/redefine"
	"github.com/standardbeagle/redefine/internal/runtime"
	"github.com/standardbeagle/redefine/internal/security"
	"github.com/standardbeagle/redefine/internal/version"
)

// DefaultPlanCapacity is the number of uncommitted plans kept. Older ones
// are evicted.
const DefaultPlanCapacity = 64

// Server serves the redefinition tools.
type Server struct {
	engine           *redefine.Engine
	host             *runtime.Registry
	root             string
	files            *security.FileValidator
	diagnosticLogger *diagnostics.DiagnosticLogger
	server           *mcp.Server

	plans   *lru.Cache[string, *redefine.Plan]
	planSeq atomic.Uint64
}

// NewServer creates a server over engine and host. Relative class paths in
// tool calls resolve against root and may not leave it. logger may be nil.
func NewServer(engine *redefine.Engine, host *runtime.Registry, root string, logger *diagnostics.DiagnosticLogger) (*Server, error) {
	plans, err := lru.New[string, *redefine.Plan](DefaultPlanCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan cache: %w", err)
	}
	s := &Server{
		engine:           engine,
		host:             host,
		root:             root,
		files:            security.NewFileValidator(security.DefaultMaxClassSizeKB).Within(root),
		diagnosticLogger: logger,
		plans:            plans,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "redefine-mcp-server",
		Version: version.Version,
	}, nil)
	s.registerTools()

	logger.Printf("MCP server created (root %s, build %s)", root, version.BuildID())
	return s, nil
}

func (s *Server) registerTools() {
	classes := map[string]*jsonschema.Schema{
		"loader": {
			Type:        "string",
			Description: "Defining loader the classes belong to (e.g. 'app')",
		},
		"classes": {
			Type:        "array",
			Description: "Base64 encoded class files",
			Items:       &jsonschema.Schema{Type: "string"},
		},
		"paths": {
			Type:        "array",
			Description: "Class file paths inside the project root, relative to it unless absolute",
			Items:       &jsonschema.Schema{Type: "string"},
		},
	}

	s.server.AddTool(&mcp.Tool{
		Name:        "define_types",
		Description: "Define class files in a loader of the host runtime, enclosing types before nested ones. Fails for names the loader already defines.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: classes,
			Required:   []string{"loader"},
		},
	}, s.handleDefineTypes)

	s.server.AddTool(&mcp.Tool{
		Name:        "plan_redefinition",
		Description: "Match replacement class files against the loaded types without changing anything. Returns a plan_id for commit_plan, the match of every type, its rename and the types left without a successor.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: classes,
			Required:   []string{"loader"},
		},
	}, s.handlePlanRedefinition)

	s.server.AddTool(&mcp.Tool{
		Name:        "commit_plan",
		Description: "Commit a plan from plan_redefinition to the identity cache. Fails when another commit touched the same loaders since the plan was made.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"plan_id": {
					Type:        "string",
					Description: "Plan id returned by plan_redefinition (e.g. 'plan-1')",
				},
			},
			Required: []string{"plan_id"},
		},
	}, s.handleCommitPlan)

	s.server.AddTool(&mcp.Tool{
		Name:        "redefine",
		Description: "Plan, patch symbol tables, commit and install replacement class files in one step. Removed types are unloaded.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: classes,
			Required:   []string{"loader"},
		},
	}, s.handleRedefine)

	s.server.AddTool(&mcp.Tool{
		Name:        "cache_status",
		Description: "Show the committed identity of every type per loader: current name, nesting, generation.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"loader": {
					Type:        "string",
					Description: "Only report this loader",
				},
			},
		},
	}, s.handleCacheStatus)
}

// Start serves over stdin and stdout until ctx is done or the client
// disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.diagnosticLogger.Printf("Starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// Shutdown drops pending plans and closes the diagnostic log.
func (s *Server) Shutdown(ctx context.Context) error {
	s.diagnosticLogger.Printf("Shutting down MCP server (%d pending plans dropped)", s.plans.Len())
	s.plans.Purge()
	return s.diagnosticLogger.Close()
}
