// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the knowledge-management tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tiwaz/internal/reconcile"
	"github.com/starford/tiwaz/internal/registry"
	"github.com/starford/tiwaz/internal/vecindex"
)

// Server wraps the MCP server with knowledge tools.
type Server struct {
	mcp    *server.MCPServer
	reg    *registry.DB
	index  vecindex.Client
	engine *reconcile.Engine
}

// New creates a new MCP server with all knowledge tools registered.
func New(reg *registry.DB, index vecindex.Client, engine *reconcile.Engine) *Server {
	s := &Server{reg: reg, index: index, engine: engine}

	s.mcp = server.NewMCPServer(
		"Tiwaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List all knowledge sources with their selection state and vector counts."),
	), s.listSources)

	s.mcp.AddTool(mcp.NewTool("knowledge_status",
		mcp.WithDescription("Report the configuration, filesystem, and vector-index views of knowledge "+
			"state and any divergence between them. Read-only."),
	), s.knowledgeStatus)

	s.mcp.AddTool(mcp.NewTool("sync_knowledge",
		mcp.WithDescription("Reconcile the selection config, stored files, and vector index: re-index "+
			"missing sources, drop stale selection entries, delete orphaned vectors."),
	), s.syncKnowledge)

	s.mcp.AddTool(mcp.NewTool("delete_source",
		mcp.WithDescription("Remove a source from the selection config and the vector index. "+
			"Set remove_file to also delete the stored upload."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Source name (upload filename)")),
		mcp.WithBoolean("remove_file", mcp.Description("Also delete the stored file (default false)")),
	), s.deleteSource)

	s.mcp.AddTool(mcp.NewTool("select_sources",
		mcp.WithDescription("Replace the set of sources selected for retrieval."),
		mcp.WithString("sources", mcp.Required(), mcp.Description("Comma-separated source names")),
	), s.selectSources)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(payload))
}

func (s *Server) listSources(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := s.index.CountsPerSource(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sources, err := s.reg.ListAll(ctx, counts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sources), nil
}

func (s *Server) knowledgeStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.engine.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(status), nil
}

func (s *Server) syncKnowledge(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.engine.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report), nil
}

func (s *Server) deleteSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	removeFile := req.GetBool("remove_file", false)
	if err := s.engine.DeleteSource(ctx, name, removeFile); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("deleted " + name), nil
}

func (s *Server) selectSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("sources")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names := splitNonEmpty(raw)
	if err := s.reg.SetSelected(ctx, names); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"sources": names}), nil
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
