// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the import session over stdio: audit the inferred schemas and the
// ignored log, read pages, and import files.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/K9kd22r8/logseq/internal/importer"
	"github.com/K9kd22r8/logseq/internal/storage"
)

const importRulesURI = "graph://import-rules"

// Server wraps the MCP server with the import session tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *importer.Service
	store storage.Provider
}

// New creates a new MCP server with all tools registered.
func New(svc *importer.Service, store storage.Provider) *Server {
	s := &Server{svc: svc, store: store}

	s.mcp = server.NewMCPServer(
		"graphimport",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_property_schemas",
		mcp.WithDescription("List the type and cardinality inferred for every property in the session."),
	), s.listPropertySchemas)

	s.mcp.AddTool(mcp.NewTool("list_ignored_values",
		mcp.WithDescription("List property values and page changes the import did not apply, with the reason. "+
			"Read the import rules via the get_import_rules tool or the "+importRulesURI+" resource to interpret them."),
		mcp.WithString("reason", mcp.Description("Optional reason to filter on (e.g. discarded property value)")),
	), s.listIgnoredValues)

	s.mcp.AddTool(mcp.NewTool("get_page",
		mcp.WithDescription("Read a page of the graph database with its blocks and backlinks."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Page name, case-insensitive (e.g. project/alpha)")),
	), s.getPage)

	s.mcp.AddTool(mcp.NewTool("import_file",
		mcp.WithDescription("Import one file into the graph database. Without content the file is read "+
			"from the graph directory."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the graph root (e.g. pages/alpha.md)")),
		mcp.WithString("content", mcp.Description("Optional file content to import instead of the file on disk")),
	), s.importFile)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Full-text search through page names and block content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List the importable files of the graph directory."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("get_import_rules",
		mcp.WithDescription("Returns the rules that turn file values into typed database values."),
	), s.getImportRules)

	s.mcp.AddResource(
		mcp.NewResource(importRulesURI, "Graph Import Rules",
			mcp.WithResourceDescription("How property types are inferred and conflicts resolved."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readImportRulesResource,
	)

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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPropertySchemas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Schemas())
}

type ignoredItem struct {
	Reason string `json:"reason"`
	Entry  any    `json:"entry"`
}

func (s *Server) listIgnoredValues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reason := ""
	if r, err := req.RequireString("reason"); err == nil {
		reason = r
	}
	items := []ignoredItem{}
	for _, p := range s.svc.Ignored() {
		if reason != "" && p.ReasonText() != reason {
			continue
		}
		items = append(items, ignoredItem{Reason: p.ReasonText(), Entry: p})
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no ignored values"), nil
	}
	return jsonResult(items)
}

func (s *Server) getPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.Page(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(page)
}

func (s *Server) importFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var content []byte
	if c, err := req.RequireString("content"); err == nil {
		content = []byte(c)
	} else if content, err = s.store.Read(path); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	res, err := s.svc.ImportFile(ctx, path, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Skipped {
		return mcp.NewToolResultText(fmt.Sprintf("skipped: %s: %s", path, res.SkipReason)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported: %s (%d pages, %d blocks, %d new schemas)",
		path, res.Pages, res.Blocks, res.Schemas)), nil
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := ""
	if f, err := req.RequireString("folder"); err == nil {
		folder = f
	}
	metas, err := s.store.List(folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getImportRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ImportRules), nil
}

func (s *Server) readImportRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      importRulesURI,
			MIMEType: "text/markdown",
			Text:     ImportRules,
		},
	}, nil
}
