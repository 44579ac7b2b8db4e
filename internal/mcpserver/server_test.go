package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/importer"
	"github.com/K9kd22r8/logseq/internal/parser"
	"github.com/K9kd22r8/logseq/internal/testutil"
)

func testServer(t *testing.T, files map[string]string) *Server {
	t.Helper()
	_, store := testutil.TestGraph(t, files)
	db := testutil.TestDB(t)
	svc, err := importer.NewService(db, store, exporter.Options{Extractor: parser.Extractor{}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return New(svc, store)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_property_schemas":
		result, err = srv.listPropertySchemas(ctx, req)
	case "list_ignored_values":
		result, err = srv.listIgnoredValues(ctx, req)
	case "get_page":
		result, err = srv.getPage(ctx, req)
	case "import_file":
		result, err = srv.importFile(ctx, req)
	case "search_pages":
		result, err = srv.searchPages(ctx, req)
	case "list_files":
		result, err = srv.listFiles(ctx, req)
	case "get_import_rules":
		result, err = srv.getImportRules(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestImportFile_FromDisk(t *testing.T) {
	srv := testServer(t, map[string]string{"pages/alpha.md": "- hello [[Beta]]\n"})

	r := callTool(t, srv, "import_file", map[string]interface{}{"path": "pages/alpha.md"})
	if r.IsError {
		t.Fatalf("import_file error: %s", resultText(r))
	}
	if !strings.HasPrefix(resultText(r), "imported: pages/alpha.md") {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "get_page", map[string]interface{}{"name": "Alpha"})
	if r.IsError {
		t.Fatalf("get_page error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "hello [[") {
		t.Errorf("page missing block content: %s", resultText(r))
	}
}

func TestImportFile_WithContent(t *testing.T) {
	srv := testServer(t, nil)

	r := callTool(t, srv, "import_file", map[string]interface{}{
		"path":    "pages/inline.md",
		"content": "- from the request\n",
	})
	if r.IsError {
		t.Fatalf("import_file error: %s", resultText(r))
	}

	r = callTool(t, srv, "get_page", map[string]interface{}{"name": "inline"})
	if r.IsError {
		t.Fatalf("get_page error: %s", resultText(r))
	}
}

func TestImportFile_Errors(t *testing.T) {
	srv := testServer(t, nil)

	r := callTool(t, srv, "import_file", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing path")
	}

	r = callTool(t, srv, "import_file", map[string]interface{}{"path": "pages/missing.md"})
	if !r.IsError {
		t.Error("expected error for missing file")
	}

	r = callTool(t, srv, "import_file", map[string]interface{}{"path": "assets/a.png", "content": "x"})
	if r.IsError {
		t.Fatalf("unsupported file should be skipped, got error: %s", resultText(r))
	}
	if !strings.HasPrefix(resultText(r), "skipped:") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestGetPage_NotFound(t *testing.T) {
	srv := testServer(t, nil)
	r := callTool(t, srv, "get_page", map[string]interface{}{"name": "nowhere"})
	if !r.IsError {
		t.Error("expected error for missing page")
	}
}

func TestSchemasAndIgnored(t *testing.T) {
	srv := testServer(t, nil)

	r := callTool(t, srv, "list_ignored_values", nil)
	if resultText(r) != "no ignored values" {
		t.Errorf("empty log = %q", resultText(r))
	}

	callTool(t, srv, "import_file", map[string]interface{}{"path": "pages/a.md", "content": "- a\n  priority:: 1\n"})
	callTool(t, srv, "import_file", map[string]interface{}{"path": "pages/b.md", "content": "- b\n  priority:: [[High]]\n"})

	r = callTool(t, srv, "list_property_schemas", nil)
	if !strings.Contains(resultText(r), `"number"`) {
		t.Errorf("schemas = %s", resultText(r))
	}

	r = callTool(t, srv, "list_ignored_values", map[string]interface{}{"reason": "discarded property value"})
	if !strings.Contains(resultText(r), "pages/b.md") {
		t.Errorf("ignored = %s", resultText(r))
	}

	r = callTool(t, srv, "list_ignored_values", map[string]interface{}{"reason": "unresolved reference"})
	if resultText(r) != "no ignored values" {
		t.Errorf("filtered log = %q", resultText(r))
	}
}

func TestSearchPages(t *testing.T) {
	srv := testServer(t, nil)
	callTool(t, srv, "import_file", map[string]interface{}{"path": "pages/go.md", "content": "- concurrency patterns\n"})

	r := callTool(t, srv, "search_pages", map[string]interface{}{"query": "concurrency"})
	if r.IsError {
		t.Fatalf("search error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "concurrency") {
		t.Errorf("search = %s", resultText(r))
	}

	r = callTool(t, srv, "search_pages", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing query")
	}
}

func TestListFiles(t *testing.T) {
	srv := testServer(t, map[string]string{
		"pages/a.md":             "- a\n",
		"journals/2024_01_02.md": "- j\n",
	})

	r := callTool(t, srv, "list_files", nil)
	text := resultText(r)
	if !strings.Contains(text, "pages/a.md") || !strings.Contains(text, "journals/2024_01_02.md") {
		t.Errorf("list_files = %q", text)
	}

	r = callTool(t, srv, "list_files", map[string]interface{}{"folder": "pages"})
	if strings.Contains(resultText(r), "journals") {
		t.Errorf("folder filter ignored: %q", resultText(r))
	}
}

func TestGetImportRules(t *testing.T) {
	srv := testServer(t, nil)
	r := callTool(t, srv, "get_import_rules", nil)
	if resultText(r) != ImportRules {
		t.Error("rules text mismatch")
	}

	res, err := srv.readImportRulesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(res) != 1 {
		t.Fatalf("resource = %v, %v", res, err)
	}
}
