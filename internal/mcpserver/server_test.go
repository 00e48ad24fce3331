package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/tiwaz/internal/ingest"
	"github.com/starford/tiwaz/internal/loader"
	"github.com/starford/tiwaz/internal/reconcile"
	"github.com/starford/tiwaz/internal/registry"
	"github.com/starford/tiwaz/internal/storage"
	"github.com/starford/tiwaz/internal/testutil"
	"github.com/starford/tiwaz/internal/vecindex"
)

type env struct {
	srv   *Server
	reg   *registry.DB
	store *storage.FS
	index *vecindex.Bolt
}

func testServer(t *testing.T) *env {
	t.Helper()
	reg := testutil.TestRegistry(t)
	_, store := testutil.TestUploads(t)
	index := testutil.TestIndex(t, &testutil.StubEmbedder{})
	mgr, err := ingest.NewManager(store, loader.New(loader.DefaultChunkConfig()), index, ingest.NewSourceLocks())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mgr.Close)
	engine := reconcile.NewEngine(reg, store, index, mgr, nil)
	return &env{srv: New(reg, index, engine), reg: reg, store: store, index: index}
}

// callTool invokes a tool handler directly; mcp-go has no call-tool test
// helper for stdio servers.
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
	case "list_sources":
		result, err = srv.listSources(ctx, req)
	case "knowledge_status":
		result, err = srv.knowledgeStatus(ctx, req)
	case "sync_knowledge":
		result, err = srv.syncKnowledge(ctx, req)
	case "delete_source":
		result, err = srv.deleteSource(ctx, req)
	case "select_sources":
		result, err = srv.selectSources(ctx, req)
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

func seedSource(t *testing.T, e *env, name, text string) {
	t.Helper()
	if err := e.store.Write(name, []byte(text)); err != nil {
		t.Fatal(err)
	}
	chunks := []loader.Chunk{{Source: name, Index: 0, Text: text}}
	if _, err := e.index.EmbedAndUpsert(context.Background(), name, chunks); err != nil {
		t.Fatal(err)
	}
}

func TestSelectAndListSources(t *testing.T) {
	e := testServer(t)
	seedSource(t, e, "a.txt", "alpha")

	r := callTool(t, e.srv, "select_sources", map[string]interface{}{
		"sources": "a.txt, b.txt",
	})
	if r.IsError {
		t.Fatalf("select_sources failed: %q", resultText(r))
	}

	r = callTool(t, e.srv, "list_sources", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "a.txt") || !strings.Contains(text, "b.txt") {
		t.Errorf("list missing sources: %q", text)
	}
}

func TestKnowledgeStatusReportsIssues(t *testing.T) {
	e := testServer(t)

	r := callTool(t, e.srv, "select_sources", map[string]interface{}{"sources": "ghost.txt"})
	if r.IsError {
		t.Fatal(resultText(r))
	}

	r = callTool(t, e.srv, "knowledge_status", map[string]interface{}{})
	if !strings.Contains(resultText(r), "file missing") {
		t.Errorf("status = %q", resultText(r))
	}
}

func TestSyncKnowledge(t *testing.T) {
	e := testServer(t)

	r := callTool(t, e.srv, "select_sources", map[string]interface{}{"sources": "ghost.txt"})
	if r.IsError {
		t.Fatal(resultText(r))
	}

	r = callTool(t, e.srv, "sync_knowledge", map[string]interface{}{})
	if !strings.Contains(resultText(r), "ghost.txt") {
		t.Errorf("sync report = %q", resultText(r))
	}

	selected, err := e.reg.Selected(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 0 {
		t.Errorf("stale selection survived sync: %v", selected)
	}
}

func TestDeleteSourceTool(t *testing.T) {
	e := testServer(t)
	seedSource(t, e, "doc.txt", "body")

	r := callTool(t, e.srv, "delete_source", map[string]interface{}{
		"name":        "doc.txt",
		"remove_file": true,
	})
	if r.IsError {
		t.Fatalf("delete failed: %q", resultText(r))
	}
	if resultText(r) != "deleted doc.txt" {
		t.Errorf("result = %q", resultText(r))
	}

	if ok, _ := e.store.Exists("doc.txt"); ok {
		t.Error("file survived")
	}
	counts, _ := e.index.CountsPerSource(context.Background())
	if counts["doc.txt"] != 0 {
		t.Error("vectors survived")
	}
}

func TestDeleteSourceRequiresName(t *testing.T) {
	e := testServer(t)
	r := callTool(t, e.srv, "delete_source", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing name")
	}
}

func TestSplitNonEmpty(t *testing.T) {
	got := splitNonEmpty(" a.txt ,, b.txt ,")
	if len(got) != 2 || got[0] != "a.txt" || got[1] != "b.txt" {
		t.Errorf("splitNonEmpty = %v", got)
	}
}
