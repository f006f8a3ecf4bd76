package pagekeeper

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "pagever-test", Version: "0.1.0"}

func mcpSession(t *testing.T, k *Keeper) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	k.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func mcpCallJSON(t *testing.T, session *mcp.ClientSession, name string, args any, out any) {
	t.Helper()
	text, isErr := mcpCall(t, session, name, args)
	if isErr {
		t.Fatalf("CallTool(%s) tool error: %s", name, text)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("CallTool(%s) unmarshal %q: %v", name, text, err)
	}
}

func TestMCP_ListTools(t *testing.T) {
	session := mcpSession(t, testKeeper(t, nil))
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"pagever_ingest": true, "pagever_analyze": true, "pagever_components": true,
		"pagever_versions": true, "pagever_catalog": true, "pagever_stats": true,
	}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	if len(want) != 0 {
		t.Errorf("missing tools: %v", want)
	}
}

func TestMCP_IngestAndQuery(t *testing.T) {
	k := testKeeper(t, nil)
	session := mcpSession(t, k)

	var out Outcome
	mcpCallJSON(t, session, "pagever_ingest", map[string]any{
		"document_path": "/home",
		"lineage":       "lm-en",
		"tree":          map[string]any{"text": "Hello", ":items": map[string]any{"a": map[string]any{"text": "World"}}},
	}, &out)
	if out.Status != Created || out.VersionNumber != 1 {
		t.Fatalf("ingest outcome = %+v", out)
	}
	mustIngest(t, k, "/home", "spac-ko_KR", `{"text":"안녕"}`)

	var comps []Component
	mcpCallJSON(t, session, "pagever_components", map[string]any{"document_path": "/home", "lineage": "lm-en"}, &comps)
	if len(comps) != 2 || comps[1].Path != "root/items/a" {
		t.Errorf("components = %+v", comps)
	}

	if text, isErr := mcpCall(t, session, "pagever_components",
		map[string]any{"document_path": "/home", "lineage": "lm-en", "version": 5}); !isErr {
		t.Errorf("missing version was not a tool error: %s", text)
	}
	if _, isErr := mcpCall(t, session, "pagever_components",
		map[string]any{"document_path": "/home", "lineage": "lm-en", "mode": "bogus"}); !isErr {
		t.Error("bad mode was not a tool error")
	}

	var versions struct {
		Versions []Version `json:"versions"`
	}
	mcpCallJSON(t, session, "pagever_versions", map[string]any{"document_path": "/home", "lineage": "lm-en"}, &versions)
	if len(versions.Versions) != 1 {
		t.Errorf("versions = %+v", versions)
	}

	var a Analysis
	mcpCallJSON(t, session, "pagever_analyze", map[string]any{"document_path": "/home"}, &a)
	if a.Summary.TotalAdded != 1 || a.Summary.TotalModified != 1 {
		t.Errorf("analysis summary = %+v", a.Summary)
	}

	var cat struct {
		Catalog []CatalogEntry `json:"catalog"`
	}
	mcpCallJSON(t, session, "pagever_catalog", map[string]any{}, &cat)
	if len(cat.Catalog) != 2 {
		t.Errorf("catalog = %+v", cat)
	}

	var st Stats
	mcpCallJSON(t, session, "pagever_stats", map[string]any{}, &st)
	if st.Versions != 2 || st.Lineages != 2 {
		t.Errorf("stats = %+v", st)
	}

	metrics := do(t, k.Handler(), "GET", "/metrics", "").Body.String()
	for _, want := range []string{
		`pagever_tool_calls_total{outcome="ok",tool="pagever_components"} 1`,
		`pagever_tool_calls_total{outcome="error",tool="pagever_components"} 2`,
		`pagever_tool_calls_total{outcome="ok",tool="pagever_ingest"} 1`,
	} {
		if !strings.Contains(metrics, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMCP_IngestInvalid(t *testing.T) {
	session := mcpSession(t, testKeeper(t, nil))
	if _, isErr := mcpCall(t, session, "pagever_ingest", map[string]any{
		"document_path": "/home", "lineage": "lm-en", "tree": map[string]any{},
	}); isErr {
		t.Error("empty object tree should ingest")
	}
	if _, isErr := mcpCall(t, session, "pagever_ingest", map[string]any{
		"document_path": "", "lineage": "lm-en", "tree": map[string]any{"text": "x"},
	}); !isErr {
		t.Error("empty document path was not a tool error")
	}
}
