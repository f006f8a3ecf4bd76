package pagekeeper

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagever/canon"
	"github.com/hazyhaar/pagever/kit"
)

// RegisterMCP registers the pagever tools on an MCP server.
func (k *Keeper) RegisterMCP(srv *mcp.Server) {
	k.registerIngestTool(srv)
	k.registerAnalyzeTool(srv)
	k.registerComponentsTool(srv)
	k.registerVersionsTool(srv)
	k.registerCatalogTool(srv)
	k.registerStatsTool(srv)
}

func (k *Keeper) tool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(kit.Logging(k.logger, tool.Name), k.metrics.countCalls(tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

// --- ingest ---

type ingestReq struct {
	DocumentPath string      `json:"document_path"`
	Lineage      string      `json:"lineage"`
	Tree         canon.Value `json:"tree"`
	SourceFile   string      `json:"source_file"`
}

func (k *Keeper) registerIngestTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagever_ingest",
		Description: "Store a page snapshot as a new version of (document_path, lineage), unless it is identical to the latest one.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"document_path": str("Document path, e.g. /content/site/en/home"),
			"lineage":       str("Lineage (locale variant), e.g. lm-en"),
			"tree":          map[string]any{"type": "object", "description": "Page model tree; children under \":items\""},
			"source_file":   str("Optional name of the file the snapshot came from"),
		}, "document_path", "lineage", "tree"),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*ingestReq)
		return k.Ingest(ctx, Snapshot{
			DocumentPath: r.DocumentPath,
			Lineage:      r.Lineage,
			Tree:         r.Tree,
			SourceFile:   r.SourceFile,
		})
	}
	k.tool(srv, tool, endpoint, kit.DecodeArgs[ingestReq]())
}

// --- analyze ---

func (k *Keeper) registerAnalyzeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagever_analyze",
		Description: "Diff the source lineage of a document against its target lineage: added, removed, modified and unchanged components plus a summary.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"document_path":  str("Document path"),
			"source_lineage": str("Source lineage; defaults to the configured one"),
			"target_lineage": str("Target lineage; defaults to the configured one"),
			"source_version": integer("Exact source version; 0 or absent for the latest"),
			"target_version": integer("Exact target version; 0 or absent for the latest"),
			"inline_edits":   map[string]any{"type": "boolean", "description": "Include word-level edits for modified components"},
			"text_only":      map[string]any{"type": "boolean", "description": "Also list the added and modified components that carry source text"},
		}, "document_path"),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return k.Analyze(ctx, *req.(*AnalyzeRequest))
	}
	k.tool(srv, tool, endpoint, kit.DecodeArgs[AnalyzeRequest]())
}

// --- components ---

type componentsReq struct {
	DocumentPath string `json:"document_path"`
	Lineage      string `json:"lineage"`
	Version      int    `json:"version"`
	Mode         string `json:"mode"`
}

func (k *Keeper) registerComponentsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagever_components",
		Description: "List the components of a document lineage: the current version, an exact version, or the newest row of every path ever seen (mode=latest).",
		InputSchema: kit.ObjectSchema(map[string]any{
			"document_path": str("Document path"),
			"lineage":       str("Lineage"),
			"version":       integer("Exact version number; overrides mode"),
			"mode":          map[string]any{"type": "string", "enum": []string{"current", "latest"}},
		}, "document_path", "lineage"),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*componentsReq)
		switch {
		case r.Version > 0:
			return k.VersionComponents(ctx, r.DocumentPath, r.Lineage, r.Version)
		case r.Mode == "latest":
			return k.LatestComponents(ctx, r.DocumentPath, r.Lineage)
		case r.Mode == "" || r.Mode == "current":
			return k.CurrentComponents(ctx, r.DocumentPath, r.Lineage)
		default:
			return nil, fmt.Errorf("%w: mode %q", ErrInvalidRequest, r.Mode)
		}
	}
	k.tool(srv, tool, endpoint, kit.DecodeArgs[componentsReq]())
}

// --- versions ---

type versionsReq struct {
	DocumentPath string `json:"document_path"`
	Lineage      string `json:"lineage"`
}

func (k *Keeper) registerVersionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagever_versions",
		Description: "List the versions of a document lineage, newest first.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"document_path": str("Document path"),
			"lineage":       str("Lineage"),
		}, "document_path", "lineage"),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*versionsReq)
		versions, err := k.ListVersions(ctx, r.DocumentPath, r.Lineage)
		if err != nil {
			return nil, err
		}
		return map[string]any{"versions": nonNil(versions)}, nil
	}
	k.tool(srv, tool, endpoint, kit.DecodeArgs[versionsReq]())
}

// --- catalog ---

func (k *Keeper) registerCatalogTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagever_catalog",
		Description: "List every (lineage, version number) with its document count.",
		InputSchema: kit.ObjectSchema(map[string]any{}),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		entries, err := k.Catalog(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"catalog": nonNil(entries)}, nil
	}
	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}
	k.tool(srv, tool, endpoint, decode)
}

// --- stats ---

func (k *Keeper) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagever_stats",
		Description: "Get pagever statistics: versions, components, documents and lineages.",
		InputSchema: kit.ObjectSchema(map[string]any{}),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return k.Stats(ctx)
	}
	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}
	k.tool(srv, tool, endpoint, decode)
}
