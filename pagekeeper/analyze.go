package pagekeeper

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/pagever/decompose"
	"github.com/hazyhaar/pagever/diff"
	"github.com/hazyhaar/pagever/report"
)

// AnalyzeRequest selects the two sides of an analysis. Empty lineages fall
// back to the configured analysis lineages. A zero version means the latest
// version of that side. TextOnly adds the added and modified records that
// carry source text as Analysis.TextChanges.
type AnalyzeRequest struct {
	DocumentPath  string `json:"document_path"`
	SourceLineage string `json:"source_lineage,omitempty"`
	TargetLineage string `json:"target_lineage,omitempty"`
	SourceVersion int    `json:"source_version,omitempty"`
	TargetVersion int    `json:"target_version,omitempty"`
	InlineEdits   bool   `json:"inline_edits,omitempty"`
	TextOnly      bool   `json:"text_only,omitempty"`
}

// Analysis is the diff of two component sets of one document.
type Analysis struct {
	DocumentPath          string                 `json:"document_path"`
	SourceLineage         string                 `json:"source_lineage"`
	TargetLineage         string                 `json:"target_lineage"`
	SourceVersionNumber   int                    `json:"source_version_number"` // 0 when the side is empty
	TargetVersionNumber   int                    `json:"target_version_number"`
	SourceCount           int                    `json:"source_count"`
	TargetCount           int                    `json:"target_count"`
	Changes               diff.Result            `json:"changes"`
	Summary               diff.Summary           `json:"summary"`
	StructurallyIdentical bool                   `json:"structurally_identical"`
	Edits                 map[string][]diff.Edit `json:"edits,omitempty"`
	TextChanges           []diff.Record          `json:"text_changes,omitempty"`
}

// side is one resolved half of an AnalyzeRequest.
type side struct {
	lineage string
	version int
	nodes   []decompose.Node
}

func (k *Keeper) normalize(req AnalyzeRequest) (AnalyzeRequest, error) {
	if req.DocumentPath == "" {
		return req, fmt.Errorf("%w: document path is required", ErrInvalidRequest)
	}
	if req.SourceVersion < 0 || req.TargetVersion < 0 {
		return req, fmt.Errorf("%w: negative version", ErrInvalidRequest)
	}
	if req.SourceLineage == "" {
		req.SourceLineage = k.config.Analysis.SourceLineage
	}
	if req.TargetLineage == "" {
		req.TargetLineage = k.config.Analysis.TargetLineage
	}
	return req, nil
}

// resolve reads one side: an exact version, or the latest one when n is 0.
func (k *Keeper) resolve(ctx context.Context, doc, lineage string, n int) (side, error) {
	s := side{lineage: lineage, version: n}
	var (
		comps []*Component
		err   error
	)
	if n > 0 {
		comps, err = k.store.VersionComponents(ctx, doc, lineage, n)
	} else {
		comps, s.version, err = k.current(ctx, doc, lineage)
	}
	if err != nil {
		return s, fmt.Errorf("%s %s: %w", doc, lineage, err)
	}
	s.nodes = nodes(comps)
	return s, nil
}

// sides resolves both halves of req concurrently.
func (k *Keeper) sides(ctx context.Context, req AnalyzeRequest) (AnalyzeRequest, side, side, error) {
	req, err := k.normalize(req)
	if err != nil {
		return req, side{}, side{}, err
	}
	var src, tgt side
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		src, err = k.resolve(gctx, req.DocumentPath, req.SourceLineage, req.SourceVersion)
		return err
	})
	g.Go(func() (err error) {
		tgt, err = k.resolve(gctx, req.DocumentPath, req.TargetLineage, req.TargetVersion)
		return err
	})
	if err := g.Wait(); err != nil {
		return req, src, tgt, err
	}
	return req, src, tgt, nil
}

// Analyze diffs the source side of req against its target side.
func (k *Keeper) Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	req, src, tgt, err := k.sides(ctx, req)
	if err != nil {
		return nil, err
	}
	k.metrics.analysis(req.SourceVersion > 0 || req.TargetVersion > 0)

	res := diff.Diff(src.nodes, tgt.nodes)
	a := &Analysis{
		DocumentPath:          req.DocumentPath,
		SourceLineage:         src.lineage,
		TargetLineage:         tgt.lineage,
		SourceVersionNumber:   src.version,
		TargetVersionNumber:   tgt.version,
		SourceCount:           len(src.nodes),
		TargetCount:           len(tgt.nodes),
		Changes:               res,
		Summary:               diff.Summarize(res),
		StructurallyIdentical: diff.StructurallyIdentical(res),
	}
	if req.InlineEdits || k.config.Analysis.InlineEdits {
		a.Edits = diff.ModifiedEdits(res)
	}
	if req.TextOnly {
		a.TextChanges = diff.TextChanges(res)
	}
	return a, nil
}

// BatchItem is the analysis of one document in AnalyzeBatch.
type BatchItem struct {
	DocumentPath string    `json:"document_path"`
	Analysis     *Analysis `json:"analysis,omitempty"`
	Error        string    `json:"error,omitempty"`
	Err          error     `json:"-"`
}

// AnalyzeBatch runs req against every document in docs on the ingest worker
// pool. A failing document records its error and does not stop the rest.
func (k *Keeper) AnalyzeBatch(ctx context.Context, docs []string, req AnalyzeRequest) []BatchItem {
	items := make([]BatchItem, len(docs))
	var g errgroup.Group
	g.SetLimit(k.config.Ingest.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			r := req
			r.DocumentPath = doc
			items[i].DocumentPath = doc
			items[i].Analysis, items[i].Err = k.Analyze(ctx, r)
			if items[i].Err != nil {
				items[i].Error = items[i].Err.Error()
			}
			return nil
		})
	}
	g.Wait()
	return items
}

// Structure reports the component paths present on only one side.
func (k *Keeper) Structure(ctx context.Context, req AnalyzeRequest) (*report.StructureReport, error) {
	req, src, tgt, err := k.sides(ctx, req)
	if err != nil {
		return nil, err
	}
	rep := report.Structure(req.DocumentPath, src.nodes, tgt.nodes)
	return &rep, nil
}

// TranslationPairs builds translation memory pairs from the two sides.
func (k *Keeper) TranslationPairs(ctx context.Context, req AnalyzeRequest) (*report.TMResult, error) {
	req, src, tgt, err := k.sides(ctx, req)
	if err != nil {
		return nil, err
	}
	res := report.TranslationPairs(req.DocumentPath, src.nodes, tgt.nodes)
	return &res, nil
}

// WriteMarkdown analyzes req and renders the result as Markdown to w.
func (k *Keeper) WriteMarkdown(ctx context.Context, w io.Writer, req AnalyzeRequest) error {
	a, err := k.Analyze(ctx, req)
	if err != nil {
		return err
	}
	h := report.Header{
		DocumentPath:  a.DocumentPath,
		SourceLineage: a.SourceLineage,
		SourceVersion: a.SourceVersionNumber,
		TargetLineage: a.TargetLineage,
		TargetVersion: a.TargetVersionNumber,
	}
	return k.renderer.Markdown(w, h, a.Changes, a.Summary)
}
