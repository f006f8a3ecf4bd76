// Package report derives the downstream views of a pair of component sets:
// the structure mismatch report, translation memory pairs, and a Markdown
// rendering of a diff for reviewers.
package report

import (
	"github.com/hazyhaar/pagever/decompose"
	"github.com/hazyhaar/pagever/diff"
)

// StructureReport lists the component paths present on only one side.
type StructureReport struct {
	DocumentPath           string   `json:"document_path"`
	SourceComponentCount   int      `json:"source_component_count"`
	TargetComponentCount   int      `json:"target_component_count"`
	ComponentsOnlyInSource []string `json:"components_only_in_source"`
	ComponentsOnlyInTarget []string `json:"components_only_in_target"`
	Identical              bool     `json:"identical"`
}

// Structure compares the path sets of source and target.
func Structure(doc string, source, target []decompose.Node) StructureReport {
	r := diff.Diff(source, target)
	rep := StructureReport{
		DocumentPath:           doc,
		SourceComponentCount:   len(source),
		TargetComponentCount:   len(target),
		ComponentsOnlyInSource: make([]string, 0, len(r.Added)),
		ComponentsOnlyInTarget: make([]string, 0, len(r.Removed)),
		Identical:              diff.StructurallyIdentical(r),
	}
	for _, rec := range r.Added {
		rep.ComponentsOnlyInSource = append(rep.ComponentsOnlyInSource, rec.ComponentPath)
	}
	for _, rec := range r.Removed {
		rep.ComponentsOnlyInTarget = append(rep.ComponentsOnlyInTarget, rec.ComponentPath)
	}
	return rep
}

// Pair is one translation memory entry. Worthy is false for source text
// too short or too letter-poor to be worth a memory entry once markup is
// stripped.
type Pair struct {
	SourceText    string `json:"source_text"`
	TargetText    string `json:"target_text"`
	DocumentPath  string `json:"document_path"`
	ComponentPath string `json:"component_path"`
	ComponentType string `json:"component_type,omitempty"`
	Worthy        bool   `json:"translation_worthy"`
}

// TMResult is the translation memory built from one document. When the
// two sides are not structurally identical no pairs are produced and the
// source paths are reported as mismatched instead.
type TMResult struct {
	DocumentPath    string   `json:"document_path"`
	Identical       bool     `json:"identical"`
	Pairs           []Pair   `json:"pairs"`
	MismatchedPaths []string `json:"mismatched_paths,omitempty"`
}

// TranslationPairs aligns source and target components by path. Only
// structurally identical documents yield pairs, and only components with
// text on both sides.
func TranslationPairs(doc string, source, target []decompose.Node) TMResult {
	res := TMResult{DocumentPath: doc, Pairs: []Pair{}}
	if len(source) == 0 || len(target) == 0 {
		return res
	}
	r := diff.Diff(source, target)
	if !diff.StructurallyIdentical(r) {
		for _, n := range source {
			res.MismatchedPaths = append(res.MismatchedPaths, n.Path)
		}
		return res
	}
	res.Identical = true

	texts := make(map[string]string, len(r.Modified)+len(r.Unchanged))
	types := make(map[string]string, len(texts))
	for _, rec := range r.Modified {
		if rec.SourceContent != "" && rec.TargetContent != "" {
			texts[rec.ComponentPath] = rec.TargetContent
		}
		types[rec.ComponentPath] = rec.ComponentType
	}
	for _, rec := range r.Unchanged {
		if rec.Content != "" {
			texts[rec.ComponentPath] = rec.Content
		}
		types[rec.ComponentPath] = rec.ComponentType
	}
	for _, n := range source {
		tt, ok := texts[n.Path]
		if !ok {
			continue
		}
		delete(texts, n.Path)
		st := diff.ExtractText(n.Content)
		res.Pairs = append(res.Pairs, Pair{
			SourceText:    st,
			TargetText:    tt,
			DocumentPath:  doc,
			ComponentPath: n.Path,
			ComponentType: types[n.Path],
			Worthy:        diff.IsTranslationWorthy(diff.CleanText(st)),
		})
	}
	return res
}
