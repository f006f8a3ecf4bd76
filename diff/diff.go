// Package diff classifies the components of two versions into added,
// removed, modified and unchanged buckets by comparing their extracted text.
//
// The direction is fixed: Added holds paths present only in the source set,
// Removed holds paths present only in the target set. Swapping the arguments
// swaps those two buckets and the two sides of every Modified record.
//
// All functions here are pure and safe for concurrent use.
package diff

import "github.com/hazyhaar/pagever/decompose"

// ChangeKind names the bucket a record belongs to.
type ChangeKind string

const (
	Added     ChangeKind = "added"
	Removed   ChangeKind = "removed"
	Modified  ChangeKind = "modified"
	Unchanged ChangeKind = "unchanged"
)

// Record is one classified component.
type Record struct {
	ComponentPath string     `json:"component_path"`
	ComponentType string     `json:"component_type,omitempty"`
	Content       string     `json:"content,omitempty"`        // added, removed, unchanged
	SourceContent string     `json:"source_content,omitempty"` // modified
	TargetContent string     `json:"target_content,omitempty"` // modified
	ChangeKind    ChangeKind `json:"change_kind"`
}

// Text returns the text a reader should act on: Content, or the source side
// of a modified record.
func (r Record) Text() string {
	if r.ChangeKind == Modified {
		return r.SourceContent
	}
	return r.Content
}

// Result holds the four buckets. Empty buckets are non-nil so they encode
// as [] rather than null.
type Result struct {
	Added     []Record `json:"added"`
	Removed   []Record `json:"removed"`
	Modified  []Record `json:"modified"`
	Unchanged []Record `json:"unchanged"`
}

// Diff compares source against target. Within a bucket records follow the
// traversal order of the side they come from. When a path repeats within one
// side the first occurrence is used.
func Diff(source, target []decompose.Node) Result {
	res := Result{
		Added:     []Record{},
		Removed:   []Record{},
		Modified:  []Record{},
		Unchanged: []Record{},
	}
	src := index(source)
	tgt := index(target)

	seen := make(map[string]bool, len(source))
	for _, s := range source {
		if seen[s.Path] {
			continue
		}
		seen[s.Path] = true

		t, ok := tgt[s.Path]
		if !ok {
			res.Added = append(res.Added, Record{
				ComponentPath: s.Path,
				ComponentType: s.Type,
				Content:       ExtractText(s.Content),
				ChangeKind:    Added,
			})
			continue
		}

		typ := s.Type
		if typ == "" {
			typ = t.Type
		}
		st, tt := ExtractText(s.Content), ExtractText(t.Content)
		if st != tt {
			res.Modified = append(res.Modified, Record{
				ComponentPath: s.Path,
				ComponentType: typ,
				SourceContent: st,
				TargetContent: tt,
				ChangeKind:    Modified,
			})
			continue
		}
		res.Unchanged = append(res.Unchanged, Record{
			ComponentPath: s.Path,
			ComponentType: typ,
			Content:       st,
			ChangeKind:    Unchanged,
		})
	}

	clear(seen)
	for _, t := range target {
		if seen[t.Path] {
			continue
		}
		seen[t.Path] = true
		if _, ok := src[t.Path]; ok {
			continue
		}
		res.Removed = append(res.Removed, Record{
			ComponentPath: t.Path,
			ComponentType: t.Type,
			Content:       ExtractText(t.Content),
			ChangeKind:    Removed,
		})
	}
	return res
}

func index(nodes []decompose.Node) map[string]decompose.Node {
	m := make(map[string]decompose.Node, len(nodes))
	for _, n := range nodes {
		if _, dup := m[n.Path]; !dup {
			m[n.Path] = n
		}
	}
	return m
}

// StructurallyIdentical reports whether both sides had the same component
// paths. Decomposition order is a function of the path set, so equal path
// sets also mean equal order.
func StructurallyIdentical(r Result) bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// TextChanges returns the added records that carry text and the modified
// records whose source side carries text, in that order.
func TextChanges(r Result) []Record {
	var out []Record
	for _, rec := range r.Added {
		if rec.Content != "" {
			out = append(out, rec)
		}
	}
	for _, rec := range r.Modified {
		if rec.SourceContent != "" {
			out = append(out, rec)
		}
	}
	return out
}
