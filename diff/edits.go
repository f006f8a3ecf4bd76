package diff

import (
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// EditOp is the operation of one inline edit.
type EditOp string

const (
	EditEqual  EditOp = "equal"
	EditInsert EditOp = "insert"
	EditDelete EditOp = "delete"
)

// Edit is one span of an inline text diff.
type Edit struct {
	Op   EditOp `json:"op"`
	Text string `json:"text"`
}

// InlineEdits returns the spans that turn from into to, with the diff
// cleaned up to word-ish boundaries. Identical inputs yield a single equal
// span, or nothing when both are empty.
func InlineEdits(from, to string) []Edit {
	dmp := diffpatch.New()
	diffs := dmp.DiffMain(from, to, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	edits := make([]Edit, 0, len(diffs))
	for _, d := range diffs {
		var op EditOp
		switch d.Type {
		case diffpatch.DiffInsert:
			op = EditInsert
		case diffpatch.DiffDelete:
			op = EditDelete
		default:
			op = EditEqual
		}
		edits = append(edits, Edit{Op: op, Text: d.Text})
	}
	return edits
}

// ModifiedEdits computes InlineEdits for every modified record, keyed by
// component path. Edits run from the source text to the target text.
func ModifiedEdits(r Result) map[string][]Edit {
	out := make(map[string][]Edit, len(r.Modified))
	for _, rec := range r.Modified {
		out[rec.ComponentPath] = InlineEdits(rec.SourceContent, rec.TargetContent)
	}
	return out
}
