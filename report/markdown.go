package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/pagever/diff"
)

// Header identifies the two sides of a rendered diff.
type Header struct {
	DocumentPath  string
	SourceLineage string
	SourceVersion int
	TargetLineage string
	TargetVersion int // 0 when the side has no versions
}

// Renderer turns component rich text into Markdown table cells. It is safe
// for concurrent use.
type Renderer struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewRenderer builds a Renderer with a UGC sanitizing policy.
func NewRenderer() *Renderer {
	return &Renderer{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Cell renders s for a single Markdown table cell: markup is sanitized and
// converted, then newlines are flattened and pipes escaped.
func (r *Renderer) Cell(s string) string {
	if s == "" {
		return ""
	}
	out := s
	if strings.ContainsAny(s, "<&") {
		clean := r.policy.Sanitize(s)
		md, err := r.conv.ConvertString(clean)
		if err == nil {
			out = md
		} else {
			out = diff.CleanText(s)
		}
	}
	out = strings.Join(strings.Fields(out), " ")
	return strings.ReplaceAll(out, "|", `\|`)
}

// Markdown writes the diff as a Markdown document: a summary table followed
// by one table per non-empty change bucket. Unchanged components are counted
// but not listed.
func (r *Renderer) Markdown(w io.Writer, h Header, res diff.Result, sum diff.Summary) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# %s\n\n", h.DocumentPath)
	fmt.Fprintf(bw, "Source: `%s` %s · Target: `%s` %s\n\n",
		h.SourceLineage, versionLabel(h.SourceVersion), h.TargetLineage, versionLabel(h.TargetVersion))

	bw.WriteString("| Added | Removed | Modified | Unchanged | Needs translation | Needs review |\n")
	bw.WriteString("|---:|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(bw, "| %d | %d | %d | %d | %d | %d |\n",
		sum.TotalAdded, sum.TotalRemoved, sum.TotalModified, sum.TotalUnchanged,
		sum.NeedsTranslation, sum.NeedsReview)

	r.bucket(bw, "Added", res.Added, false)
	r.bucket(bw, "Removed", res.Removed, false)
	r.bucket(bw, "Modified", res.Modified, true)

	return bw.Flush()
}

func (r *Renderer) bucket(w *bufio.Writer, title string, recs []diff.Record, modified bool) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n## %s (%d)\n\n", title, len(recs))
	if modified {
		w.WriteString("| Component | Type | Source | Target |\n|---|---|---|---|\n")
	} else {
		w.WriteString("| Component | Type | Text |\n|---|---|---|\n")
	}
	for _, rec := range recs {
		if modified {
			fmt.Fprintf(w, "| `%s` | %s | %s | %s |\n",
				rec.ComponentPath, r.Cell(rec.ComponentType), r.Cell(rec.SourceContent), r.Cell(rec.TargetContent))
			continue
		}
		fmt.Fprintf(w, "| `%s` | %s | %s |\n", rec.ComponentPath, r.Cell(rec.ComponentType), r.Cell(rec.Content))
	}
}

func versionLabel(n int) string {
	if n <= 0 {
		return "(none)"
	}
	return fmt.Sprintf("v%d", n)
}
