package pagekeeper

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/pagever/diff"
)

const (
	enHome = `{"text":"Hello",":items":{"a":{"text":"World","sling:resourceType":"core/text"},"b":{"text":"Bye"}}}`
	koHome = `{"text":"안녕",":items":{"a":{"text":"세계"},"c":{"text":"추가"}}}`
)

func seedHome(t *testing.T, k *Keeper) {
	t.Helper()
	mustIngest(t, k, "/home", "lm-en", enHome)
	mustIngest(t, k, "/home", "spac-ko_KR", koHome)
}

func TestAnalyze_DefaultLineages(t *testing.T) {
	k := testKeeper(t, nil)
	seedHome(t, k)

	a, err := k.Analyze(context.Background(), AnalyzeRequest{DocumentPath: "/home"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.SourceLineage != "lm-en" || a.TargetLineage != "spac-ko_KR" {
		t.Errorf("lineages = %s, %s", a.SourceLineage, a.TargetLineage)
	}
	if a.SourceVersionNumber != 1 || a.TargetVersionNumber != 1 || a.SourceCount != 3 || a.TargetCount != 3 {
		t.Errorf("versions/counts = %+v", a)
	}
	want := diff.Summary{TotalAdded: 1, TotalRemoved: 1, TotalModified: 2, NeedsTranslation: 1, NeedsReview: 2}
	if a.Summary != want {
		t.Errorf("summary = %+v, want %+v", a.Summary, want)
	}
	if a.StructurallyIdentical {
		t.Error("different path sets reported identical")
	}
	if got := a.Changes.Added[0]; got.ComponentPath != "root/items/b" || got.Content != "Bye" {
		t.Errorf("added = %+v", got)
	}
	if got := a.Changes.Removed[0]; got.ComponentPath != "root/items/c" {
		t.Errorf("removed = %+v", got)
	}
	if got := a.Changes.Modified[1]; got.ComponentType != "core/text" || got.SourceContent != "World" || got.TargetContent != "세계" {
		t.Errorf("modified = %+v", got)
	}
	if a.Edits != nil {
		t.Error("edits returned without being requested")
	}
}

func TestAnalyze_VersionsAndEdits(t *testing.T) {
	k := testKeeper(t, nil)
	ctx := context.Background()
	mustIngest(t, k, "/home", "en", `{"text":"Hello world"}`)
	mustIngest(t, k, "/home", "en", `{"text":"Hello there world"}`)

	a, err := k.Analyze(ctx, AnalyzeRequest{
		DocumentPath: "/home", SourceLineage: "en", TargetLineage: "en",
		SourceVersion: 2, TargetVersion: 1, InlineEdits: true,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Changes.Modified) != 1 || !a.StructurallyIdentical {
		t.Fatalf("changes = %+v", a.Changes)
	}
	edits := a.Edits["root"]
	if len(edits) == 0 {
		t.Fatal("no edits for root")
	}
	var src, tgt strings.Builder
	for _, e := range edits {
		if e.Op != diff.EditInsert {
			src.WriteString(e.Text)
		}
		if e.Op != diff.EditDelete {
			tgt.WriteString(e.Text)
		}
	}
	if src.String() != "Hello there world" || tgt.String() != "Hello world" {
		t.Errorf("edits rebuild %q -> %q", src.String(), tgt.String())
	}

	if _, err := k.Analyze(ctx, AnalyzeRequest{DocumentPath: "/home", SourceLineage: "en", SourceVersion: 7}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing exact version err = %v", err)
	}
	if _, err := k.Analyze(ctx, AnalyzeRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty document err = %v", err)
	}
}

func TestAnalyze_EmptyTarget(t *testing.T) {
	k := testKeeper(t, nil)
	mustIngest(t, k, "/home", "lm-en", enHome)

	a, err := k.Analyze(context.Background(), AnalyzeRequest{DocumentPath: "/home"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.TargetVersionNumber != 0 || a.TargetCount != 0 || len(a.Changes.Added) != 3 || len(a.Changes.Removed) != 0 {
		t.Errorf("analysis = %+v", a)
	}
}

func TestAnalyzeBatch(t *testing.T) {
	k := testKeeper(t, nil)
	seedHome(t, k)

	items := k.AnalyzeBatch(context.Background(), []string{"/home", "/missing"}, AnalyzeRequest{SourceVersion: 1})
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].DocumentPath != "/home" || items[0].Err != nil || items[0].Analysis.Summary.TotalModified != 2 {
		t.Errorf("item 0 = %+v", items[0])
	}
	if items[1].DocumentPath != "/missing" || !errors.Is(items[1].Err, ErrNotFound) || items[1].Error == "" {
		t.Errorf("item 1 = %+v", items[1])
	}
}

func TestStructureAndPairs(t *testing.T) {
	k := testKeeper(t, nil)
	ctx := context.Background()
	seedHome(t, k)

	rep, err := k.Structure(ctx, AnalyzeRequest{DocumentPath: "/home"})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Identical || len(rep.ComponentsOnlyInSource) != 1 || len(rep.ComponentsOnlyInTarget) != 1 {
		t.Errorf("structure = %+v", rep)
	}

	tm, err := k.TranslationPairs(ctx, AnalyzeRequest{DocumentPath: "/home"})
	if err != nil {
		t.Fatal(err)
	}
	if tm.Identical || len(tm.Pairs) != 0 || len(tm.MismatchedPaths) != 3 {
		t.Errorf("mismatched tm = %+v", tm)
	}

	mustIngest(t, k, "/home", "spac-ko_KR", `{"text":"안녕",":items":{"a":{"text":"세계"},"b":{"text":"잘가"}}}`)
	tm, err = k.TranslationPairs(ctx, AnalyzeRequest{DocumentPath: "/home"})
	if err != nil {
		t.Fatal(err)
	}
	if !tm.Identical || len(tm.Pairs) != 3 || tm.Pairs[1].SourceText != "World" || tm.Pairs[1].TargetText != "세계" {
		t.Errorf("tm = %+v", tm)
	}
}

func TestWriteMarkdown(t *testing.T) {
	k := testKeeper(t, nil)
	seedHome(t, k)

	var buf bytes.Buffer
	if err := k.WriteMarkdown(context.Background(), &buf, AnalyzeRequest{DocumentPath: "/home"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"# /home", "`lm-en` v1", "`spac-ko_KR` v1", "## Added (1)", "## Removed (1)", "## Modified (2)"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}
