package report

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/hazyhaar/pagever/canon"
	"github.com/hazyhaar/pagever/decompose"
	"github.com/hazyhaar/pagever/diff"
)

func nodes(t *testing.T, tree string) []decompose.Node {
	t.Helper()
	v, err := canon.Parse([]byte(tree))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return decompose.Decompose(v)
}

func TestStructure(t *testing.T) {
	en := nodes(t, `{":items":{"a":{},"b":{},"only_en":{}}}`)
	ko := nodes(t, `{":items":{"a":{},"b":{},"only_ko":{},"also_ko":{}}}`)

	rep := Structure("/home", en, ko)
	if rep.SourceComponentCount != 4 || rep.TargetComponentCount != 5 || rep.Identical {
		t.Errorf("report = %+v", rep)
	}
	if !reflect.DeepEqual(rep.ComponentsOnlyInSource, []string{"root/items/only_en"}) {
		t.Errorf("only in source = %v", rep.ComponentsOnlyInSource)
	}
	if !reflect.DeepEqual(rep.ComponentsOnlyInTarget, []string{"root/items/also_ko", "root/items/only_ko"}) {
		t.Errorf("only in target = %v", rep.ComponentsOnlyInTarget)
	}

	same := Structure("/home", en, en)
	if !same.Identical || len(same.ComponentsOnlyInSource) != 0 || same.ComponentsOnlyInTarget == nil {
		t.Errorf("identical report = %+v", same)
	}
}

func TestTranslationPairs(t *testing.T) {
	en := nodes(t, `{"jcr:title":"Home",":items":{
		"a":{"text":"Buy now","sling:resourceType":"core/button"},
		"b":{"text":"Same"},
		"c":{"text":"No target"},
		"d":{"style":"x"},
		"e":{"text":"<b>OK</b>"}}}`)
	ko := nodes(t, `{"jcr:title":"홈",":items":{
		"a":{"text":"지금 구매"},
		"b":{"text":"Same"},
		"c":{"text":""},
		"d":{"style":"y"},
		"e":{"text":"<b>확인</b>"}}}`)

	res := TranslationPairs("/home", en, ko)
	if !res.Identical || len(res.MismatchedPaths) != 0 {
		t.Fatalf("result = %+v", res)
	}
	want := []Pair{
		{SourceText: "Home", TargetText: "홈", DocumentPath: "/home", ComponentPath: "root", Worthy: true},
		{SourceText: "Buy now", TargetText: "지금 구매", DocumentPath: "/home", ComponentPath: "root/items/a", ComponentType: "core/button", Worthy: true},
		{SourceText: "Same", TargetText: "Same", DocumentPath: "/home", ComponentPath: "root/items/b", Worthy: true},
		{SourceText: "<b>OK</b>", TargetText: "<b>확인</b>", DocumentPath: "/home", ComponentPath: "root/items/e"},
	}
	if !reflect.DeepEqual(res.Pairs, want) {
		t.Errorf("pairs =\n%+v\nwant\n%+v", res.Pairs, want)
	}

	mismatch := TranslationPairs("/home", en, nodes(t, `{"jcr:title":"홈"}`))
	if mismatch.Identical || len(mismatch.Pairs) != 0 || len(mismatch.MismatchedPaths) != len(en) {
		t.Errorf("mismatch result = %+v", mismatch)
	}

	empty := TranslationPairs("/home", en, nil)
	if empty.Identical || empty.Pairs == nil || len(empty.MismatchedPaths) != 0 {
		t.Errorf("empty target result = %+v", empty)
	}
}

func TestRenderer_Cell(t *testing.T) {
	r := NewRenderer()
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain | text\nwith newline", `plain \| text with newline`},
		{"<p>Hello <strong>world</strong></p>", "Hello **world**"},
		{`<p>Hi<script>alert(1)</script></p>`, "Hi"},
	}
	for _, c := range cases {
		if got := r.Cell(c.in); got != c.want {
			t.Errorf("Cell(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRenderer_Markdown(t *testing.T) {
	v1 := nodes(t, `{"text":"Hello",":items":{"a":{"text":"World"},"gone":{"text":"Bye"}}}`)
	v2 := nodes(t, `{"text":"Hello",":items":{"a":{"text":"<b>Earth</b>"},"new":{"text":"Hi"}}}`)
	res := diff.Diff(v2, v1)

	var buf bytes.Buffer
	h := Header{DocumentPath: "/home", SourceLineage: "en", SourceVersion: 2, TargetLineage: "en", TargetVersion: 1}
	if err := NewRenderer().Markdown(&buf, h, res, diff.Summarize(res)); err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# /home",
		"`en` v2",
		"| 1 | 1 | 1 | 1 | 1 | 1 |",
		"## Added (1)",
		"| `root/items/new` |  | Hi |",
		"## Removed (1)",
		"| `root/items/gone` |  | Bye |",
		"## Modified (1)",
		"| `root/items/a` |  | **Earth** | World |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "## Unchanged") {
		t.Error("unchanged bucket must not be listed")
	}
}

func TestRenderer_MarkdownEmptySide(t *testing.T) {
	src := nodes(t, `{"text":"Hello"}`)
	res := diff.Diff(src, nil)

	var buf bytes.Buffer
	h := Header{DocumentPath: "/home", SourceLineage: "en", SourceVersion: 1, TargetLineage: "ko"}
	if err := NewRenderer().Markdown(&buf, h, res, diff.Summarize(res)); err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "`ko` (none)") || strings.Contains(out, "(latest)") {
		t.Errorf("empty target side mislabelled:\n%s", out)
	}
}
