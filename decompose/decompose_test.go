package decompose

import (
	"reflect"
	"testing"

	"github.com/hazyhaar/pagever/canon"
)

func parse(t *testing.T, s string) canon.Value {
	t.Helper()
	v, err := canon.Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return v
}

func TestDecompose_TwoComponents(t *testing.T) {
	nodes := Decompose(parse(t, `{"text":"Hello",":items":{"a":{"text":"World"}}}`))
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}

	root := nodes[0]
	if root.Path != "root" || root.Order != 0 || root.ParentPath != "" {
		t.Errorf("root = %+v", root)
	}
	if s, _ := root.Content.GetString("text"); s != "Hello" {
		t.Errorf("root text = %q", s)
	}
	if _, ok := root.Content.Get(ItemsKey); ok {
		t.Error("root content still carries :items")
	}

	child := nodes[1]
	if child.Path != "root/items/a" || child.Order != 1 || child.ParentPath != "root" {
		t.Errorf("child = %+v", child)
	}
	if s, _ := child.Content.GetString("text"); s != "World" {
		t.Errorf("child text = %q", s)
	}
}

func TestDecompose_BreadthFirstSortedOrder(t *testing.T) {
	tree := `{
		":items": {
			"b": {":items": {"z": {}, "y": {}}},
			"a": {":items": {"x": {}}},
			"c": {}
		}
	}`
	nodes := Decompose(parse(t, tree))

	var paths []string
	for i, n := range nodes {
		if n.Order != i {
			t.Errorf("node %s order = %d, want %d", n.Path, n.Order, i)
		}
		paths = append(paths, n.Path)
	}
	want := []string{
		"root",
		"root/items/a",
		"root/items/b",
		"root/items/c",
		"root/items/a/items/x",
		"root/items/b/items/y",
		"root/items/b/items/z",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths =\n%v\nwant\n%v", paths, want)
	}
}

func TestDecompose_DropsNonObjects(t *testing.T) {
	nodes := Decompose(parse(t, `{":items":{"s":"text","n":3,"arr":[{"text":"x"}],"ok":{"text":"y"}}}`))
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	if nodes[1].Path != "root/items/ok" {
		t.Errorf("kept %q, want root/items/ok", nodes[1].Path)
	}

	if got := Decompose(parse(t, `["not","an","object"]`)); len(got) != 0 {
		t.Errorf("array root produced %d nodes", len(got))
	}
	if got := Decompose(parse(t, `{":items":"oops"}`)); len(got) != 1 {
		t.Errorf("non-object :items produced %d nodes, want 1", len(got))
	}
}

func TestDecompose_Type(t *testing.T) {
	nodes := Decompose(parse(t, `{"sling:resourceType":"site/page",":items":{"t":{"sling:resourceType":"core/text"},"u":{"sling:resourceType":7}}}`))
	if nodes[0].Type != "site/page" || nodes[1].Type != "core/text" || nodes[2].Type != "" {
		t.Errorf("types = %q %q %q", nodes[0].Type, nodes[1].Type, nodes[2].Type)
	}
}

func TestDecompose_Deterministic(t *testing.T) {
	a := Decompose(parse(t, `{"x":1,":items":{"q":{"k":"v","j":"w"},"p":{}}}`))
	b := Decompose(parse(t, `{":items":{"p":{},"q":{"j":"w","k":"v"}},"x":1}`))
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		ha, _ := canon.HashMap(a[i].Content)
		hb, _ := canon.HashMap(b[i].Content)
		if a[i].Path != b[i].Path || a[i].Order != b[i].Order || ha != hb {
			t.Errorf("node %d differs: %s/%d/%s vs %s/%d/%s", i, a[i].Path, a[i].Order, ha, b[i].Path, b[i].Order, hb)
		}
	}
}

func TestValidate(t *testing.T) {
	nodes := Decompose(parse(t, `{":items":{"a":{":items":{"c":{}}},"b":{}}}`))
	if err := Validate(nodes); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	broken := append([]Node(nil), nodes...)
	broken[2].ParentPath = "root/items/missing"
	if err := Validate(broken); err == nil {
		t.Error("expected error for unknown parent")
	}
	dup := append([]Node(nil), nodes...)
	dup[1].Path = "root"
	if err := Validate(dup); err == nil {
		t.Error("expected error for duplicate path")
	}

	clash := Decompose(parse(t, `{":items":{"a":{":items":{"b":{}}},"a/items/b":{}}}`))
	if err := Validate(clash); err == nil {
		t.Error("expected error for keys that collide with nested paths")
	}
}

func TestAssemble_RoundTrip(t *testing.T) {
	tree := parse(t, `{
		"sling:resourceType":"site/page","jcr:title":"Home",
		":items":{
			"hero":{"text":"<p>Hi</p>",":items":{"cta":{"title":"Go"}}},
			"body":{"text":"Body","tags":["a","b"]}
		}
	}`)
	nodes := Decompose(tree)

	// Shuffle to prove Assemble relies on Order, not slice position.
	shuffled := []Node{nodes[3], nodes[0], nodes[2], nodes[1]}
	back, err := Assemble(shuffled)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want, _ := canon.Hash(tree)
	got, _ := canon.Hash(back)
	if got != want {
		t.Errorf("round trip hash = %s, want %s", got, want)
	}

	again := Decompose(back)
	if len(again) != len(nodes) {
		t.Fatalf("re-decompose: %d nodes, want %d", len(again), len(nodes))
	}
	for i := range nodes {
		if again[i].Path != nodes[i].Path || again[i].ParentPath != nodes[i].ParentPath || again[i].Order != nodes[i].Order {
			t.Errorf("node %d: %+v vs %+v", i, again[i], nodes[i])
		}
	}
}
