package decompose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hazyhaar/pagever/canon"
)

// Assemble rebuilds the nested tree from a component sequence, placing each
// child under its parent's ItemsKey. Nodes may arrive in any order; Order
// decides sibling sequence.
func Assemble(nodes []Node) (canon.Value, error) {
	if len(nodes) == 0 {
		return canon.NullValue(), fmt.Errorf("decompose: assemble: no nodes")
	}
	sorted := make([]Node, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	if err := Validate(sorted); err != nil {
		return canon.NullValue(), err
	}

	byPath := make(map[string]*canon.Map, len(sorted))
	items := make(map[string]*canon.Map)
	for _, n := range sorted {
		obj := n.Content.Clone()
		byPath[n.Path] = obj
		if n.ParentPath == "" {
			continue
		}
		key, ok := strings.CutPrefix(n.Path, n.ParentPath+itemsSegment)
		if !ok {
			return canon.NullValue(), fmt.Errorf("decompose: path %q is not under parent %q", n.Path, n.ParentPath)
		}
		children := items[n.ParentPath]
		if children == nil {
			children = canon.NewMap()
			items[n.ParentPath] = children
		}
		children.Set(key, canon.ObjectValue(obj))
	}
	for parent, children := range items {
		byPath[parent].Set(ItemsKey, canon.ObjectValue(children))
	}
	return canon.ObjectValue(byPath[sorted[0].Path]), nil
}
