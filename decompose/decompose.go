// Package decompose flattens a nested page model into an ordered sequence of
// component nodes with stable paths and parent links.
//
// Input format: every node is a JSON object. A node may carry its children
// under the reserved ItemsKey as an object mapping child keys to child nodes.
// The component type is read from TypeKey.
//
//	{"text": "Hello", ":items": {"a": {"text": "World"}}}
//
// decomposes into
//
//	root          order 0  parent ""
//	root/items/a  order 1  parent "root"
//
// Traversal is breadth-first; siblings are visited in sorted key order and
// Order is a single counter over the whole traversal. Only object nodes
// become components; any other child value is dropped.
package decompose

import (
	"container/list"
	"fmt"

	"github.com/hazyhaar/pagever/canon"
)

const (
	// ItemsKey is the reserved child-collection key.
	ItemsKey = ":items"
	// TypeKey holds the component type discriminator.
	TypeKey = "sling:resourceType"
	// RootPath is the path of the root component.
	RootPath = "root"

	itemsSegment = "/items/"
)

// Node is one decomposed component, before version stamping.
type Node struct {
	Path       string     `json:"component_path"`
	ParentPath string     `json:"parent_component_path,omitempty"` // "" at the root
	Order      int        `json:"component_order"`
	Type       string     `json:"component_type,omitempty"`
	Content    *canon.Map `json:"component_content"` // node payload minus ItemsKey
	Hash       string     `json:"component_hash,omitempty"`
}

// ChildPath returns the path of the child stored under key.
func ChildPath(parent, key string) string {
	return parent + itemsSegment + key
}

type queued struct {
	obj    *canon.Map
	path   string
	parent string
}

// Decompose walks root breadth-first and returns its components in visit
// order. A non-object root yields no components.
func Decompose(root canon.Value) []Node {
	var nodes []Node
	queue := list.New()
	if obj, ok := root.Map(); ok {
		queue.PushBack(queued{obj: obj, path: RootPath})
	}

	for queue.Len() > 0 {
		cur := queue.Remove(queue.Front()).(queued)

		typ, _ := cur.obj.GetString(TypeKey)
		nodes = append(nodes, Node{
			Path:       cur.path,
			ParentPath: cur.parent,
			Order:      len(nodes),
			Type:       typ,
			Content:    cur.obj.Without(ItemsKey),
		})

		items, ok := cur.obj.Get(ItemsKey)
		if !ok {
			continue
		}
		children, ok := items.Map()
		if !ok {
			continue
		}
		for _, key := range children.SortedKeys() {
			child, _ := children.Get(key)
			obj, ok := child.Map()
			if !ok {
				continue
			}
			queue.PushBack(queued{obj: obj, path: ChildPath(cur.path, key), parent: cur.path})
		}
	}
	return nodes
}

// Validate checks the structural invariants of a decomposed sequence:
// unique paths, strictly increasing order, a single parentless root first,
// and every parent appearing before its children.
func Validate(nodes []Node) error {
	seen := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if seen[n.Path] {
			return fmt.Errorf("decompose: duplicate path %q", n.Path)
		}
		if i > 0 && n.Order <= nodes[i-1].Order {
			return fmt.Errorf("decompose: order not increasing at %q (%d after %d)", n.Path, n.Order, nodes[i-1].Order)
		}
		switch {
		case i == 0 && n.ParentPath != "":
			return fmt.Errorf("decompose: first node %q has parent %q", n.Path, n.ParentPath)
		case i > 0 && n.ParentPath == "":
			return fmt.Errorf("decompose: node %q has no parent", n.Path)
		case i > 0 && !seen[n.ParentPath]:
			return fmt.Errorf("decompose: node %q references unknown parent %q", n.Path, n.ParentPath)
		}
		seen[n.Path] = true
	}
	return nil
}
