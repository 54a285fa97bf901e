package state

import (
	"github.com/selfpatch/sovdtui/internal/sovd"
)

// TreeNode is one cached entity in the discovery tree. Nodes are owned by
// the store's path index and mutated only under the store lock.
type TreeNode struct {
	ID          string
	Name        string
	Kind        sovd.NodeKind
	Path        string
	Owner       string // owning component ID for topic/operation leaves
	HasChildren bool
	Loaded      bool     // children fetched at least once
	Children    []string // child paths, in gateway order
	Payload     sovd.Payload
}

// TreeRow is one visible row of the flattened tree, as rendered by the UI.
type TreeRow struct {
	Path        string
	Depth       int
	Name        string
	Kind        sovd.NodeKind
	HasChildren bool
	Expanded    bool
	Loaded      bool
	Loading     bool
}

// nodeFromSummary builds a tree node under parentPath from a discovery
// listing entry, decoding the kind-specific payload best-effort.
func nodeFromSummary(parentPath string, s sovd.EntitySummary) *TreeNode {
	payload, _ := sovd.DecodePayload(s.Type, s.Data)
	return &TreeNode{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        s.Type,
		Path:        parentPath + "/" + s.ID,
		HasChildren: s.HasChildren,
		Payload:     payload,
	}
}

// flattenTree walks the roots depth-first, descending only into expanded
// nodes, and produces the row list the tree pane renders. Caller holds the
// store lock.
func (s *Store) flattenTree() []TreeRow {
	rows := make([]TreeRow, 0, len(s.nodes))
	var walk func(path string, depth int)
	walk = func(path string, depth int) {
		node, ok := s.nodes[path]
		if !ok {
			return
		}
		_, loading := s.loadingPaths[path]
		expanded := s.expanded[path]
		rows = append(rows, TreeRow{
			Path:        path,
			Depth:       depth,
			Name:        node.Name,
			Kind:        node.Kind,
			HasChildren: node.HasChildren,
			Expanded:    expanded,
			Loaded:      node.Loaded,
			Loading:     loading,
		})
		if !expanded {
			return
		}
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	for _, root := range s.roots {
		walk(root, 0)
	}
	return rows
}

// dropSubtree removes a node's descendants from the path index. Used when
// a reload replaces children wholesale.
func (s *Store) dropSubtree(path string) {
	node, ok := s.nodes[path]
	if !ok {
		return
	}
	for _, child := range node.Children {
		s.dropSubtree(child)
		delete(s.nodes, child)
		delete(s.expanded, child)
	}
	node.Children = nil
	node.Loaded = false
}
