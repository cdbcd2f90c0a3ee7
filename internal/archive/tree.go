package archive

import "github.com/git-pkgs/pkginspect/internal/pathutil"

// Node is an entry in a nested listing. Directory nodes carry their
// immediate children in Contents.
type Node struct {
	Entry
	Contents []*Node `json:"contents,omitempty"`
}

// ToTree nests a flat list of entries. Each entry is attached to the node
// of its parent directory when that directory is part of the list, and to
// a synthetic root named root (or "./" when empty) otherwise.
func ToTree(entries []Entry, root string) *Node {
	if root == "" {
		root = "./"
	}
	top := &Node{Entry: Entry{Name: root}}

	nodes := make([]*Node, len(entries))
	dirs := make(map[string]int, len(entries))
	for i, e := range entries {
		nodes[i] = &Node{Entry: e}
		if e.IsDir() {
			dirs[e.Name] = i
		}
	}

	for i, e := range entries {
		parent := top
		if j, ok := dirs[pathutil.Dir(e.Name)]; ok && j != i {
			parent = nodes[j]
		}
		parent.Contents = append(parent.Contents, nodes[i])
	}
	return top
}
