package ns

import "kora/kirq"

// node is one path segment's place in the tree. A node may exist purely
// as an intermediate (resource == nil) so that names like "Devices" can
// have children without being themselves addressable (§4.7).
type node struct {
	children map[string]*node
	resource *Resource
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Tree is the namespace: a tree keyed by ordered, non-empty path segments
// (§3, §4.7). All mutation goes through the guard, matching §5's "Namespace
// + handles: mutated only with interrupts off."
type Tree struct {
	guard kirq.Guard
	root  *node
}

// NewTree returns an empty namespace tree.
func NewTree() *Tree {
	return &Tree{root: newNode()}
}

// Insert creates any missing intermediate nodes along path and places res
// at the terminal node (§4.7 insert).
func (t *Tree) Insert(path []string, res *Resource) {
	t.guard.Do(func() {
		n := t.root
		for _, seg := range path {
			child, ok := n.children[seg]
			if !ok {
				child = newNode()
				n.children[seg] = child
			}
			n = child
		}
		n.resource = res
	})
}

// Remove detaches the subtree rooted at path (§4.7 remove).
func (t *Tree) Remove(path []string) {
	t.guard.Do(func() {
		if len(path) == 0 {
			t.root = newNode()
			return
		}
		n := t.root
		for _, seg := range path[:len(path)-1] {
			child, ok := n.children[seg]
			if !ok {
				return
			}
			n = child
		}
		delete(n.children, path[len(path)-1])
	})
}

// Get returns the resource at path, if any (§4.7 get).
func (t *Tree) Get(path []string) (*Resource, bool) {
	var res *Resource
	var ok bool
	t.guard.Do(func() {
		n := t.walk(path)
		if n == nil || n.resource == nil {
			return
		}
		res, ok = n.resource, true
	})
	return res, ok
}

func (t *Tree) walk(path []string) *node {
	n := t.root
	for _, seg := range path {
		child, found := n.children[seg]
		if !found {
			return nil
		}
		n = child
	}
	return n
}

// Entry is one yield of IterBFS: a path and the resource at it, if any.
type Entry struct {
	Path     []string
	Resource *Resource
}

// IterBFS walks the tree breadth-first, yielding every node's path and its
// optional resource (§4.7 iter_bfs).
func (t *Tree) IterBFS() []Entry {
	var out []Entry
	t.guard.Do(func() {
		type queued struct {
			path []string
			n    *node
		}
		q := []queued{{nil, t.root}}
		for len(q) > 0 {
			cur := q[0]
			q = q[1:]
			out = append(out, Entry{Path: append([]string(nil), cur.path...), Resource: cur.n.resource})
			for seg, child := range cur.n.children {
				q = append(q, queued{path: append(append([]string(nil), cur.path...), seg), n: child})
			}
		}
	})
	return out
}
