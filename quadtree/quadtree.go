// Package quadtree implements a generic quadtree with refine/reduce
// traversals. A node owns its four children exclusively: they are
// either all present or all absent, never a partial set.
package quadtree

// Node is a node of a quadtree carrying a payload of type T. Children,
// when present, are held in fixed SW, SE, NW, NE order.
type Node[T any] struct {
	Data     T
	children *[4]Node[T]
}

// NewLeaf returns a childless node carrying data.
func NewLeaf[T any](data T) *Node[T] {
	return &Node[T]{Data: data}
}

// HasChildren reports whether n currently owns four children.
func (n *Node[T]) HasChildren() bool {
	return n.children != nil
}

// Child returns the i-th child (0=SW, 1=SE, 2=NW, 3=NE). It panics if
// n is a leaf or i is out of range.
func (n *Node[T]) Child(i int) *Node[T] {
	return &n.children[i]
}

// AddChildren gives n four children built from data, in SW/SE/NW/NE
// order. A no-op if n already has children.
func (n *Node[T]) AddChildren(data [4]T) {
	if n.children != nil {
		return
	}
	children := &[4]Node[T]{}
	for i := range data {
		children[i] = Node[T]{Data: data[i]}
	}
	n.children = children
}

// RemoveChildren drops n's children, turning it back into a leaf.
func (n *Node[T]) RemoveChildren() {
	n.children = nil
}

// Walk visits n and, if present, every node of its subtree in
// pre-order.
func (n *Node[T]) Walk(visit func(*Node[T])) {
	visit(n)
	if n.children == nil {
		return
	}
	for i := range n.children {
		n.children[i].Walk(visit)
	}
}

// Refine performs a top-down pre-order traversal: any node whose
// children are absent and for which shouldRefine(data) is true gains
// four children built by makeChildren(data). The traversal then
// recurses into all children, old and new. Idempotent when
// shouldRefine is stable across calls.
func Refine[T any](root *Node[T], shouldRefine func(T) bool, makeChildren func(T) [4]T) {
	if root.children == nil && shouldRefine(root.Data) {
		root.AddChildren(makeChildren(root.Data))
	}
	if root.children == nil {
		return
	}
	for i := range root.children {
		Refine(&root.children[i], shouldRefine, makeChildren)
	}
}

// Reduce performs a bottom-up collapse: root's four children are
// dropped when mayDrop returns true for every one of them. Before
// removal, onDrop (if non-nil) is called once per dropped child, in
// fixed order, so callers can emit events or evict buffers for the
// child and anything still nested beneath it. When children survive
// the check, Reduce recurses into them instead.
func Reduce[T any](root *Node[T], mayDrop func(T) bool, onDrop func(*Node[T])) {
	if root.children == nil {
		return
	}
	dropAll := true
	for i := range root.children {
		if !mayDrop(root.children[i].Data) {
			dropAll = false
			break
		}
	}
	if dropAll {
		for i := range root.children {
			if onDrop != nil {
				onDrop(&root.children[i])
			}
		}
		root.RemoveChildren()
		return
	}
	for i := range root.children {
		Reduce(&root.children[i], mayDrop, onDrop)
	}
}

// OnTheFlyTraverse returns the frontier (leaves) of a traversal driven
// purely by predicate and refine, without building or mutating any
// tree. Starting from rootData, whenever predicate(data) is true the
// traversal descends into refine(data) instead of treating data as a
// leaf of the result.
func OnTheFlyTraverse[T any](rootData T, predicate func(T) bool, refine func(T) [4]T) []T {
	if !predicate(rootData) {
		return []T{rootData}
	}
	var leaves []T
	for _, child := range refine(rootData) {
		leaves = append(leaves, OnTheFlyTraverse(child, predicate, refine)...)
	}
	return leaves
}
