package tree

import "github.com/lucidrook/conftree/pkg/game"

// Tree is the arena backing store: nodes are appended and never removed, and all relations are
// expressed as indices into the parallel slices below rather than pointers, per §9's "cyclic
// references" design note.
type Tree struct {
	nodes     []Node
	positions []game.Position
	parentIdx []int
	childIdx  [][]int
	seq       []int   // creation order; the stable tie-breaker for equal-confidence eligibility
	moveUCI   []string // the move (UCI long algebraic) that reached this node; "" at the root

	altCounter map[int]int // victim node idx -> next branch-local alternative counter
	nextSeq    int
}

func newTree() *Tree {
	return &Tree{altCounter: make(map[int]int)}
}

// add appends a new node to the arena and returns its index. parent is -1 for the root.
func (t *Tree) add(n Node, pos game.Position, parent int, moveUCI string) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, n)
	t.positions = append(t.positions, pos)
	t.parentIdx = append(t.parentIdx, parent)
	t.childIdx = append(t.childIdx, nil)
	t.seq = append(t.seq, t.nextSeq)
	t.moveUCI = append(t.moveUCI, moveUCI)
	t.nextSeq++

	if parent >= 0 {
		t.childIdx[parent] = append(t.childIdx[parent], idx)
		t.nodes[parent].ChildrenIDs = append(t.nodes[parent].ChildrenIDs, n.ID)
	}
	return idx
}

func (t *Tree) node(idx int) Node             { return t.nodes[idx] }
func (t *Tree) position(idx int) game.Position { return t.positions[idx] }
func (t *Tree) parent(idx int) int            { return t.parentIdx[idx] }
func (t *Tree) children(idx int) []int        { return t.childIdx[idx] }
func (t *Tree) seqOf(idx int) int             { return t.seq[idx] }
func (t *Tree) moveOf(idx int) string         { return t.moveUCI[idx] }

// nextAlt returns the next 0-based branch-local alternative counter for victim, advancing it.
// Reused across repeated extensions of the same victim so ids never collide.
func (t *Tree) nextAlt(victim int) int {
	n := t.altCounter[victim]
	t.altCounter[victim] = n + 1
	return n
}

// Nodes returns every node in construction order: spine first, then branches in extension order,
// matching §6.2's required response ordering.
func (t *Tree) Nodes() []Node {
	out := make([]Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }
