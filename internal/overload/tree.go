package overload

import (
	"cmp"
	"fmt"
	"slices"
)

// NodeID addresses a node inside Tree.Nodes.
type NodeID int

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Node is the set of overloads still indistinguishable after the host
// arguments 0..Pos matched the checks on the path from the root.
type Node struct {
	ID     NodeID
	Parent NodeID
	// Children are ordered narrow to wide; see CompareChecks.
	Children []NodeID
	// Pos is the argument position this node's Check tested, -1 at the root.
	Pos   int
	Check Check
	// Overloads holds group indices, in group order.
	Overloads []int
	// Exact is the overload selected when exactly Pos+1 arguments were
	// passed, -1 if none.
	Exact int
}

// Tree is the decision tree for one group, stored as an arena. Node 0 is
// the root.
type Tree struct {
	Group *Group
	Nodes []Node
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return &t.Nodes[0]
}

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) *Node {
	return &t.Nodes[id]
}

// IsTerminal reports whether the node identifies a single overload. Its
// remaining arguments are checked without further branching, and defaulted
// ones may be omitted.
func (n *Node) IsTerminal() bool {
	return len(n.Overloads) == 1
}

// NumericAmbiguous reports whether the node competes with another numeric
// check among its siblings. Lone numeric checks are widened to accept any
// integer-like value.
func (t *Tree) NumericAmbiguous(id NodeID) bool {
	n := t.Node(id)
	if n.Parent == NoNode || !n.Check.Kind.IsNumeric() {
		return false
	}
	count := 0
	for _, sib := range t.Node(n.Parent).Children {
		if t.Node(sib).Check.Kind.IsNumeric() && !t.Node(sib).Check.Variadic {
			count++
		}
	}
	return count > 1
}

// ArgBounds returns the argument counts some overload of the node accepts:
// the smallest MinArgs and the largest MaxArgs, -1 when unbounded.
func (t *Tree) ArgBounds(id NodeID) (lo, hi int) {
	for i, oi := range t.Node(id).Overloads {
		o := t.Group.Overloads[oi]
		if i == 0 || o.MinArgs < lo {
			lo = o.MinArgs
		}
		if hi >= 0 && (o.MaxArgs < 0 || o.MaxArgs > hi) {
			hi = o.MaxArgs
		}
	}
	return lo, hi
}

// Path returns the node ids from the root to id.
func (t *Tree) Path(id NodeID) []NodeID {
	var path []NodeID
	for ; id != NoNode; id = t.Node(id).Parent {
		path = append(path, id)
	}
	slices.Reverse(path)
	return path
}

// Build constructs the decision tree for g. Children of a node partition
// its overloads by the check key at the next position; an overload whose
// argument list ends at the node becomes the node's Exact choice. Two
// overloads ending at the same node are an *AmbiguityError.
func Build(g *Group) (*Tree, error) {
	if len(g.Overloads) == 0 {
		return nil, fmt.Errorf("%s: %w", g.FullName(), ErrEmptyGroup)
	}
	t := &Tree{Group: g}
	all := make([]int, len(g.Overloads))
	for i := range all {
		all[i] = i
	}
	root := t.add(NoNode, -1, Check{}, all)
	if err := t.expand(root); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) add(parent NodeID, pos int, chk Check, overloads []int) NodeID {
	id := NodeID(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{
		ID:        id,
		Parent:    parent,
		Pos:       pos,
		Check:     chk,
		Overloads: overloads,
		Exact:     -1,
	})
	if parent != NoNode {
		t.Nodes[parent].Children = append(t.Nodes[parent].Children, id)
	}
	return id
}

type partition struct {
	check     Check
	overloads []int
}

func (t *Tree) expand(id NodeID) error {
	n := t.Nodes[id]
	if n.IsTerminal() {
		return nil
	}
	next := n.Pos + 1

	var exact []int
	var parts []partition
	index := map[string]int{}
	for _, oi := range n.Overloads {
		o := t.Group.Overloads[oi]
		if o.Callable(next) {
			exact = append(exact, oi)
		}
		// a variadic tail consumes every remaining argument
		if n.Check.Variadic || next >= len(o.Args) {
			continue
		}
		chk := o.Checks[next]
		key := chk.Key()
		if i, ok := index[key]; ok {
			parts[i].overloads = append(parts[i].overloads, oi)
			continue
		}
		index[key] = len(parts)
		parts = append(parts, partition{check: chk, overloads: []int{oi}})
	}

	if len(exact) > 1 {
		sigs := make([]string, len(exact))
		for i, oi := range exact {
			sigs[i] = t.Group.Overloads[oi].Signature()
		}
		return &AmbiguityError{Group: t.Group.FullName(), ArgCount: next, Signatures: sigs}
	}
	if len(exact) == 1 {
		t.Nodes[id].Exact = exact[0]
	}

	slices.SortStableFunc(parts, func(a, b partition) int {
		return CompareChecks(a.check, b.check)
	})
	for _, p := range parts {
		child := t.add(id, next, p.check, p.overloads)
		if err := t.expand(child); err != nil {
			return err
		}
	}
	return nil
}

// CompareChecks orders sibling checks: enums, flags, bool, float, then the
// generic integer check, then specific wrapper types, value types reachable
// through implicit conversions (shallowest first), the generic host object,
// and variadic tails last. Within a tier derived classes precede their
// bases; otherwise equal checks keep first-seen order.
func CompareChecks(a, b Check) int {
	if c := cmp.Compare(a.Tier(), b.Tier()); c != 0 {
		return c
	}
	if a.Tier() == tierImplicit {
		if c := cmp.Compare(a.Depth, b.Depth); c != 0 {
			return c
		}
	}
	return cmp.Compare(b.Inherit, a.Inherit)
}
