package overload

import (
	"strings"

	"github.com/funvibe/bindgen/internal/model"
)

// ValueKind is the runtime category of a host value.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueStr
	ValueList
	ValueDict
	ValueCallable
	ValueInstance
)

// Value is a host argument as seen by the generated checks. Class names the
// bound class or enum of an instance.
type Value struct {
	Kind  ValueKind
	Class string
}

// Instance returns a value that is an instance of the named class or enum.
func Instance(class string) Value {
	return Value{Kind: ValueInstance, Class: class}
}

// CallSite is one host invocation of a dispatch function.
type CallSite struct {
	Args []Value
	// Reverse is the entry-time detection that the receiver is the right
	// operand of a binary operator.
	Reverse bool
	// HasSelf is false when a mixed static/instance group is called
	// through the class.
	HasSelf bool
}

// Resolve evaluates the tree the way the generated dispatch function does:
// the arity check, then the if/else chain at each node, first match wins,
// no backtracking. A branch tests the argument counts its overloads accept
// and, when it leads to a single overload, that overload's remaining
// arguments, so a mismatch moves on to the next sibling. It returns the
// selected overload index, or -1 when the call ends on the error path.
func (t *Tree) Resolve(api *model.API, site CallSite) int {
	g := t.Group
	n := len(site.Args)
	if n < g.MinArgs() || (g.MaxArgs() >= 0 && n > g.MaxArgs()) {
		return -1
	}
	root := t.Root()
	if root.IsTerminal() {
		if !t.acceptsRest(api, root, site) {
			return -1
		}
		return t.selectOverload(root.Overloads[0], site)
	}
	return t.resolveNode(api, 0, site)
}

func (t *Tree) resolveNode(api *model.API, id NodeID, site CallSite) int {
	node := t.Node(id)
	p := node.Pos + 1
	n := len(site.Args)
	if node.Exact >= 0 && n == p {
		return t.selectOverload(node.Exact, site)
	}
	for _, cid := range node.Children {
		child := t.Node(cid)
		if !t.reverseGate(child.Pos, child.Check, site) {
			continue
		}
		if child.Check.Variadic {
			if !acceptsTail(api, child.Check, site.Args[p:], t.NumericAmbiguous(cid)) {
				continue
			}
		} else {
			lo, hi := t.ArgBounds(cid)
			if n <= p || n < lo || (hi >= 0 && n > hi) {
				continue
			}
			if !Accepts(api, child.Check, site.Args[p], t.NumericAmbiguous(cid)) {
				continue
			}
		}
		if !child.IsTerminal() {
			return t.resolveNode(api, cid, site)
		}
		if t.acceptsRest(api, child, site) {
			return t.selectOverload(child.Overloads[0], site)
		}
	}
	return -1
}

// acceptsRest checks the arguments of a terminal node's overload past the
// node's position, widened, with defaulted ones allowed to be missing.
func (t *Tree) acceptsRest(api *model.API, node *Node, site CallSite) bool {
	o := t.Group.Overloads[node.Overloads[0]]
	n := len(site.Args)
	if n < o.MinArgs || (o.MaxArgs >= 0 && n > o.MaxArgs) {
		return false
	}
	for k := node.Pos + 1; k < len(o.Args); k++ {
		chk := o.Checks[k]
		if !t.reverseGate(k, chk, site) {
			return false
		}
		if chk.Variadic {
			if !acceptsTail(api, chk, site.Args[min(k, n):], false) {
				return false
			}
			continue
		}
		if k < n && !Accepts(api, chk, site.Args[k], false) {
			return false
		}
	}
	return true
}

func (t *Tree) selectOverload(oi int, site CallSite) int {
	if t.Group.HasBoth() && !t.Group.Overloads[oi].Func.Static && !site.HasSelf {
		return -1
	}
	return oi
}

// reverseGate applies the entry-time reverse detection to first-position
// checks of groups holding reverse operators.
func (t *Tree) reverseGate(pos int, chk Check, site CallSite) bool {
	if pos != 0 || !t.Group.HasReverse() {
		return true
	}
	return chk.Reverse == site.Reverse
}

func acceptsTail(api *model.API, chk Check, tail []Value, ambiguous bool) bool {
	for _, v := range tail {
		if !Accepts(api, chk, v, ambiguous) {
			return false
		}
	}
	return true
}

// Accepts reports whether the predicate rendered for chk holds for v.
// Ambiguous numeric checks are strict; lone ones accept any integer-like
// value (host bool is a subtype of host int).
func Accepts(api *model.API, chk Check, v Value, ambiguous bool) bool {
	return accepts(api, chk, v, ambiguous, 0)
}

func accepts(api *model.API, chk Check, v Value, ambiguous bool, depth int) bool {
	intLike := v.Kind == ValueInt || v.Kind == ValueBool
	switch chk.Kind {
	case CheckBool:
		return v.Kind == ValueBool || (!ambiguous && v.Kind == ValueInt)
	case CheckFloat:
		return v.Kind == ValueFloat || (!ambiguous && intLike)
	case CheckInteger:
		return intLike
	case CheckString:
		return v.Kind == ValueStr
	case CheckEnum, CheckFlags:
		return v.Kind == ValueInstance && qualified(v.Class) == chk.Type
	case CheckContainer:
		base, _, _ := strings.Cut(strings.TrimPrefix(chk.Type, "::"), "<")
		switch model.HostContainerName(base) {
		case "dict":
			return v.Kind == ValueDict
		default:
			return v.Kind == ValueList
		}
	case CheckObject, CheckValue:
		if chk.Nullable && v.Kind == ValueNone {
			return true
		}
		if v.Kind == ValueInstance && api.IsSubclass(v.Class, chk.Type) {
			return true
		}
		if chk.Kind == CheckValue && chk.Implicit && depth < 8 {
			for _, src := range api.ImplicitSources(chk.Type) {
				if accepts(api, TypeCheck(api, src), v, false, depth+1) {
					return true
				}
			}
		}
		return false
	case CheckHostObject:
		return true
	case CheckReplaced:
		switch strings.TrimSuffix(chk.Type, "*") {
		case "PySequence":
			return v.Kind == ValueList
		case "PyCallable":
			return v.Kind == ValueCallable
		case "PyUnicode", "str":
			return v.Kind == ValueStr
		case "PyDict":
			return v.Kind == ValueDict
		}
		return v.Kind == ValueInstance && v.Class == chk.Type
	}
	return false
}
