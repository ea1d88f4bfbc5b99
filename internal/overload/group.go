// Package overload collects native functions into overload groups and
// builds the decision tree that picks one of them from a dynamically typed
// argument list.
package overload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/bindgen/internal/model"
)

var (
	// ErrAmbiguousOverloads is matched by every *AmbiguityError.
	ErrAmbiguousOverloads = errors.New("ambiguous overloads")
	// ErrEmptyGroup means no function survived collection for a name.
	ErrEmptyGroup = errors.New("empty overload group")
)

// AmbiguityError reports overloads no dynamic argument list can tell apart.
type AmbiguityError struct {
	Group      string
	ArgCount   int
	Signatures []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("%s: overloads %s are indistinguishable when called with %d argument(s)",
		e.Group, strings.Join(e.Signatures, ", "), e.ArgCount)
}

func (e *AmbiguityError) Is(target error) bool {
	return target == ErrAmbiguousOverloads
}

// GroupKind is the shape of the dispatch function a group needs.
type GroupKind int

const (
	KindFunction GroupKind = iota
	KindMethod
	KindConstructor
	KindBinaryOperator
	KindUnaryOperator
)

var groupKindNames = [...]string{
	KindFunction:       "function",
	KindMethod:         "method",
	KindConstructor:    "constructor",
	KindBinaryOperator: "binary-operator",
	KindUnaryOperator:  "unary-operator",
}

func (k GroupKind) String() string {
	return groupKindNames[k]
}

// Overload is one collected native function as the host sees it.
type Overload struct {
	// Index is the position inside the group.
	Index int
	Func  *model.Function
	// Args are the host-visible arguments, Checks their predicates.
	Args   []*model.Argument
	Checks []Check
	// MinArgs and MaxArgs bound the callable argument counts; MaxArgs is -1
	// for variadic tails.
	MinArgs int
	MaxArgs int
	// Stub marks an abstract function removed by rules or hidden by access;
	// it is dispatched to but never called.
	Stub bool
}

func newOverload(api *model.API, f *model.Function, stub bool) *Overload {
	args := f.DynamicArguments()
	o := &Overload{Func: f, Args: args, MaxArgs: len(args), Stub: stub}
	for i, a := range args {
		chk := argumentCheck(api, f, a)
		if i == 0 && f.Reverse {
			chk.Reverse = true
		}
		o.Checks = append(o.Checks, chk)
		if a.Variadic {
			o.MaxArgs = -1
			continue
		}
		if f.ArgumentDefault(a.Index+1) == "" {
			o.MinArgs = i + 1
		}
	}
	return o
}

// Callable reports whether the overload accepts n host arguments.
func (o *Overload) Callable(n int) bool {
	return n >= o.MinArgs && (o.MaxArgs < 0 || n <= o.MaxArgs)
}

// Variadic reports whether the overload ends in a variadic tail.
func (o *Overload) Variadic() bool {
	return o.MaxArgs < 0
}

// CheckAt returns the check applied to host argument i, repeating the
// variadic check past the end of Args.
func (o *Overload) CheckAt(i int) Check {
	if i >= len(o.Checks) && o.Variadic() {
		return o.Checks[len(o.Checks)-1]
	}
	return o.Checks[i]
}

// Signature is the overload's minimal native signature.
func (o *Overload) Signature() string {
	return o.Func.MinimalSignature()
}

// Group is every overload exposed under one host name on one entity.
type Group struct {
	// Name is the host-visible name ("area", "__add__", or the class name for
	// constructors).
	Name string
	// Scope is the class name, or the module name for module functions.
	Scope     string
	Class     *model.Class
	Kind      GroupKind
	Overloads []*Overload
}

// FullName is "Scope.Name", or just the class name for constructors.
func (g *Group) FullName() string {
	if g.Kind == KindConstructor {
		return g.Scope
	}
	return g.Scope + "." + g.Name
}

// HasStatic reports whether any overload is static.
func (g *Group) HasStatic() bool {
	for _, o := range g.Overloads {
		if o.Func.Static {
			return true
		}
	}
	return false
}

// HasInstance reports whether any overload needs a receiver.
func (g *Group) HasInstance() bool {
	if g.Class == nil || g.Kind == KindConstructor {
		return false
	}
	for _, o := range g.Overloads {
		if !o.Func.Static {
			return true
		}
	}
	return false
}

// HasBoth reports a group mixing static and instance overloads; its
// dispatch function checks for a receiver per overload instead of once.
func (g *Group) HasBoth() bool {
	return g.HasStatic() && g.HasInstance()
}

// HasReverse reports whether any overload is a reverse operator.
func (g *Group) HasReverse() bool {
	for _, o := range g.Overloads {
		if o.Func.Reverse {
			return true
		}
	}
	return false
}

// MinArgs is the smallest argument count any overload accepts.
func (g *Group) MinArgs() int {
	lo := -1
	for _, o := range g.Overloads {
		if lo < 0 || o.MinArgs < lo {
			lo = o.MinArgs
		}
	}
	return max(lo, 0)
}

// MaxArgs is the largest argument count any overload accepts, -1 if a
// variadic overload makes it unbounded.
func (g *Group) MaxArgs() int {
	m := 0
	for _, o := range g.Overloads {
		if o.MaxArgs < 0 {
			return -1
		}
		m = max(m, o.MaxArgs)
	}
	return m
}

// Signatures lists the overloads' minimal signatures in group order.
func (g *Group) Signatures() []string {
	out := make([]string, len(g.Overloads))
	for i, o := range g.Overloads {
		out[i] = o.Signature()
	}
	return out
}
