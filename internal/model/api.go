package model

import (
	"strings"
)

// ClassKind distinguishes identity-semantics classes from copyable values.
type ClassKind string

const (
	ClassObject ClassKind = "object"
	ClassValue  ClassKind = "value"
)

// Class is a bound native class.
type Class struct {
	Name              string
	Kind              ClassKind
	Bases             []string
	Abstract          bool
	VirtualDestructor bool
	// Functions lists the class's own functions followed by the ones it
	// inherits, then free operators attached to it.
	Functions []*Function
}

// IsValueType reports whether instances are copied across the boundary.
func (c *Class) IsValueType() bool {
	return c.Kind == ClassValue
}

// Constructors returns the class's constructors in declaration order.
func (c *Class) Constructors() []*Function {
	var out []*Function
	for _, f := range c.Functions {
		if f.Constructor {
			out = append(out, f)
		}
	}
	return out
}

// Enum is a bound native enumeration. Flags enums combine with bitwise or.
type Enum struct {
	Name   string
	Flags  bool
	Values []string
}

// API is the whole native model for one generated module.
type API struct {
	Module    string
	Includes  []string
	Enums     []*Enum
	Classes   []*Class
	Functions []*Function

	classes map[string]*Class
	enums   map[string]*Enum
}

func (a *API) index() {
	a.classes = make(map[string]*Class, len(a.Classes))
	for _, c := range a.Classes {
		a.classes[c.Name] = c
	}
	a.enums = make(map[string]*Enum, len(a.Enums))
	for _, e := range a.Enums {
		a.enums[e.Name] = e
	}
}

// Class looks up a class by name; a leading "::" is ignored.
func (a *API) Class(name string) *Class {
	return a.classes[strings.TrimPrefix(name, "::")]
}

// Enum looks up an enum by name; a leading "::" is ignored.
func (a *API) Enum(name string) *Enum {
	return a.enums[strings.TrimPrefix(name, "::")]
}

// ResolveType fills in Kind for t and its template arguments.
func (a *API) ResolveType(t *Type) {
	if t == nil {
		return
	}
	allKnown := true
	for _, inst := range t.Instantiations {
		a.ResolveType(inst)
		if inst.Kind == KindUnknown || inst.Kind == KindVoid {
			allKnown = false
		}
	}
	name := strings.TrimPrefix(t.Name, "::")
	switch {
	case name == "void":
		t.Kind = KindUnknown
		if t.Indirections == 0 {
			t.Kind = KindVoid
		}
	case IsHostObjectName(name):
		t.Kind = KindUnknown
		if t.Indirections == 1 {
			t.Kind = KindHostObject
		}
	case name == "char" && t.Indirections == 1:
		t.Kind = KindString
	case t.Indirections > 1:
		t.Kind = KindUnknown
	case a.Class(name) != nil:
		t.Kind = KindObject
		if a.Class(name).IsValueType() {
			t.Kind = KindValue
		}
	case t.Indirections > 0:
		// pointers to primitives, enums and containers have no host form
		t.Kind = KindUnknown
	case name == "bool":
		t.Kind = KindBool
	case integerTypes[name]:
		t.Kind = KindInteger
	case floatTypes[name]:
		t.Kind = KindFloat
	case stringTypes[name]:
		t.Kind = KindString
	case containerTypes[name] != "":
		t.Kind = KindUnknown
		if allKnown && len(t.Instantiations) > 0 || name == "QStringList" {
			t.Kind = KindContainer
		}
	case a.Enum(name) != nil:
		t.Kind = KindEnum
		if a.Enum(name).Flags {
			t.Kind = KindFlags
		}
	default:
		t.Kind = KindUnknown
	}
}

// IsSubclass reports whether derived is base or inherits from it.
func (a *API) IsSubclass(derived, base string) bool {
	derived = strings.TrimPrefix(derived, "::")
	base = strings.TrimPrefix(base, "::")
	seen := map[string]bool{}
	var walk func(name string) bool
	walk = func(name string) bool {
		if name == base {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		c := a.Class(name)
		if c == nil {
			return false
		}
		for _, b := range c.Bases {
			if walk(b) {
				return true
			}
		}
		return false
	}
	return walk(derived)
}

// ImplicitConstructors returns the constructors of a value class usable as
// implicit conversions: public, not explicit, not removed, not the copy
// constructor, and callable with exactly one host argument.
func (a *API) ImplicitConstructors(class string) []*Function {
	c := a.Class(class)
	if c == nil || !c.IsValueType() {
		return nil
	}
	var out []*Function
	for _, f := range c.Constructors() {
		if f.Explicit || f.Removed() || f.Access != AccessPublic || f.IsCopyConstructor() {
			continue
		}
		args := f.DynamicArguments()
		if len(args) == 0 || args[0].Variadic {
			continue
		}
		if len(args) > 1 && f.ArgumentDefault(args[1].Index+1) == "" {
			continue
		}
		if args[0].Type.Kind == KindUnknown {
			continue
		}
		out = append(out, f)
	}
	return out
}

// ImplicitSources returns the argument types value class can be implicitly
// constructed from, in constructor order.
func (a *API) ImplicitSources(class string) []*Type {
	var out []*Type
	for _, f := range a.ImplicitConstructors(class) {
		out = append(out, f.DynamicArguments()[0].Type)
	}
	return out
}

// ConversionDepth is 0 for classes without implicit sources, and otherwise
// one more than the deepest bound value class among the sources. Cycles
// count once.
func (a *API) ConversionDepth(class string) int {
	return a.conversionDepth(strings.TrimPrefix(class, "::"), map[string]bool{})
}

func (a *API) conversionDepth(class string, visiting map[string]bool) int {
	if visiting[class] {
		return 0
	}
	sources := a.ImplicitSources(class)
	if len(sources) == 0 {
		return 0
	}
	visiting[class] = true
	defer delete(visiting, class)
	depth := 1
	for _, src := range sources {
		if src.Kind == KindValue {
			if d := 1 + a.conversionDepth(strings.TrimPrefix(src.Name, "::"), visiting); d > depth {
				depth = d
			}
		}
	}
	return depth
}

// InheritanceDepth is the length of the longest base chain above class.
func (a *API) InheritanceDepth(class string) int {
	c := a.Class(class)
	if c == nil {
		return 0
	}
	depth := 0
	for _, b := range c.Bases {
		depth = max(depth, 1+a.InheritanceDepth(b))
	}
	return depth
}
