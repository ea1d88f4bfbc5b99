package model

import (
	"strings"
)

// Access is a C++ access level.
type Access string

const (
	AccessPublic    Access = "public"
	AccessProtected Access = "protected"
	AccessPrivate   Access = "private"
)

// Argument is one declared parameter of a native function.
type Argument struct {
	Name string `yaml:"name,omitempty"`
	Type *Type  `yaml:"type"`
	// Default is the default-value expression as written in the declaration.
	Default string `yaml:"default,omitempty"`
	// Index is the 0-based position in the native declaration.
	Index int `yaml:"index"`
	// Variadic marks a "T... name" tail; the native function receives the
	// tail as a std::vector<T>.
	Variadic bool `yaml:"variadic,omitempty"`
}

// Function is a native function, method, constructor or operator.
type Function struct {
	Name string `yaml:"name"`
	// Owner is the class the function is bound on, "" at module scope.
	Owner string `yaml:"owner,omitempty"`
	// Declaring is the class that declares the function. It differs from
	// Owner for inherited functions.
	Declaring string `yaml:"declaring,omitempty"`

	Arguments []*Argument `yaml:"arguments,omitempty"`
	Return    *Type       `yaml:"return,omitempty"`
	Access    Access      `yaml:"access"`

	Static      bool `yaml:"static,omitempty"`
	Virtual     bool `yaml:"virtual,omitempty"`
	Abstract    bool `yaml:"abstract,omitempty"`
	Const       bool `yaml:"const,omitempty"`
	Explicit    bool `yaml:"explicit,omitempty"`
	Constructor bool `yaml:"constructor,omitempty"`
	Cast        bool `yaml:"cast,omitempty"`

	// Operator is the operator symbol ("+", "+=", "==") or "".
	Operator string `yaml:"operator,omitempty"`
	// FreeOperator marks a module-scope operator attached to Owner; its
	// Arguments still include the Owner operand.
	FreeOperator bool `yaml:"free_operator,omitempty"`
	// Reverse marks a free operator whose Owner operand is on the right.
	Reverse bool `yaml:"reverse,omitempty"`

	Mods Modifications `yaml:"modifications,omitempty"`
}

var binarySlots = map[string]string{
	"+": "__add__", "-": "__sub__", "*": "__mul__", "/": "__truediv__", "%": "__mod__",
	"&": "__and__", "|": "__or__", "^": "__xor__", "<<": "__lshift__", ">>": "__rshift__",
	"==": "__eq__", "!=": "__ne__", "<": "__lt__", "<=": "__le__", ">": "__gt__", ">=": "__ge__",
	"+=": "__iadd__", "-=": "__isub__", "*=": "__imul__", "/=": "__itruediv__", "%=": "__imod__",
	"&=": "__iand__", "|=": "__ior__", "^=": "__ixor__", "<<=": "__ilshift__", ">>=": "__irshift__",
}

var unarySlots = map[string]string{
	"-": "__neg__", "+": "__pos__", "~": "__invert__",
}

// OperatorSlot maps a C++ operator to the host's special method name.
func OperatorSlot(op string, unary bool) (string, bool) {
	if unary {
		name, ok := unarySlots[op]
		return name, ok
	}
	name, ok := binarySlots[op]
	return name, ok
}

// SelfIndex is the 0-based position of the Owner operand inside Arguments
// for free operators, -1 otherwise.
func (f *Function) SelfIndex() int {
	if !f.FreeOperator {
		return -1
	}
	if f.Reverse {
		return 1
	}
	return 0
}

// IsUnaryOperator reports whether the operator takes no operand besides self.
func (f *Function) IsUnaryOperator() bool {
	if f.Operator == "" {
		return false
	}
	n := len(f.Arguments)
	if f.FreeOperator {
		n--
	}
	return n == 0
}

// IsAssignmentOperator reports whether f is operator=.
func (f *Function) IsAssignmentOperator() bool {
	return f.Operator == "="
}

// IsComparisonOperator reports whether f is one of the six comparisons.
func (f *Function) IsComparisonOperator() bool {
	switch f.Operator {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

// IsInPlaceOperator reports whether f is a compound assignment like +=.
func (f *Function) IsInPlaceOperator() bool {
	if f.Operator == "" || f.IsAssignmentOperator() || f.IsComparisonOperator() {
		return false
	}
	return strings.HasSuffix(f.Operator, "=")
}

// IsCopyConstructor reports whether f is a constructor taking a single
// reference to its own class.
func (f *Function) IsCopyConstructor() bool {
	if !f.Constructor || len(f.Arguments) != 1 {
		return false
	}
	t := f.Arguments[0].Type
	return strings.TrimPrefix(t.Name, "::") == f.Owner && t.Indirections == 0
}

// HostName is the name the function is exposed under: the rename rule if
// any, the class name for constructors, the special method name for
// operators. Operators the host cannot express return "".
func (f *Function) HostName() string {
	if f.Mods.Rename != "" {
		return f.Mods.Rename
	}
	if f.Constructor {
		return f.Owner
	}
	if f.Operator != "" {
		name, _ := OperatorSlot(f.Operator, f.IsUnaryOperator())
		return name
	}
	return f.Name
}

// Removed reports whether a rule removed the whole function.
func (f *Function) Removed() bool {
	return f.Mods.Remove
}

// ArgumentRemoved reports whether the 1-based argument was removed from the
// host-visible signature.
func (f *Function) ArgumentRemoved(index int) bool {
	am := f.Mods.Arg(index)
	return am != nil && am.Removed
}

// ArgumentDefault returns the effective default expression of the 1-based
// argument after rules, or "" if it has none.
func (f *Function) ArgumentDefault(index int) string {
	if am := f.Mods.Arg(index); am != nil {
		if am.RemovedDefault {
			return ""
		}
		if am.ReplacedDefault != "" {
			return am.ReplacedDefault
		}
	}
	if index < 1 || index > len(f.Arguments) {
		return ""
	}
	return f.Arguments[index-1].Default
}

// ReplacedType returns the host-side type override for the slot, or "".
func (f *Function) ReplacedType(index int) string {
	if am := f.Mods.Arg(index); am != nil {
		return am.ReplacedType
	}
	return ""
}

// ConversionRule returns the custom conversion expression for the slot, or "".
func (f *Function) ConversionRule(index int) string {
	if am := f.Mods.Arg(index); am != nil {
		return am.ConversionRule
	}
	return ""
}

// AllowThread reports whether the call may release the interpreter lock.
func (f *Function) AllowThread() bool {
	return f.Mods.AllowThread
}

// HasCallSnip reports whether injected code replaces the native call.
func (f *Function) HasCallSnip() bool {
	return len(f.Mods.SnipsAt(SnipCall)) > 0
}

// DynamicArguments returns the arguments visible to the host, in order:
// the Owner operand of free operators and removed arguments are skipped.
func (f *Function) DynamicArguments() []*Argument {
	self := f.SelfIndex()
	var out []*Argument
	for i, a := range f.Arguments {
		if i == self || f.ArgumentRemoved(i+1) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// IsVariadic reports whether the last argument is a variadic tail.
func (f *Function) IsVariadic() bool {
	n := len(f.Arguments)
	return n > 0 && f.Arguments[n-1].Variadic
}

// MinimalSignature renders "name(type,type) const" without argument names
// or defaults; it identifies a function among its overloads.
func (f *Function) MinimalSignature() string {
	var sb strings.Builder
	switch {
	case f.Operator != "":
		sb.WriteString("operator")
		sb.WriteString(f.Operator)
	case f.Cast:
		sb.WriteString("operator ")
		sb.WriteString(f.Return.MinimalSignature())
	default:
		sb.WriteString(f.Name)
	}
	sb.WriteByte('(')
	for i, a := range f.Arguments {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(a.Type.MinimalSignature())
		if a.Variadic {
			sb.WriteString("...")
		}
	}
	sb.WriteByte(')')
	if f.Const {
		sb.WriteString(" const")
	}
	return sb.String()
}

// Clone returns a deep copy of f.
func (f *Function) Clone() *Function {
	c := *f
	c.Arguments = make([]*Argument, len(f.Arguments))
	for i, a := range f.Arguments {
		ac := *a
		ac.Type = a.Type.Clone()
		c.Arguments[i] = &ac
	}
	c.Return = f.Return.Clone()
	c.Mods = f.Mods.Clone()
	return &c
}
