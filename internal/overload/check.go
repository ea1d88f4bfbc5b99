package overload

import (
	"strings"

	"github.com/funvibe/bindgen/internal/model"
)

// CheckKind selects the runtime predicate used at one argument position.
type CheckKind int

const (
	CheckEnum CheckKind = iota
	CheckFlags
	CheckBool
	CheckFloat
	CheckInteger
	CheckString
	CheckContainer
	CheckObject
	CheckValue
	CheckReplaced
	CheckHostObject
)

var checkKindNames = [...]string{
	CheckEnum:       "enum",
	CheckFlags:      "flags",
	CheckBool:       "bool",
	CheckFloat:      "float",
	CheckInteger:    "int",
	CheckString:     "str",
	CheckContainer:  "container",
	CheckObject:     "class",
	CheckValue:      "value",
	CheckReplaced:   "replaced",
	CheckHostObject: "object",
}

func (k CheckKind) String() string {
	return checkKindNames[k]
}

// IsNumeric reports whether the predicate is one of the host number checks.
func (k CheckKind) IsNumeric() bool {
	return k == CheckBool || k == CheckFloat || k == CheckInteger
}

// Check describes the type check for one argument position. Two arguments
// with the same Key render the same predicate.
type Check struct {
	Kind CheckKind
	// Type is the qualified native type (or replacement type) the predicate
	// is parameterized with; empty for numeric and string checks.
	Type string
	// Nullable pointer arguments also accept the host null.
	Nullable bool
	// Implicit value types also accept their implicit conversion sources.
	Implicit bool
	// Depth is the implicit conversion depth of a value type.
	Depth int
	// Inherit is the class's inheritance depth; derived classes are tried
	// before their bases.
	Inherit  int
	Variadic bool
	// Reverse marks the first operand of a reverse operator; it only matches
	// when the call site was detected as reversed.
	Reverse bool
}

// Key identifies the rendered predicate.
func (c Check) Key() string {
	var sb strings.Builder
	if c.Reverse {
		sb.WriteString("reverse:")
	}
	if c.Variadic {
		sb.WriteString("variadic:")
	}
	sb.WriteString(c.Kind.String())
	if c.Type != "" {
		sb.WriteByte(':')
		sb.WriteString(c.Type)
	}
	if c.Nullable {
		sb.WriteByte('?')
	}
	return sb.String()
}

// Sibling ordering tiers, narrow to wide.
const (
	tierEnum = iota
	tierFlags
	tierBool
	tierFloat
	tierInteger
	tierSpecific
	tierImplicit
	tierHostObject
	tierVariadic
)

// Tier is the check's rank among siblings; lower tiers are tried first.
func (c Check) Tier() int {
	if c.Variadic {
		return tierVariadic
	}
	switch c.Kind {
	case CheckEnum:
		return tierEnum
	case CheckFlags:
		return tierFlags
	case CheckBool:
		return tierBool
	case CheckFloat:
		return tierFloat
	case CheckInteger:
		return tierInteger
	case CheckValue:
		if c.Implicit {
			return tierImplicit
		}
	case CheckHostObject:
		return tierHostObject
	}
	return tierSpecific
}

// TypeCheck returns the check for a resolved native type.
func TypeCheck(api *model.API, t *model.Type) Check {
	switch t.Kind {
	case model.KindBool:
		return Check{Kind: CheckBool}
	case model.KindInteger:
		return Check{Kind: CheckInteger}
	case model.KindFloat:
		return Check{Kind: CheckFloat}
	case model.KindString:
		return Check{Kind: CheckString}
	case model.KindEnum:
		return Check{Kind: CheckEnum, Type: qualified(t.Name)}
	case model.KindFlags:
		return Check{Kind: CheckFlags, Type: qualified(t.Name)}
	case model.KindContainer:
		c := t.Stripped()
		c.Const = false
		return Check{Kind: CheckContainer, Type: c.QualifiedSignature()}
	case model.KindObject:
		return Check{
			Kind:     CheckObject,
			Type:     qualified(t.Name),
			Nullable: t.IsPointer(),
			Inherit:  api.InheritanceDepth(t.Name),
		}
	case model.KindValue:
		name := strings.TrimPrefix(t.Name, "::")
		return Check{
			Kind:     CheckValue,
			Type:     qualified(name),
			Nullable: t.IsPointer(),
			Implicit: len(api.ImplicitSources(name)) > 0,
			Depth:    api.ConversionDepth(name),
			Inherit:  api.InheritanceDepth(name),
		}
	case model.KindHostObject:
		return Check{Kind: CheckHostObject}
	}
	return Check{Kind: CheckReplaced, Type: t.Signature()}
}

// ReplacedCheck returns the check for a rule-supplied replacement type.
func ReplacedCheck(repl string) Check {
	repl = strings.TrimSpace(repl)
	if model.IsHostObjectName(strings.TrimSpace(strings.TrimSuffix(repl, "*"))) {
		return Check{Kind: CheckHostObject}
	}
	return Check{Kind: CheckReplaced, Type: repl}
}

func argumentCheck(api *model.API, f *model.Function, a *model.Argument) Check {
	var c Check
	if repl := f.ReplacedType(a.Index + 1); repl != "" {
		c = ReplacedCheck(repl)
	} else {
		c = TypeCheck(api, a.Type)
	}
	c.Variadic = a.Variadic
	return c
}

func qualified(name string) string {
	return "::" + strings.TrimPrefix(name, "::")
}
