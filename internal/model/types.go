// Package model holds the native-API graph the generator consumes: types,
// functions, classes, enums and the modification records attached to them by
// bindgen.yaml rules. Everything in here is read-only once loaded.
package model

import (
	"strings"
)

// TypeKind classifies a native type by how it crosses the language boundary.
type TypeKind int

const (
	KindUnknown TypeKind = iota
	KindVoid
	KindBool
	KindInteger
	KindFloat
	KindString
	KindEnum
	KindFlags
	KindContainer
	KindObject
	KindValue
	KindHostObject
)

var kindNames = [...]string{
	KindUnknown:    "unknown",
	KindVoid:       "void",
	KindBool:       "bool",
	KindInteger:    "int",
	KindFloat:      "float",
	KindString:     "string",
	KindEnum:       "enum",
	KindFlags:      "flags",
	KindContainer:  "container",
	KindObject:     "object",
	KindValue:      "value",
	KindHostObject: "host",
}

func (k TypeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsNumeric reports whether values of this kind are checked with one of the
// host's numeric predicates.
func (k TypeKind) IsNumeric() bool {
	return k == KindBool || k == KindInteger || k == KindFloat
}

// Type is a parsed native type reference such as "const std::vector<Shape*>&".
type Type struct {
	// Name is the base type name without qualifiers or template arguments,
	// with whitespace normalized ("unsigned int", "std::vector", "Shape").
	Name string `yaml:"name"`

	Const          bool    `yaml:"const,omitempty"`
	Indirections   int     `yaml:"indirections,omitempty"`
	Reference      bool    `yaml:"reference,omitempty"`
	Instantiations []*Type `yaml:"instantiations,omitempty"`

	// Kind is filled in when the owning API resolves the type.
	Kind TypeKind `yaml:"kind"`
}

// IsPointer reports whether the type is a pointer at the outermost level.
func (t *Type) IsPointer() bool {
	return t.Indirections > 0
}

// IsCString reports whether the type is a raw character string.
func (t *Type) IsCString() bool {
	return t.Name == "char" && t.Indirections == 1
}

// IsVoid reports whether the type is a plain void (not void*).
func (t *Type) IsVoid() bool {
	return t == nil || (t.Name == "void" && t.Indirections == 0)
}

// Signature renders the type the way it would be written in a declaration.
func (t *Type) Signature() string {
	return t.render(false)
}

// QualifiedSignature is like Signature but anchors bound class and enum
// names at the global namespace ("::Shape*") for use in generated code.
func (t *Type) QualifiedSignature() string {
	return t.render(true)
}

func (t *Type) render(qualify bool) string {
	if t == nil {
		return "void"
	}
	var sb strings.Builder
	if t.Const {
		sb.WriteString("const ")
	}
	if qualify && !strings.HasPrefix(t.Name, "::") {
		switch t.Kind {
		case KindObject, KindValue, KindEnum, KindFlags:
			sb.WriteString("::")
		}
	}
	sb.WriteString(t.Name)
	if len(t.Instantiations) > 0 {
		sb.WriteByte('<')
		for i, inst := range t.Instantiations {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(inst.render(qualify))
		}
		sb.WriteByte('>')
	}
	sb.WriteString(strings.Repeat("*", t.Indirections))
	if t.Reference {
		sb.WriteByte('&')
	}
	return sb.String()
}

// Stripped returns the type a conversion temporary is declared with: the
// trailing reference is dropped, and the leading const is dropped unless
// the type is a raw character string.
func (t *Type) Stripped() *Type {
	c := *t
	c.Reference = false
	if !c.IsCString() {
		c.Const = false
	}
	return &c
}

// Pointee returns the type with one level of indirection removed.
func (t *Type) Pointee() *Type {
	c := *t
	c.Reference = false
	if c.Indirections > 0 {
		c.Indirections--
	}
	return &c
}

// NormalizedName returns the base name with redundant "signed" qualifiers
// collapsed ("signed int" becomes "int", "signed" becomes "int").
func (t *Type) NormalizedName() string {
	return normalizeSigned(t.Name)
}

func normalizeSigned(name string) string {
	switch name {
	case "signed", "signed int":
		return "int"
	case "signed char":
		return "char"
	case "unsigned":
		return "unsigned int"
	}
	return strings.TrimPrefix(name, "signed ")
}

// MinimalSignature renders the type without the outer const/reference
// decoration, which does not change overload identity.
func (t *Type) MinimalSignature() string {
	c := *t
	c.Name = normalizeSigned(c.Name)
	c.Reference = false
	if c.Indirections == 0 {
		c.Const = false
	}
	return c.Signature()
}

// Clone returns a deep copy of the type.
func (t *Type) Clone() *Type {
	if t == nil {
		return nil
	}
	c := *t
	if len(t.Instantiations) > 0 {
		c.Instantiations = make([]*Type, len(t.Instantiations))
		for i, inst := range t.Instantiations {
			c.Instantiations[i] = inst.Clone()
		}
	}
	return &c
}

var integerTypes = map[string]bool{
	"char": true, "signed char": true, "unsigned char": true,
	"short": true, "unsigned short": true, "short int": true,
	"int": true, "signed int": true, "signed": true, "unsigned int": true, "unsigned": true,
	"long": true, "unsigned long": true, "long int": true,
	"long long": true, "unsigned long long": true,
	"int8_t": true, "int16_t": true, "int32_t": true, "int64_t": true,
	"uint8_t": true, "uint16_t": true, "uint32_t": true, "uint64_t": true,
	"size_t": true, "ptrdiff_t": true,
}

var floatTypes = map[string]bool{
	"float": true, "double": true, "long double": true,
}

var stringTypes = map[string]bool{
	"std::string": true, "std::wstring": true, "QString": true,
}

// containerTypes maps a native container template to the host collection it
// converts to.
var containerTypes = map[string]string{
	"std::vector":        "list",
	"std::list":          "list",
	"std::deque":         "list",
	"std::set":           "list",
	"QList":              "list",
	"QVector":            "list",
	"QStringList":        "list",
	"std::pair":          "tuple",
	"std::map":           "dict",
	"std::unordered_map": "dict",
	"QMap":               "dict",
	"QHash":              "dict",
}

// HostContainerName returns the host collection a container type converts
// to, or "" if name is not a known container.
func HostContainerName(name string) string {
	return containerTypes[name]
}

// IsHostObjectName reports whether name is the host's own object type.
func IsHostObjectName(name string) bool {
	return name == "PyObject"
}
