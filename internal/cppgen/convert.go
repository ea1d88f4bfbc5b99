package cppgen

import (
	"fmt"
	"strings"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/model"
	"github.com/funvibe/bindgen/internal/overload"
)

// converted describes how one native argument reaches the call.
type converted struct {
	// expr is passed to the native function.
	expr string
	// host is the host argument position, -1 for the receiver operand and
	// removed arguments.
	host int
}

// hostPositions maps native argument indices to host argument positions.
func hostPositions(o *overload.Overload) map[int]int {
	pos := make(map[int]int, len(o.Args))
	for i, a := range o.Args {
		pos[a.Index] = i
	}
	return pos
}

// pointeeConverted reports whether the argument is converted as a pointer
// to a wrapped instance and dereferenced at the call.
func pointeeConverted(t *model.Type) bool {
	return (t.Kind == model.KindObject || t.Kind == model.KindValue) && !t.IsPointer()
}

// emitConversions declares one native temporary per argument of o and
// returns the expressions the call uses, in native order.
func (c *emitContext) emitConversions(o *overload.Overload) []converted {
	f := o.Func
	hosts := hostPositions(o)
	out := make([]converted, len(f.Arguments))
	for i, a := range f.Arguments {
		switch {
		case i == f.SelfIndex():
			out[i] = converted{expr: "(*" + config.SelfVarName + ")", host: -1}
		case f.ArgumentRemoved(i + 1):
			out[i] = converted{expr: c.emitRemoved(o, i), host: -1}
		default:
			h := hosts[i]
			out[i] = converted{expr: c.emitConversion(o, a, h), host: h}
		}
	}
	return out
}

// emitRemoved declares the value a removed argument is called with. With no
// default and no injected call to cover it, a diagnostic is planted for the
// C++ compiler instead.
func (c *emitContext) emitRemoved(o *overload.Overload, i int) string {
	f := o.Func
	a := f.Arguments[i]
	name := fmt.Sprintf("%s%d", config.RemovedTempPrefix, i)
	value := f.ArgumentDefault(i + 1)
	if value == "" {
		if f.HasCallSnip() {
			return name
		}
		msg := fmt.Sprintf("%s: argument %d of %s was removed without a default value",
			c.group.FullName(), i+1, f.MinimalSignature())
		c.warnings = append(c.warnings, msg)
		c.w.linef("#error %s", cQuote(msg))
		return name
	}
	c.w.linef("%s %s = %s;", a.Type.Stripped().QualifiedSignature(), name, value)
	return name
}

func (c *emitContext) emitConversion(o *overload.Overload, a *model.Argument, h int) string {
	w := c.w
	f := o.Func
	name := fmt.Sprintf("%s%d", config.ArgTempPrefix, a.Index)
	py := c.pyArg(h)
	def := f.ArgumentDefault(a.Index + 1)
	optional := h >= o.MinArgs && !a.Variadic
	typ := a.Type.Stripped().QualifiedSignature()

	// guarded wraps conversion statements that only run when the host
	// argument was passed.
	guarded := func(body func()) {
		if !optional {
			body()
			return
		}
		w.block(fmt.Sprintf("if (%s > %d)", config.NumArgsVarName, h), body)
	}

	if rule := f.ConversionRule(a.Index + 1); rule != "" {
		if def != "" {
			w.linef("%s %s = %s;", typ, name, def)
		} else {
			w.linef("%s %s{};", typ, name)
		}
		guarded(func() {
			w.code(expandConversionRule(rule, py, name, typ))
		})
		return name
	}

	switch {
	case a.Variadic:
		vec := instantiate("std::vector", typ)
		w.linef("%s %s;", vec, name)
		w.block("", func() {
			w.linef("PyObject* pyTail = PyTuple_GetSlice(args, %d, %s);", h, config.NumArgsVarName)
			w.linef("%s::toCpp(pyTail, &%s);", instantiate(rt("Converter"), vec), name)
			w.line("Py_XDECREF(pyTail);")
		})
		return name

	case a.Type.Kind == model.KindHostObject:
		init := py
		if optional {
			init = defaultOr(def, "nullptr")
		}
		w.linef("PyObject* %s = %s;", name, init)
		if optional {
			guarded(func() { w.linef("%s = %s;", name, py) })
		}
		return name

	case pointeeConverted(a.Type):
		cls := a.Type.Pointee().Stripped().QualifiedSignature()
		w.linef("%s* %s = nullptr;", cls, name)
		implicit := a.Type.Kind == model.KindValue && len(c.api.ImplicitSources(a.Type.Name)) > 0
		holder := name + "_holder"
		if implicit || def != "" {
			w.linef("%s %s;", instantiate("std::unique_ptr", cls), holder)
		}
		if def != "" {
			w.linef("%s.reset(new %s(%s));", holder, cls, def)
			w.linef("%s = %s.get();", name, holder)
		}
		guarded(func() {
			if !implicit {
				w.linef("%s::toCpp(%s, &%s);", instantiate(rt("Converter"), cls+"*"), py, name)
				return
			}
			w.linef("if (%s(%s)) {", instantiate(rt("Object::checkType"), cls), py)
			w.in()
			w.linef("%s = %s(%s);", name, instantiate(rt("Object::cppPointer"), cls), py)
			w.out()
			w.line("} else {")
			w.in()
			w.linef("%s.reset(new %s(%s::toCpp(%s)));", holder, cls, instantiate(rt("Converter"), cls), py)
			w.linef("%s = %s.get();", name, holder)
			w.out()
			w.line("}")
		})
		return "*" + name

	default:
		switch {
		case def != "":
			w.linef("%s %s = %s;", typ, name, def)
		case a.Type.IsPointer():
			w.linef("%s %s = nullptr;", typ, name)
		default:
			w.linef("%s %s{};", typ, name)
		}
		guarded(func() {
			w.linef("%s::toCpp(%s, &%s);", instantiate(rt("Converter"), typ), py, name)
		})
		return name
	}
}

func defaultOr(def, fallback string) string {
	if def == "" {
		return fallback
	}
	return def
}

// expandConversionRule substitutes %in, %out and %type in a rule body.
func expandConversionRule(rule, in, out, typ string) string {
	return strings.NewReplacer("%in", in, "%out", out, "%type", typ).Replace(rule)
}
