package cppgen

import (
	"fmt"
	"strings"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/model"
	"github.com/funvibe/bindgen/internal/overload"
)

// emitErrorPath renders the label every failed check jumps to. Nothing is
// rendered when no path reaches it.
func (c *emitContext) emitErrorPath() {
	if !c.errorUsed {
		return
	}
	w := c.w
	args := "args"
	if c.group.Kind == overload.KindBinaryOperator {
		args = "arg"
	}
	name := cQuote(HostName(c.api, c.group))

	w.line("")
	w.label(c.errorLabel)
	if c.opts.VerboseErrors {
		sigs := Signatures(c.group)
		quoted := make([]string, 0, len(sigs)+1)
		for _, s := range sigs {
			quoted = append(quoted, cQuote(s))
		}
		quoted = append(quoted, "nullptr")
		w.linef("const char* overloads[] = {%s};", strings.Join(quoted, ", "))
		w.linef("%s(%s, %s, overloads);", rt("setErrorAboutWrongArguments"), args, name)
	} else {
		w.linef("%s(%s, %s, nullptr);", rt("setErrorAboutWrongArguments"), args, name)
	}
	w.linef("return %s;", c.failValue())
}

// Signatures renders the host-readable parameter list of every overload in
// g, in group order.
func Signatures(g *overload.Group) []string {
	out := make([]string, len(g.Overloads))
	for i, o := range g.Overloads {
		out[i] = HostSignature(o)
	}
	return out
}

// HostSignature renders the parameters of o the way the verbose error path
// lists them: "int, Shape* = None". "signed" qualifiers are collapsed,
// containers are named after their host collection, and null pointer
// defaults use the host null token.
func HostSignature(o *overload.Overload) string {
	f := o.Func
	parts := make([]string, len(o.Args))
	for i, a := range o.Args {
		s := hostTypeName(f, a)
		if a.Variadic {
			s += "..."
		}
		if def := f.ArgumentDefault(a.Index + 1); def != "" {
			if a.Type.IsPointer() && isNullLiteral(def) {
				def = config.HostNullToken
			}
			s += " = " + def
		}
		parts[i] = s
	}
	return strings.Join(parts, ", ")
}

func hostTypeName(f *model.Function, a *model.Argument) string {
	if repl := f.ReplacedType(a.Index + 1); repl != "" {
		return repl
	}
	t := a.Type
	if t.Kind == model.KindContainer {
		if name := model.HostContainerName(strings.TrimPrefix(t.Name, "::")); name != "" {
			return name
		}
	}
	return t.MinimalSignature()
}

func isNullLiteral(s string) bool {
	switch strings.TrimSpace(s) {
	case "0", "NULL", "nullptr", "0L":
		return true
	}
	return false
}

// FullSignatures renders "name(params)" for every overload of g; the CLI
// lists these.
func FullSignatures(api *model.API, g *overload.Group) []string {
	name := HostName(api, g)
	sigs := Signatures(g)
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = fmt.Sprintf("%s(%s)", name, s)
	}
	return out
}
