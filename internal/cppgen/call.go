package cppgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/model"
	"github.com/funvibe/bindgen/internal/overload"
)

// emitOverload renders one case of the call dispatcher: conversions, the
// native call, the result conversion and ownership statements.
func (c *emitContext) emitOverload(o *overload.Overload) {
	w := c.w
	f := o.Func
	if c.group.HasBoth() && !f.Static {
		w.linef("%s = %s(self);", config.SelfVarName, instantiate(rt("Object::cppPointer"), c.selfType()))
	}
	if o.Stub {
		w.linef("PyErr_SetString(PyExc_NotImplementedError, %s);",
			cQuote(fmt.Sprintf("pure virtual method '%s.%s' is not accessible", c.group.Scope, f.MinimalSignature())))
		return
	}

	args := c.emitConversions(o)
	if len(args) > 0 {
		w.line("if (PyErr_Occurred())")
		w.line(indentUnit + "break;")
	}
	vars := c.snipVars(o, args)
	for _, s := range f.Mods.SnipsAt(model.SnipBeginning) {
		w.code(vars.expand(s.Code))
	}
	if f.HasCallSnip() {
		for _, s := range f.Mods.SnipsAt(model.SnipCall) {
			w.code(vars.expand(s.Code))
		}
	} else {
		c.emitCall(o, args)
	}
	for _, s := range f.Mods.SnipsAt(model.SnipEnd) {
		w.code(vars.expand(s.Code))
	}
	c.emitOwnership(o, args)
}

func (c *emitContext) emitCall(o *overload.Overload, args []converted) {
	w := c.w
	f := o.Func
	self := config.SelfVarName

	if f.Abstract && !f.Static && !f.FreeOperator {
		w.block(fmt.Sprintf("if (%s(self))", rt("Object::hasCppWrapper")), func() {
			w.linef("PyErr_SetString(PyExc_NotImplementedError, %s);",
				cQuote(fmt.Sprintf("pure virtual method '%s.%s' not implemented.", c.group.Scope, f.Name)))
			w.line("break;")
		})
	}

	call := c.callExpr(o, args)
	var stmt string
	switch {
	case f.Constructor:
		stmt = fmt.Sprintf("%s = %s;", self, call)
	case f.IsInPlaceOperator(), f.Return.IsVoid():
		stmt = call + ";"
	default:
		stmt = fmt.Sprintf("%s %s = %s;", f.Return.QualifiedSignature(), config.ResultVarName, call)
	}
	if f.AllowThread() {
		w.linef("%s threadState;", rt("ThreadStateSaver"))
		w.line("threadState.save();")
		w.line(stmt)
		w.line("threadState.restore();")
	} else {
		w.line(stmt)
	}

	switch {
	case f.Constructor:
	case f.IsInPlaceOperator():
		w.line("Py_INCREF(self);")
		w.linef("%s = self;", config.HostResultVarName)
	case !f.Return.IsVoid():
		c.emitResultConversion(f)
	}
}

// callExpr renders the native invocation for o.
func (c *emitContext) callExpr(o *overload.Overload, args []converted) string {
	f := o.Func
	exprs := make([]string, len(args))
	for i, a := range args {
		exprs[i] = a.expr
	}
	list := strings.Join(exprs, ", ")
	self := "(*" + config.SelfVarName + ")"

	switch {
	case f.Constructor:
		return fmt.Sprintf("new %s(%s)", qualifiedClass(f.Owner), list)
	case f.Operator != "" && f.IsUnaryOperator():
		return f.Operator + self
	case f.Operator != "" && f.FreeOperator:
		// the receiver already sits at its own position in exprs
		return fmt.Sprintf("%s %s %s", exprs[0], f.Operator, exprs[1])
	case f.Operator != "":
		return fmt.Sprintf("%s %s %s", self, f.Operator, exprs[0])
	case f.Static:
		return fmt.Sprintf("%s::%s(%s)", qualifiedClass(f.Owner), f.Name, list)
	case f.Owner == "":
		return fmt.Sprintf("::%s(%s)", f.Name, list)
	case f.Virtual && !f.Abstract:
		return fmt.Sprintf("(%s(self) ? %s->%s::%s(%s) : %s->%s(%s))",
			rt("Object::hasCppWrapper"),
			config.SelfVarName, qualifiedClass(f.Declaring), f.Name, list,
			config.SelfVarName, f.Name, list)
	}
	return fmt.Sprintf("%s->%s(%s)", config.SelfVarName, f.Name, list)
}

// emitResultConversion converts the native result back to a host value with
// the inverse of the argument conversions.
func (c *emitContext) emitResultConversion(f *model.Function) {
	w := c.w
	ret := f.Return
	res := config.ResultVarName
	py := config.HostResultVarName
	defer c.emitResultGuard()
	if rule := f.ConversionRule(model.SlotReturn); rule != "" {
		w.code(expandConversionRule(rule, res, py, ret.QualifiedSignature()))
		return
	}
	switch {
	case ret.Kind == model.KindHostObject:
		w.linef("%s = %s;", py, res)
	case ret.Kind == model.KindUnknown && f.ReplacedType(model.SlotReturn) != "":
		w.linef("%s = %s::toPython(%s);", py, instantiate(rt("Converter"), f.ReplacedType(model.SlotReturn)), res)
	case ret.Kind == model.KindObject && ret.IsPointer():
		w.linef("%s = %s::toPython(%s);", py, instantiate(rt("Converter"), ret.Stripped().QualifiedSignature()), res)
	case ret.Kind == model.KindObject && ret.Reference:
		w.linef("%s = %s::toPython(&%s);", py, instantiate(rt("Converter"), ret.Pointee().Stripped().QualifiedSignature()+"*"), res)
	default:
		w.linef("%s = %s::toPython(%s);", py, instantiate(rt("Converter"), ret.Stripped().QualifiedSignature()), res)
	}
}

// emitResultGuard turns a converted result that is still null into an error
// so it never reaches the host as None.
func (c *emitContext) emitResultGuard() {
	w := c.w
	w.block(fmt.Sprintf("if (!%s)", config.HostResultVarName), func() {
		w.line("if (!PyErr_Occurred())")
		w.linef("%sPyErr_SetString(PyExc_RuntimeError, %s);", indentUnit,
			cQuote("could not convert the result of "+HostName(c.api, c.group)))
		w.line("break;")
	})
}

// returnsNone reports whether a case may finish without a host result: a
// void call, or injected code replacing the call.
func (c *emitContext) returnsNone() bool {
	for _, o := range c.group.Overloads {
		f := o.Func
		if o.Stub {
			continue
		}
		if f.HasCallSnip() || (!f.IsInPlaceOperator() && f.Return.IsVoid()) {
			return true
		}
	}
	return false
}

// snipVars are the placeholder values of injected code in one dispatch case.
type snipVars struct {
	function string
	typ      string
	args     []string
}

func (c *emitContext) snipVars(o *overload.Overload, args []converted) snipVars {
	v := snipVars{function: o.Func.Name}
	if c.group.Class != nil {
		v.typ = c.selfType()
	}
	for _, a := range args {
		v.args = append(v.args, a.expr)
	}
	return v
}

var placeholderRe = regexp.MustCompile(`%(CPPSELF|PYSELF|PYARG_(\d+)|FUNCTION_NAME|TYPE|ARGUMENT_NAMES|(\d+))`)

// expand substitutes the placeholders of injected code. Unknown argument
// numbers are left untouched.
func (v snipVars) expand(code string) string {
	return placeholderRe.ReplaceAllStringFunc(code, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		switch {
		case sub[1] == "CPPSELF":
			return config.SelfVarName
		case sub[1] == "PYSELF":
			return "self"
		case sub[1] == "FUNCTION_NAME":
			return v.function
		case sub[1] == "TYPE":
			return v.typ
		case sub[1] == "ARGUMENT_NAMES":
			return strings.Join(v.args, ", ")
		case sub[2] != "":
			n, _ := strconv.Atoi(sub[2])
			if n == 0 {
				return config.HostResultVarName
			}
			return fmt.Sprintf("%s[%d]", config.HostArgsVarName, n-1)
		}
		n, _ := strconv.Atoi(sub[3])
		if n == 0 {
			return config.ResultVarName
		}
		if n <= len(v.args) {
			return v.args[n-1]
		}
		return m
	})
}
