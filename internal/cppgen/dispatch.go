package cppgen

import (
	"fmt"
	"strings"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/model"
	"github.com/funvibe/bindgen/internal/overload"
)

// Options control the rendered dispatch functions.
type Options struct {
	// VerboseErrors lists every overload's signature in the error raised for
	// an unmatched call; otherwise only the call arguments are reported.
	VerboseErrors bool
	// ReturnValueHeuristic parents returned object pointers to the receiver
	// when no ownership rule covers the return value.
	ReturnValueHeuristic bool
}

// Dispatch is one rendered dispatch function.
type Dispatch struct {
	// Group is the host-visible name, "Shape.move" or "geometry.area".
	Group    string `yaml:"group"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Function string `yaml:"function"`
	// Static is set when no overload needs a receiver.
	Static bool `yaml:"static,omitempty"`
	// Both is set when static and instance overloads share the name; the
	// function is registered static and bound to instances on attribute
	// lookup.
	Both       bool     `yaml:"both,omitempty"`
	Signatures []string `yaml:"signatures"`
	// Warnings lists the compile-time diagnostics planted in Code.
	Warnings []string `yaml:"warnings,omitempty"`
	Code     string   `yaml:"code"`
}

// Generator renders dispatch functions for one API.
type Generator struct {
	api  *model.API
	opts Options
}

// NewGenerator returns a generator over api.
func NewGenerator(api *model.API, opts Options) *Generator {
	return &Generator{api: api, opts: opts}
}

// Generate builds the resolver tree for g and renders it.
func (gen *Generator) Generate(g *overload.Group) (*Dispatch, error) {
	tree, err := overload.Build(g)
	if err != nil {
		return nil, err
	}
	return gen.Emit(tree)
}

// outcome is how a dispatch path ends: a selected overload, or the shared
// error path every failed check converges on.
type outcome struct {
	failed   bool
	overload int
}

func selected(i int) outcome { return outcome{overload: i} }

var failure = outcome{failed: true}

// emitContext is the state of rendering one group. It is never shared
// between groups.
type emitContext struct {
	api   *model.API
	opts  Options
	tree  *overload.Tree
	group *overload.Group
	w     *writer

	wrapper    string
	errorLabel string
	errorUsed  bool
	warnings   []string
}

// Emit renders the dispatch function for tree.
func (gen *Generator) Emit(tree *overload.Tree) (*Dispatch, error) {
	g := tree.Group
	if len(g.Overloads) == 0 {
		return nil, fmt.Errorf("%s: %w", g.FullName(), overload.ErrEmptyGroup)
	}
	switch g.Kind {
	case overload.KindConstructor, overload.KindBinaryOperator, overload.KindUnaryOperator:
		if g.Class == nil {
			return nil, fmt.Errorf("%s: %s group without a class", g.FullName(), g.Kind)
		}
	}
	c := &emitContext{
		api:     gen.api,
		opts:    gen.opts,
		tree:    tree,
		group:   g,
		w:       &writer{},
		wrapper: WrapperName(g),
	}
	c.errorLabel = c.wrapper + config.ErrorLabelSuffix
	c.emitFunction()

	return &Dispatch{
		Group:      HostName(gen.api, g),
		Name:       g.Name,
		Kind:       g.Kind.String(),
		Function:   c.wrapper,
		Static:     !g.HasInstance() && g.Kind != overload.KindConstructor,
		Both:       g.HasBoth(),
		Signatures: Signatures(g),
		Warnings:   c.warnings,
		Code:       c.w.String(),
	}, nil
}

// HostName is the dotted name the host reports for g.
func HostName(api *model.API, g *overload.Group) string {
	if g.Class == nil {
		return g.FullName()
	}
	return api.Module + "." + g.FullName()
}

func (c *emitContext) isConstructor() bool { return c.group.Kind == overload.KindConstructor }

func (c *emitContext) failValue() string {
	if c.isConstructor() {
		return "-1"
	}
	return "nullptr"
}

func (c *emitContext) selfType() string {
	return qualifiedClass(c.group.Class.Name)
}

func (c *emitContext) emitFunction() {
	w := c.w
	g := c.group
	switch g.Kind {
	case overload.KindConstructor:
		w.linef("static int %s(PyObject* self, PyObject* args, PyObject* kwds)", c.wrapper)
	case overload.KindBinaryOperator:
		w.linef("static PyObject* %s(PyObject* self, PyObject* arg)", c.wrapper)
	case overload.KindUnaryOperator:
		w.linef("static PyObject* %s(PyObject* self)", c.wrapper)
	default:
		w.linef("static PyObject* %s(PyObject* self, PyObject* args)", c.wrapper)
	}
	w.line("{")
	w.in()
	c.emitPrologue()
	w.line("")
	w.line("// overload decisor")
	c.emitNode(0)
	w.line("")
	w.line("// call dispatcher")
	w.linef("switch (%s) {", config.OverloadIDVarName)
	w.in()
	for _, o := range g.Overloads {
		w.linef("case %d: // %s", o.Index, o.Signature())
		w.line("{")
		w.in()
		c.emitOverload(o)
		w.line("break;")
		w.out()
		w.line("}")
	}
	w.out()
	w.line("}")
	w.line("")
	c.emitEpilogue()
	c.emitErrorPath()
	w.out()
	w.line("}")
}

func (c *emitContext) emitPrologue() {
	w := c.w
	g := c.group
	self := config.SelfVarName

	switch {
	case c.isConstructor():
		w.linef("%s* %s = nullptr;", c.selfType(), self)
	case g.HasBoth():
		w.linef("%s* %s = nullptr;", c.selfType(), self)
		w.linef("const bool %s = self != nullptr && %s(self);",
			config.HasSelfVarName, instantiate(rt("Object::checkType"), c.selfType()))
	case g.HasInstance():
		if g.HasReverse() {
			check := instantiate(rt("Object::checkType"), c.selfType())
			w.linef("const bool %s = %s(arg) && !%s(self);", config.ReverseFlagVarName, check, check)
			w.linef("if (%s)", config.ReverseFlagVarName)
			w.line(indentUnit + "std::swap(self, arg);")
		}
		w.linef("if (!%s(self))", rt("Object::isValid"))
		w.linef("%sreturn %s;", indentUnit, c.failValue())
		w.linef("%s* %s = %s(self);", c.selfType(), self, instantiate(rt("Object::cppPointer"), c.selfType()))
	}
	if !c.isConstructor() {
		w.linef("PyObject* %s = nullptr;", config.HostResultVarName)
	}
	w.linef("int %s = -1;", config.OverloadIDVarName)

	switch g.Kind {
	case overload.KindUnaryOperator:
		return
	case overload.KindBinaryOperator:
		w.linef("PyObject* %s[] = {arg};", config.HostArgsVarName)
		return
	}

	fixed := 0
	for _, o := range g.Overloads {
		n := len(o.Args)
		if o.Variadic() {
			n--
		}
		fixed = max(fixed, n)
	}
	w.linef("const Py_ssize_t %s = PyTuple_GET_SIZE(args);", config.NumArgsVarName)
	if fixed > 0 {
		w.linef("PyObject* %s[] = {%s};", config.HostArgsVarName, strings.TrimSuffix(strings.Repeat("0, ", fixed), ", "))
	}
	w.line("")
	w.line("// invalid argument lengths")
	if lo := g.MinArgs(); lo > 0 {
		w.linef("if (%s < %d)", config.NumArgsVarName, lo)
		w.in()
		c.end(failure)
		w.out()
	}
	if hi := g.MaxArgs(); hi >= 0 {
		w.linef("if (%s > %d)", config.NumArgsVarName, hi)
		w.in()
		c.end(failure)
		w.out()
	}
	if fixed > 0 {
		w.linef("for (Py_ssize_t i = 0; i < %s && i < %d; ++i)", config.NumArgsVarName, fixed)
		w.linef("%s%s[i] = PyTuple_GET_ITEM(args, i);", indentUnit, config.HostArgsVarName)
	}
}

// end renders the final statement of a dispatch path.
func (c *emitContext) end(o outcome) {
	if o.failed {
		c.errorUsed = true
		c.w.linef("goto %s;", c.errorLabel)
		return
	}
	ov := c.group.Overloads[o.overload]
	if c.group.HasBoth() && !ov.Func.Static {
		c.w.linef("if (!%s)", config.HasSelfVarName)
		c.errorUsed = true
		c.w.linef("%sgoto %s;", indentUnit, c.errorLabel)
	}
	c.w.linef("%s = %d; // %s", config.OverloadIDVarName, o.overload, ov.Signature())
}

func (c *emitContext) pyArg(i int) string {
	return fmt.Sprintf("%s[%d]", config.HostArgsVarName, i)
}

// gate is the reverse-operator condition for a first-position check, or "".
func (c *emitContext) gate(pos int, chk overload.Check) string {
	if pos != 0 || !c.group.HasReverse() {
		return ""
	}
	if chk.Reverse {
		return config.ReverseFlagVarName
	}
	return "!" + config.ReverseFlagVarName
}

// branches renders an if/else-if chain ending in the error path.
func (c *emitContext) branches(conds []string, bodies []func()) {
	w := c.w
	for i, cond := range conds {
		if i == 0 {
			w.linef("if (%s) {", cond)
		} else {
			w.linef("} else if (%s) {", cond)
		}
		w.in()
		bodies[i]()
		w.out()
	}
	w.line("} else {")
	w.in()
	c.end(failure)
	w.out()
	w.line("}")
}

func (c *emitContext) emitNode(id overload.NodeID) {
	node := c.tree.Node(id)
	if node.IsTerminal() {
		// only a single-overload group ends at the root; the group bounds
		// already hold for it
		o := node.Overloads[0]
		parts := c.restConds(node)
		if len(parts) == 0 {
			c.end(selected(o))
			return
		}
		c.branches([]string{joinConds(parts)}, []func(){func() { c.end(selected(o)) }})
		return
	}
	p := node.Pos + 1
	var conds []string
	var bodies []func()
	if node.Exact >= 0 {
		exact := node.Exact
		conds = append(conds, fmt.Sprintf("%s == %d", config.NumArgsVarName, p))
		bodies = append(bodies, func() { c.end(selected(exact)) })
	}
	for _, cid := range node.Children {
		child := c.tree.Node(cid)
		var parts []string
		if gate := c.gate(child.Pos, child.Check); gate != "" {
			parts = append(parts, gate)
		}
		if child.Check.Variadic {
			parts = append(parts, tailCheck(child.Check, p))
		} else {
			lo, hi := c.tree.ArgBounds(cid)
			parts = append(parts, c.countConds(p, max(lo, p+1), hi)...)
			if expr := CheckExpr(child.Check, c.pyArg(p), c.tree.NumericAmbiguous(cid)); expr != "" {
				parts = append(parts, expr)
			}
		}
		body := func() { c.emitNode(cid) }
		if child.IsTerminal() {
			o := child.Overloads[0]
			parts = append(parts, c.restConds(child)...)
			body = func() { c.end(selected(o)) }
		}
		conds = append(conds, joinConds(parts))
		bodies = append(bodies, body)
	}
	c.branches(conds, bodies)
}

// countConds renders the bounds lo..hi on the argument count that are not
// already implied by have arguments being present or by the group bounds.
func (c *emitContext) countConds(have, lo, hi int) []string {
	g := c.group
	if g.Kind == overload.KindBinaryOperator || g.Kind == overload.KindUnaryOperator {
		return nil
	}
	floor := max(have, g.MinArgs())
	needLo := lo > floor
	needHi := hi >= 0 && (g.MaxArgs() < 0 || hi < g.MaxArgs())
	switch {
	case needHi && lo == hi:
		return []string{fmt.Sprintf("%s == %d", config.NumArgsVarName, lo)}
	case needLo && needHi:
		return []string{c.lowerBound(have, lo), fmt.Sprintf("%s <= %d", config.NumArgsVarName, hi)}
	case needLo:
		return []string{c.lowerBound(have, lo)}
	case needHi:
		return []string{fmt.Sprintf("%s <= %d", config.NumArgsVarName, hi)}
	}
	return nil
}

func (c *emitContext) lowerBound(have, lo int) string {
	if lo == have+1 {
		return fmt.Sprintf("%s > %d", config.NumArgsVarName, have)
	}
	return fmt.Sprintf("%s >= %d", config.NumArgsVarName, lo)
}

// restConds checks the arguments of a terminal node's overload past the
// node's position, widened, with defaulted ones allowed to be missing.
func (c *emitContext) restConds(node *overload.Node) []string {
	o := c.group.Overloads[node.Overloads[0]]
	var parts []string
	for k := node.Pos + 1; k < len(o.Args); k++ {
		chk := o.Checks[k]
		if gate := c.gate(k, chk); gate != "" {
			parts = append(parts, gate)
		}
		if chk.Variadic {
			parts = append(parts, tailCheck(chk, k))
			continue
		}
		expr := CheckExpr(chk, c.pyArg(k), false)
		switch {
		case expr == "":
		case k >= o.MinArgs:
			parts = append(parts, fmt.Sprintf("(%s <= %d || %s)", config.NumArgsVarName, k, expr))
		default:
			parts = append(parts, expr)
		}
	}
	return parts
}

func joinConds(parts []string) string {
	if len(parts) == 0 {
		return "true"
	}
	return strings.Join(parts, " && ")
}

func (c *emitContext) emitEpilogue() {
	w := c.w
	if c.isConstructor() {
		w.block("if (PyErr_Occurred() || !"+config.SelfVarName+")", func() {
			w.linef("delete %s;", config.SelfVarName)
			w.line("return -1;")
		})
		w.linef("%s(self, %s);", rt("Object::setCppPointer"), config.SelfVarName)
		w.line("return 0;")
		return
	}
	w.block("if (PyErr_Occurred())", func() {
		w.linef("Py_XDECREF(%s);", config.HostResultVarName)
		w.line("return nullptr;")
	})
	if c.returnsNone() {
		w.linef("if (!%s)", config.HostResultVarName)
		w.line(indentUnit + "Py_RETURN_NONE;")
	}
	w.linef("return %s;", config.HostResultVarName)
}
