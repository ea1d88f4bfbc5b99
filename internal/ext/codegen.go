package ext

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/cppgen"
	"github.com/funvibe/bindgen/internal/logger"
	"github.com/funvibe/bindgen/internal/model"
	"github.com/funvibe/bindgen/internal/overload"
)

// CodeGenerator produces the C++ binding sources for one API: a file per
// bound class plus a module file holding module functions and the module
// init function.
type CodeGenerator struct {
	api  *model.API
	opts cppgen.Options

	// jobs bounds the number of files rendered in parallel.
	jobs int

	// cache is optional; nil renders every group.
	cache *Cache

	log *slog.Logger
}

// GenerateOption configures a CodeGenerator.
type GenerateOption func(*CodeGenerator)

// WithJobs sets the number of files rendered in parallel.
func WithJobs(n int) GenerateOption {
	return func(cg *CodeGenerator) {
		if n > 0 {
			cg.jobs = n
		}
	}
}

// WithDispatchCache reuses dispatch functions rendered by earlier runs.
func WithDispatchCache(c *Cache) GenerateOption {
	return func(cg *CodeGenerator) { cg.cache = c }
}

// WithGenerateLogger sets the logger for per-group diagnostics.
func WithGenerateLogger(l *slog.Logger) GenerateOption {
	return func(cg *CodeGenerator) { cg.log = l }
}

// NewCodeGenerator creates a new code generator.
func NewCodeGenerator(api *model.API, opts cppgen.Options, options ...GenerateOption) *CodeGenerator {
	cg := &CodeGenerator{api: api, opts: opts, jobs: 1, log: logger.L()}
	for _, o := range options {
		o(cg)
	}
	return cg
}

// GeneratedFile represents a generated C++ source file.
type GeneratedFile struct {
	// Filename is the path relative to the output directory
	// (e.g. "geometry_shape_wrapper.cpp").
	Filename string

	// Content is the full C++ source.
	Content string
}

// GenerateResult is the output of one generation run.
type GenerateResult struct {
	Files []GeneratedFile

	// Dispatches lists every rendered dispatch function in file order.
	Dispatches []*cppgen.Dispatch

	// Warnings are the diagnostics planted in generated code.
	Warnings []string

	// CacheHits counts dispatch functions taken from the cache.
	CacheHits int
}

// unit is one generated file: the module (class nil) or a bound class.
type unit struct {
	class      *model.Class
	dispatches []*cppgen.Dispatch
	hits       int
}

// Generate renders every file. Files are returned sorted by name.
func (cg *CodeGenerator) Generate(ctx context.Context) (*GenerateResult, error) {
	units := []*unit{{}}
	for _, c := range cg.api.Classes {
		units = append(units, &unit{class: c})
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cg.jobs)
	for _, u := range units {
		eg.Go(func() error {
			if err := cg.generateUnit(ctx, u); err != nil {
				return fmt.Errorf("generating bindings for %s: %w", cg.unitName(u), err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	result := &GenerateResult{}
	for _, u := range units {
		content, err := cg.render(u)
		if err != nil {
			return nil, fmt.Errorf("rendering %s: %w", cg.unitName(u), err)
		}
		result.Files = append(result.Files, GeneratedFile{Filename: cg.filename(u.class), Content: content})
		result.Dispatches = append(result.Dispatches, u.dispatches...)
		result.CacheHits += u.hits
		for _, d := range u.dispatches {
			result.Warnings = append(result.Warnings, d.Warnings...)
		}
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].Filename < result.Files[j].Filename
	})
	return result, nil
}

func (cg *CodeGenerator) unitName(u *unit) string {
	if u.class == nil {
		return "module " + cg.api.Module
	}
	return u.class.Name
}

// generateUnit collects the groups of one entity and renders each of them,
// going through the cache when one is configured.
func (cg *CodeGenerator) generateUnit(ctx context.Context, u *unit) error {
	groups, err := overload.NewCollector(cg.api).CollectAll(u.class)
	if err != nil {
		return err
	}
	gen := cppgen.NewGenerator(cg.api, cg.opts)
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, hit, err := cg.dispatch(ctx, gen, g)
		if err != nil {
			return err
		}
		if hit {
			u.hits++
		}
		u.dispatches = append(u.dispatches, d)
	}
	return nil
}

func (cg *CodeGenerator) dispatch(ctx context.Context, gen *cppgen.Generator, g *overload.Group) (*cppgen.Dispatch, bool, error) {
	var fingerprint string
	if cg.cache != nil {
		fp, err := Fingerprint(cg.api, g, cg.opts)
		if err != nil {
			return nil, false, err
		}
		fingerprint = fp
		d, ok, err := cg.cache.Lookup(ctx, fingerprint)
		if err != nil {
			return nil, false, err
		}
		if ok {
			cg.log.Debug("cache hit", "group", d.Group)
			return d, true, nil
		}
	}

	tree, err := overload.Build(g)
	if err != nil {
		return nil, false, err
	}
	d, err := gen.Emit(tree)
	if err != nil {
		return nil, false, err
	}
	cg.log.Debug("group generated", "group", d.Group, "overloads", len(g.Overloads), "nodes", len(tree.Nodes))

	if cg.cache != nil {
		if err := cg.cache.Store(ctx, fingerprint, d); err != nil {
			return nil, false, err
		}
	}
	return d, false, nil
}

// filename is "<module>_module_wrapper.cpp" for the module file and
// "<module>_<class>_wrapper.cpp" for classes, lowercased.
func (cg *CodeGenerator) filename(class *model.Class) string {
	name := "module"
	if class != nil {
		name = strings.ReplaceAll(class.Name, "::", "_")
	}
	return strings.ToLower(cg.api.Module + "_" + name + "_wrapper.cpp")
}

// numberSlots maps operator method names to the type slots that expose them.
// Names without a slot stay in the method table.
var numberSlots = map[string]string{
	"__add__":      "Py_nb_add",
	"__sub__":      "Py_nb_subtract",
	"__mul__":      "Py_nb_multiply",
	"__truediv__":  "Py_nb_true_divide",
	"__mod__":      "Py_nb_remainder",
	"__and__":      "Py_nb_and",
	"__or__":       "Py_nb_or",
	"__xor__":      "Py_nb_xor",
	"__lshift__":   "Py_nb_lshift",
	"__rshift__":   "Py_nb_rshift",
	"__iadd__":     "Py_nb_inplace_add",
	"__isub__":     "Py_nb_inplace_subtract",
	"__imul__":     "Py_nb_inplace_multiply",
	"__itruediv__": "Py_nb_inplace_true_divide",
	"__imod__":     "Py_nb_inplace_remainder",
	"__iand__":     "Py_nb_inplace_and",
	"__ior__":      "Py_nb_inplace_or",
	"__ixor__":     "Py_nb_inplace_xor",
	"__ilshift__":  "Py_nb_inplace_lshift",
	"__irshift__":  "Py_nb_inplace_rshift",
	"__neg__":      "Py_nb_negative",
	"__pos__":      "Py_nb_positive",
	"__invert__":   "Py_nb_invert",
}

// compareOps maps comparison method names to the rich comparison opcodes
// the type's richcompare function dispatches on.
var compareOps = map[string]string{
	"__eq__": "Py_EQ",
	"__ne__": "Py_NE",
	"__lt__": "Py_LT",
	"__le__": "Py_LE",
	"__gt__": "Py_GT",
	"__ge__": "Py_GE",
}

type methodEntry struct {
	Name     string
	Function string
	Flags    string
}

type slotEntry struct {
	Slot     string
	Function string
}

type classEntry struct {
	// Name is the native name, HostName the attribute the module exposes.
	Name       string
	HostName   string
	Identifier string
	TypeObject string
}

type fileContext struct {
	Version  string
	Header   string
	Runtime  string
	Includes []string
	Module   string

	Identifier string
	Functions  []string
	Methods    []methodEntry
	Slots      []slotEntry
	// Bound lists the static methods that are bound to the instance when
	// looked up through one; Compare maps opcodes to comparison functions.
	Bound   []methodEntry
	Compare []slotEntry

	// Class is set for class files.
	Class *classEntry
	// Classes lists every bound class in the module file.
	Classes []classEntry
}

var (
	templatesOnce sync.Once
	classTmpl     *template.Template
	moduleTmpl    *template.Template
	templatesErr  error
)

func parseTemplates() error {
	templatesOnce.Do(func() {
		funcs := template.FuncMap{"quote": func(s string) string { return fmt.Sprintf("%q", s) }}
		classTmpl, templatesErr = template.New("class").Funcs(funcs).Parse(classFileTemplate)
		if templatesErr != nil {
			return
		}
		moduleTmpl, templatesErr = template.New("module").Funcs(funcs).Parse(moduleFileTemplate)
	})
	return templatesErr
}

func (cg *CodeGenerator) classEntry(c *model.Class) classEntry {
	host := c.Name
	if i := strings.LastIndex(host, "::"); i >= 0 {
		host = host[i+2:]
	}
	return classEntry{
		Name:       c.Name,
		HostName:   host,
		Identifier: cppgen.Identifier(cg.api.Module, c.Name),
		TypeObject: cppgen.TypeObjectName(cg.api.Module, c.Name),
	}
}

func (cg *CodeGenerator) render(u *unit) (string, error) {
	if err := parseTemplates(); err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	ctx := fileContext{
		Version:  config.Version,
		Header:   config.HostHeader,
		Runtime:  config.RuntimeHeader,
		Includes: cg.api.Includes,
		Module:   cg.api.Module,
	}
	tmpl := moduleTmpl
	if u.class != nil {
		tmpl = classTmpl
		ce := cg.classEntry(u.class)
		ctx.Class = &ce
		ctx.Identifier = ce.Identifier
	} else {
		ctx.Identifier = cppgen.Identifier(cg.api.Module)
		for _, c := range cg.api.Classes {
			ctx.Classes = append(ctx.Classes, cg.classEntry(c))
		}
	}

	for _, d := range u.dispatches {
		ctx.Functions = append(ctx.Functions, strings.TrimRight(d.Code, "\n"))
		switch d.Kind {
		case overload.KindConstructor.String():
			ctx.Slots = append(ctx.Slots, slotEntry{Slot: "Py_tp_init", Function: d.Function})
			continue
		case overload.KindUnaryOperator.String(), overload.KindBinaryOperator.String():
			if slot, ok := numberSlots[d.Name]; ok {
				ctx.Slots = append(ctx.Slots, slotEntry{Slot: slot, Function: d.Function})
				continue
			}
			if op, ok := compareOps[d.Name]; ok && d.Kind == overload.KindBinaryOperator.String() {
				ctx.Compare = append(ctx.Compare, slotEntry{Slot: op, Function: d.Function})
				continue
			}
			ctx.Methods = append(ctx.Methods, methodEntry{Name: d.Name, Function: d.Function, Flags: "METH_O"})
			continue
		}
		flags := "METH_VARARGS"
		if (d.Static || d.Both) && u.class != nil {
			flags += " | METH_STATIC"
		}
		ctx.Methods = append(ctx.Methods, methodEntry{Name: d.Name, Function: d.Function, Flags: flags})
		if d.Both && u.class != nil {
			ctx.Bound = append(ctx.Bound, methodEntry{Name: d.Name, Function: d.Function, Flags: "METH_VARARGS"})
		}
	}
	if len(ctx.Bound) > 0 {
		ctx.Slots = append(ctx.Slots, slotEntry{Slot: "Py_tp_getattro", Function: ctx.Identifier + "_getattro"})
	}
	if len(ctx.Compare) > 0 {
		ctx.Slots = append(ctx.Slots, slotEntry{Slot: "Py_tp_richcompare", Function: ctx.Identifier + "_richcompare"})
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

// Templates

const fileHeader = `// Code generated by bindgen {{.Version}}. DO NOT EDIT.
#include <{{.Header}}>
#include "{{.Runtime}}"
{{- range .Includes}}
#include "{{.}}"
{{- end}}
{{range .Functions}}
{{.}}
{{end}}
static PyMethodDef {{.Identifier}}_methods[] = {
{{- range .Methods}}
    {{"{"}}{{quote .Name}}, (PyCFunction){{.Function}}, {{.Flags}}, nullptr},
{{- end}}
    {nullptr, nullptr, 0, nullptr}
};
`

const classFileTemplate = fileHeader + `{{if .Bound}}
static PyMethodDef {{.Identifier}}_bound[] = {
{{- range .Bound}}
    {{"{"}}{{quote .Name}}, (PyCFunction){{.Function}}, {{.Flags}}, nullptr},
{{- end}}
    {nullptr, nullptr, 0, nullptr}
};

// Static methods sharing a name with instance methods are bound to the
// receiver when looked up through an instance.
static PyObject* {{.Identifier}}_getattro(PyObject* self, PyObject* name)
{
    for (PyMethodDef* def = {{.Identifier}}_bound; def->ml_name; ++def) {
        if (PyUnicode_CompareWithASCIIString(name, def->ml_name) == 0)
            return PyCFunction_NewEx(def, self, nullptr);
    }
    return PyObject_GenericGetAttr(self, name);
}
{{end}}{{if .Compare}}
static PyObject* {{.Identifier}}_richcompare(PyObject* self, PyObject* other, int op)
{
    PyObject* result = nullptr;
    switch (op) {
{{- range .Compare}}
    case {{.Slot}}:
        result = {{.Function}}(self, other);
        break;
{{- end}}
    default:
        Py_RETURN_NOTIMPLEMENTED;
    }
    if (!result && PyErr_ExceptionMatches(PyExc_TypeError)) {
        PyErr_Clear();
        Py_RETURN_NOTIMPLEMENTED;
    }
    return result;
}
{{end}}
PyTypeObject* {{.Class.TypeObject}} = nullptr;

static PyType_Slot {{.Identifier}}_slots[] = {
{{- range .Slots}}
    {{"{"}}{{.Slot}}, (void*){{.Function}}},
{{- end}}
    {Py_tp_methods, (void*){{.Identifier}}_methods},
    {0, nullptr}
};

PyType_Spec {{.Identifier}}_spec = {
    {{quote (printf "%s.%s" .Module .Class.HostName)}},
    0,
    0,
    Py_TPFLAGS_DEFAULT | Py_TPFLAGS_BASETYPE,
    {{.Identifier}}_slots
};
`

const moduleFileTemplate = fileHeader + `{{range .Classes}}
extern PyType_Spec {{.Identifier}}_spec;
extern PyTypeObject* {{.TypeObject}};
{{- end}}

static PyModuleDef {{.Identifier}}_module = {
    PyModuleDef_HEAD_INIT,
    {{quote .Module}},
    nullptr,
    -1,
    {{.Identifier}}_methods
};

PyMODINIT_FUNC PyInit_{{.Module}}(void)
{
    PyObject* module = PyModule_Create(&{{.Identifier}}_module);
    if (!module)
        return nullptr;
{{- range .Classes}}
    {{.TypeObject}} = reinterpret_cast<PyTypeObject*>(PyType_FromSpec(&{{.Identifier}}_spec));
    if (!{{.TypeObject}} || PyModule_AddObject(module, {{quote .HostName}}, reinterpret_cast<PyObject*>({{.TypeObject}})) < 0)
        return nullptr;
{{- end}}
    return module;
}
`
