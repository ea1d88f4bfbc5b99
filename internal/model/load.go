package model

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// apiFile is the on-disk shape of api.yaml.
type apiFile struct {
	Module    string          `yaml:"module"`
	Includes  []string        `yaml:"includes"`
	Enums     []enumEntry     `yaml:"enums"`
	Classes   []classEntry    `yaml:"classes"`
	Functions []functionEntry `yaml:"functions"`
}

type enumEntry struct {
	Name   string   `yaml:"name"`
	Flags  bool     `yaml:"flags"`
	Values []string `yaml:"values"`
}

type classEntry struct {
	Name              string          `yaml:"name"`
	Kind              string          `yaml:"kind"`
	Bases             []string        `yaml:"bases"`
	Abstract          bool            `yaml:"abstract"`
	VirtualDestructor bool            `yaml:"virtual_destructor"`
	Functions         []functionEntry `yaml:"functions"`
}

// functionEntry accepts either a bare signature string or a mapping with
// an access level.
type functionEntry struct {
	Sig    string `yaml:"sig"`
	Access string `yaml:"access"`
}

func (e *functionEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Sig = node.Value
		return nil
	}
	type plain functionEntry
	return node.Decode((*plain)(e))
}

// LoadAPI reads and resolves an api.yaml file.
func LoadAPI(path string) (*API, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading api %s: %w", path, err)
	}
	return ParseAPI(data, path)
}

// ParseAPI parses api.yaml content. The path is used only in error messages.
func ParseAPI(data []byte, path string) (*API, error) {
	var file apiFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if file.Module == "" {
		return nil, fmt.Errorf("%s: module is required", path)
	}

	api := &API{Module: file.Module, Includes: file.Includes}
	for i, e := range file.Enums {
		if e.Name == "" {
			return nil, fmt.Errorf("%s: enums[%d]: name is required", path, i)
		}
		api.Enums = append(api.Enums, &Enum{Name: e.Name, Flags: e.Flags, Values: e.Values})
	}

	for i, ce := range file.Classes {
		if ce.Name == "" {
			return nil, fmt.Errorf("%s: classes[%d]: name is required", path, i)
		}
		c := &Class{
			Name:              ce.Name,
			Kind:              ClassKind(ce.Kind),
			Bases:             ce.Bases,
			Abstract:          ce.Abstract,
			VirtualDestructor: ce.VirtualDestructor,
		}
		switch c.Kind {
		case "":
			c.Kind = ClassObject
		case ClassObject, ClassValue:
		default:
			return nil, fmt.Errorf("%s: classes[%d] (%s): unknown kind %q", path, i, ce.Name, ce.Kind)
		}
		for j, fe := range ce.Functions {
			f, err := parseEntry(fe, ce.Name)
			if errors.Is(err, ErrDestructor) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%s: classes[%d].functions[%d] (%s): %w", path, i, j, ce.Name, err)
			}
			c.Functions = append(c.Functions, f)
		}
		api.Classes = append(api.Classes, c)
	}

	for i, fe := range file.Functions {
		f, err := parseEntry(fe, "")
		if err != nil {
			return nil, fmt.Errorf("%s: functions[%d]: %w", path, i, err)
		}
		if f.Static || f.Virtual {
			return nil, fmt.Errorf("%s: functions[%d]: module functions cannot be static or virtual", path, i)
		}
		api.Functions = append(api.Functions, f)
	}

	api.index()
	if err := api.link(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return api, nil
}

func parseEntry(fe functionEntry, owner string) (*Function, error) {
	f, err := ParseSignature(fe.Sig, owner)
	if err != nil {
		return nil, err
	}
	switch Access(fe.Access) {
	case "":
	case AccessPublic, AccessProtected, AccessPrivate:
		f.Access = Access(fe.Access)
	default:
		return nil, fmt.Errorf("unknown access %q", fe.Access)
	}
	return f, nil
}

// link resolves every type, copies inherited functions into derived classes
// and attaches free operators to the class they operate on.
func (a *API) link() error {
	for _, c := range a.Classes {
		for _, b := range c.Bases {
			if a.Class(b) == nil {
				return fmt.Errorf("class %s: unknown base %s", c.Name, b)
			}
		}
		if a.IsSubclassStrict(c.Name, c.Name) {
			return fmt.Errorf("class %s: inheritance cycle", c.Name)
		}
	}
	for _, c := range a.Classes {
		for _, f := range c.Functions {
			a.resolveFunction(f)
		}
	}
	for _, f := range a.Functions {
		a.resolveFunction(f)
	}

	done := map[string]bool{}
	for _, c := range a.Classes {
		a.inherit(c, done)
	}

	var module []*Function
	for _, f := range a.Functions {
		if f.Operator == "" {
			module = append(module, f)
			continue
		}
		if target, reverse := a.operatorTarget(f); target != nil {
			op := f.Clone()
			op.Owner = target.Name
			op.FreeOperator = true
			op.Reverse = reverse
			target.Functions = append(target.Functions, op)
			continue
		}
		module = append(module, f)
	}
	a.Functions = module

	for _, c := range a.Classes {
		for _, f := range c.Functions {
			if f.Abstract && !f.FreeOperator {
				c.Abstract = true
			}
		}
	}
	return nil
}

// IsSubclassStrict reports whether derived inherits from base through at
// least one edge.
func (a *API) IsSubclassStrict(derived, base string) bool {
	c := a.Class(derived)
	if c == nil {
		return false
	}
	seen := map[string]bool{}
	stack := append([]string(nil), c.Bases...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if name == base {
			return true
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		if bc := a.Class(name); bc != nil {
			stack = append(stack, bc.Bases...)
		}
	}
	return false
}

func (a *API) resolveFunction(f *Function) {
	a.ResolveType(f.Return)
	for _, arg := range f.Arguments {
		a.ResolveType(arg.Type)
	}
}

// inherit appends base-class functions to c, bases first. A function name
// declared in c hides every base function of that name.
func (a *API) inherit(c *Class, done map[string]bool) {
	if done[c.Name] {
		return
	}
	done[c.Name] = true
	own := map[string]bool{}
	for _, f := range c.Functions {
		own[f.Name] = true
	}
	for _, bname := range c.Bases {
		base := a.Class(bname)
		a.inherit(base, done)
		for _, f := range base.Functions {
			if f.Constructor || f.FreeOperator || own[f.Name] {
				continue
			}
			inh := f.Clone()
			inh.Owner = c.Name
			c.Functions = append(c.Functions, inh)
		}
	}
}

// operatorTarget picks the class a module-scope operator binds to: the left
// operand's class, or the right one's as a reverse operator.
func (a *API) operatorTarget(f *Function) (*Class, bool) {
	if len(f.Arguments) == 0 {
		return nil, false
	}
	if c := a.Class(f.Arguments[0].Type.Name); c != nil && f.Arguments[0].Type.Indirections == 0 {
		return c, false
	}
	if len(f.Arguments) == 2 {
		if c := a.Class(f.Arguments[1].Type.Name); c != nil && f.Arguments[1].Type.Indirections == 0 {
			return c, true
		}
	}
	return nil, false
}
