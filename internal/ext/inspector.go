package ext

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/funvibe/bindgen/internal/model"
)

// InspectResult holds the API model with every rule applied.
type InspectResult struct {
	API *model.API

	// Applied counts, per rule, the functions it modified.
	Applied []int
}

// Inspector loads the API description named by the config and applies the
// modification rules to it.
type Inspector struct {
	config *Config

	// configPath is the bindgen.yaml the config was read from. Relative
	// paths in the config are resolved against its directory.
	configPath string
}

// NewInspector creates a new Inspector.
func NewInspector(cfg *Config, configPath string) *Inspector {
	return &Inspector{config: cfg, configPath: configPath}
}

// APIPath is the resolved path of the API description.
func (ins *Inspector) APIPath() string {
	return resolvePath(filepath.Dir(ins.configPath), ins.config.API)
}

// Inspect loads the API and applies every rule.
func (ins *Inspector) Inspect() (*InspectResult, error) {
	api, err := model.LoadAPI(ins.APIPath())
	if err != nil {
		return nil, fmt.Errorf("loading api: %w", err)
	}
	return ins.InspectAPI(api)
}

// InspectAPI applies every rule to an already loaded API. A rule that
// matches no function is an error.
func (ins *Inspector) InspectAPI(api *model.API) (*InspectResult, error) {
	result := &InspectResult{API: api}
	for i, r := range ins.config.Rules {
		fns, err := ins.targets(api, r)
		if err != nil {
			return nil, fmt.Errorf("%s: rules[%d]: %w", ins.configPath, i, err)
		}
		for _, f := range fns {
			if err := applyRule(f, r); err != nil {
				return nil, fmt.Errorf("%s: rules[%d] (%s): %s: %w", ins.configPath, i, r.Target(), f.MinimalSignature(), err)
			}
		}
		result.Applied = append(result.Applied, len(fns))
	}
	return result, nil
}

// targets returns the functions a rule applies to. Rules on a class follow
// its functions into the classes that inherit them.
func (ins *Inspector) targets(api *model.API, r Rule) ([]*model.Function, error) {
	if r.Class == "" {
		var out []*model.Function
		for _, f := range api.Functions {
			if matchesRule(f, r.Function) {
				out = append(out, f)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no module function %q", r.Function)
		}
		return out, nil
	}

	owner := api.Class(r.Class)
	if owner == nil {
		return nil, fmt.Errorf("unknown class %q", r.Class)
	}
	var out []*model.Function
	for _, f := range owner.Functions {
		if matchesRule(f, r.Function) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("class %s has no function %q", r.Class, r.Function)
	}
	for _, c := range api.Classes {
		if c == owner || !api.IsSubclassStrict(c.Name, owner.Name) {
			continue
		}
		for _, f := range c.Functions {
			if f.Declaring == owner.Name && matchesRule(f, r.Function) {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// matchesRule reports whether pattern names f, either by its native name,
// its operator slot or its minimal signature.
func matchesRule(f *model.Function, pattern string) bool {
	if strings.Contains(pattern, "(") {
		return f.MinimalSignature() == pattern
	}
	if f.Operator != "" {
		name, _ := model.OperatorSlot(f.Operator, f.IsUnaryOperator())
		return pattern == name || pattern == "operator"+f.Operator
	}
	return f.Name == pattern
}

// applyRule records the rule's effects on f.
func applyRule(f *model.Function, r Rule) error {
	m := &f.Mods
	if r.Remove {
		m.Remove = true
	}
	if r.Rename != "" {
		m.Rename = r.Rename
	}
	if r.AllowThread {
		m.AllowThread = true
	}
	for _, inj := range r.Inject {
		m.Snips = append(m.Snips, model.CodeSnip{Position: model.SnipPosition(inj.Position), Code: inj.Code})
	}

	for _, a := range r.Args {
		slot, err := ParseSlot(a.Slot)
		if err != nil {
			return err
		}
		if slot > len(f.Arguments) {
			return fmt.Errorf("argument %d does not exist", slot)
		}
		if slot == model.SlotReturn && f.Return.IsVoid() && (a.Type != "" || a.Conversion != "" || a.Ownership != "" || a.ReferenceCount != "") {
			return fmt.Errorf("return slot of a void function cannot be modified")
		}
		if slot == model.SlotThis && (f.Owner == "" || f.Static) {
			return fmt.Errorf("this slot of a function without a receiver cannot be modified")
		}

		am := m.ArgOrCreate(slot)
		am.Removed = am.Removed || a.Remove
		if a.Default != "" {
			am.ReplacedDefault = a.Default
			am.RemovedDefault = false
		}
		if a.RemoveDefault {
			am.RemovedDefault = true
			am.ReplacedDefault = ""
		}
		if a.Type != "" {
			am.ReplacedType = a.Type
		}
		if a.Conversion != "" {
			am.ConversionRule = a.Conversion
		}
		if a.Ownership != "" {
			am.Ownership = model.Ownership(a.Ownership)
			am.RefCount = model.RefCountNone
			am.RefKey = ""
			if a.Owner != "" {
				owner, _ := ParseSlot(a.Owner)
				if owner > len(f.Arguments) {
					return fmt.Errorf("owner argument %d does not exist", owner)
				}
				am.Owner = owner
			}
		}
		if a.ReferenceCount != "" {
			am.RefCount = model.RefCountAction(a.ReferenceCount)
			am.RefKey = a.ReferenceKey
			am.Ownership = model.OwnershipNone
		}
	}
	return nil
}
