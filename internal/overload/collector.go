package overload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/bindgen/internal/model"
)

// Collector partitions the functions of a class or of module scope into
// overload groups. It never mutates the model.
type Collector struct {
	api *model.API
}

// NewCollector returns a collector over api.
func NewCollector(api *model.API) *Collector {
	return &Collector{api: api}
}

func (c *Collector) functions(class *model.Class) []*model.Function {
	if class == nil {
		return c.api.Functions
	}
	return class.Functions
}

// Names returns the host names exposed on class (module scope when nil) in
// order of first appearance.
func (c *Collector) Names(class *model.Class) []string {
	seen := map[string]bool{}
	var names []string
	for _, f := range c.functions(class) {
		name := f.HostName()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// CollectAll returns every non-empty group on class in first-appearance
// order. The first ambiguous group aborts collection.
func (c *Collector) CollectAll(class *model.Class) ([]*Group, error) {
	var groups []*Group
	for _, name := range c.Names(class) {
		g, err := c.Collect(class, name)
		if errors.Is(err, ErrEmptyGroup) {
			continue
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// Collect returns the overloads exposed under name on class (module scope
// when nil). Functions are dropped in this order: removed by a rule unless
// abstract, private or protected unless abstract (both kept as stubs),
// assignment and cast operators, operators without a class operand,
// functions the host cannot express, and duplicate inherited entries. The
// result is checked for overloads that no argument list can tell apart.
func (c *Collector) Collect(class *model.Class, name string) (*Group, error) {
	g := &Group{Name: name, Scope: c.api.Module, Class: class, Kind: KindFunction}
	owner := ""
	if class != nil {
		g.Scope = class.Name
		g.Kind = KindMethod
		owner = class.Name
	}

	seen := map[string]int{}
	for _, f := range c.functions(class) {
		if f.HostName() != name {
			continue
		}
		stub := false
		if f.Removed() {
			if !f.Abstract {
				continue
			}
			stub = true
		}
		if f.Access != model.AccessPublic {
			if !f.Abstract {
				continue
			}
			stub = true
		}
		if f.IsAssignmentOperator() || f.Cast {
			continue
		}
		// module operators that found no class operand have no receiver
		if f.Operator != "" && class == nil {
			continue
		}
		if f.Constructor && class != nil && class.Abstract {
			continue
		}
		if !c.applicable(f) {
			continue
		}

		key := fmt.Sprintf("%t|%t|%s", f.Static, f.Reverse, f.MinimalSignature())
		if i, dup := seen[key]; dup {
			if prev := g.Overloads[i].Func; prev.Declaring != owner && f.Declaring == owner {
				g.Overloads[i] = newOverload(c.api, f, stub)
			}
			continue
		}
		seen[key] = len(g.Overloads)
		g.Overloads = append(g.Overloads, newOverload(c.api, f, stub))
	}

	if len(g.Overloads) == 0 {
		return nil, fmt.Errorf("%s: %w", g.FullName(), ErrEmptyGroup)
	}
	for i, o := range g.Overloads {
		o.Index = i
	}
	first := g.Overloads[0].Func
	switch {
	case first.Constructor:
		g.Kind = KindConstructor
	case first.Operator != "" && first.IsUnaryOperator():
		g.Kind = KindUnaryOperator
	case first.Operator != "":
		g.Kind = KindBinaryOperator
	}
	if err := g.operatorShape(); err != nil {
		return nil, err
	}
	if err := detectAmbiguity(g); err != nil {
		return nil, err
	}
	return g, nil
}

// applicable reports whether every host-visible type of f has a host form.
func (c *Collector) applicable(f *model.Function) bool {
	for _, a := range f.DynamicArguments() {
		if a.Type.Kind == model.KindUnknown && f.ReplacedType(a.Index+1) == "" {
			return false
		}
	}
	if f.Return != nil && f.Return.Kind == model.KindUnknown {
		return f.ReplacedType(model.SlotReturn) != "" ||
			f.ConversionRule(model.SlotReturn) != "" ||
			f.HasCallSnip()
	}
	return true
}

// operatorShape rejects operator groups whose overloads do not all take the
// operand count the slot requires.
func (g *Group) operatorShape() error {
	want := -1
	switch g.Kind {
	case KindBinaryOperator:
		want = 1
	case KindUnaryOperator:
		want = 0
	default:
		return nil
	}
	for _, o := range g.Overloads {
		if len(o.Args) != want || o.Variadic() || o.MinArgs != want {
			return fmt.Errorf("%s: operator %s takes %d host argument(s), want %d",
				g.FullName(), o.Signature(), len(o.Args), want)
		}
	}
	return nil
}

// detectAmbiguity enumerates, for every argument count an overload accepts,
// the sequence of check keys it would be dispatched on. Two overloads
// sharing a sequence cannot be told apart at runtime.
func detectAmbiguity(g *Group) error {
	limit := 0
	for _, o := range g.Overloads {
		limit = max(limit, len(o.Args))
	}
	limit++

	type sequence struct {
		n    int
		keys string
	}
	seen := map[sequence]*Overload{}
	for _, o := range g.Overloads {
		hi := o.MaxArgs
		if hi < 0 {
			hi = limit
		}
		for n := o.MinArgs; n <= hi; n++ {
			keys := make([]string, n)
			for i := range keys {
				keys[i] = o.CheckAt(i).Key()
			}
			seq := sequence{n: n, keys: strings.Join(keys, ",")}
			if prev, ok := seen[seq]; ok {
				return &AmbiguityError{
					Group:      g.FullName(),
					ArgCount:   n,
					Signatures: []string{prev.Signature(), o.Signature()},
				}
			}
			seen[seq] = o
		}
	}
	return nil
}
