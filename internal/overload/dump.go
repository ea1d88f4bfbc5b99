package overload

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type dumpTree struct {
	Group      string     `yaml:"group"`
	Kind       string     `yaml:"kind"`
	HasBoth    bool       `yaml:"has_both,omitempty"`
	HasReverse bool       `yaml:"has_reverse,omitempty"`
	MinArgs    int        `yaml:"min_args"`
	MaxArgs    int        `yaml:"max_args"`
	Overloads  []string   `yaml:"overloads"`
	Nodes      []dumpNode `yaml:"nodes"`
}

type dumpNode struct {
	ID        int    `yaml:"id"`
	Parent    int    `yaml:"parent"`
	Pos       int    `yaml:"pos"`
	Check     string `yaml:"check,omitempty"`
	Terminal  bool   `yaml:"terminal,omitempty"`
	Exact     *int   `yaml:"exact,omitempty"`
	Overloads []int  `yaml:"overloads,flow"`
	Children  []int  `yaml:"children,flow,omitempty"`
}

// Dump renders the tree as YAML for inspection and golden fixtures.
func (t *Tree) Dump() ([]byte, error) {
	g := t.Group
	d := dumpTree{
		Group:      g.FullName(),
		Kind:       g.Kind.String(),
		HasBoth:    g.HasBoth(),
		HasReverse: g.HasReverse(),
		MinArgs:    g.MinArgs(),
		MaxArgs:    g.MaxArgs(),
		Overloads:  g.Signatures(),
	}
	for _, n := range t.Nodes {
		dn := dumpNode{
			ID:        int(n.ID),
			Parent:    int(n.Parent),
			Pos:       n.Pos,
			Terminal:  n.IsTerminal(),
			Overloads: n.Overloads,
		}
		if n.Parent != NoNode {
			dn.Check = n.Check.Key()
		}
		if n.Exact >= 0 {
			exact := n.Exact
			dn.Exact = &exact
		}
		for _, c := range n.Children {
			dn.Children = append(dn.Children, int(c))
		}
		d.Nodes = append(d.Nodes, dn)
	}
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("dumping tree %s: %w", g.FullName(), err)
	}
	return out, nil
}
