package model

import "sort"

// Ownership is the lifetime transfer recorded on an argument or return slot.
type Ownership string

const (
	OwnershipNone       Ownership = ""
	OwnershipHost       Ownership = "host"
	OwnershipNative     Ownership = "native"
	OwnershipInvalidate Ownership = "invalidate"
	OwnershipParent     Ownership = "parent"
)

// RefCountAction is the keep-alive registration recorded on a slot.
type RefCountAction string

const (
	RefCountNone   RefCountAction = ""
	RefCountAdd    RefCountAction = "add"
	RefCountSet    RefCountAction = "set"
	RefCountRemove RefCountAction = "remove"
)

// SnipPosition says where injected code lands in a dispatch case.
type SnipPosition string

const (
	SnipBeginning SnipPosition = "beginning"
	SnipEnd       SnipPosition = "end"
	SnipCall      SnipPosition = "call"
)

// Slot indices used by argument modifications.
const (
	SlotThis   = -1
	SlotReturn = 0
)

// CodeSnip is user code injected into a dispatch case.
type CodeSnip struct {
	Position SnipPosition `yaml:"position"`
	Code     string       `yaml:"code"`
}

// ArgumentModification collects rule effects on one slot: the receiver
// (SlotThis), the return value (SlotReturn) or a 1-based native argument.
type ArgumentModification struct {
	Index int `yaml:"index"`

	Removed         bool   `yaml:"removed,omitempty"`
	RemovedDefault  bool   `yaml:"removed_default,omitempty"`
	ReplacedDefault string `yaml:"replaced_default,omitempty"`
	ReplacedType    string `yaml:"replaced_type,omitempty"`
	ConversionRule  string `yaml:"conversion_rule,omitempty"`

	Ownership Ownership `yaml:"ownership,omitempty"`
	// Owner is the slot that becomes the parent for OwnershipParent.
	Owner int `yaml:"owner,omitempty"`

	RefCount RefCountAction `yaml:"reference_count,omitempty"`
	RefKey   string         `yaml:"reference_key,omitempty"`
}

// Modifications is everything bindgen.yaml rules changed on one function.
type Modifications struct {
	Remove      bool                    `yaml:"remove,omitempty"`
	Rename      string                  `yaml:"rename,omitempty"`
	AllowThread bool                    `yaml:"allow_thread,omitempty"`
	Snips       []CodeSnip              `yaml:"snips,omitempty"`
	Args        []*ArgumentModification `yaml:"args,omitempty"`
}

// Arg returns the modification for slot index, or nil.
func (m *Modifications) Arg(index int) *ArgumentModification {
	for _, am := range m.Args {
		if am.Index == index {
			return am
		}
	}
	return nil
}

// ArgOrCreate returns the modification for slot index, creating an empty
// one if needed. Args stays sorted by index.
func (m *Modifications) ArgOrCreate(index int) *ArgumentModification {
	if am := m.Arg(index); am != nil {
		return am
	}
	am := &ArgumentModification{Index: index, Owner: SlotThis}
	m.Args = append(m.Args, am)
	sort.SliceStable(m.Args, func(i, j int) bool { return m.Args[i].Index < m.Args[j].Index })
	return am
}

// SnipsAt returns the injected code for a position, in rule order.
func (m *Modifications) SnipsAt(pos SnipPosition) []CodeSnip {
	var out []CodeSnip
	for _, s := range m.Snips {
		if s.Position == pos {
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a deep copy.
func (m Modifications) Clone() Modifications {
	c := m
	c.Snips = append([]CodeSnip(nil), m.Snips...)
	c.Args = nil
	for _, am := range m.Args {
		cp := *am
		c.Args = append(c.Args, &cp)
	}
	return c
}
