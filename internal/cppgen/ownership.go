package cppgen

import (
	"fmt"

	"github.com/funvibe/bindgen/internal/config"
	"github.com/funvibe/bindgen/internal/model"
	"github.com/funvibe/bindgen/internal/overload"
)

// slotObject returns the host object expression of a modification slot, or
// "" when the slot has no host object (a removed argument).
func (c *emitContext) slotObject(slot int, args []converted) string {
	switch {
	case slot == model.SlotThis:
		return "self"
	case slot == model.SlotReturn:
		return config.HostResultVarName
	case slot <= len(args) && args[slot-1].host >= 0:
		return c.pyArg(args[slot-1].host)
	}
	return ""
}

func slotType(f *model.Function, slot int) *model.Type {
	switch {
	case slot == model.SlotThis:
		return &model.Type{Name: f.Owner, Kind: model.KindObject}
	case slot == model.SlotReturn:
		return f.Return
	case slot <= len(f.Arguments):
		return f.Arguments[slot-1].Type
	}
	return nil
}

// ownershipStatements renders at most one ownership or keep-alive statement
// per slot of o, plus the parent heuristic for returned objects.
func (c *emitContext) ownershipStatements(o *overload.Overload, args []converted) []string {
	f := o.Func
	var out []string
	returnCovered := false
	for _, am := range f.Mods.Args {
		obj := c.slotObject(am.Index, args)
		if obj == "" {
			continue
		}
		if am.Index == model.SlotReturn && (am.Ownership != model.OwnershipNone || am.RefCount != model.RefCountNone) {
			returnCovered = true
		}
		switch am.Ownership {
		case model.OwnershipHost:
			out = append(out, fmt.Sprintf("%s(%s);", rt("Object::getOwnership"), obj))
			continue
		case model.OwnershipNative:
			out = append(out, fmt.Sprintf("%s(%s);", rt("Object::releaseOwnership"), obj))
			if t := slotType(f, am.Index); t != nil {
				if cls := c.api.Class(t.Name); cls != nil && cls.VirtualDestructor {
					out = append(out, fmt.Sprintf("%s(%s);", rt("Object::dropLifetimeLinks"), obj))
				}
			}
			continue
		case model.OwnershipInvalidate:
			out = append(out, fmt.Sprintf("%s(%s);", rt("Object::invalidate"), obj))
			continue
		case model.OwnershipParent:
			if owner := c.slotObject(am.Owner, args); owner != "" {
				out = append(out, fmt.Sprintf("%s(%s, %s);", rt("Object::setParent"), owner, obj))
			}
			continue
		}

		key := am.RefKey
		if key == "" {
			key = fmt.Sprintf("%s(%d)", HostName(c.api, c.group), am.Index)
		}
		switch am.RefCount {
		case model.RefCountAdd:
			out = append(out, fmt.Sprintf("%s(self, %s, %s, true);", rt("Object::keepReference"), cQuote(key), obj))
		case model.RefCountSet:
			out = append(out, fmt.Sprintf("%s(self, %s, %s);", rt("Object::keepReference"), cQuote(key), obj))
		case model.RefCountRemove:
			out = append(out, fmt.Sprintf("%s(self, %s, %s);", rt("Object::removeReference"), cQuote(key), obj))
		}
	}

	if c.opts.ReturnValueHeuristic && !returnCovered && returnsBorrowedObject(f) {
		out = append(out, fmt.Sprintf("%s(self, %s);", rt("Object::setParent"), config.HostResultVarName))
	}
	return out
}

// returnsBorrowedObject reports whether an instance method hands out a
// pointer or reference to a bound object it likely keeps owning.
func returnsBorrowedObject(f *model.Function) bool {
	if f.Owner == "" || f.Static || f.Constructor || f.Operator != "" || f.HasCallSnip() {
		return false
	}
	ret := f.Return
	return ret != nil && ret.Kind == model.KindObject && (ret.IsPointer() || ret.Reference)
}

func (c *emitContext) emitOwnership(o *overload.Overload, args []converted) {
	stmts := c.ownershipStatements(o, args)
	if len(stmts) == 0 {
		return
	}
	c.w.block("if (!PyErr_Occurred())", func() {
		for _, s := range stmts {
			c.w.line(s)
		}
	})
}
