package gamedb

import (
	"log"

	"github.com/kruton/etamoo/pkg/value"
)

// Built-in property names synthesized from object attributes rather than
// stored in slots.
var builtinProps = map[string]bool{
	"name": true, "owner": true, "location": true, "contents": true,
	"programmer": true, "wizard": true, "r": true, "w": true, "f": true,
	"player": true,
}

// IsBuiltinProp reports whether name is one of the synthesized built-in
// properties.
func IsBuiltinProp(name string) bool { return builtinProps[value.Fold(name)] }

// LookupProperty walks the parent chain for the slot defining name on obj.
// It returns the object holding the slot and the slot itself, so callers
// can tell "defined but clear" from "undefined".
func (w *World) LookupProperty(obj value.Obj, name string) (value.Obj, *PropSlot, bool) {
	folded := value.Fold(name)
	for id := obj; id != value.Nothing; id = w.Get(id).Parent {
		o := w.Get(id)
		if o == nil {
			return value.Nothing, nil, false
		}
		if slot, ok := o.Properties[folded]; ok {
			return id, slot, true
		}
	}
	return value.Nothing, nil, false
}

// ReadProperty reads a property on obj, resolving built-in properties and
// walking up from clear slots to the nearest concrete ancestor value.
// A clear slot with no concrete ancestor value is a data-model bug; it is
// logged and surfaces as E_PROPNF rather than crashing the task.
func (w *World) ReadProperty(obj value.Obj, name string) (value.Value, value.Code) {
	o := w.Get(obj)
	if o == nil {
		return nil, value.ErrInvInd
	}
	if v, ok := w.builtinProp(o, name); ok {
		return v, value.ErrNone
	}
	holder, slot, ok := w.LookupProperty(obj, name)
	if !ok {
		return nil, value.ErrPropNF
	}
	for slot.Clear {
		parent := w.Get(holder).Parent
		if parent == value.Nothing {
			log.Printf("ERROR: property %q on #%d has no concrete value anywhere", name, obj)
			return nil, value.ErrPropNF
		}
		holder, slot, ok = w.LookupProperty(parent, name)
		if !ok {
			log.Printf("ERROR: property %q on #%d lost its defining slot", name, obj)
			return nil, value.ErrPropNF
		}
	}
	return slot.Value, value.ErrNone
}

func (w *World) builtinProp(o *Object, name string) (value.Value, bool) {
	switch value.Fold(name) {
	case "name":
		return value.Str(o.Name), true
	case "owner":
		return o.Owner, true
	case "location":
		return o.Location, true
	case "contents":
		out := make(value.List, len(o.Contents))
		for i, c := range o.Contents {
			out[i] = c
		}
		return out, true
	case "programmer":
		return boolInt(o.HasFlag(FlagProgrammer)), true
	case "wizard":
		return boolInt(o.HasFlag(FlagWizard)), true
	case "player":
		return boolInt(o.HasFlag(FlagPlayer)), true
	case "r":
		return boolInt(o.HasFlag(FlagReadable)), true
	case "w":
		return boolInt(o.HasFlag(FlagWritable)), true
	case "f":
		return boolInt(o.HasFlag(FlagFertile)), true
	}
	return nil, false
}

func boolInt(b bool) value.Int {
	if b {
		return 1
	}
	return 0
}

// CanReadProperty checks read permission for a non-built-in property slot.
func (w *World) CanReadProperty(who value.Obj, wizard bool, slot *PropSlot) bool {
	return wizard || slot.Perms&PropRead != 0 || slot.Owner == who
}

// WriteProperty writes a property on obj as who. Built-in properties apply
// their own rules; stored slots require the w bit, slot ownership, or
// wizardry.
func (w *World) WriteProperty(who value.Obj, wizard bool, obj value.Obj, name string, v value.Value) value.Code {
	o := w.Get(obj)
	if o == nil {
		return value.ErrInvInd
	}
	if IsBuiltinProp(name) {
		return w.writeBuiltinProp(who, wizard, o, name, v)
	}
	_, slot, ok := w.LookupProperty(obj, name)
	if !ok {
		return value.ErrPropNF
	}
	if !wizard && slot.Perms&PropWrite == 0 && slot.Owner != who {
		return value.ErrPerm
	}
	// An override on a descendant of the defining object gets its own slot
	// so the ancestor value is untouched.
	folded := value.Fold(name)
	own, ok := o.Properties[folded]
	if !ok {
		return value.ErrPropNF
	}
	own.Value = v
	own.Clear = false
	return value.ErrNone
}

func (w *World) writeBuiltinProp(who value.Obj, wizard bool, o *Object, name string, v value.Value) value.Code {
	switch value.Fold(name) {
	case "name":
		s, ok := v.(value.Str)
		if !ok {
			return value.ErrType
		}
		if o.HasFlag(FlagPlayer) {
			if !wizard {
				return value.ErrPerm
			}
		} else if !wizard && who != o.Owner {
			return value.ErrPerm
		}
		o.Name = string(s)
		return value.ErrNone
	case "owner":
		newOwner, ok := v.(value.Obj)
		if !ok {
			return value.ErrType
		}
		if !wizard {
			return value.ErrPerm
		}
		if !w.Valid(newOwner) {
			return value.ErrInvArg
		}
		o.Owner = newOwner
		return value.ErrNone
	case "programmer", "wizard":
		if !wizard {
			return value.ErrPerm
		}
		flag := FlagProgrammer
		if value.Fold(name) == "wizard" {
			flag = FlagWizard
			log.Printf("WIZARD FLAG: #%d set to %v by #%d", o.ID, v.Truthy(), who)
		}
		o.SetFlag(flag, v.Truthy())
		return value.ErrNone
	case "r", "w", "f":
		if !wizard && who != o.Owner {
			return value.ErrPerm
		}
		var flag ObjFlag
		switch value.Fold(name) {
		case "r":
			flag = FlagReadable
		case "w":
			flag = FlagWritable
		default:
			flag = FlagFertile
		}
		o.SetFlag(flag, v.Truthy())
		return value.ErrNone
	case "location", "contents", "player":
		// These change through move() and set_player_flag(), never by
		// assignment.
		return value.ErrPerm
	}
	return value.ErrPropNF
}

// AddProperty defines a new property on obj with the given initial value,
// owner and perms, failing when the name is already defined on an ancestor
// or descendant or is a built-in.
func (w *World) AddProperty(obj value.Obj, name string, v value.Value, owner value.Obj, perms PropPerm) value.Code {
	o := w.Get(obj)
	if o == nil {
		return value.ErrInvArg
	}
	if IsBuiltinProp(name) {
		return value.ErrInvArg
	}
	if w.chainDefines(obj, name) || w.subtreeDefines(obj, name) {
		return value.ErrInvArg
	}
	folded := value.Fold(name)
	o.PropDefs = append(o.PropDefs, name)
	o.Properties[folded] = &PropSlot{Owner: owner, Perms: perms, Value: v}
	for _, c := range o.Children {
		w.forSubtree(c, func(d *Object) {
			d.Properties[folded] = &PropSlot{Owner: owner, Perms: perms, Clear: true}
		})
	}
	return value.ErrNone
}

// DeleteProperty removes a property defined on obj, dropping the inherited
// slots from the whole subtree.
func (w *World) DeleteProperty(obj value.Obj, name string) value.Code {
	o := w.Get(obj)
	if o == nil {
		return value.ErrInvArg
	}
	if !o.DefinesProp(name) {
		return value.ErrPropNF
	}
	folded := value.Fold(name)
	for i, d := range o.PropDefs {
		if value.Fold(d) == folded {
			o.PropDefs = append(o.PropDefs[:i], o.PropDefs[i+1:]...)
			break
		}
	}
	w.forSubtree(obj, func(d *Object) {
		delete(d.Properties, folded)
	})
	return value.ErrNone
}

// ClearProperty makes a descendant's slot clear again so reads delegate to
// the ancestor value. Clearing the defining slot is E_INVARG.
func (w *World) ClearProperty(obj value.Obj, name string) value.Code {
	o := w.Get(obj)
	if o == nil {
		return value.ErrInvArg
	}
	if o.DefinesProp(name) {
		return value.ErrInvArg
	}
	slot, ok := o.Properties[value.Fold(name)]
	if !ok {
		return value.ErrPropNF
	}
	slot.Value = nil
	slot.Clear = true
	return value.ErrNone
}

// PropertyNames returns the properties defined on obj itself, in definition
// order.
func (w *World) PropertyNames(obj value.Obj) ([]string, value.Code) {
	o := w.Get(obj)
	if o == nil {
		return nil, value.ErrInvArg
	}
	return append([]string(nil), o.PropDefs...), value.ErrNone
}
