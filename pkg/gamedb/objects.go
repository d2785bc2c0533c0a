package gamedb

import (
	"log"

	"github.com/kruton/etamoo/pkg/value"
)

// CreateObject allocates a new object with the given parent and owner.
// The new object inherits a clear slot for every property defined on the
// parent chain. Pass owner == Nothing to make the object own itself.
func (w *World) CreateObject(parent, owner value.Obj) (value.Obj, value.Code) {
	if parent != value.Nothing && !w.Valid(parent) {
		return value.Nothing, value.ErrInvArg
	}
	id := value.Obj(len(w.objects))
	o := NewObject(id, owner)
	if owner == value.Nothing {
		o.Owner = id
	}
	w.objects = append(w.objects, o)
	if parent != value.Nothing {
		if code := w.setParent(o, parent); code != value.ErrNone {
			w.objects = w.objects[:id]
			return value.Nothing, code
		}
	}
	return id, value.ErrNone
}

// Recycle destroys an object: its contents are dumped to nowhere, its
// children are reparented to its parent, and its slot becomes a hole.
func (w *World) Recycle(id value.Obj) value.Code {
	o := w.Get(id)
	if o == nil {
		return value.ErrInvArg
	}

	// Dump contents.
	for _, c := range append([]value.Obj(nil), o.Contents...) {
		if inner := w.Get(c); inner != nil {
			inner.Location = value.Nothing
		}
	}
	o.Contents = nil

	// Reparent children to our parent.
	for _, c := range append([]value.Obj(nil), o.Children...) {
		if child := w.Get(c); child != nil {
			w.Chparent(c, o.Parent)
		}
	}

	if o.Location != value.Nothing {
		if loc := w.Get(o.Location); loc != nil {
			loc.removeContent(id)
		}
	}
	if o.Parent != value.Nothing {
		if p := w.Get(o.Parent); p != nil {
			p.removeChild(id)
		}
	}
	delete(w.players, id)
	w.objects[id] = nil
	return value.ErrNone
}

// Chparent changes an object's parent. It fails with E_RECMOVE when the new
// parent is the object itself or one of its descendants, and rebuilds the
// object's inherited property slots for the new chain.
func (w *World) Chparent(id, newParent value.Obj) value.Code {
	o := w.Get(id)
	if o == nil {
		return value.ErrInvArg
	}
	if newParent != value.Nothing {
		if !w.Valid(newParent) {
			return value.ErrInvArg
		}
		for a := newParent; a != value.Nothing; a = w.Get(a).Parent {
			if a == id {
				return value.ErrRecMove
			}
		}
		// A property defined anywhere under id must not collide with one
		// defined on the new ancestor chain.
		for a := newParent; a != value.Nothing; a = w.Get(a).Parent {
			for _, name := range w.Get(a).PropDefs {
				if w.subtreeDefines(id, name) {
					return value.ErrInvArg
				}
			}
		}
	}

	if o.Parent != value.Nothing {
		if p := w.Get(o.Parent); p != nil {
			p.removeChild(id)
		}
		// Drop slots inherited from the old chain.
		w.forSubtree(id, func(d *Object) {
			for name := range d.Properties {
				if !d.DefinesProp(name) && !w.chainDefines(newParent, name) {
					delete(d.Properties, name)
				}
			}
		})
	}
	o.Parent = value.Nothing
	if newParent == value.Nothing {
		return value.ErrNone
	}
	return w.setParent(o, newParent)
}

func (w *World) setParent(o *Object, parent value.Obj) value.Code {
	p := w.Get(parent)
	if p == nil {
		return value.ErrInvArg
	}
	o.Parent = parent
	p.Children = append(p.Children, o.ID)
	// Materialize clear slots for every property the new chain defines,
	// on the object and its whole subtree.
	for a := parent; a != value.Nothing; a = w.Get(a).Parent {
		anc := w.Get(a)
		for _, name := range anc.PropDefs {
			folded := value.Fold(name)
			def := anc.Properties[folded]
			w.forSubtree(o.ID, func(d *Object) {
				if _, ok := d.Properties[folded]; !ok {
					d.Properties[folded] = &PropSlot{Owner: def.Owner, Perms: def.Perms, Clear: true}
				}
			})
		}
	}
	return value.ErrNone
}

// Move relocates an object, failing with E_RECMOVE when the destination is
// the object itself or transitively inside it.
func (w *World) Move(what, where value.Obj) value.Code {
	o := w.Get(what)
	if o == nil {
		return value.ErrInvArg
	}
	if where != value.Nothing {
		if !w.Valid(where) {
			return value.ErrInvArg
		}
		for loc := where; loc != value.Nothing; loc = w.Get(loc).Location {
			if loc == what {
				return value.ErrRecMove
			}
		}
	}
	if o.Location != value.Nothing {
		if old := w.Get(o.Location); old != nil {
			old.removeContent(what)
		}
	}
	o.Location = where
	if where != value.Nothing {
		w.Get(where).Contents = append(w.Get(where).Contents, what)
	}
	return value.ErrNone
}

// Renumber moves an object to the least unused nonnegative number below its
// current one, rewriting every reference in the object array and the player
// set. Returns the new number (the old one when no lower slot is free).
func (w *World) Renumber(old value.Obj) (value.Obj, value.Code) {
	o := w.Get(old)
	if o == nil {
		return value.Nothing, value.ErrInvArg
	}
	target := value.Nothing
	for i := value.Obj(0); i < old; i++ {
		if w.objects[i] == nil {
			target = i
			break
		}
	}
	if target == value.Nothing {
		return old, value.ErrNone
	}

	w.objects[target] = o
	w.objects[old] = nil
	o.ID = target

	rewrite := func(id value.Obj) value.Obj {
		if id == old {
			return target
		}
		return id
	}
	for _, other := range w.objects {
		if other == nil {
			continue
		}
		other.Owner = rewrite(other.Owner)
		other.Parent = rewrite(other.Parent)
		other.Location = rewrite(other.Location)
		for i := range other.Children {
			other.Children[i] = rewrite(other.Children[i])
		}
		for i := range other.Contents {
			other.Contents[i] = rewrite(other.Contents[i])
		}
		for _, slot := range other.Properties {
			slot.Owner = rewrite(slot.Owner)
			if obj, ok := slot.Value.(value.Obj); ok {
				slot.Value = rewrite(obj)
			}
		}
		for _, v := range other.Verbs {
			v.Owner = rewrite(v.Owner)
		}
	}
	if w.players[old] {
		delete(w.players, old)
		w.players[target] = true
	}
	log.Printf("RENUMBER: #%d now #%d", old, target)
	return target, value.ErrNone
}

// Ancestors returns the parent chain of id, nearest first, excluding id.
func (w *World) Ancestors(id value.Obj) []value.Obj {
	var out []value.Obj
	o := w.Get(id)
	if o == nil {
		return nil
	}
	for a := o.Parent; a != value.Nothing; a = w.Get(a).Parent {
		out = append(out, a)
	}
	return out
}

// forSubtree applies fn to the object and all its descendants.
func (w *World) forSubtree(id value.Obj, fn func(*Object)) {
	o := w.Get(id)
	if o == nil {
		return
	}
	fn(o)
	for _, c := range o.Children {
		w.forSubtree(c, fn)
	}
}

// subtreeDefines reports whether the property name is defined on id or any
// descendant.
func (w *World) subtreeDefines(id value.Obj, name string) bool {
	found := false
	w.forSubtree(id, func(o *Object) {
		if o.DefinesProp(name) {
			found = true
		}
	})
	return found
}

// chainDefines reports whether the property name is defined on from or any
// of its ancestors.
func (w *World) chainDefines(from value.Obj, name string) bool {
	for a := from; a != value.Nothing; a = w.Get(a).Parent {
		if w.Get(a).DefinesProp(name) {
			return true
		}
	}
	return false
}

// EnsureSize grows the object array so MaxObject reports at least max,
// preserving trailing holes from a snapshot.
func (w *World) EnsureSize(max value.Obj) {
	for int64(len(w.objects)) <= int64(max) {
		w.objects = append(w.objects, nil)
	}
}

// AddObjectAt places an object at a specific number, growing the array as
// needed. The loader uses this to reinstate a snapshot.
func (w *World) AddObjectAt(o *Object) {
	for int64(len(w.objects)) <= int64(o.ID) {
		w.objects = append(w.objects, nil)
	}
	w.objects[o.ID] = o
	if o.HasFlag(FlagPlayer) {
		w.players[o.ID] = true
	}
}
