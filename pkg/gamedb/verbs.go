package gamedb

import (
	"strconv"

	"github.com/kruton/etamoo/pkg/value"
)

// LookupVerb searches obj and then its ancestors for a verb matching desc.
// desc is a name matched against each verb's pattern; when numericOK is set
// a decimal desc is instead a zero-based index into an object's own verb
// list. Returns the defining object, the verb, and its index there.
func (w *World) LookupVerb(obj value.Obj, desc string, numericOK bool) (value.Obj, *Verb, int, bool) {
	if numericOK {
		if n, err := strconv.Atoi(desc); err == nil {
			o := w.Get(obj)
			if o == nil || n < 0 || n >= len(o.Verbs) {
				return value.Nothing, nil, 0, false
			}
			return obj, o.Verbs[n], n, true
		}
	}
	for id := obj; id != value.Nothing; id = w.Get(id).Parent {
		o := w.Get(id)
		if o == nil {
			return value.Nothing, nil, 0, false
		}
		for i, v := range o.Verbs {
			if v.MatchName(desc) {
				return id, v, i, true
			}
		}
	}
	return value.Nothing, nil, 0, false
}

// FindCommandVerb searches obj and its ancestors for a callable verb whose
// name matches verbName and whose argument specs admit the parsed command.
func (w *World) FindCommandVerb(obj value.Obj, verbName string, dobj value.Obj, prep PrepSpec, iobj value.Obj) (value.Obj, *Verb, bool) {
	for id := obj; id != value.Nothing; id = w.Get(id).Parent {
		o := w.Get(id)
		if o == nil {
			break
		}
		for _, v := range o.Verbs {
			if v.Program == nil || !v.MatchName(verbName) {
				continue
			}
			if !matchArgSpec(v.Dobj, dobj, obj) || !matchArgSpec(v.Iobj, iobj, obj) {
				continue
			}
			if v.Prep != PrepAny && v.Prep != prep {
				continue
			}
			return id, v, true
		}
	}
	return value.Nothing, nil, false
}

func matchArgSpec(spec ArgSpec, actual, this value.Obj) bool {
	switch spec {
	case ArgNone:
		return actual == value.Nothing
	case ArgAny:
		return true
	default:
		return actual == this
	}
}

// AddVerb appends a verb to obj's verb list and returns its index.
func (w *World) AddVerb(obj value.Obj, v *Verb) (int, value.Code) {
	o := w.Get(obj)
	if o == nil {
		return 0, value.ErrInvArg
	}
	o.Verbs = append(o.Verbs, v)
	return len(o.Verbs) - 1, value.ErrNone
}

// DeleteVerb removes the verb at index i on obj.
func (w *World) DeleteVerb(obj value.Obj, i int) value.Code {
	o := w.Get(obj)
	if o == nil {
		return value.ErrInvArg
	}
	if i < 0 || i >= len(o.Verbs) {
		return value.ErrVerbNF
	}
	o.Verbs = append(o.Verbs[:i], o.Verbs[i+1:]...)
	return value.ErrNone
}

// CanReadVerb checks read permission on a verb.
func (w *World) CanReadVerb(who value.Obj, wizard bool, v *Verb) bool {
	return wizard || v.Perms&VerbRead != 0 || v.Owner == who
}

// CanWriteVerb checks write permission on a verb.
func (w *World) CanWriteVerb(who value.Obj, wizard bool, v *Verb) bool {
	return wizard || v.Perms&VerbWrite != 0 || v.Owner == who
}

// VerbPermsString renders verb permission bits in their rwxd letter form.
func VerbPermsString(p VerbPerm) string {
	out := make([]byte, 0, 4)
	if p&VerbRead != 0 {
		out = append(out, 'r')
	}
	if p&VerbWrite != 0 {
		out = append(out, 'w')
	}
	if p&VerbExec != 0 {
		out = append(out, 'x')
	}
	if p&VerbDebug != 0 {
		out = append(out, 'd')
	}
	return string(out)
}

// ParseVerbPerms parses an rwxd letter string.
func ParseVerbPerms(s string) (VerbPerm, bool) {
	var p VerbPerm
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'r':
			p |= VerbRead
		case 'w':
			p |= VerbWrite
		case 'x':
			p |= VerbExec
		case 'd':
			p |= VerbDebug
		default:
			return 0, false
		}
	}
	return p, true
}

// PropPermsString renders property permission bits in their rwc letter form.
func PropPermsString(p PropPerm) string {
	out := make([]byte, 0, 3)
	if p&PropRead != 0 {
		out = append(out, 'r')
	}
	if p&PropWrite != 0 {
		out = append(out, 'w')
	}
	if p&PropChown != 0 {
		out = append(out, 'c')
	}
	return string(out)
}

// ParsePropPerms parses an rwc letter string.
func ParsePropPerms(s string) (PropPerm, bool) {
	var p PropPerm
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'r':
			p |= PropRead
		case 'w':
			p |= PropWrite
		case 'c':
			p |= PropChown
		default:
			return 0, false
		}
	}
	return p, true
}
