// Package gamedb implements the persistent object store: objects with
// inheritance, properties, verbs, and the process-wide world registry that
// serializes all mutation.
package gamedb

import (
	"strings"

	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/value"
)

// ObjFlag is the set of per-object flag bits.
type ObjFlag int

const (
	FlagPlayer ObjFlag = 1 << iota
	FlagProgrammer
	FlagWizard
	FlagReadable
	FlagWritable
	FlagFertile
)

// PropPerm is the permission bits of a property slot.
type PropPerm int

const (
	PropRead PropPerm = 1 << iota
	PropWrite
	PropChown
)

// VerbPerm is the permission bits of a verb.
type VerbPerm int

const (
	VerbRead VerbPerm = 1 << iota
	VerbWrite
	VerbExec
	VerbDebug
)

// PropSlot is one property's storage on one object. A clear slot has no
// concrete value and delegates reads to the nearest ancestor slot that
// carries one.
type PropSlot struct {
	Owner value.Obj
	Perms PropPerm
	Value value.Value // nil when Clear
	Clear bool
}

// ArgSpec is a verb's direct or indirect object specifier.
type ArgSpec int

const (
	ArgNone ArgSpec = iota
	ArgAny
	ArgThis
)

func (a ArgSpec) String() string {
	switch a {
	case ArgAny:
		return "any"
	case ArgThis:
		return "this"
	default:
		return "none"
	}
}

// ParseArgSpec resolves the textual form of an ArgSpec.
func ParseArgSpec(s string) (ArgSpec, bool) {
	switch value.Fold(s) {
	case "none":
		return ArgNone, true
	case "any":
		return ArgAny, true
	case "this":
		return ArgThis, true
	}
	return ArgNone, false
}

// Verb is a named, permissioned program attached to an object.
type Verb struct {
	Names   string // whitespace-separated pattern words, each with an optional *
	Owner   value.Obj
	Perms   VerbPerm
	Dobj    ArgSpec
	Prep    PrepSpec
	Iobj    ArgSpec
	Program *ast.Program // nil means the verb is not callable
}

// NameList splits the verb's names pattern into its words.
func (v *Verb) NameList() []string {
	return strings.Fields(v.Names)
}

// FirstName returns the first pattern word with the abbreviation marker
// removed, for display in tracebacks.
func (v *Verb) FirstName() string {
	names := v.NameList()
	if len(names) == 0 {
		return ""
	}
	return strings.ReplaceAll(names[0], "*", "")
}

// MatchName reports whether desc matches one of the verb's pattern words.
// A pattern word may carry a single * marking the point from which the rest
// may be abbreviated: "g*et" matches "g", "ge" and "get" but nothing longer
// or shorter, and a bare "*" matches anything.
func (v *Verb) MatchName(desc string) bool {
	desc = value.Fold(desc)
	for _, pat := range v.NameList() {
		if matchVerbWord(value.Fold(pat), desc) {
			return true
		}
	}
	return false
}

func matchVerbWord(pat, word string) bool {
	if pat == "*" {
		return true
	}
	star := strings.IndexByte(pat, '*')
	if star < 0 {
		return pat == word
	}
	if star == len(pat)-1 {
		// Trailing star admits any suffix at all.
		return strings.HasPrefix(word, pat[:star])
	}
	full := pat[:star] + pat[star+1:]
	if len(word) < star || len(word) > len(full) {
		return false
	}
	return strings.HasPrefix(full, word)
}

// Object is one database object. Children and Contents are the maintained
// inverses of Parent and Location.
type Object struct {
	ID       value.Obj
	Name     string
	Owner    value.Obj
	Parent   value.Obj // Nothing when parentless
	Location value.Obj // Nothing when nowhere
	Children []value.Obj
	Contents []value.Obj
	Flags    ObjFlag

	// PropDefs lists the property names defined on this object, in
	// definition order and original case. Properties maps folded names to
	// slots; an object carries a slot for every property defined on itself
	// or any ancestor.
	PropDefs   []string
	Properties map[string]*PropSlot

	Verbs []*Verb
}

// NewObject creates an empty object with the given id and owner.
func NewObject(id, owner value.Obj) *Object {
	return &Object{
		ID:         id,
		Name:       "",
		Owner:      owner,
		Parent:     value.Nothing,
		Location:   value.Nothing,
		Properties: make(map[string]*PropSlot),
	}
}

// HasFlag reports whether a flag bit is set.
func (o *Object) HasFlag(f ObjFlag) bool { return o.Flags&f != 0 }

// SetFlag sets or clears a flag bit.
func (o *Object) SetFlag(f ObjFlag, set bool) {
	if set {
		o.Flags |= f
	} else {
		o.Flags &^= f
	}
}

// DefinesProp reports whether the property is defined on this object
// itself, as opposed to inherited.
func (o *Object) DefinesProp(name string) bool {
	folded := value.Fold(name)
	for _, d := range o.PropDefs {
		if value.Fold(d) == folded {
			return true
		}
	}
	return false
}

func (o *Object) removeChild(id value.Obj) {
	o.Children = removeObj(o.Children, id)
}

func (o *Object) removeContent(id value.Obj) {
	o.Contents = removeObj(o.Contents, id)
}

func removeObj(s []value.Obj, id value.Obj) []value.Obj {
	for i, x := range s {
		if x == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
