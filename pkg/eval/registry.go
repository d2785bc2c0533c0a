package eval

import (
	"log"

	"github.com/kruton/etamoo/pkg/value"
)

// ArgType constrains one built-in argument position. TNum admits both
// integers and floats; TFloat coerces an integer argument to a float.
type ArgType int

const (
	TAny ArgType = iota
	TInt
	TFloat
	TNum
	TStr
	TObj
	TList
	TErr
)

// BuiltinFunc is the effect function of one built-in, operating on the
// current task's context.
type BuiltinFunc func(c *Context, args value.List) (value.Value, error)

// Builtin is a registered primitive function with its signature descriptor.
type Builtin struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 means variadic
	Types   []ArgType
	Fn      BuiltinFunc
}

// Registry maps built-in names to their descriptors.
type Registry struct {
	m map[string]*Builtin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]*Builtin)}
}

// Register adds a built-in. Registering a duplicate name replaces the
// earlier entry.
func (r *Registry) Register(b *Builtin) {
	r.m[value.Fold(b.Name)] = b
}

// Lookup finds a built-in by name.
func (r *Registry) Lookup(name string) (*Builtin, bool) {
	b, ok := r.m[value.Fold(name)]
	return b, ok
}

// Names lists the registered built-in names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.m))
	for n := range r.m {
		out = append(out, n)
	}
	return out
}

// Call dispatches a built-in invocation: protection, arity and type checks,
// then the effect function, with host panics converted to E_QUOTA so they
// never escape the interpreter.
func (r *Registry) Call(c *Context, name string, args value.List) (res value.Value, err error) {
	b, ok := r.Lookup(name)
	if !ok {
		return nil, c.Raise(value.Err(value.ErrVerbNF), "Unknown built-in function: "+name, value.Str(name))
	}
	if c.World.Options.Protected[value.Fold(name)] && !c.Wizardly() {
		return nil, c.RaiseCode(value.ErrPerm)
	}
	if len(args) < b.MinArgs || (b.MaxArgs >= 0 && len(args) > b.MaxArgs) {
		return nil, c.RaiseCode(value.ErrArgs)
	}
	for i, a := range args {
		if i >= len(b.Types) {
			break
		}
		coerced, ok := coerceArg(a, b.Types[i])
		if !ok {
			return nil, c.RaiseCode(value.ErrType)
		}
		args[i] = coerced
	}

	fr := &Frame{
		Perms:    c.Frame().Perms,
		Debug:    c.Frame().Debug,
		VerbName: name,
		This:     c.Frame().This,
		Player:   c.Frame().Player,
		VerbLoc:  c.Frame().VerbLoc,
		Builtin:  true,
	}
	if err := c.PushFrame(fr); err != nil {
		return nil, err
	}
	defer c.PopFrame()
	defer func() {
		if p := recover(); p != nil {
			log.Printf("ERROR: built-in %s panicked: %v", name, p)
			res, err = nil, c.Raise(value.Err(value.ErrQuota), "Not yet implemented", value.Str(name))
		}
	}()
	return b.Fn(c, args)
}

func coerceArg(a value.Value, t ArgType) (value.Value, bool) {
	switch t {
	case TAny:
		return a, true
	case TInt:
		_, ok := a.(value.Int)
		return a, ok
	case TFloat:
		switch x := a.(type) {
		case value.Float:
			return a, true
		case value.Int:
			return value.Float(x), true
		}
		return a, false
	case TNum:
		switch a.(type) {
		case value.Int, value.Float:
			return a, true
		}
		return a, false
	case TStr:
		_, ok := a.(value.Str)
		return a, ok
	case TObj:
		_, ok := a.(value.Obj)
		return a, ok
	case TList:
		_, ok := a.(value.List)
		return a, ok
	case TErr:
		_, ok := a.(value.Err)
		return a, ok
	}
	return a, false
}
