package builtins

import (
	"strings"

	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

func registerObjectBuiltins(reg *eval.Registry) {
	reg.Register(&eval.Builtin{Name: "create", MinArgs: 1, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			parent := args[0].(value.Obj)
			w := c.World
			if parent != value.Nothing {
				po := w.Get(parent)
				if po == nil {
					return nil, c.RaiseCode(value.ErrInvArg)
				}
				if !c.Wizardly() && !po.HasFlag(gamedb.FlagFertile) && po.Owner != c.Frame().Perms {
					return nil, c.RaiseCode(value.ErrPerm)
				}
			}
			owner := c.Frame().Perms
			if len(args) == 2 {
				owner = args[1].(value.Obj)
				if owner != c.Frame().Perms && !c.Wizardly() && owner != value.Nothing {
					return nil, c.RaiseCode(value.ErrPerm)
				}
			}
			id, code := w.CreateObject(parent, owner)
			if code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			// The new object's initialize verb runs with its owner's
			// permissions, if it has one.
			if _, verb, _, ok := w.LookupVerb(id, "initialize", false); ok && verb.Program != nil {
				if _, err := c.CallVerb(id, "initialize", value.List{}); err != nil {
					if _, isExc := err.(*eval.Exception); !isExc {
						return nil, err
					}
				}
			}
			return id, nil
		}})

	reg.Register(&eval.Builtin{Name: "recycle", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			if err := ownerOrWizard(c, obj); err != nil {
				return nil, err
			}
			if _, verb, _, ok := c.World.LookupVerb(obj, "recycle", false); ok && verb.Program != nil {
				if _, err := c.CallVerb(obj, "recycle", value.List{}); err != nil {
					if _, isExc := err.(*eval.Exception); !isExc {
						return nil, err
					}
				}
			}
			if code := c.World.Recycle(obj); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "valid", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return boolInt(c.World.Valid(args[0].(value.Obj))), nil
		}})

	reg.Register(&eval.Builtin{Name: "max_object", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return c.World.MaxObject(), nil
		}})

	reg.Register(&eval.Builtin{Name: "renumber", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if err := wizardOnly(c); err != nil {
				return nil, err
			}
			id, code := c.World.Renumber(args[0].(value.Obj))
			if code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return id, nil
		}})

	reg.Register(&eval.Builtin{Name: "parent", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			o := c.World.Get(args[0].(value.Obj))
			if o == nil {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			return o.Parent, nil
		}})

	reg.Register(&eval.Builtin{Name: "children", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			o := c.World.Get(args[0].(value.Obj))
			if o == nil {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			out := make(value.List, len(o.Children))
			for i, ch := range o.Children {
				out[i] = ch
			}
			return out, nil
		}})

	reg.Register(&eval.Builtin{Name: "chparent", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj, newParent := args[0].(value.Obj), args[1].(value.Obj)
			if err := ownerOrWizard(c, obj); err != nil {
				return nil, err
			}
			if newParent != value.Nothing {
				po := c.World.Get(newParent)
				if po == nil {
					return nil, c.RaiseCode(value.ErrInvArg)
				}
				if !c.Wizardly() && !po.HasFlag(gamedb.FlagFertile) && po.Owner != c.Frame().Perms {
					return nil, c.RaiseCode(value.ErrPerm)
				}
			}
			if code := c.World.Chparent(obj, newParent); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "move", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			what, where := args[0].(value.Obj), args[1].(value.Obj)
			if err := ownerOrWizard(c, what); err != nil {
				return nil, err
			}
			w := c.World
			// The destination's accept verb may refuse the move.
			if where != value.Nothing && !c.Wizardly() {
				if _, verb, _, ok := w.LookupVerb(where, "accept", false); ok && verb.Program != nil {
					res, err := c.CallVerb(where, "accept", value.List{what})
					if err != nil {
						if _, isExc := err.(*eval.Exception); !isExc {
							return nil, err
						}
					} else if !res.Truthy() {
						return nil, c.RaiseCode(value.ErrNacc)
					}
				}
			}
			src := w.Get(what).Location
			if code := w.Move(what, where); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			// exitfunc and enterfunc fire after the move itself.
			if src != value.Nothing && w.Valid(src) {
				if _, verb, _, ok := w.LookupVerb(src, "exitfunc", false); ok && verb.Program != nil {
					c.CallVerb(src, "exitfunc", value.List{what})
				}
			}
			if where != value.Nothing && w.Valid(where) {
				if _, verb, _, ok := w.LookupVerb(where, "enterfunc", false); ok && verb.Program != nil {
					c.CallVerb(where, "enterfunc", value.List{what})
				}
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "players", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			ids := c.World.Players()
			out := make(value.List, len(ids))
			for i, id := range ids {
				out[i] = id
			}
			return out, nil
		}})

	reg.Register(&eval.Builtin{Name: "is_player", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if !c.World.Valid(args[0].(value.Obj)) {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			return boolInt(c.World.IsPlayer(args[0].(value.Obj))), nil
		}})

	reg.Register(&eval.Builtin{Name: "set_player_flag", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if err := wizardOnly(c); err != nil {
				return nil, err
			}
			if code := c.World.SetPlayer(args[0].(value.Obj), args[1].Truthy()); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	registerPropertyBuiltins(reg)
	registerVerbBuiltins(reg)
}

func registerPropertyBuiltins(reg *eval.Registry) {
	reg.Register(&eval.Builtin{Name: "properties", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			o := c.World.Get(obj)
			if o == nil {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			if !c.Wizardly() && !o.HasFlag(gamedb.FlagReadable) && o.Owner != c.Frame().Perms {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			names, _ := c.World.PropertyNames(obj)
			out := make(value.List, len(names))
			for i, n := range names {
				out[i] = value.Str(n)
			}
			return out, nil
		}})

	reg.Register(&eval.Builtin{Name: "add_property", MinArgs: 4, MaxArgs: 4,
		Types: []eval.ArgType{eval.TObj, eval.TStr, eval.TAny, eval.TList},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			name := string(args[1].(value.Str))
			if err := ownerOrWizard(c, obj); err != nil {
				return nil, err
			}
			owner, perms, err := parsePropInfo(c, args[3].(value.List))
			if err != nil {
				return nil, err
			}
			if code := c.World.AddProperty(obj, name, args[2], owner, perms); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "delete_property", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			if err := ownerOrWizard(c, obj); err != nil {
				return nil, err
			}
			if code := c.World.DeleteProperty(obj, string(args[1].(value.Str))); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "clear_property", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			name := string(args[1].(value.Str))
			if _, err := propSlotForWrite(c, obj, name); err != nil {
				return nil, err
			}
			if code := c.World.ClearProperty(obj, name); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "is_clear_property", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			name := string(args[1].(value.Str))
			o := c.World.Get(obj)
			if o == nil {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			if gamedb.IsBuiltinProp(name) {
				return value.Int(0), nil
			}
			slot, ok := o.Properties[value.Fold(name)]
			if !ok {
				return nil, c.RaiseCode(value.ErrPropNF)
			}
			if !c.World.CanReadProperty(c.Frame().Perms, c.Wizardly(), slot) {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			return boolInt(slot.Clear), nil
		}})

	reg.Register(&eval.Builtin{Name: "property_info", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			name := string(args[1].(value.Str))
			if !c.World.Valid(obj) {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			_, slot, ok := c.World.LookupProperty(obj, name)
			if !ok {
				return nil, c.RaiseCode(value.ErrPropNF)
			}
			if !c.World.CanReadProperty(c.Frame().Perms, c.Wizardly(), slot) {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			return value.List{slot.Owner, value.Str(gamedb.PropPermsString(slot.Perms))}, nil
		}})

	reg.Register(&eval.Builtin{Name: "set_property_info", MinArgs: 3, MaxArgs: 3,
		Types: []eval.ArgType{eval.TObj, eval.TStr, eval.TList},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			name := string(args[1].(value.Str))
			slot, err := propSlotForWrite(c, obj, name)
			if err != nil {
				return nil, err
			}
			owner, perms, err := parsePropInfo(c, args[2].(value.List))
			if err != nil {
				return nil, err
			}
			if owner != slot.Owner && !c.Wizardly() {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			slot.Owner = owner
			slot.Perms = perms
			return value.Int(0), nil
		}})
}

// propSlotForWrite resolves a property slot on obj itself and checks write
// permission on it.
func propSlotForWrite(c *eval.Context, obj value.Obj, name string) (*gamedb.PropSlot, error) {
	o := c.World.Get(obj)
	if o == nil {
		return nil, c.RaiseCode(value.ErrInvArg)
	}
	if gamedb.IsBuiltinProp(name) {
		return nil, c.RaiseCode(value.ErrInvArg)
	}
	slot, ok := o.Properties[value.Fold(name)]
	if !ok {
		return nil, c.RaiseCode(value.ErrPropNF)
	}
	if !c.Wizardly() && slot.Owner != c.Frame().Perms {
		return nil, c.RaiseCode(value.ErrPerm)
	}
	return slot, nil
}

func parsePropInfo(c *eval.Context, info value.List) (value.Obj, gamedb.PropPerm, error) {
	if len(info) < 2 {
		return 0, 0, c.RaiseCode(value.ErrInvArg)
	}
	owner, ok := info[0].(value.Obj)
	if !ok {
		return 0, 0, c.RaiseCode(value.ErrType)
	}
	permStr, ok := info[1].(value.Str)
	if !ok {
		return 0, 0, c.RaiseCode(value.ErrType)
	}
	perms, ok := gamedb.ParsePropPerms(value.Fold(string(permStr)))
	if !ok {
		return 0, 0, c.RaiseCode(value.ErrInvArg)
	}
	if !c.World.Valid(owner) {
		return 0, 0, c.RaiseCode(value.ErrInvArg)
	}
	return owner, perms, nil
}

func registerVerbBuiltins(reg *eval.Registry) {
	reg.Register(&eval.Builtin{Name: "verbs", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			o := c.World.Get(args[0].(value.Obj))
			if o == nil {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			if !c.Wizardly() && !o.HasFlag(gamedb.FlagReadable) && o.Owner != c.Frame().Perms {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			out := make(value.List, len(o.Verbs))
			for i, v := range o.Verbs {
				out[i] = value.Str(v.Names)
			}
			return out, nil
		}})

	reg.Register(&eval.Builtin{Name: "add_verb", MinArgs: 3, MaxArgs: 3,
		Types: []eval.ArgType{eval.TObj, eval.TList, eval.TList},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			if err := ownerOrWizard(c, obj); err != nil {
				return nil, err
			}
			v := &gamedb.Verb{}
			if err := applyVerbInfo(c, v, args[1].(value.List)); err != nil {
				return nil, err
			}
			if err := applyVerbArgs(c, v, args[2].(value.List)); err != nil {
				return nil, err
			}
			idx, code := c.World.AddVerb(obj, v)
			if code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(idx), nil
		}})

	reg.Register(&eval.Builtin{Name: "delete_verb", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			obj := args[0].(value.Obj)
			if err := ownerOrWizard(c, obj); err != nil {
				return nil, err
			}
			_, _, idx, ok := lookupVerbDesc(c, obj, string(args[1].(value.Str)))
			if !ok {
				return nil, c.RaiseCode(value.ErrVerbNF)
			}
			if code := c.World.DeleteVerb(obj, idx); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "verb_info", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			_, v, err := readableVerb(c, args[0].(value.Obj), string(args[1].(value.Str)))
			if err != nil {
				return nil, err
			}
			return value.List{v.Owner, value.Str(gamedb.VerbPermsString(v.Perms)), value.Str(v.Names)}, nil
		}})

	reg.Register(&eval.Builtin{Name: "set_verb_info", MinArgs: 3, MaxArgs: 3,
		Types: []eval.ArgType{eval.TObj, eval.TStr, eval.TList},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			_, v, err := writableVerb(c, args[0].(value.Obj), string(args[1].(value.Str)))
			if err != nil {
				return nil, err
			}
			return value.Int(0), applyVerbInfo(c, v, args[2].(value.List))
		}})

	reg.Register(&eval.Builtin{Name: "verb_args", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			_, v, err := readableVerb(c, args[0].(value.Obj), string(args[1].(value.Str)))
			if err != nil {
				return nil, err
			}
			return value.List{
				value.Str(v.Dobj.String()),
				value.Str(v.Prep.String()),
				value.Str(v.Iobj.String()),
			}, nil
		}})

	reg.Register(&eval.Builtin{Name: "set_verb_args", MinArgs: 3, MaxArgs: 3,
		Types: []eval.ArgType{eval.TObj, eval.TStr, eval.TList},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			_, v, err := writableVerb(c, args[0].(value.Obj), string(args[1].(value.Str)))
			if err != nil {
				return nil, err
			}
			return value.Int(0), applyVerbArgs(c, v, args[2].(value.List))
		}})
}

func lookupVerbDesc(c *eval.Context, obj value.Obj, desc string) (value.Obj, *gamedb.Verb, int, bool) {
	return c.World.LookupVerb(obj, desc, c.World.Options.SupportNumericVerbnameStrings)
}

func readableVerb(c *eval.Context, obj value.Obj, desc string) (value.Obj, *gamedb.Verb, error) {
	if !c.World.Valid(obj) {
		return 0, nil, c.RaiseCode(value.ErrInvArg)
	}
	holder, v, _, ok := lookupVerbDesc(c, obj, desc)
	if !ok {
		return 0, nil, c.RaiseCode(value.ErrVerbNF)
	}
	if !c.World.CanReadVerb(c.Frame().Perms, c.Wizardly(), v) {
		return 0, nil, c.RaiseCode(value.ErrPerm)
	}
	return holder, v, nil
}

func writableVerb(c *eval.Context, obj value.Obj, desc string) (value.Obj, *gamedb.Verb, error) {
	if !c.World.Valid(obj) {
		return 0, nil, c.RaiseCode(value.ErrInvArg)
	}
	holder, v, _, ok := lookupVerbDesc(c, obj, desc)
	if !ok {
		return 0, nil, c.RaiseCode(value.ErrVerbNF)
	}
	if !c.World.CanWriteVerb(c.Frame().Perms, c.Wizardly(), v) {
		return 0, nil, c.RaiseCode(value.ErrPerm)
	}
	return holder, v, nil
}

func applyVerbInfo(c *eval.Context, v *gamedb.Verb, info value.List) error {
	if len(info) != 3 {
		return c.RaiseCode(value.ErrInvArg)
	}
	owner, ok := info[0].(value.Obj)
	if !ok {
		return c.RaiseCode(value.ErrType)
	}
	permStr, ok := info[1].(value.Str)
	if !ok {
		return c.RaiseCode(value.ErrType)
	}
	names, ok := info[2].(value.Str)
	if !ok {
		return c.RaiseCode(value.ErrType)
	}
	perms, pok := gamedb.ParseVerbPerms(value.Fold(string(permStr)))
	if !pok || len(strings.Fields(string(names))) == 0 {
		return c.RaiseCode(value.ErrInvArg)
	}
	if !c.World.Valid(owner) {
		return c.RaiseCode(value.ErrInvArg)
	}
	if owner != c.Frame().Perms && !c.Wizardly() {
		return c.RaiseCode(value.ErrPerm)
	}
	v.Owner = owner
	v.Perms = perms
	v.Names = string(names)
	return nil
}

func applyVerbArgs(c *eval.Context, v *gamedb.Verb, spec value.List) error {
	if len(spec) != 3 {
		return c.RaiseCode(value.ErrInvArg)
	}
	dobjS, ok1 := spec[0].(value.Str)
	prepS, ok2 := spec[1].(value.Str)
	iobjS, ok3 := spec[2].(value.Str)
	if !ok1 || !ok2 || !ok3 {
		return c.RaiseCode(value.ErrType)
	}
	dobj, ok := gamedb.ParseArgSpec(string(dobjS))
	if !ok {
		return c.RaiseCode(value.ErrInvArg)
	}
	prep, ok := gamedb.ParsePrepSpec(string(prepS))
	if !ok {
		return c.RaiseCode(value.ErrInvArg)
	}
	iobj, ok := gamedb.ParseArgSpec(string(iobjS))
	if !ok {
		return c.RaiseCode(value.ErrInvArg)
	}
	v.Dobj, v.Prep, v.Iobj = dobj, prep, iobj
	return nil
}
