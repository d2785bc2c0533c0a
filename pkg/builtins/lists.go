package builtins

import (
	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/value"
)

func registerListBuiltins(reg *eval.Registry) {
	reg.Register(&eval.Builtin{Name: "listappend", MinArgs: 2, MaxArgs: 3,
		Types: []eval.ArgType{eval.TList, eval.TAny, eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			l := args[0].(value.List)
			at := len(l)
			if len(args) == 3 {
				at = int(args[2].(value.Int))
				if at < 0 || at > len(l) {
					return nil, c.RaiseCode(value.ErrRange)
				}
			}
			return spliceIn(l, args[1], at), nil
		}})

	reg.Register(&eval.Builtin{Name: "listinsert", MinArgs: 2, MaxArgs: 3,
		Types: []eval.ArgType{eval.TList, eval.TAny, eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			l := args[0].(value.List)
			at := 0
			if len(args) == 3 {
				at = int(args[2].(value.Int)) - 1
				if at < 0 || at > len(l) {
					return nil, c.RaiseCode(value.ErrRange)
				}
			}
			return spliceIn(l, args[1], at), nil
		}})

	reg.Register(&eval.Builtin{Name: "listdelete", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TList, eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			l := args[0].(value.List)
			i := int(args[1].(value.Int))
			if i < 1 || i > len(l) {
				return nil, c.RaiseCode(value.ErrRange)
			}
			out := make(value.List, 0, len(l)-1)
			out = append(out, l[:i-1]...)
			out = append(out, l[i:]...)
			return out, nil
		}})

	reg.Register(&eval.Builtin{Name: "listset", MinArgs: 3, MaxArgs: 3,
		Types: []eval.ArgType{eval.TList, eval.TAny, eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			l := args[0].(value.List)
			i := int(args[2].(value.Int))
			if i < 1 || i > len(l) {
				return nil, c.RaiseCode(value.ErrRange)
			}
			out := make(value.List, len(l))
			copy(out, l)
			out[i-1] = args[1]
			return out, nil
		}})

	reg.Register(&eval.Builtin{Name: "setadd", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TList},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			l := args[0].(value.List)
			for _, e := range l {
				if value.Equal(e, args[1]) {
					return l, nil
				}
			}
			return spliceIn(l, args[1], len(l)), nil
		}})

	reg.Register(&eval.Builtin{Name: "setremove", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TList},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			l := args[0].(value.List)
			for i, e := range l {
				if value.Equal(e, args[1]) {
					out := make(value.List, 0, len(l)-1)
					out = append(out, l[:i]...)
					out = append(out, l[i+1:]...)
					return out, nil
				}
			}
			return l, nil
		}})

	reg.Register(&eval.Builtin{Name: "is_member", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TAny, eval.TList},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			for i, e := range args[1].(value.List) {
				if value.Identical(e, args[0]) {
					return value.Int(i + 1), nil
				}
			}
			return value.Int(0), nil
		}})
}

func spliceIn(l value.List, v value.Value, at int) value.List {
	out := make(value.List, 0, len(l)+1)
	out = append(out, l[:at]...)
	out = append(out, v)
	out = append(out, l[at:]...)
	return out
}
