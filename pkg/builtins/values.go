package builtins

import (
	"math"
	"strconv"
	"strings"

	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/value"
)

func registerValueBuiltins(reg *eval.Registry) {
	reg.Register(&eval.Builtin{Name: "typeof", MinArgs: 1, MaxArgs: 1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return value.Int(int64(args[0].Type())), nil
		}})

	reg.Register(&eval.Builtin{Name: "length", MinArgs: 1, MaxArgs: 1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			switch x := args[0].(type) {
			case value.List:
				return value.Int(len(x)), nil
			case value.Str:
				return value.Int(len([]rune(string(x)))), nil
			}
			return nil, c.RaiseCode(value.ErrType)
		}})

	reg.Register(&eval.Builtin{Name: "tostr", MinArgs: 0, MaxArgs: -1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			var b strings.Builder
			for _, a := range args {
				b.WriteString(value.ToStr(a))
			}
			return value.Str(b.String()), nil
		}})

	reg.Register(&eval.Builtin{Name: "toliteral", MinArgs: 1, MaxArgs: 1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return value.Str(value.ToLiteral(args[0])), nil
		}})

	toint := func(c *eval.Context, args value.List) (value.Value, error) {
		switch x := args[0].(type) {
		case value.Int:
			return x, nil
		case value.Float:
			return value.Int(int64(x)), nil
		case value.Obj:
			return value.Int(int64(x)), nil
		case value.Err:
			return value.Int(int64(x)), nil
		case value.Str:
			s := strings.TrimSpace(string(x))
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return value.Int(n), nil
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return value.Int(int64(f)), nil
			}
			return value.Int(0), nil
		}
		return nil, c.RaiseCode(value.ErrType)
	}
	reg.Register(&eval.Builtin{Name: "toint", MinArgs: 1, MaxArgs: 1, Fn: toint})
	reg.Register(&eval.Builtin{Name: "tonum", MinArgs: 1, MaxArgs: 1, Fn: toint})

	reg.Register(&eval.Builtin{Name: "tofloat", MinArgs: 1, MaxArgs: 1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			switch x := args[0].(type) {
			case value.Int:
				return value.Float(x), nil
			case value.Float:
				return x, nil
			case value.Err:
				return value.Float(x), nil
			case value.Str:
				if f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
					return value.Float(f), nil
				}
				return value.Float(0), nil
			}
			return nil, c.RaiseCode(value.ErrType)
		}})

	reg.Register(&eval.Builtin{Name: "toobj", MinArgs: 1, MaxArgs: 1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			switch x := args[0].(type) {
			case value.Int:
				return value.Obj(x), nil
			case value.Float:
				return value.Obj(int64(x)), nil
			case value.Obj:
				return x, nil
			case value.Str:
				s := strings.TrimSpace(string(x))
				s = strings.TrimPrefix(s, "#")
				if n, err := strconv.ParseInt(s, 10, 64); err == nil {
					return value.Obj(n), nil
				}
				return value.Obj(0), nil
			}
			return nil, c.RaiseCode(value.ErrType)
		}})

	reg.Register(&eval.Builtin{Name: "toerr", MinArgs: 1, MaxArgs: 1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			switch x := args[0].(type) {
			case value.Int:
				return value.Err(x), nil
			case value.Err:
				return x, nil
			case value.Str:
				if code, ok := value.CodeByName(strings.ToUpper(strings.TrimSpace(string(x)))); ok {
					return value.Err(code), nil
				}
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			return nil, c.RaiseCode(value.ErrType)
		}})

	reg.Register(&eval.Builtin{Name: "equal", MinArgs: 2, MaxArgs: 2,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return boolInt(value.Identical(args[0], args[1])), nil
		}})

	reg.Register(&eval.Builtin{Name: "random", MinArgs: 0, MaxArgs: 1,
		Types: []eval.ArgType{eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			limit := int64(math.MaxInt32)
			if len(args) == 1 {
				limit = int64(args[0].(value.Int))
				if limit <= 0 {
					return nil, c.RaiseCode(value.ErrInvArg)
				}
			}
			return value.Int(c.Rand.Int63n(limit) + 1), nil
		}})

	reg.Register(&eval.Builtin{Name: "abs", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TNum},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			switch x := args[0].(type) {
			case value.Int:
				if x < 0 {
					return -x, nil
				}
				return x, nil
			case value.Float:
				return value.Float(math.Abs(float64(x))), nil
			}
			return nil, c.RaiseCode(value.ErrType)
		}})

	reg.Register(&eval.Builtin{Name: "min", MinArgs: 1, MaxArgs: -1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return extremum(c, args, -1)
		}})
	reg.Register(&eval.Builtin{Name: "max", MinArgs: 1, MaxArgs: -1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return extremum(c, args, 1)
		}})

	reg.Register(&eval.Builtin{Name: "sqrt", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TFloat},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			f := float64(args[0].(value.Float))
			if f < 0 {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			return value.Float(math.Sqrt(f)), nil
		}})

	reg.Register(&eval.Builtin{Name: "floatstr", MinArgs: 2, MaxArgs: 3,
		Types: []eval.ArgType{eval.TFloat, eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			prec := int(args[1].(value.Int))
			if prec < 0 {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			if prec > 19 {
				prec = 19
			}
			sci := len(args) == 3 && args[2].Truthy()
			format := byte('f')
			if sci {
				format = 'e'
			}
			return value.Str(strconv.FormatFloat(float64(args[0].(value.Float)), format, prec, 64)), nil
		}})

	reg.Register(&eval.Builtin{Name: "encode_binary", MinArgs: 0, MaxArgs: -1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			var data []byte
			var walk func(v value.Value) error
			walk = func(v value.Value) error {
				switch x := v.(type) {
				case value.Int:
					if x < 0 || x > 255 {
						return c.RaiseCode(value.ErrInvArg)
					}
					data = append(data, byte(x))
				case value.Str:
					data = append(data, []byte(string(x))...)
				case value.List:
					for _, e := range x {
						if err := walk(e); err != nil {
							return err
						}
					}
				default:
					return c.RaiseCode(value.ErrInvArg)
				}
				return nil
			}
			for _, a := range args {
				if err := walk(a); err != nil {
					return nil, err
				}
			}
			return value.EncodeBinary(data), nil
		}})

	reg.Register(&eval.Builtin{Name: "decode_binary", MinArgs: 1, MaxArgs: 2,
		Types: []eval.ArgType{eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			data, code := value.DecodeBinary(args[0].(value.Str))
			if code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			fully := len(args) == 2 && args[1].Truthy()
			if fully {
				out := make(value.List, len(data))
				for i, b := range data {
					out[i] = value.Int(b)
				}
				return out, nil
			}
			// Printable runs stay strings; everything else becomes ints.
			out := value.List{}
			run := []byte{}
			flush := func() {
				if len(run) > 0 {
					out = append(out, value.Str(run))
					run = nil
				}
			}
			for _, b := range data {
				if b >= 32 && b < 127 || b == '\t' {
					run = append(run, b)
				} else {
					flush()
					out = append(out, value.Int(b))
				}
			}
			flush()
			return out, nil
		}})
}

func extremum(c *eval.Context, args value.List, sign int) (value.Value, error) {
	best := args[0]
	for _, a := range args[1:] {
		cmp, code := value.Compare(a, best)
		if code != value.ErrNone {
			return nil, c.RaiseCode(code)
		}
		if cmp*sign > 0 {
			best = a
		}
	}
	switch best.(type) {
	case value.Int, value.Float:
		return best, nil
	}
	return nil, c.RaiseCode(value.ErrType)
}
