package builtins

import (
	"log"
	"time"

	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/task"
	"github.com/kruton/etamoo/pkg/value"
)

func registerSystemBuiltins(reg *eval.Registry, sched *task.Scheduler, net NetworkController) {
	reg.Register(&eval.Builtin{Name: "server_version", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return value.Str(net.VersionString()), nil
		}})

	reg.Register(&eval.Builtin{Name: "server_log", MinArgs: 1, MaxArgs: 2,
		Types: []eval.ArgType{eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if err := wizardOnly(c); err != nil {
				return nil, err
			}
			msg := string(args[0].(value.Str))
			isError := len(args) == 2 && args[1].Truthy()
			c.Defer(func() {
				if isError {
					log.Printf("ERROR: > %s", msg)
				} else {
					log.Printf("> %s", msg)
				}
			})
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "shutdown", MinArgs: 0, MaxArgs: 1,
		Types: []eval.ArgType{eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if err := wizardOnly(c); err != nil {
				return nil, err
			}
			msg := ""
			if len(args) == 1 {
				msg = string(args[0].(value.Str))
			}
			w := c.World
			c.Defer(func() { w.RequestShutdown(msg) })
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "dump_database", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if err := wizardOnly(c); err != nil {
				return nil, err
			}
			c.Defer(func() {
				if err := net.Checkpoint(); err != nil {
					log.Printf("ERROR: checkpoint failed: %v", err)
				}
			})
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "time", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return value.Int(time.Now().Unix()), nil
		}})

	reg.Register(&eval.Builtin{Name: "ctime", MinArgs: 0, MaxArgs: 1,
		Types: []eval.ArgType{eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			t := time.Now()
			if len(args) == 1 {
				t = time.Unix(int64(args[0].(value.Int)), 0)
			}
			return value.Str(t.Format("Mon Jan  2 15:04:05 2006 MST")), nil
		}})

	reg.Register(&eval.Builtin{Name: "load_server_options", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if err := wizardOnly(c); err != nil {
				return nil, err
			}
			c.World.LoadOptions()
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "function_info", MinArgs: 0, MaxArgs: 1,
		Types: []eval.ArgType{eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if len(args) == 1 {
				b, ok := c.Registry.Lookup(string(args[0].(value.Str)))
				if !ok {
					return nil, c.RaiseCode(value.ErrInvArg)
				}
				return functionInfo(b), nil
			}
			out := value.List{}
			for _, name := range c.Registry.Names() {
				if b, ok := c.Registry.Lookup(name); ok {
					out = append(out, functionInfo(b))
				}
			}
			return out, nil
		}})
}

func functionInfo(b *eval.Builtin) value.List {
	types := make(value.List, len(b.Types))
	for i, t := range b.Types {
		types[i] = value.Int(int64(t))
	}
	return value.List{
		value.Str(b.Name),
		value.Int(b.MinArgs),
		value.Int(b.MaxArgs),
		types,
	}
}
