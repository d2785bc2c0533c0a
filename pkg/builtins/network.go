package builtins

import (
	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/task"
	"github.com/kruton/etamoo/pkg/value"
)

func registerNetworkBuiltins(reg *eval.Registry, sched *task.Scheduler, net NetworkController) {
	connFor := func(c *eval.Context, who value.Obj) (gamedb.Connection, error) {
		conn, ok := c.World.Connections[who]
		if !ok {
			return nil, c.RaiseCode(value.ErrInvArg)
		}
		return conn, nil
	}

	reg.Register(&eval.Builtin{Name: "notify", MinArgs: 2, MaxArgs: 3,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			who := args[0].(value.Obj)
			if who != c.Frame().Perms && !c.Wizardly() {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			if _, ok := c.World.Connections[who]; !ok {
				return value.Int(0), nil
			}
			line := string(args[1].(value.Str))
			bus := c.World.Events
			// Delivery is a post-commit emission: an aborted task says
			// nothing.
			c.Defer(func() { bus.EmitLine(who, line) })
			return value.Int(1), nil
		}})

	reg.Register(&eval.Builtin{Name: "connected_players", MinArgs: 0, MaxArgs: 1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			includeAll := len(args) == 1 && args[0].Truthy()
			out := value.List{}
			for who := range c.World.Connections {
				if who < 0 && !includeAll {
					continue
				}
				out = append(out, who)
			}
			return out, nil
		}})

	reg.Register(&eval.Builtin{Name: "connected_seconds", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			conn, err := connFor(c, args[0].(value.Obj))
			if err != nil {
				return nil, err
			}
			return value.Int(int64(conn.ConnectedSeconds())), nil
		}})

	reg.Register(&eval.Builtin{Name: "idle_seconds", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			conn, err := connFor(c, args[0].(value.Obj))
			if err != nil {
				return nil, err
			}
			return value.Int(int64(conn.IdleSeconds())), nil
		}})

	reg.Register(&eval.Builtin{Name: "connection_name", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			who := args[0].(value.Obj)
			if who != c.Frame().Perms && !c.Wizardly() {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			conn, err := connFor(c, who)
			if err != nil {
				return nil, err
			}
			return value.Str(conn.ConnectionName()), nil
		}})

	reg.Register(&eval.Builtin{Name: "boot_player", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			who := args[0].(value.Obj)
			if who != c.Frame().Perms && !c.Wizardly() {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			conn, ok := c.World.Connections[who]
			if !ok {
				return value.Int(0), nil
			}
			c.Defer(func() { conn.Boot() })
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "set_connection_option", MinArgs: 3, MaxArgs: 3,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			who := args[0].(value.Obj)
			if who != c.Frame().Perms && !c.Wizardly() {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			conn, err := connFor(c, who)
			if err != nil {
				return nil, err
			}
			if code := conn.SetOption(string(args[1].(value.Str)), args[2]); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "connection_option", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			conn, err := connFor(c, args[0].(value.Obj))
			if err != nil {
				return nil, err
			}
			v, code := conn.GetOption(string(args[1].(value.Str)))
			if code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return v, nil
		}})

	reg.Register(&eval.Builtin{Name: "connection_options", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			conn, err := connFor(c, args[0].(value.Obj))
			if err != nil {
				return nil, err
			}
			return conn.OptionPairs(), nil
		}})

	reg.Register(&eval.Builtin{Name: "flushed_lines", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			conn, err := connFor(c, args[0].(value.Obj))
			if err != nil {
				return nil, err
			}
			return value.Int(conn.FlushedLines()), nil
		}})

	reg.Register(&eval.Builtin{Name: "listen", MinArgs: 2, MaxArgs: 3,
		Types: []eval.ArgType{eval.TObj, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if err := wizardOnly(c); err != nil {
				return nil, err
			}
			obj := args[0].(value.Obj)
			if !c.World.Valid(obj) {
				return nil, c.RaiseCode(value.ErrInvArg)
			}
			point := string(args[1].(value.Str))
			printMessages := len(args) == 3 && args[2].Truthy()
			if code := net.Listen(obj, point, printMessages); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Str(point), nil
		}})

	reg.Register(&eval.Builtin{Name: "unlisten", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if err := wizardOnly(c); err != nil {
				return nil, err
			}
			if code := net.Unlisten(string(args[0].(value.Str))); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "listeners", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			out := value.List{}
			for _, l := range c.World.Listeners {
				out = append(out, value.List{
					l.Object,
					value.Str(l.Point),
					boolInt(l.PrintMessages),
				})
			}
			return out, nil
		}})

	reg.Register(&eval.Builtin{Name: "open_network_connection", MinArgs: 2, MaxArgs: 2,
		Types: []eval.ArgType{eval.TStr, eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if err := wizardOnly(c); err != nil {
				return nil, err
			}
			host := string(args[0].(value.Str))
			port := int(args[1].(value.Int))
			t, ok := c.Control.(*task.Task)
			if !ok {
				return nil, c.RaiseCode(value.ErrQuota)
			}
			// Dialing happens outside the transaction: commit, connect,
			// resume with the result.
			var obj value.Obj
			var code value.Code
			_, err := t.IO(c, func() (value.Value, error) {
				obj, code = net.OpenNetwork(host, port)
				return value.Int(0), nil
			})
			if err != nil {
				return nil, err
			}
			if code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return obj, nil
		}})

	reg.Register(&eval.Builtin{Name: "buffered_output_length", MinArgs: 0, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			// Measured in queued messages; 512 is the queue capacity.
			if len(args) == 0 {
				return value.Int(512), nil
			}
			conn, err := connFor(c, args[0].(value.Obj))
			if err != nil {
				return nil, err
			}
			if v, code := conn.GetOption("buffered-output-length"); code == value.ErrNone {
				return v, nil
			}
			return value.Int(0), nil
		}})
}
