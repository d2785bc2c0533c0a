package builtins

import (
	"time"

	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/task"
	"github.com/kruton/etamoo/pkg/value"
)

func registerTaskBuiltins(reg *eval.Registry, sched *task.Scheduler) {
	reg.Register(&eval.Builtin{Name: "task_id", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return value.Int(c.Control.TaskID()), nil
		}})

	reg.Register(&eval.Builtin{Name: "suspend", MinArgs: 0, MaxArgs: 1,
		Types: []eval.ArgType{eval.TNum},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if len(args) == 0 {
				return c.Control.Suspend(c, 0, true)
			}
			var delay time.Duration
			switch d := args[0].(type) {
			case value.Int:
				if d < 0 {
					return nil, c.RaiseCode(value.ErrInvArg)
				}
				delay = time.Duration(d) * time.Second
			case value.Float:
				if d < 0 {
					return nil, c.RaiseCode(value.ErrInvArg)
				}
				delay = time.Duration(float64(d) * float64(time.Second))
			}
			return c.Control.Suspend(c, delay, false)
		}})

	reg.Register(&eval.Builtin{Name: "resume", MinArgs: 1, MaxArgs: 2,
		Types: []eval.ArgType{eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			var v value.Value = value.Int(0)
			if len(args) == 2 {
				v = args[1]
			}
			if code := sched.Resume(int64(args[0].(value.Int)), c.Frame().Perms, c.Wizardly(), v); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "read", MinArgs: 0, MaxArgs: 2,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			conn := c.Frame().Player
			if len(args) >= 1 {
				conn = args[0].(value.Obj)
			}
			if conn != c.Frame().Player && !c.Wizardly() {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			return c.Control.Read(c, conn)
		}})

	reg.Register(&eval.Builtin{Name: "kill_task", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TInt},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			id := int64(args[0].(value.Int))
			if id == c.Control.TaskID() {
				// Suicide: abort ourselves at the next boundary.
				c.Killed.Store(true)
				return value.Int(0), nil
			}
			if code := sched.Kill(id, c.Frame().Perms, c.Wizardly()); code != value.ErrNone {
				return nil, c.RaiseCode(code)
			}
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "queued_tasks", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			tasks := sched.QueuedTasks(c.Frame().Perms, c.Wizardly())
			out := make(value.List, len(tasks))
			for i, t := range tasks {
				out[i] = t.QueueEntry()
			}
			return out, nil
		}})

	reg.Register(&eval.Builtin{Name: "queue_info", MinArgs: 0, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			if len(args) == 0 {
				// Owners with queued tasks.
				seen := map[value.Obj]bool{}
				out := value.List{}
				for _, t := range sched.QueuedTasks(value.Nothing, true) {
					if !seen[t.Owner] {
						seen[t.Owner] = true
						out = append(out, t.Owner)
					}
				}
				return out, nil
			}
			return value.Int(sched.CountQueuedByOwner(args[0].(value.Obj))), nil
		}})

	reg.Register(&eval.Builtin{Name: "ticks_left", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return value.Int(c.TicksLeft), nil
		}})

	reg.Register(&eval.Builtin{Name: "seconds_left", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			secs := int64(c.SecondsLeft() / time.Second)
			if secs < 0 {
				secs = 0
			}
			return value.Int(secs), nil
		}})

	reg.Register(&eval.Builtin{Name: "callers", MinArgs: 0, MaxArgs: 1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return c.Callers(), nil
		}})

	reg.Register(&eval.Builtin{Name: "caller_perms", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return c.CallerPerms(), nil
		}})

	reg.Register(&eval.Builtin{Name: "set_task_perms", MinArgs: 1, MaxArgs: 1,
		Types: []eval.ArgType{eval.TObj},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			who := args[0].(value.Obj)
			if who != c.Frame().Perms && !c.Wizardly() {
				return nil, c.RaiseCode(value.ErrPerm)
			}
			c.SetTaskPerms(who)
			return value.Int(0), nil
		}})

	reg.Register(&eval.Builtin{Name: "task_perms", MinArgs: 0, MaxArgs: 0,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			return c.Frame().Perms, nil
		}})

	reg.Register(&eval.Builtin{Name: "raise", MinArgs: 1, MaxArgs: 3,
		Types: []eval.ArgType{eval.TAny, eval.TStr},
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			msg := value.ToStr(args[0])
			if len(args) >= 2 {
				msg = string(args[1].(value.Str))
			}
			var extra value.Value
			if len(args) == 3 {
				extra = args[2]
			}
			return nil, c.Raise(args[0], msg, extra)
		}})

	reg.Register(&eval.Builtin{Name: "pass", MinArgs: 0, MaxArgs: -1,
		Fn: func(c *eval.Context, args value.List) (value.Value, error) {
			fr := c.Frame()
			// The builtin frame mirrors the calling verb frame; search
			// from the parent of the verb's definer.
			loc := c.World.Get(fr.VerbLoc)
			if loc == nil || loc.Parent == value.Nothing {
				return nil, c.RaiseCode(value.ErrVerbNF)
			}
			holder, verb, _, ok := c.World.LookupVerb(loc.Parent, fr.VerbName, false)
			if !ok || verb.Program == nil {
				return nil, c.RaiseCode(value.ErrVerbNF)
			}
			child := &eval.Frame{
				Perms:    verb.Owner,
				Debug:    verb.Perms&gamedb.VerbDebug != 0,
				VerbName: fr.VerbName,
				VerbFull: verb.Names,
				This:     fr.This,
				Player:   fr.Player,
				VerbLoc:  holder,
			}
			eval.InitVerbEnv(child, args, fr.This)
			if err := c.PushFrame(child); err != nil {
				return nil, err
			}
			defer c.PopFrame()
			return c.RunProgram(verb.Program)
		}})
}
