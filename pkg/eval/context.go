package eval

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// ForkSpec carries everything the scheduler needs to start a forked task:
// the body, the snapshot of the parent's environment, and the frame
// metadata the child runs under.
type ForkSpec struct {
	ID    int64
	Delay time.Duration
	Body  []ast.Stmt
	Env   map[string]value.Value

	This     value.Obj
	Player   value.Obj
	Perms    value.Obj
	VerbName string
	VerbLoc  value.Obj
	Debug    bool
}

// TaskControl is the evaluator's view of the task engine. Suspend and Read
// block the calling goroutine: they commit the current attempt, park, and
// begin a fresh attempt before returning.
type TaskControl interface {
	TaskID() int64
	// Suspend parks the task for the given delay; with indefinite set it
	// parks until resume(). The returned value is the one passed to
	// resume(), or 0 on timer expiry.
	Suspend(c *Context, delay time.Duration, indefinite bool) (value.Value, error)
	// Read parks the task until an input line arrives on the connection.
	Read(c *Context, conn value.Obj) (value.Value, error)
	// NewForkID reserves a task id for a fork about to be scheduled.
	NewForkID() int64
	// StartFork schedules a forked task to begin after the current attempt
	// commits plus the spec's delay. A quota failure is an *Exception.
	StartFork(c *Context, spec ForkSpec) error
}

// Frame is one verb or built-in invocation on a task's call stack.
type Frame struct {
	Vars map[string]value.Value

	Debug    bool
	Perms    value.Obj // effective permissions
	VerbName string
	VerbFull string // the verb's full names pattern
	This     value.Obj
	Player   value.Obj
	VerbLoc  value.Obj
	Builtin  bool
	Line     int
}

// Context is the execution context of one running task: its frame stack,
// tick and time budget, and its handles to the world, the built-in
// registry and the task engine.
type Context struct {
	World    *gamedb.World
	Registry *Registry
	Control  TaskControl

	TicksLeft int
	Deadline  time.Time
	Killed    *atomic.Bool

	// Tx is the attempt this evaluation is running inside; deferred
	// actions queued here run after it commits.
	Tx *gamedb.Tx

	Rand *rand.Rand

	frames     []*Frame
	indexBases []value.Value
	tickProbe  int
}

// NewContext creates a context with a single frame and foreground limits.
func NewContext(w *gamedb.World, reg *Registry, ctl TaskControl, top *Frame) *Context {
	if top.Vars == nil {
		top.Vars = make(map[string]value.Value)
	}
	return &Context{
		World:     w,
		Registry:  reg,
		Control:   ctl,
		TicksLeft: w.Options.FgTicks,
		Deadline:  time.Now().Add(time.Duration(w.Options.FgSeconds) * time.Second),
		Killed:    &atomic.Bool{},
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		frames:    []*Frame{top},
	}
}

// Frame returns the current (innermost) frame.
func (c *Context) Frame() *Frame { return c.frames[len(c.frames)-1] }

// Depth returns the current call-stack depth.
func (c *Context) Depth() int { return len(c.frames) }

// Wizardly reports whether the current effective permissions are a wizard.
func (c *Context) Wizardly() bool { return c.World.IsWizard(c.Frame().Perms) }

// Defer queues a post-commit action on the current attempt. Outside any
// attempt the action runs immediately.
func (c *Context) Defer(f func()) {
	if c.Tx != nil {
		c.Tx.Defer(f)
	} else {
		f()
	}
}

// ResetLimits reinstates the tick and second budget for the given class;
// the task engine calls this on every resume.
func (c *Context) ResetLimits(foreground bool) {
	if foreground {
		c.TicksLeft = c.World.Options.FgTicks
		c.Deadline = time.Now().Add(time.Duration(c.World.Options.FgSeconds) * time.Second)
	} else {
		c.TicksLeft = c.World.Options.BgTicks
		c.Deadline = time.Now().Add(time.Duration(c.World.Options.BgSeconds) * time.Second)
	}
}

// SecondsLeft reports the remaining wall-clock budget.
func (c *Context) SecondsLeft() time.Duration { return time.Until(c.Deadline) }

// tick charges one tick and polls the deadline and kill flag. The deadline
// check is amortized over tick batches to keep the fast path cheap.
func (c *Context) tick() error {
	c.TicksLeft--
	if c.TicksLeft <= 0 {
		return &Abort{Kind: AbortTicks, Stack: c.captureStack()}
	}
	c.tickProbe++
	if c.tickProbe >= 128 {
		c.tickProbe = 0
		if c.Killed.Load() {
			return &Abort{Kind: AbortKilled, Stack: c.captureStack()}
		}
		if time.Now().After(c.Deadline) {
			return &Abort{Kind: AbortSeconds, Stack: c.captureStack()}
		}
	}
	return nil
}

func (c *Context) captureStack() []Traceback {
	out := make([]Traceback, 0, len(c.frames))
	for i := len(c.frames) - 1; i >= 0; i-- {
		fr := c.frames[i]
		out = append(out, Traceback{
			This:     fr.This,
			VerbName: fr.VerbName,
			VerbLoc:  fr.VerbLoc,
			Perms:    fr.Perms,
			Player:   fr.Player,
			Line:     fr.Line,
			Builtin:  fr.Builtin,
		})
	}
	return out
}

// Raise raises a MOO exception carrying the current call stack.
func (c *Context) Raise(code value.Value, msg string, extra value.Value) error {
	if extra == nil {
		extra = value.Int(0)
	}
	return &Exception{
		Code:    code,
		Message: msg,
		Value:   extra,
		Stack:   c.captureStack(),
		Debug:   c.Frame().Debug,
	}
}

// RaiseCode raises a plain error code with its default message.
func (c *Context) RaiseCode(code value.Code) error {
	return c.Raise(value.Err(code), code.Message(), nil)
}

// PushFrame enters a new frame, enforcing the stack depth limit.
func (c *Context) PushFrame(fr *Frame) error {
	if len(c.frames) >= c.World.Options.MaxStackDepth {
		return c.RaiseCode(value.ErrMaxRec)
	}
	if fr.Vars == nil {
		fr.Vars = make(map[string]value.Value)
	}
	c.frames = append(c.frames, fr)
	return nil
}

// PopFrame leaves the current frame.
func (c *Context) PopFrame() {
	c.frames = c.frames[:len(c.frames)-1]
}

// SetTaskPerms changes the effective permissions of the innermost verb
// frame, skipping the built-in frame the call arrives through.
func (c *Context) SetTaskPerms(who value.Obj) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if !c.frames[i].Builtin {
			c.frames[i].Perms = who
			return
		}
	}
}

// CallerPerms returns the permissions of the verb that called the current
// one, or #-1 at the top of a task.
func (c *Context) CallerPerms() value.Obj {
	seenVerb := false
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Builtin {
			continue
		}
		if !seenVerb {
			seenVerb = true
			continue
		}
		return c.frames[i].Perms
	}
	return value.Nothing
}

// Callers renders the frames below the current one, callers()-style.
func (c *Context) Callers() value.List {
	out := value.List{}
	for i := len(c.frames) - 2; i >= 0; i-- {
		fr := c.frames[i]
		out = append(out, value.List{
			fr.This,
			value.Str(fr.VerbName),
			fr.Perms,
			fr.VerbLoc,
			fr.Player,
			value.Int(fr.Line),
		})
	}
	return out
}

// InitVerbEnv populates a fresh verb frame's environment with the standard
// variables every verb starts with.
func InitVerbEnv(fr *Frame, args value.List, caller value.Obj) {
	fr.Vars = map[string]value.Value{
		"player":  fr.Player,
		"this":    fr.This,
		"caller":  caller,
		"verb":    value.Str(fr.VerbName),
		"args":    args,
		"argstr":  value.Str(""),
		"dobj":    value.Nothing,
		"dobjstr": value.Str(""),
		"prepstr": value.Str(""),
		"iobj":    value.Nothing,
		"iobjstr": value.Str(""),
		"num":     value.Int(int64(value.TypeInt)),
		"int":     value.Int(int64(value.TypeInt)),
		"obj":     value.Int(int64(value.TypeObj)),
		"str":     value.Int(int64(value.TypeStr)),
		"err":     value.Int(int64(value.TypeErr)),
		"list":    value.Int(int64(value.TypeList)),
		"float":   value.Int(int64(value.TypeFloat)),
	}
}
