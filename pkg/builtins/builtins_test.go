package builtins

import (
	"testing"

	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/task"
	"github.com/kruton/etamoo/pkg/value"
)

type stubNet struct {
	listens     []string
	checkpoints int
}

func (s *stubNet) Listen(obj value.Obj, point string, printMessages bool) value.Code {
	s.listens = append(s.listens, point)
	return value.ErrNone
}
func (s *stubNet) Unlisten(point string) value.Code { return value.ErrNone }
func (s *stubNet) OpenNetwork(host string, port int) (value.Obj, value.Code) {
	return value.Nothing, value.ErrQuota
}
func (s *stubNet) Checkpoint() error       { s.checkpoints++; return nil }
func (s *stubNet) VersionString() string   { return "test-server 0.0" }

type builtinEnv struct {
	world *gamedb.World
	reg   *eval.Registry
	sched *task.Scheduler
	net   *stubNet
	wiz   value.Obj
	plain value.Obj
}

func newBuiltinEnv(t *testing.T) *builtinEnv {
	t.Helper()
	w := gamedb.NewWorld()
	w.CreateObject(value.Nothing, value.Nothing) // #0
	root, _ := w.CreateObject(value.Nothing, value.Nothing)
	w.Get(root).SetFlag(gamedb.FlagFertile, true)
	wiz, _ := w.CreateObject(root, value.Nothing)
	w.Get(wiz).SetFlag(gamedb.FlagWizard, true)
	w.SetPlayer(wiz, true)
	plain, _ := w.CreateObject(root, value.Nothing)
	w.SetPlayer(plain, true)

	reg := eval.NewRegistry()
	sched := task.NewScheduler(w, reg)
	net := &stubNet{}
	RegisterAll(reg, sched, net)
	return &builtinEnv{world: w, reg: reg, sched: sched, net: net, wiz: wiz, plain: plain}
}

func (e *builtinEnv) contextFor(who value.Obj) *eval.Context {
	fr := &eval.Frame{
		Perms: who, Debug: true, VerbName: "test",
		This: who, Player: who, VerbLoc: who,
	}
	eval.InitVerbEnv(fr, value.List{}, who)
	tk := e.sched.NewTask(who, who, 0, fr, nil)
	return tk.Context()
}

func (e *builtinEnv) call(t *testing.T, c *eval.Context, name string, args ...value.Value) value.Value {
	t.Helper()
	v, err := e.reg.Call(c, name, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func (e *builtinEnv) callErr(t *testing.T, c *eval.Context, want value.Code, name string, args ...value.Value) {
	t.Helper()
	_, err := e.reg.Call(c, name, args)
	exc, ok := err.(*eval.Exception)
	if !ok || !value.Equal(exc.Code, value.Err(want)) {
		t.Fatalf("%s: got %v, want %v", name, err, value.Err(want))
	}
}

func TestValueBuiltins(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)

	if v := env.call(t, c, "typeof", value.Str("x")); v != value.Int(int64(value.TypeStr)) {
		t.Errorf("typeof = %v", v)
	}
	if v := env.call(t, c, "tostr", value.Int(1), value.Str("+"), value.Err(value.ErrPerm)); v != value.Str("1+Permission denied") {
		t.Errorf("tostr = %v", v)
	}
	if v := env.call(t, c, "toliteral", value.List{value.Str("a")}); v != value.Str(`{"a"}`) {
		t.Errorf("toliteral = %v", v)
	}
	if v := env.call(t, c, "equal", value.Str("Foo"), value.Str("FOO")); v != value.Int(0) {
		t.Errorf("equal folded case: %v", v)
	}
	if v := env.call(t, c, "toint", value.Str(" 42 ")); v != value.Int(42) {
		t.Errorf("toint = %v", v)
	}
	if v := env.call(t, c, "toobj", value.Str("#17")); v != value.Obj(17) {
		t.Errorf("toobj = %v", v)
	}
	if v := env.call(t, c, "tofloat", value.Int(2)); v != value.Float(2) {
		t.Errorf("tofloat = %v", v)
	}
	env.callErr(t, c, value.ErrArgs, "typeof")
	env.callErr(t, c, value.ErrType, "length", value.Int(3))
}

func TestUnknownBuiltin(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)
	env.callErr(t, c, value.ErrVerbNF, "no_such_function")
}

func TestProtectedBuiltinRequiresWizard(t *testing.T) {
	env := newBuiltinEnv(t)
	env.world.Options.Protected["players"] = true

	c := env.contextFor(env.plain)
	env.callErr(t, c, value.ErrPerm, "players")

	cw := env.contextFor(env.wiz)
	if v := env.call(t, cw, "players"); len(v.(value.List)) != 2 {
		t.Errorf("players = %v", value.ToLiteral(v))
	}
}

func TestCreatePermissions(t *testing.T) {
	env := newBuiltinEnv(t)

	// A plain programmer can create from a fertile parent.
	c := env.contextFor(env.plain)
	v := env.call(t, c, "create", value.Obj(1))
	child := v.(value.Obj)
	if env.world.Get(child).Owner != env.plain {
		t.Errorf("owner = %v", env.world.Get(child).Owner)
	}
	// But cannot create from a non-fertile one it does not own.
	env.world.Get(1).SetFlag(gamedb.FlagFertile, false)
	env.callErr(t, c, value.ErrPerm, "create", value.Obj(1))
	// And cannot hand ownership to someone else.
	env.world.Get(1).SetFlag(gamedb.FlagFertile, true)
	env.callErr(t, c, value.ErrPerm, "create", value.Obj(1), env.wiz)
}

func TestMoveAndRecycleBuiltins(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)

	box := env.call(t, c, "create", value.Obj(1)).(value.Obj)
	env.call(t, c, "move", env.plain, box)
	if env.world.Get(env.plain).Location != box {
		t.Errorf("location = %v", env.world.Get(env.plain).Location)
	}
	env.callErr(t, c, value.ErrRecMove, "move", box, box)

	env.call(t, c, "recycle", box)
	if env.world.Valid(box) {
		t.Errorf("box survived recycle")
	}
	if env.world.Get(env.plain).Location != value.Nothing {
		t.Errorf("contents not dumped on recycle")
	}
}

func TestPropertyBuiltins(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)

	env.call(t, c, "add_property", value.Obj(1), value.Str("color"),
		value.Str("red"), value.List{env.wiz, value.Str("rc")})
	info := env.call(t, c, "property_info", value.Obj(1), value.Str("color")).(value.List)
	if info[0] != env.wiz || info[1] != value.Str("rc") {
		t.Errorf("property_info = %v", value.ToLiteral(info))
	}
	names := env.call(t, c, "properties", value.Obj(1)).(value.List)
	if len(names) != 1 || names[0] != value.Str("color") {
		t.Errorf("properties = %v", value.ToLiteral(names))
	}
	// The child inherits a clear slot.
	if v := env.call(t, c, "is_clear_property", env.plain, value.Str("color")); v != value.Int(1) {
		t.Errorf("is_clear_property = %v", v)
	}
	env.call(t, c, "delete_property", value.Obj(1), value.Str("color"))
	env.callErr(t, c, value.ErrPropNF, "property_info", value.Obj(1), value.Str("color"))
}

func TestVerbBuiltins(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)

	env.call(t, c, "add_verb", value.Obj(1),
		value.List{env.wiz, value.Str("rxd"), value.Str("l*ook examine")},
		value.List{value.Str("this"), value.Str("none"), value.Str("this")})
	info := env.call(t, c, "verb_info", value.Obj(1), value.Str("look")).(value.List)
	if info[2] != value.Str("l*ook examine") {
		t.Errorf("verb_info = %v", value.ToLiteral(info))
	}
	spec := env.call(t, c, "verb_args", value.Obj(1), value.Str("examine")).(value.List)
	if spec[0] != value.Str("this") || spec[1] != value.Str("none") {
		t.Errorf("verb_args = %v", value.ToLiteral(spec))
	}
	env.call(t, c, "set_verb_args", value.Obj(1), value.Str("look"),
		value.List{value.Str("any"), value.Str("with"), value.Str("none")})
	spec = env.call(t, c, "verb_args", value.Obj(1), value.Str("look")).(value.List)
	if spec[1] != value.Str("with") {
		t.Errorf("set_verb_args = %v", value.ToLiteral(spec))
	}
	env.call(t, c, "delete_verb", value.Obj(1), value.Str("look"))
	env.callErr(t, c, value.ErrVerbNF, "verb_info", value.Obj(1), value.Str("look"))
}

func TestListBuiltins(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)
	l := value.List{value.Int(1), value.Int(2)}

	if v := env.call(t, c, "listappend", l, value.Int(3)); !value.Identical(v, value.List{value.Int(1), value.Int(2), value.Int(3)}) {
		t.Errorf("listappend = %v", value.ToLiteral(v))
	}
	if v := env.call(t, c, "listinsert", l, value.Int(0)); !value.Identical(v, value.List{value.Int(0), value.Int(1), value.Int(2)}) {
		t.Errorf("listinsert = %v", value.ToLiteral(v))
	}
	if v := env.call(t, c, "setadd", l, value.Int(2)); !value.Identical(v, l) {
		t.Errorf("setadd dup = %v", value.ToLiteral(v))
	}
	if v := env.call(t, c, "setremove", l, value.Int(1)); !value.Identical(v, value.List{value.Int(2)}) {
		t.Errorf("setremove = %v", value.ToLiteral(v))
	}
	env.callErr(t, c, value.ErrRange, "listdelete", l, value.Int(3))
}

func TestStringBuiltins(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)

	if v := env.call(t, c, "index", value.Str("foobar"), value.Str("OB")); v != value.Int(3) {
		t.Errorf("index = %v", v)
	}
	if v := env.call(t, c, "rindex", value.Str("ababab"), value.Str("ab")); v != value.Int(5) {
		t.Errorf("rindex = %v", v)
	}
	if v := env.call(t, c, "strsub", value.Str("FooBarFoo"), value.Str("foo"), value.Str("X")); v != value.Str("XBarX") {
		t.Errorf("strsub = %v", v)
	}
	hash := env.call(t, c, "crypt", value.Str("pw"), value.Str("ab")).(value.Str)
	if len(hash) != 13 || hash[:2] != "ab" {
		t.Errorf("crypt = %q", hash)
	}
}

func TestTaskBuiltins(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)

	if v := env.call(t, c, "ticks_left"); v.(value.Int) <= 0 {
		t.Errorf("ticks_left = %v", v)
	}
	if v := env.call(t, c, "task_perms"); v != env.wiz {
		t.Errorf("task_perms = %v", v)
	}
	env.call(t, c, "set_task_perms", env.plain)
	// The builtin frame is popped afterwards, so the calling frame now
	// carries the new perms.
	if got := c.Frame().Perms; got != env.plain {
		t.Errorf("perms after set_task_perms = %v", got)
	}

	_, err := env.reg.Call(c, "raise", value.List{value.Err(value.ErrNacc), value.Str("nope"), value.Int(7)})
	exc, ok := err.(*eval.Exception)
	if !ok || !value.Equal(exc.Code, value.Err(value.ErrNacc)) || exc.Message != "nope" || exc.Value != value.Int(7) {
		t.Errorf("raise: %v", err)
	}
}

func TestNetworkBuiltins(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)

	if v := env.call(t, c, "listen", value.Obj(0), value.Str(":7777")); v != value.Str(":7777") {
		t.Errorf("listen = %v", v)
	}
	if len(env.net.listens) != 1 {
		t.Errorf("listen not routed to controller")
	}
	cp := env.contextFor(env.plain)
	env.callErr(t, cp, value.ErrPerm, "listen", value.Obj(0), value.Str(":7778"))

	// notify to a non-connected player reports 0 and does not fail.
	if v := env.call(t, c, "notify", env.plain, value.Str("hi")); v != value.Int(0) {
		t.Errorf("notify = %v", v)
	}
}

func TestSystemBuiltins(t *testing.T) {
	env := newBuiltinEnv(t)
	c := env.contextFor(env.wiz)

	if v := env.call(t, c, "server_version"); v != value.Str("test-server 0.0") {
		t.Errorf("server_version = %v", v)
	}
	env.call(t, c, "dump_database")
	if env.net.checkpoints != 1 {
		t.Errorf("checkpoints = %d", env.net.checkpoints)
	}
	cp := env.contextFor(env.plain)
	env.callErr(t, cp, value.ErrPerm, "shutdown")

	info := env.call(t, c, "function_info", value.Str("typeof")).(value.List)
	if info[0] != value.Str("typeof") || info[1] != value.Int(1) {
		t.Errorf("function_info = %v", value.ToLiteral(info))
	}
}
