package eval

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// stubControl satisfies TaskControl for evaluator tests; forks are recorded
// rather than run.
type stubControl struct {
	nextID int64
	forks  []ForkSpec
}

func (s *stubControl) TaskID() int64 { return 1 }

func (s *stubControl) Suspend(c *Context, delay time.Duration, indefinite bool) (value.Value, error) {
	return value.Int(0), nil
}

func (s *stubControl) Read(c *Context, conn value.Obj) (value.Value, error) {
	return value.Str(""), nil
}

func (s *stubControl) NewForkID() int64 {
	s.nextID++
	return s.nextID + 1000
}

func (s *stubControl) StartFork(c *Context, spec ForkSpec) error {
	s.forks = append(s.forks, spec)
	return nil
}

type testEnv struct {
	world *gamedb.World
	ctl   *stubControl
	ctx   *Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	w := gamedb.NewWorld()
	// #0 system, #1 root, #2 wizard programmer
	w.CreateObject(value.Nothing, value.Nothing)
	w.CreateObject(value.Nothing, value.Nothing)
	wiz, _ := w.CreateObject(1, value.Nothing)
	w.Get(wiz).SetFlag(gamedb.FlagWizard, true)
	w.Get(wiz).SetFlag(gamedb.FlagProgrammer, true)
	w.SetPlayer(wiz, true)

	ctl := &stubControl{}
	fr := &Frame{
		Perms:    wiz,
		Debug:    true,
		VerbName: "test",
		This:     wiz,
		Player:   wiz,
		VerbLoc:  wiz,
	}
	InitVerbEnv(fr, value.List{}, wiz)
	ctx := NewContext(w, NewRegistry(), ctl, fr)
	return &testEnv{world: w, ctl: ctl, ctx: ctx}
}

// Small AST builders keep the test bodies readable.

func konst(v value.Value) ast.Expr { return &ast.Const{Val: v} }
func vr(name string) ast.Expr      { return &ast.Var{Name: name} }
func bin(op ast.BinOp, l, r ast.Expr) ast.Expr {
	return &ast.Binary{Op: op, L: l, R: r}
}
func set(lhs, rhs ast.Expr) ast.Stmt {
	return &ast.ExprStmt{E: &ast.Assign{LHS: lhs, RHS: rhs}}
}
func expr(e ast.Expr) ast.Stmt { return &ast.ExprStmt{E: e} }
func ret(e ast.Expr) ast.Stmt  { return &ast.Return{E: e} }
func prog(stmts ...ast.Stmt) *ast.Program {
	return &ast.Program{Stmts: stmts}
}

func mustRun(t *testing.T, env *testEnv, p *ast.Program) value.Value {
	t.Helper()
	v, err := env.ctx.RunProgram(p)
	if err != nil {
		t.Fatalf("RunProgram: %v", err)
	}
	return v
}

func TestArithmeticPrecedenceShape(t *testing.T) {
	env := newTestEnv(t)
	// 1 + 2 * 3, built with * bound tighter.
	got := mustRun(t, env, prog(ret(bin(ast.OpAdd, konst(value.Int(1)),
		bin(ast.OpMul, konst(value.Int(2)), konst(value.Int(3)))))))
	if got != value.Int(7) {
		t.Errorf("1 + 2 * 3 = %v", got)
	}
}

func TestStringConcatAndTypeError(t *testing.T) {
	env := newTestEnv(t)
	got := mustRun(t, env, prog(ret(bin(ast.OpAdd, konst(value.Str("foo")), konst(value.Str("bar"))))))
	if got != value.Str("foobar") {
		t.Errorf(`"foo" + "bar" = %v`, got)
	}

	// With the debug bit set, 1 + "x" raises.
	_, err := env.ctx.RunProgram(prog(ret(bin(ast.OpAdd, konst(value.Int(1)), konst(value.Str("x"))))))
	exc, ok := err.(*Exception)
	if !ok || !value.Equal(exc.Code, value.Err(value.ErrType)) {
		t.Fatalf(`1 + "x" with debug: %v`, err)
	}

	// With the debug bit clear, the catch expression (! ANY) yields E_TYPE as a value.
	env2 := newTestEnv(t)
	env2.ctx.Frame().Debug = false
	got = mustRun(t, env2, prog(
		set(vr("r"), &ast.Catch{Expr: bin(ast.OpAdd, konst(value.Int(1)), konst(value.Str("x")))}),
		ret(vr("r")),
	))
	if !value.Equal(got, value.Err(value.ErrType)) {
		t.Errorf(`1 + "x" with debug off = %v`, value.ToLiteral(got))
	}
}

func TestInOperatorFoldsCase(t *testing.T) {
	env := newTestEnv(t)
	got := mustRun(t, env, prog(ret(bin(ast.OpIn,
		konst(value.Str("Foo")),
		konst(value.List{value.Str("bar"), value.Str("foo")})))))
	if got != value.Int(2) {
		t.Errorf(`"Foo" in {"bar", "foo"} = %v`, got)
	}
	got = mustRun(t, env, prog(ret(bin(ast.OpIn,
		konst(value.Int(9)), konst(value.List{value.Int(1)})))))
	if got != value.Int(0) {
		t.Errorf("missing element in = %v", got)
	}
	_, err := env.ctx.RunProgram(prog(ret(bin(ast.OpIn,
		konst(value.Int(1)), konst(value.Str("not a list"))))))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrType)) {
		t.Errorf("in non-list: %v", err)
	}
}

func TestNestedIndexAssignment(t *testing.T) {
	env := newTestEnv(t)
	// x = {{1,2},{3,4}}; x[2][1] = 9; return x;
	got := mustRun(t, env, prog(
		set(vr("x"), konst(value.List{
			value.List{value.Int(1), value.Int(2)},
			value.List{value.Int(3), value.Int(4)},
		})),
		set(&ast.Index{
			Base: &ast.Index{Base: vr("x"), Idx: konst(value.Int(2))},
			Idx:  konst(value.Int(1)),
		}, konst(value.Int(9))),
		ret(vr("x")),
	))
	want := value.List{
		value.List{value.Int(1), value.Int(2)},
		value.List{value.Int(9), value.Int(4)},
	}
	if !value.Identical(got, want) {
		t.Errorf("x = %v", value.ToLiteral(got))
	}
}

func TestStringRangeWrite(t *testing.T) {
	env := newTestEnv(t)
	// y = "foo"; y[2..2] = "LA"; return y;
	got := mustRun(t, env, prog(
		set(vr("y"), konst(value.Str("foo"))),
		set(&ast.RangeRef{Base: vr("y"), From: konst(value.Int(2)), To: konst(value.Int(2))},
			konst(value.Str("LA"))),
		ret(vr("y")),
	))
	if got != value.Str("fLAo") {
		t.Errorf("y = %v", value.ToLiteral(got))
	}
}

func TestStringIndexWriteRules(t *testing.T) {
	env := newTestEnv(t)
	// Single character required.
	_, err := env.ctx.RunProgram(prog(
		set(vr("y"), konst(value.Str("abc"))),
		set(&ast.Index{Base: vr("y"), Idx: konst(value.Int(1))}, konst(value.Str("xy"))),
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrInvArg)) {
		t.Errorf("two-char store: %v", err)
	}

	// Index length+1 appends; beyond that is E_RANGE.
	env = newTestEnv(t)
	got := mustRun(t, env, prog(
		set(vr("y"), konst(value.Str("ab"))),
		set(&ast.Index{Base: vr("y"), Idx: konst(value.Int(3))}, konst(value.Str("c"))),
		ret(vr("y")),
	))
	if got != value.Str("abc") {
		t.Errorf("append = %v", value.ToLiteral(got))
	}
	_, err = env.ctx.RunProgram(prog(
		set(&ast.Index{Base: vr("y"), Idx: konst(value.Int(5))}, konst(value.Str("z"))),
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrRange)) {
		t.Errorf("beyond length+1: %v", err)
	}
}

func TestDollarInIndex(t *testing.T) {
	env := newTestEnv(t)
	// x = {10, 20, 30}; return x[$];
	got := mustRun(t, env, prog(
		set(vr("x"), konst(value.List{value.Int(10), value.Int(20), value.Int(30)})),
		ret(&ast.Index{Base: vr("x"), Idx: &ast.Length{}}),
	))
	if got != value.Int(30) {
		t.Errorf("x[$] = %v", got)
	}

	// $ also resolves inside range bounds: s[$-1..$].
	got = mustRun(t, env, prog(
		set(vr("s"), konst(value.Str("abcd"))),
		ret(&ast.RangeRef{Base: vr("s"), From: bin(ast.OpSub, &ast.Length{}, konst(value.Int(1))), To: &ast.Length{}}),
	))
	if got != value.Str("cd") {
		t.Errorf("s[$-1..$] = %v", value.ToLiteral(got))
	}
}

func scatterTargets() []ast.ScatterTarget {
	return []ast.ScatterTarget{
		{Var: "a"},
		{Var: "b", Optional: true, Default: konst(value.Int(7))},
		{Var: "c", Rest: true},
	}
}

func TestScatterDefaults(t *testing.T) {
	env := newTestEnv(t)
	// {a, ?b = 7, @c} = {10}
	got := mustRun(t, env, prog(
		expr(&ast.Scatter{Targets: scatterTargets(), RHS: konst(value.List{value.Int(10)})}),
		ret(&ast.ListExpr{Elems: []ast.Arg{{Expr: vr("a")}, {Expr: vr("b")}, {Expr: vr("c")}}}),
	))
	want := value.List{value.Int(10), value.Int(7), value.List{}}
	if !value.Identical(got, want) {
		t.Errorf("scatter short = %v", value.ToLiteral(got))
	}
}

func TestScatterSpread(t *testing.T) {
	env := newTestEnv(t)
	// {a, ?b = 7, @c} = {10, 20, 30, 40}
	got := mustRun(t, env, prog(
		expr(&ast.Scatter{Targets: scatterTargets(), RHS: konst(value.List{
			value.Int(10), value.Int(20), value.Int(30), value.Int(40)})}),
		ret(&ast.ListExpr{Elems: []ast.Arg{{Expr: vr("a")}, {Expr: vr("b")}, {Expr: vr("c")}}}),
	))
	want := value.List{value.Int(10), value.Int(20), value.List{value.Int(30), value.Int(40)}}
	if !value.Identical(got, want) {
		t.Errorf("scatter spread = %v", value.ToLiteral(got))
	}
}

func TestScatterCountChecks(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ctx.RunProgram(prog(
		expr(&ast.Scatter{Targets: scatterTargets(), RHS: konst(value.List{})}),
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrArgs)) {
		t.Errorf("too few: %v", err)
	}
	// Without a rest target, extras overflow.
	noRest := []ast.ScatterTarget{{Var: "a"}, {Var: "b", Optional: true}}
	_, err = env.ctx.RunProgram(prog(
		expr(&ast.Scatter{Targets: noRest, RHS: konst(value.List{value.Int(1), value.Int(2), value.Int(3)})}),
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrArgs)) {
		t.Errorf("too many: %v", err)
	}
}

func TestWhileLoopWithBreakContinue(t *testing.T) {
	env := newTestEnv(t)
	// n = 0; i = 0; while (1) i = i + 1; if (i > 10) break; endif
	// if (i % 2) continue; endif n = n + i; endwhile return n;
	cond := func(e ast.Expr, body ...ast.Stmt) ast.Stmt {
		return &ast.If{Cond: e, Then: body}
	}
	got := mustRun(t, env, prog(
		set(vr("n"), konst(value.Int(0))),
		set(vr("i"), konst(value.Int(0))),
		&ast.While{Cond: konst(value.Int(1)), Body: []ast.Stmt{
			set(vr("i"), bin(ast.OpAdd, vr("i"), konst(value.Int(1)))),
			cond(bin(ast.OpGt, vr("i"), konst(value.Int(10))), &ast.Break{}),
			cond(bin(ast.OpMod, vr("i"), konst(value.Int(2))), &ast.Continue{}),
			set(vr("n"), bin(ast.OpAdd, vr("n"), vr("i"))),
		}},
		ret(vr("n")),
	))
	// 2+4+6+8+10
	if got != value.Int(30) {
		t.Errorf("n = %v", got)
	}
}

func TestNamedBreakUnwindsNestedLoops(t *testing.T) {
	env := newTestEnv(t)
	// for i in [1..3] for j in [1..3] if (j == 2) break i; endif
	// n = n + 1; endfor endfor
	got := mustRun(t, env, prog(
		set(vr("n"), konst(value.Int(0))),
		&ast.ForRange{Var: "i", From: konst(value.Int(1)), To: konst(value.Int(3)), Body: []ast.Stmt{
			&ast.ForRange{Var: "j", From: konst(value.Int(1)), To: konst(value.Int(3)), Body: []ast.Stmt{
				&ast.If{Cond: bin(ast.OpEq, vr("j"), konst(value.Int(2))),
					Then: []ast.Stmt{&ast.Break{Name: "i"}}},
				set(vr("n"), bin(ast.OpAdd, vr("n"), konst(value.Int(1)))),
			}},
		}},
		ret(vr("n")),
	))
	if got != value.Int(1) {
		t.Errorf("n = %v", got)
	}
}

func TestForRangeOverObjects(t *testing.T) {
	env := newTestEnv(t)
	got := mustRun(t, env, prog(
		set(vr("out"), konst(value.List{})),
		&ast.ForRange{Var: "o", From: konst(value.Obj(0)), To: konst(value.Obj(2)), Body: []ast.Stmt{
			set(vr("out"), &ast.ListExpr{Elems: []ast.Arg{
				{Expr: vr("out"), Splice: true}, {Expr: vr("o")}}}),
		}},
		ret(vr("out")),
	))
	want := value.List{value.Obj(0), value.Obj(1), value.Obj(2)}
	if !value.Identical(got, want) {
		t.Errorf("out = %v", value.ToLiteral(got))
	}

	// Mixed int/obj bounds are a type error.
	_, err := env.ctx.RunProgram(prog(
		&ast.ForRange{Var: "o", From: konst(value.Obj(0)), To: konst(value.Int(2))},
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrType)) {
		t.Errorf("mixed range: %v", err)
	}
}

func TestTryExceptMatching(t *testing.T) {
	env := newTestEnv(t)
	// try return 1/0; except e (E_PERM) return 100;
	// except e (E_DIV) return e[1]; endtry
	got := mustRun(t, env, prog(
		&ast.TryExcept{
			Body: []ast.Stmt{ret(bin(ast.OpDiv, konst(value.Int(1)), konst(value.Int(0))))},
			Excepts: []ast.Except{
				{Var: "e", Codes: []ast.Expr{konst(value.Err(value.ErrPerm))},
					Body: []ast.Stmt{ret(konst(value.Int(100)))}},
				{Var: "e", Codes: []ast.Expr{konst(value.Err(value.ErrDiv))},
					Body: []ast.Stmt{ret(&ast.Index{Base: vr("e"), Idx: konst(value.Int(1))})}},
			},
		},
	))
	if !value.Equal(got, value.Err(value.ErrDiv)) {
		t.Errorf("caught code = %v", value.ToLiteral(got))
	}

	// No matching clause re-raises.
	_, err := env.ctx.RunProgram(prog(
		&ast.TryExcept{
			Body: []ast.Stmt{ret(bin(ast.OpDiv, konst(value.Int(1)), konst(value.Int(0))))},
			Excepts: []ast.Except{
				{Codes: []ast.Expr{konst(value.Err(value.ErrPerm))}},
			},
		},
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrDiv)) {
		t.Errorf("unmatched: %v", err)
	}
}

func TestTryExceptAnyAndBoundVar(t *testing.T) {
	env := newTestEnv(t)
	got := mustRun(t, env, prog(
		&ast.TryExcept{
			Body: []ast.Stmt{ret(bin(ast.OpAdd, konst(value.Int(1)), konst(value.Str("x"))))},
			Excepts: []ast.Except{
				{Var: "e", Body: []ast.Stmt{ret(vr("e"))}},
			},
		},
	))
	info, ok := got.(value.List)
	if !ok || len(info) != 4 {
		t.Fatalf("bound exception = %v", value.ToLiteral(got))
	}
	if !value.Equal(info[0], value.Err(value.ErrType)) {
		t.Errorf("code = %v", value.ToLiteral(info[0]))
	}
	if info[1] != value.Str("Type mismatch") {
		t.Errorf("message = %v", value.ToLiteral(info[1]))
	}
	if _, ok := info[3].(value.List); !ok {
		t.Errorf("traceback = %v", value.ToLiteral(info[3]))
	}
}

func TestTryFinallyRunsOnAllExits(t *testing.T) {
	env := newTestEnv(t)
	// A return from the try body runs the finally body.
	got := mustRun(t, env, prog(
		set(vr("log"), konst(value.List{})),
		&ast.TryFinally{
			Body: []ast.Stmt{ret(konst(value.Int(42)))},
			Finally: []ast.Stmt{
				set(vr("log"), konst(value.Str("ran"))),
			},
		},
	))
	if got != value.Int(42) {
		t.Errorf("return through finally = %v", got)
	}
	if env.ctx.Frame().Vars["log"] != value.Str("ran") {
		t.Errorf("finally body skipped on return")
	}

	// Finally runs on exceptions too, and the exception continues.
	env = newTestEnv(t)
	_, err := env.ctx.RunProgram(prog(
		set(vr("mark"), konst(value.Int(0))),
		&ast.TryFinally{
			Body:    []ast.Stmt{expr(bin(ast.OpDiv, konst(value.Int(1)), konst(value.Int(0))))},
			Finally: []ast.Stmt{set(vr("mark"), konst(value.Int(1)))},
		},
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrDiv)) {
		t.Fatalf("err = %v", err)
	}
	if env.ctx.Frame().Vars["mark"] != value.Int(1) {
		t.Errorf("finally body skipped on exception")
	}

	// An abnormal exit from the finally takes precedence.
	env = newTestEnv(t)
	got = mustRun(t, env, prog(
		&ast.TryFinally{
			Body:    []ast.Stmt{ret(konst(value.Int(1)))},
			Finally: []ast.Stmt{ret(konst(value.Int(2)))},
		},
	))
	if got != value.Int(2) {
		t.Errorf("finally return precedence = %v", got)
	}
}

func TestCatchExpression(t *testing.T) {
	env := newTestEnv(t)
	// `1/0 ! E_DIV => -1'
	got := mustRun(t, env, prog(ret(&ast.Catch{
		Expr:    bin(ast.OpDiv, konst(value.Int(1)), konst(value.Int(0))),
		Codes:   []ast.Expr{konst(value.Err(value.ErrDiv))},
		Default: konst(value.Int(-1)),
	})))
	if got != value.Int(-1) {
		t.Errorf("caught = %v", got)
	}

	// Without a default the code itself is the value.
	got = mustRun(t, env, prog(ret(&ast.Catch{
		Expr: bin(ast.OpDiv, konst(value.Int(1)), konst(value.Int(0))),
	})))
	if !value.Equal(got, value.Err(value.ErrDiv)) {
		t.Errorf("ANY catch = %v", value.ToLiteral(got))
	}

	// Non-matching codes re-raise.
	_, err := env.ctx.RunProgram(prog(ret(&ast.Catch{
		Expr:  bin(ast.OpDiv, konst(value.Int(1)), konst(value.Int(0))),
		Codes: []ast.Expr{konst(value.Err(value.ErrPerm))},
	})))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrDiv)) {
		t.Errorf("uncaught: %v", err)
	}
}

func TestVerbCallAndDepthLimit(t *testing.T) {
	env := newTestEnv(t)
	w := env.world

	// #1:double returns args[1] * 2.
	w.AddVerb(1, &gamedb.Verb{
		Names: "double", Owner: 2,
		Perms: gamedb.VerbExec | gamedb.VerbDebug,
		Program: prog(ret(bin(ast.OpMul,
			&ast.Index{Base: vr("args"), Idx: konst(value.Int(1))},
			konst(value.Int(2))))),
	})
	got := mustRun(t, env, prog(ret(&ast.VerbCall{
		Obj:  konst(value.Obj(2)),
		Name: konst(value.Str("double")),
		Args: []ast.Arg{{Expr: konst(value.Int(21))}},
	})))
	if got != value.Int(42) {
		t.Errorf("double(21) = %v", got)
	}

	// Without the x bit the verb is invisible to calls.
	w.AddVerb(1, &gamedb.Verb{Names: "hidden", Owner: 2, Perms: gamedb.VerbRead,
		Program: prog(ret(konst(value.Int(1))))})
	_, err := env.ctx.RunProgram(prog(expr(&ast.VerbCall{
		Obj: konst(value.Obj(2)), Name: konst(value.Str("hidden"))})))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrVerbNF)) {
		t.Errorf("non-executable verb: %v", err)
	}

	// Infinite recursion trips the depth budget.
	w.AddVerb(1, &gamedb.Verb{
		Names: "loop", Owner: 2, Perms: gamedb.VerbExec | gamedb.VerbDebug,
		Program: prog(ret(&ast.VerbCall{
			Obj: vr("this"), Name: konst(value.Str("loop"))})),
	})
	_, err = env.ctx.RunProgram(prog(expr(&ast.VerbCall{
		Obj: konst(value.Obj(2)), Name: konst(value.Str("loop"))})))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrMaxRec)) {
		t.Errorf("recursion: %v", err)
	}
}

func TestForkRecordsSpec(t *testing.T) {
	env := newTestEnv(t)
	mustRun(t, env, prog(
		set(vr("x"), konst(value.Int(5))),
		&ast.Fork{Var: "tid", Delay: konst(value.Int(0)), Body: []ast.Stmt{
			expr(vr("x")),
		}},
		ret(vr("tid")),
	))
	if len(env.ctl.forks) != 1 {
		t.Fatalf("forks recorded: %d", len(env.ctl.forks))
	}
	spec := env.ctl.forks[0]
	if spec.Delay != 0 {
		t.Errorf("delay = %v", spec.Delay)
	}
	// The child environment snapshot includes both x and the fork id.
	if spec.Env["x"] != value.Int(5) {
		t.Errorf("env x = %v", spec.Env["x"])
	}
	if spec.Env["tid"] != value.Int(spec.ID) {
		t.Errorf("env tid = %v, id %d", spec.Env["tid"], spec.ID)
	}
	// A negative delay is rejected.
	_, err := env.ctx.RunProgram(prog(
		&ast.Fork{Delay: konst(value.Int(-1))},
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrInvArg)) {
		t.Errorf("negative delay: %v", err)
	}
}

func TestTickExhaustion(t *testing.T) {
	env := newTestEnv(t)
	env.ctx.TicksLeft = 100
	_, err := env.ctx.RunProgram(prog(
		&ast.While{Cond: konst(value.Int(1)), Body: []ast.Stmt{
			expr(bin(ast.OpAdd, konst(value.Int(1)), konst(value.Int(1)))),
		}},
	))
	abort, ok := err.(*Abort)
	if !ok || abort.Kind != AbortTicks {
		t.Fatalf("expected ticks abort, got %v", err)
	}
	if abort.Resource() != "ticks" {
		t.Errorf("resource = %q", abort.Resource())
	}
	if len(abort.Stack) == 0 {
		t.Errorf("abort lost its stack")
	}
}

func TestAbortSkipsHandlers(t *testing.T) {
	env := newTestEnv(t)
	env.ctx.TicksLeft = 50
	_, err := env.ctx.RunProgram(prog(
		&ast.TryExcept{
			Body: []ast.Stmt{&ast.While{Cond: konst(value.Int(1)), Body: []ast.Stmt{
				expr(konst(value.Int(1))),
			}}},
			Excepts: []ast.Except{{Body: []ast.Stmt{ret(konst(value.Int(0)))}}},
		},
	))
	if _, ok := err.(*Abort); !ok {
		t.Fatalf("abort was intercepted: %v", err)
	}
}

func TestPropertyAccessThroughEval(t *testing.T) {
	env := newTestEnv(t)
	w := env.world
	w.AddProperty(1, "count", value.Int(1), 2, gamedb.PropRead|gamedb.PropWrite)

	got := mustRun(t, env, prog(
		set(&ast.PropRef{Obj: konst(value.Obj(2)), Name: konst(value.Str("count"))},
			bin(ast.OpAdd,
				&ast.PropRef{Obj: konst(value.Obj(2)), Name: konst(value.Str("count"))},
				konst(value.Int(1)))),
		ret(&ast.PropRef{Obj: konst(value.Obj(2)), Name: konst(value.Str("count"))}),
	))
	if got != value.Int(2) {
		t.Errorf("count = %v", got)
	}
	// The write landed on #2's own slot, not #1's.
	if v, _ := w.ReadProperty(1, "count"); v != value.Int(1) {
		t.Errorf("parent count = %v", v)
	}

	_, err := env.ctx.RunProgram(prog(
		ret(&ast.PropRef{Obj: konst(value.Obj(2)), Name: konst(value.Str("missing"))}),
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrPropNF)) {
		t.Errorf("missing property: %v", err)
	}
}

func TestAssociationListIndexing(t *testing.T) {
	env := newTestEnv(t)
	alist := value.List{
		value.List{value.Str("name"), value.Str("Widget")},
		value.List{value.Str("size"), value.Int(3)},
	}
	got := mustRun(t, env, prog(
		set(vr("a"), konst(alist)),
		ret(&ast.Index{Base: vr("a"), Idx: konst(value.Str("SIZE"))}),
	))
	if got != value.Int(3) {
		t.Errorf("alist lookup = %v", got)
	}
	_, err := env.ctx.RunProgram(prog(
		ret(&ast.Index{Base: vr("a"), Idx: konst(value.Str("absent"))}),
	))
	if exc, ok := err.(*Exception); !ok || !value.Equal(exc.Code, value.Err(value.ErrRange)) {
		t.Errorf("missing key: %v", err)
	}
}

func TestLvalueStoreFetchLaw(t *testing.T) {
	env := newTestEnv(t)
	// For assorted lvalue shapes, E = V; E yields V.
	shapes := []struct {
		name  string
		setup []ast.Stmt
		lhs   ast.Expr
		v     value.Value
	}{
		{"var", nil, vr("q"), value.Str("hello")},
		{"index", []ast.Stmt{set(vr("l"), konst(value.List{value.Int(1), value.Int(2)}))},
			&ast.Index{Base: vr("l"), Idx: konst(value.Int(2))}, value.Str("x")},
		{"range", []ast.Stmt{set(vr("m"), konst(value.List{value.Int(1), value.Int(2), value.Int(3)}))},
			&ast.RangeRef{Base: vr("m"), From: konst(value.Int(2)), To: konst(value.Int(3))},
			value.List{value.Int(8), value.Int(9)}},
	}
	for _, s := range shapes {
		stmts := append(append([]ast.Stmt{}, s.setup...),
			set(s.lhs, konst(s.v)),
			ret(s.lhs),
		)
		got := mustRun(t, env, prog(stmts...))
		if !value.Identical(got, s.v) {
			t.Errorf("%s: fetch after store = %v, want %v", s.name,
				value.ToLiteral(got), value.ToLiteral(s.v))
		}
	}
}

func TestSplicedCallArgs(t *testing.T) {
	env := newTestEnv(t)
	w := env.world
	w.AddVerb(1, &gamedb.Verb{
		Names: "idargs", Owner: 2, Perms: gamedb.VerbExec | gamedb.VerbDebug,
		Program: prog(ret(vr("args"))),
	})
	got := mustRun(t, env, prog(ret(&ast.VerbCall{
		Obj:  konst(value.Obj(2)),
		Name: konst(value.Str("idargs")),
		Args: []ast.Arg{
			{Expr: konst(value.Int(1))},
			{Expr: konst(value.List{value.Int(2), value.Int(3)}), Splice: true},
			{Expr: konst(value.Int(4))},
		},
	})))
	want := value.List{value.Int(1), value.Int(2), value.Int(3), value.Int(4)}
	if diff := cmp.Diff(value.ToLiteral(want), value.ToLiteral(got)); diff != "" {
		t.Errorf("spliced args (-want +got):\n%s", diff)
	}
}
