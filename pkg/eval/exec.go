package eval

import (
	"time"

	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/value"
)

// flow is the non-exceptional control signal a statement can produce.
type flowKind int

const (
	flowNormal flowKind = iota
	flowBreak
	flowContinue
	flowReturn
)

type flow struct {
	kind flowKind
	name string // break/continue target, "" for nearest loop
	val  value.Value
}

var flowOK = flow{}

// RunProgram executes a verb body in the current frame and yields its
// return value; falling off the end returns 0.
func (c *Context) RunProgram(p *ast.Program) (value.Value, error) {
	fl, err := c.execStmts(p.Stmts)
	if err != nil {
		return nil, err
	}
	if fl.kind == flowReturn {
		return fl.val, nil
	}
	return value.Int(0), nil
}

// RunStmts executes a statement sequence in the current frame the way a
// forked body runs: a return's payload is the result, falling off the end
// yields 0.
func (c *Context) RunStmts(stmts []ast.Stmt) (value.Value, error) {
	fl, err := c.execStmts(stmts)
	if err != nil {
		return nil, err
	}
	if fl.kind == flowReturn {
		return fl.val, nil
	}
	return value.Int(0), nil
}

func (c *Context) execStmts(stmts []ast.Stmt) (flow, error) {
	for _, s := range stmts {
		fl, err := c.execStmt(s)
		if err != nil {
			return flowOK, err
		}
		if fl.kind != flowNormal {
			return fl, nil
		}
	}
	return flowOK, nil
}

func (c *Context) execStmt(s ast.Stmt) (flow, error) {
	c.Frame().Line = s.StmtLine()
	if err := c.tick(); err != nil {
		return flowOK, err
	}

	switch st := s.(type) {
	case *ast.ExprStmt:
		_, err := c.evalTop(st.E)
		return flowOK, err

	case *ast.If:
		cond, err := c.evalTop(st.Cond)
		if err != nil {
			return flowOK, err
		}
		if cond.Truthy() {
			return c.execStmts(st.Then)
		}
		for _, arm := range st.ElseIfs {
			cond, err := c.evalTop(arm.Cond)
			if err != nil {
				return flowOK, err
			}
			if cond.Truthy() {
				return c.execStmts(arm.Body)
			}
		}
		return c.execStmts(st.Else)

	case *ast.While:
		for {
			cond, err := c.evalTop(st.Cond)
			if err != nil {
				return flowOK, err
			}
			if !cond.Truthy() {
				return flowOK, nil
			}
			fl, err := c.execStmts(st.Body)
			if err != nil {
				return flowOK, err
			}
			if stop, out := loopSignal(fl, st.Name); stop {
				return out, nil
			}
			if err := c.tick(); err != nil {
				return flowOK, err
			}
		}

	case *ast.ForList:
		seq, err := c.eval(st.Expr)
		if err != nil {
			return flowOK, err
		}
		list, ok := seq.(value.List)
		if !ok {
			return flowOK, c.RaiseCode(value.ErrType)
		}
		for _, item := range list {
			c.Frame().Vars[value.Fold(st.Var)] = item
			fl, err := c.execStmts(st.Body)
			if err != nil {
				return flowOK, err
			}
			if stop, out := loopSignal(fl, st.Var); stop {
				return out, nil
			}
			if err := c.tick(); err != nil {
				return flowOK, err
			}
		}
		return flowOK, nil

	case *ast.ForRange:
		from, err := c.eval(st.From)
		if err != nil {
			return flowOK, err
		}
		to, err := c.eval(st.To)
		if err != nil {
			return flowOK, err
		}
		var lo, hi int64
		var mkVal func(int64) value.Value
		switch f := from.(type) {
		case value.Int:
			t, ok := to.(value.Int)
			if !ok {
				return flowOK, c.RaiseCode(value.ErrType)
			}
			lo, hi = int64(f), int64(t)
			mkVal = func(i int64) value.Value { return value.Int(i) }
		case value.Obj:
			t, ok := to.(value.Obj)
			if !ok {
				return flowOK, c.RaiseCode(value.ErrType)
			}
			lo, hi = int64(f), int64(t)
			mkVal = func(i int64) value.Value { return value.Obj(i) }
		default:
			return flowOK, c.RaiseCode(value.ErrType)
		}
		for i := lo; i <= hi; i++ {
			c.Frame().Vars[value.Fold(st.Var)] = mkVal(i)
			fl, err := c.execStmts(st.Body)
			if err != nil {
				return flowOK, err
			}
			if stop, out := loopSignal(fl, st.Var); stop {
				return out, nil
			}
			if err := c.tick(); err != nil {
				return flowOK, err
			}
		}
		return flowOK, nil

	case *ast.Fork:
		dv, err := c.eval(st.Delay)
		if err != nil {
			return flowOK, err
		}
		var delay time.Duration
		switch d := dv.(type) {
		case value.Int:
			if d < 0 {
				return flowOK, c.RaiseCode(value.ErrInvArg)
			}
			delay = time.Duration(d) * time.Second
		case value.Float:
			if d < 0 {
				return flowOK, c.RaiseCode(value.ErrInvArg)
			}
			delay = time.Duration(float64(d) * float64(time.Second))
		default:
			return flowOK, c.RaiseCode(value.ErrType)
		}
		id := c.Control.NewForkID()
		if st.Var != "" {
			c.Frame().Vars[value.Fold(st.Var)] = value.Int(id)
		}
		fr := c.Frame()
		env := make(map[string]value.Value, len(fr.Vars))
		for k, v := range fr.Vars {
			env[k] = v
		}
		return flowOK, c.Control.StartFork(c, ForkSpec{
			ID:       id,
			Delay:    delay,
			Body:     st.Body,
			Env:      env,
			This:     fr.This,
			Player:   fr.Player,
			Perms:    fr.Perms,
			VerbName: fr.VerbName,
			VerbLoc:  fr.VerbLoc,
			Debug:    fr.Debug,
		})

	case *ast.Break:
		return flow{kind: flowBreak, name: st.Name}, nil

	case *ast.Continue:
		return flow{kind: flowContinue, name: st.Name}, nil

	case *ast.Return:
		if st.E == nil {
			return flow{kind: flowReturn, val: value.Int(0)}, nil
		}
		v, err := c.eval(st.E)
		if err != nil {
			return flowOK, err
		}
		return flow{kind: flowReturn, val: v}, nil

	case *ast.TryExcept:
		fl, err := c.execStmts(st.Body)
		if err == nil {
			return fl, nil
		}
		exc, ok := err.(*Exception)
		if !ok {
			return flowOK, err // aborts pass through
		}
		for i := range st.Excepts {
			arm := &st.Excepts[i]
			match, merr := c.exceptMatches(arm, exc)
			if merr != nil {
				return flowOK, merr
			}
			if !match {
				continue
			}
			if arm.Var != "" {
				c.Frame().Vars[value.Fold(arm.Var)] = value.List{
					exc.Code,
					value.Str(exc.Message),
					exc.Value,
					TracebackValue(exc.Stack),
				}
			}
			return c.execStmts(arm.Body)
		}
		return flowOK, err

	case *ast.TryFinally:
		fl, err := c.execStmts(st.Body)
		if _, isAbort := err.(*Abort); isAbort {
			return flowOK, err
		}
		ffl, ferr := c.execStmts(st.Finally)
		// An abnormal exit from the finally body takes precedence over
		// whatever the try body did.
		if ferr != nil {
			return flowOK, ferr
		}
		if ffl.kind != flowNormal {
			return ffl, nil
		}
		return fl, err

	default:
		return flowOK, c.Raise(value.Err(value.ErrType), "unknown statement node", nil)
	}
}

// loopSignal decides whether a loop consumes a break/continue signal.
// An unnamed signal binds to the nearest loop; a named one unwinds until
// the loop with that name.
func loopSignal(fl flow, loopName string) (stop bool, out flow) {
	switch fl.kind {
	case flowBreak:
		if fl.name == "" || value.Fold(fl.name) == value.Fold(loopName) {
			return true, flowOK
		}
		return true, fl // keep unwinding
	case flowContinue:
		if fl.name == "" || value.Fold(fl.name) == value.Fold(loopName) {
			return false, flowOK
		}
		return true, fl
	case flowReturn:
		return true, fl
	}
	return false, flowOK
}

func (c *Context) exceptMatches(arm *ast.Except, exc *Exception) (bool, error) {
	if arm.Codes == nil {
		return true, nil
	}
	for _, ce := range arm.Codes {
		cv, err := c.eval(ce)
		if err != nil {
			return false, err
		}
		if value.Equal(cv, exc.Code) {
			return true, nil
		}
	}
	return false, nil
}
