package eval

import (
	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// evalTop evaluates a statement-level expression. When the raising frame's
// debug bit is clear, the exception is suppressed and the expression yields
// the error code as a plain value.
func (c *Context) evalTop(e ast.Expr) (value.Value, error) {
	v, err := c.eval(e)
	if err != nil {
		if exc, ok := err.(*Exception); ok && !exc.Debug {
			return exc.ErrValue(), nil
		}
		return nil, err
	}
	return v, nil
}

// Eval evaluates an expression in the current frame. Built-ins use this to
// run sub-expressions.
func (c *Context) Eval(e ast.Expr) (value.Value, error) { return c.eval(e) }

func (c *Context) eval(e ast.Expr) (value.Value, error) {
	switch ex := e.(type) {
	case *ast.Const:
		return ex.Val, nil

	case *ast.Var:
		v, ok := c.Frame().Vars[value.Fold(ex.Name)]
		if !ok {
			return nil, c.Raise(value.Err(value.ErrVarNF), "Variable not found: "+ex.Name, value.Str(ex.Name))
		}
		return v, nil

	case *ast.Length:
		if len(c.indexBases) == 0 {
			return nil, c.RaiseCode(value.ErrInvArg)
		}
		base := c.indexBases[len(c.indexBases)-1]
		n, code := lengthOf(base)
		if code != value.ErrNone {
			return nil, c.RaiseCode(code)
		}
		return value.Int(n), nil

	case *ast.PropRef:
		if err := c.tick(); err != nil {
			return nil, err
		}
		return c.evalPropRef(ex)

	case *ast.Index:
		if err := c.tick(); err != nil {
			return nil, err
		}
		base, err := c.eval(ex.Base)
		if err != nil {
			return nil, err
		}
		idx, err := c.evalWithIndexBase(base, ex.Idx)
		if err != nil {
			return nil, err
		}
		v, code := indexValue(base, idx)
		if code != value.ErrNone {
			return nil, c.RaiseCode(code)
		}
		return v, nil

	case *ast.RangeRef:
		if err := c.tick(); err != nil {
			return nil, err
		}
		base, err := c.eval(ex.Base)
		if err != nil {
			return nil, err
		}
		from, err := c.evalWithIndexBase(base, ex.From)
		if err != nil {
			return nil, err
		}
		to, err := c.evalWithIndexBase(base, ex.To)
		if err != nil {
			return nil, err
		}
		v, code := rangeValue(base, from, to)
		if code != value.ErrNone {
			return nil, c.RaiseCode(code)
		}
		return v, nil

	case *ast.ListExpr:
		out := value.List{}
		for _, a := range ex.Elems {
			v, err := c.eval(a.Expr)
			if err != nil {
				return nil, err
			}
			if a.Splice {
				sub, ok := v.(value.List)
				if !ok {
					return nil, c.RaiseCode(value.ErrType)
				}
				out = append(out, sub...)
			} else {
				out = append(out, v)
			}
		}
		return out, nil

	case *ast.Binary:
		if err := c.tick(); err != nil {
			return nil, err
		}
		l, err := c.eval(ex.L)
		if err != nil {
			return nil, err
		}
		r, err := c.eval(ex.R)
		if err != nil {
			return nil, err
		}
		return c.binary(ex.Op, l, r)

	case *ast.Negate:
		v, err := c.eval(ex.X)
		if err != nil {
			return nil, err
		}
		out, code := value.Neg(v)
		if code != value.ErrNone {
			return nil, c.RaiseCode(code)
		}
		return out, nil

	case *ast.Not:
		v, err := c.eval(ex.X)
		if err != nil {
			return nil, err
		}
		return boolValue(!v.Truthy()), nil

	case *ast.And:
		l, err := c.eval(ex.L)
		if err != nil {
			return nil, err
		}
		if !l.Truthy() {
			return l, nil
		}
		return c.eval(ex.R)

	case *ast.Or:
		l, err := c.eval(ex.L)
		if err != nil {
			return nil, err
		}
		if l.Truthy() {
			return l, nil
		}
		return c.eval(ex.R)

	case *ast.Cond:
		cond, err := c.eval(ex.If)
		if err != nil {
			return nil, err
		}
		if cond.Truthy() {
			return c.eval(ex.Then)
		}
		return c.eval(ex.Else)

	case *ast.Assign:
		if err := c.tick(); err != nil {
			return nil, err
		}
		rhs, err := c.eval(ex.RHS)
		if err != nil {
			return nil, err
		}
		if err := c.assign(ex.LHS, rhs); err != nil {
			return nil, err
		}
		return rhs, nil

	case *ast.Scatter:
		if err := c.tick(); err != nil {
			return nil, err
		}
		rhs, err := c.eval(ex.RHS)
		if err != nil {
			return nil, err
		}
		list, ok := rhs.(value.List)
		if !ok {
			return nil, c.RaiseCode(value.ErrType)
		}
		if err := c.scatter(ex.Targets, list); err != nil {
			return nil, err
		}
		return rhs, nil

	case *ast.VerbCall:
		if err := c.tick(); err != nil {
			return nil, err
		}
		objV, err := c.eval(ex.Obj)
		if err != nil {
			return nil, err
		}
		nameV, err := c.eval(ex.Name)
		if err != nil {
			return nil, err
		}
		obj, ok := objV.(value.Obj)
		if !ok {
			return nil, c.RaiseCode(value.ErrType)
		}
		name, ok := nameV.(value.Str)
		if !ok {
			return nil, c.RaiseCode(value.ErrType)
		}
		args, err := c.evalArgs(ex.Args)
		if err != nil {
			return nil, err
		}
		return c.CallVerb(obj, string(name), args)

	case *ast.BuiltinCall:
		if err := c.tick(); err != nil {
			return nil, err
		}
		args, err := c.evalArgs(ex.Args)
		if err != nil {
			return nil, err
		}
		return c.Registry.Call(c, ex.Name, args)

	case *ast.Catch:
		var codes []value.Value
		if ex.Codes != nil {
			for _, ce := range ex.Codes {
				cv, err := c.eval(ce)
				if err != nil {
					return nil, err
				}
				codes = append(codes, cv)
			}
		}
		v, err := c.eval(ex.Expr)
		if err == nil {
			return v, nil
		}
		exc, ok := err.(*Exception)
		if !ok {
			return nil, err
		}
		if codes != nil {
			matched := false
			for _, cv := range codes {
				if value.Equal(cv, exc.Code) {
					matched = true
					break
				}
			}
			if !matched {
				return nil, err
			}
		}
		if ex.Default != nil {
			return c.eval(ex.Default)
		}
		return exc.Code, nil

	default:
		return nil, c.Raise(value.Err(value.ErrType), "unknown expression node", nil)
	}
}

func (c *Context) evalWithIndexBase(base value.Value, e ast.Expr) (value.Value, error) {
	c.indexBases = append(c.indexBases, base)
	v, err := c.eval(e)
	c.indexBases = c.indexBases[:len(c.indexBases)-1]
	return v, err
}

func (c *Context) evalArgs(args []ast.Arg) (value.List, error) {
	out := value.List{}
	for _, a := range args {
		v, err := c.eval(a.Expr)
		if err != nil {
			return nil, err
		}
		if a.Splice {
			sub, ok := v.(value.List)
			if !ok {
				return nil, c.RaiseCode(value.ErrType)
			}
			out = append(out, sub...)
		} else {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *Context) evalPropRef(ex *ast.PropRef) (value.Value, error) {
	objV, err := c.eval(ex.Obj)
	if err != nil {
		return nil, err
	}
	nameV, err := c.eval(ex.Name)
	if err != nil {
		return nil, err
	}
	obj, ok := objV.(value.Obj)
	if !ok {
		return nil, c.RaiseCode(value.ErrType)
	}
	name, ok := nameV.(value.Str)
	if !ok {
		return nil, c.RaiseCode(value.ErrType)
	}
	return c.readProp(obj, string(name))
}

func (c *Context) readProp(obj value.Obj, name string) (value.Value, error) {
	w := c.World
	if !w.Valid(obj) {
		return nil, c.RaiseCode(value.ErrInvInd)
	}
	if gamedb.IsBuiltinProp(name) {
		if w.Options.Protected[value.Fold(name)] && !c.Wizardly() {
			return nil, c.RaiseCode(value.ErrPerm)
		}
	} else {
		_, slot, ok := w.LookupProperty(obj, name)
		if !ok {
			return nil, c.Raise(value.Err(value.ErrPropNF), "Property not found: "+name, value.Str(name))
		}
		if !w.CanReadProperty(c.Frame().Perms, c.Wizardly(), slot) {
			return nil, c.RaiseCode(value.ErrPerm)
		}
	}
	v, code := w.ReadProperty(obj, name)
	if code != value.ErrNone {
		return nil, c.RaiseCode(code)
	}
	return v, nil
}

func (c *Context) writeProp(obj value.Obj, name string, v value.Value) error {
	code := c.World.WriteProperty(c.Frame().Perms, c.Wizardly(), obj, name, v)
	if code != value.ErrNone {
		return c.RaiseCode(code)
	}
	return nil
}

// CallVerb resolves and invokes target:name(args), requiring the x bit.
func (c *Context) CallVerb(this value.Obj, name string, args value.List) (value.Value, error) {
	w := c.World
	if !w.Valid(this) {
		return nil, c.RaiseCode(value.ErrInvInd)
	}
	holder, verb, _, ok := w.LookupVerb(this, name, false)
	if !ok || verb.Program == nil || verb.Perms&gamedb.VerbExec == 0 {
		return nil, c.Raise(value.Err(value.ErrVerbNF), "Verb not found: "+name, value.Str(name))
	}
	caller := c.Frame().This
	fr := &Frame{
		Perms:    verb.Owner,
		Debug:    verb.Perms&gamedb.VerbDebug != 0,
		VerbName: name,
		VerbFull: verb.Names,
		This:     this,
		Player:   c.Frame().Player,
		VerbLoc:  holder,
	}
	InitVerbEnv(fr, args, caller)
	if err := c.PushFrame(fr); err != nil {
		return nil, err
	}
	defer c.PopFrame()
	return c.RunProgram(verb.Program)
}

func (c *Context) binary(op ast.BinOp, l, r value.Value) (value.Value, error) {
	var v value.Value
	var code value.Code
	switch op {
	case ast.OpAdd:
		v, code = value.Add(l, r)
	case ast.OpSub:
		v, code = value.Sub(l, r)
	case ast.OpMul:
		v, code = value.Mul(l, r)
	case ast.OpDiv:
		v, code = value.Div(l, r)
	case ast.OpMod:
		v, code = value.Mod(l, r)
	case ast.OpPow:
		v, code = value.Pow(l, r)
	case ast.OpEq:
		return boolValue(value.Equal(l, r)), nil
	case ast.OpNe:
		return boolValue(!value.Equal(l, r)), nil
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		cmp, ccode := value.Compare(l, r)
		if ccode != value.ErrNone {
			return nil, c.RaiseCode(ccode)
		}
		switch op {
		case ast.OpLt:
			return boolValue(cmp < 0), nil
		case ast.OpLe:
			return boolValue(cmp <= 0), nil
		case ast.OpGt:
			return boolValue(cmp > 0), nil
		default:
			return boolValue(cmp >= 0), nil
		}
	case ast.OpIn:
		list, ok := r.(value.List)
		if !ok {
			return nil, c.RaiseCode(value.ErrType)
		}
		for i, e := range list {
			if value.Equal(l, e) {
				return value.Int(i + 1), nil
			}
		}
		return value.Int(0), nil
	default:
		return nil, c.RaiseCode(value.ErrType)
	}
	if code != value.ErrNone {
		return nil, c.RaiseCode(code)
	}
	return v, nil
}

func boolValue(b bool) value.Value {
	if b {
		return value.Int(1)
	}
	return value.Int(0)
}

func lengthOf(v value.Value) (int, value.Code) {
	switch x := v.(type) {
	case value.List:
		return len(x), value.ErrNone
	case value.Str:
		return len([]rune(string(x))), value.ErrNone
	}
	return 0, value.ErrType
}

// indexValue implements base[idx]: positional for integer indexes, and the
// association-list convention for string indexes into lists of
// {key, value} pairs.
func indexValue(base, idx value.Value) (value.Value, value.Code) {
	switch b := base.(type) {
	case value.List:
		switch i := idx.(type) {
		case value.Int:
			if i < 1 || int(i) > len(b) {
				return nil, value.ErrRange
			}
			return b[i-1], value.ErrNone
		case value.Str:
			return alistLookup(b, i)
		}
		return nil, value.ErrType
	case value.Str:
		i, ok := idx.(value.Int)
		if !ok {
			return nil, value.ErrType
		}
		runes := []rune(string(b))
		if i < 1 || int(i) > len(runes) {
			return nil, value.ErrRange
		}
		return value.Str(string(runes[i-1])), value.ErrNone
	}
	return nil, value.ErrType
}

// alistLookup treats a list as an association list: every element must be a
// two-element list whose first element is a string key. A malformed element
// is E_TYPE; a missing key is E_RANGE.
func alistLookup(b value.List, key value.Str) (value.Value, value.Code) {
	for _, e := range b {
		pair, ok := e.(value.List)
		if !ok || len(pair) != 2 {
			return nil, value.ErrType
		}
		k, ok := pair[0].(value.Str)
		if !ok {
			return nil, value.ErrType
		}
		if value.Equal(k, key) {
			return pair[1], value.ErrNone
		}
	}
	return nil, value.ErrRange
}

func rangeValue(base, fromV, toV value.Value) (value.Value, value.Code) {
	from, ok := fromV.(value.Int)
	if !ok {
		return nil, value.ErrType
	}
	to, ok := toV.(value.Int)
	if !ok {
		return nil, value.ErrType
	}
	switch b := base.(type) {
	case value.List:
		if to < from {
			return value.List{}, value.ErrNone
		}
		if from < 1 || int(to) > len(b) {
			return nil, value.ErrRange
		}
		out := make(value.List, to-from+1)
		copy(out, b[from-1:to])
		return out, value.ErrNone
	case value.Str:
		runes := []rune(string(b))
		if to < from {
			return value.Str(""), value.ErrNone
		}
		if from < 1 || int(to) > len(runes) {
			return nil, value.ErrRange
		}
		return value.Str(string(runes[from-1 : to])), value.ErrNone
	}
	return nil, value.ErrType
}
