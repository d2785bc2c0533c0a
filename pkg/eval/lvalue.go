package eval

import (
	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/value"
)

// assign stores rhs into an lvalue expression: a variable, a property
// reference, an indexed expression, or a range-indexed expression.
func (c *Context) assign(lhs ast.Expr, rhs value.Value) error {
	switch lv := lhs.(type) {
	case *ast.Var:
		c.Frame().Vars[value.Fold(lv.Name)] = rhs
		return nil

	case *ast.PropRef:
		objV, err := c.eval(lv.Obj)
		if err != nil {
			return err
		}
		nameV, err := c.eval(lv.Name)
		if err != nil {
			return err
		}
		obj, ok := objV.(value.Obj)
		if !ok {
			return c.RaiseCode(value.ErrType)
		}
		name, ok := nameV.(value.Str)
		if !ok {
			return c.RaiseCode(value.ErrType)
		}
		return c.writeProp(obj, string(name), rhs)

	case *ast.Index:
		cur, store, err := c.lvalueChange(lv.Base)
		if err != nil {
			return err
		}
		idx, err := c.evalWithIndexBase(cur, lv.Idx)
		if err != nil {
			return err
		}
		updated, code := indexStore(cur, idx, rhs)
		if code != value.ErrNone {
			return c.RaiseCode(code)
		}
		return store(updated)

	case *ast.RangeRef:
		cur, store, err := c.lvalueChange(lv.Base)
		if err != nil {
			return err
		}
		from, err := c.evalWithIndexBase(cur, lv.From)
		if err != nil {
			return err
		}
		to, err := c.evalWithIndexBase(cur, lv.To)
		if err != nil {
			return err
		}
		updated, code := rangeStore(cur, from, to, rhs)
		if code != value.ErrNone {
			return c.RaiseCode(code)
		}
		return store(updated)
	}
	return c.RaiseCode(value.ErrType)
}

// lvalueChange exposes the change operation of an lvalue: the current value
// plus a store closure captured at the same shape. Index and range lvalues
// compose by recursing into the base's change operation.
func (c *Context) lvalueChange(e ast.Expr) (value.Value, func(value.Value) error, error) {
	switch lv := e.(type) {
	case *ast.Var:
		folded := value.Fold(lv.Name)
		cur, ok := c.Frame().Vars[folded]
		if !ok {
			return nil, nil, c.Raise(value.Err(value.ErrVarNF), "Variable not found: "+lv.Name, value.Str(lv.Name))
		}
		fr := c.Frame()
		return cur, func(nv value.Value) error {
			fr.Vars[folded] = nv
			return nil
		}, nil

	case *ast.PropRef:
		objV, err := c.eval(lv.Obj)
		if err != nil {
			return nil, nil, err
		}
		nameV, err := c.eval(lv.Name)
		if err != nil {
			return nil, nil, err
		}
		obj, ok := objV.(value.Obj)
		if !ok {
			return nil, nil, c.RaiseCode(value.ErrType)
		}
		name, ok := nameV.(value.Str)
		if !ok {
			return nil, nil, c.RaiseCode(value.ErrType)
		}
		cur, err := c.readProp(obj, string(name))
		if err != nil {
			return nil, nil, err
		}
		return cur, func(nv value.Value) error {
			return c.writeProp(obj, string(name), nv)
		}, nil

	case *ast.Index:
		cur, store, err := c.lvalueChange(lv.Base)
		if err != nil {
			return nil, nil, err
		}
		idx, err := c.evalWithIndexBase(cur, lv.Idx)
		if err != nil {
			return nil, nil, err
		}
		elem, code := indexValue(cur, idx)
		if code != value.ErrNone {
			return nil, nil, c.RaiseCode(code)
		}
		return elem, func(nv value.Value) error {
			updated, code := indexStore(cur, idx, nv)
			if code != value.ErrNone {
				return c.RaiseCode(code)
			}
			return store(updated)
		}, nil

	case *ast.RangeRef:
		cur, store, err := c.lvalueChange(lv.Base)
		if err != nil {
			return nil, nil, err
		}
		from, err := c.evalWithIndexBase(cur, lv.From)
		if err != nil {
			return nil, nil, err
		}
		to, err := c.evalWithIndexBase(cur, lv.To)
		if err != nil {
			return nil, nil, err
		}
		piece, code := rangeValue(cur, from, to)
		if code != value.ErrNone {
			return nil, nil, c.RaiseCode(code)
		}
		return piece, func(nv value.Value) error {
			updated, code := rangeStore(cur, from, to, nv)
			if code != value.ErrNone {
				return c.RaiseCode(code)
			}
			return store(updated)
		}, nil
	}
	return nil, nil, c.RaiseCode(value.ErrType)
}

// indexStore writes an element into a copy of base. A string element write
// requires a single-character string and admits index length+1 to append.
func indexStore(base, idx, elem value.Value) (value.Value, value.Code) {
	switch b := base.(type) {
	case value.List:
		i, ok := idx.(value.Int)
		if !ok {
			return nil, value.ErrType
		}
		if i < 1 || int(i) > len(b) {
			return nil, value.ErrRange
		}
		out := make(value.List, len(b))
		copy(out, b)
		out[i-1] = elem
		return out, value.ErrNone
	case value.Str:
		i, ok := idx.(value.Int)
		if !ok {
			return nil, value.ErrType
		}
		ch, ok := elem.(value.Str)
		if !ok {
			return nil, value.ErrType
		}
		chRunes := []rune(string(ch))
		if len(chRunes) != 1 {
			return nil, value.ErrInvArg
		}
		runes := []rune(string(b))
		if i < 1 || int(i) > len(runes)+1 {
			return nil, value.ErrRange
		}
		if int(i) == len(runes)+1 {
			return value.Str(string(append(runes, chRunes[0]))), value.ErrNone
		}
		runes[i-1] = chRunes[0]
		return value.Str(string(runes)), value.ErrNone
	}
	return nil, value.ErrType
}

// rangeStore splices a replacement into base: pre ++ new ++ post with
// pre = [1..start-1] and post = [end+1..len]. end < start denotes an empty
// splice; end < 0 or start > len+1 is a range error.
func rangeStore(base, fromV, toV, repl value.Value) (value.Value, value.Code) {
	from, ok := fromV.(value.Int)
	if !ok {
		return nil, value.ErrType
	}
	to, ok := toV.(value.Int)
	if !ok {
		return nil, value.ErrType
	}
	start, end := int64(from), int64(to)
	switch b := base.(type) {
	case value.List:
		r, ok := repl.(value.List)
		if !ok {
			return nil, value.ErrType
		}
		n := int64(len(b))
		if end < 0 || start < 1 || start > n+1 {
			return nil, value.ErrRange
		}
		postStart := spliceBounds(start, end, n)
		out := make(value.List, 0, (start-1)+int64(len(r))+(n-postStart))
		out = append(out, b[:start-1]...)
		out = append(out, r...)
		out = append(out, b[postStart:]...)
		return out, value.ErrNone
	case value.Str:
		r, ok := repl.(value.Str)
		if !ok {
			return nil, value.ErrType
		}
		runes := []rune(string(b))
		n := int64(len(runes))
		if end < 0 || start < 1 || start > n+1 {
			return nil, value.ErrRange
		}
		postStart := spliceBounds(start, end, n)
		out := make([]rune, 0, (start-1)+int64(len(r))+(n-postStart))
		out = append(out, runes[:start-1]...)
		out = append(out, []rune(string(r))...)
		out = append(out, runes[postStart:]...)
		return value.Str(string(out)), value.ErrNone
	}
	return nil, value.ErrType
}

// spliceBounds returns the index the post segment starts at: end for a
// normal splice, start-1 for an empty one (end < start), clamped to n.
func spliceBounds(start, end, n int64) int64 {
	post := end
	if post < start-1 {
		post = start - 1
	}
	if post > n {
		post = n
	}
	return post
}

// scatter distributes a list across scatter-assignment targets: required
// items first, optionals filled left to right from what remains, and the
// rest target receiving the middle segment.
func (c *Context) scatter(targets []ast.ScatterTarget, list value.List) error {
	nreq, nopt := 0, 0
	hasRest := false
	for _, t := range targets {
		switch {
		case t.Rest:
			hasRest = true
		case t.Optional:
			nopt++
		default:
			nreq++
		}
	}
	n := len(list)
	if n < nreq || (!hasRest && n > nreq+nopt) {
		return c.RaiseCode(value.ErrArgs)
	}
	optFill := n - nreq
	if optFill > nopt {
		optFill = nopt
	}
	restLen := 0
	if hasRest {
		restLen = n - nreq - optFill
	}

	pos := 0
	vars := c.Frame().Vars
	for _, t := range targets {
		switch {
		case t.Rest:
			seg := make(value.List, restLen)
			copy(seg, list[pos:pos+restLen])
			vars[value.Fold(t.Var)] = seg
			pos += restLen
		case t.Optional:
			if optFill > 0 {
				vars[value.Fold(t.Var)] = list[pos]
				pos++
				optFill--
			} else if t.Default != nil {
				dv, err := c.eval(t.Default)
				if err != nil {
					return err
				}
				vars[value.Fold(t.Var)] = dv
			}
		default:
			vars[value.Fold(t.Var)] = list[pos]
			pos++
		}
	}
	return nil
}
