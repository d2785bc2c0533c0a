package value

import "math"

// checkFloat maps non-finite float results to the appropriate error:
// infinities are E_FLOAT, NaNs are E_INVARG.
func checkFloat(f float64) (Value, Code) {
	if math.IsInf(f, 0) {
		return nil, ErrFloat
	}
	if math.IsNaN(f) {
		return nil, ErrInvArg
	}
	return Float(f), ErrNone
}

// Add implements the + operator. Strings concatenate.
func Add(a, b Value) (Value, Code) {
	switch x := a.(type) {
	case Int:
		if y, ok := b.(Int); ok {
			return x + y, ErrNone
		}
	case Float:
		if y, ok := b.(Float); ok {
			return checkFloat(float64(x) + float64(y))
		}
	case Str:
		if y, ok := b.(Str); ok {
			return x + y, ErrNone
		}
	}
	return nil, ErrType
}

// Sub implements the binary - operator.
func Sub(a, b Value) (Value, Code) {
	switch x := a.(type) {
	case Int:
		if y, ok := b.(Int); ok {
			return x - y, ErrNone
		}
	case Float:
		if y, ok := b.(Float); ok {
			return checkFloat(float64(x) - float64(y))
		}
	}
	return nil, ErrType
}

// Mul implements the * operator.
func Mul(a, b Value) (Value, Code) {
	switch x := a.(type) {
	case Int:
		if y, ok := b.(Int); ok {
			return x * y, ErrNone
		}
	case Float:
		if y, ok := b.(Float); ok {
			return checkFloat(float64(x) * float64(y))
		}
	}
	return nil, ErrType
}

// Div implements the / operator. Integer minint / -1 is defined to return
// minint rather than trap on overflow.
func Div(a, b Value) (Value, Code) {
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		if !ok {
			return nil, ErrType
		}
		if y == 0 {
			return nil, ErrDiv
		}
		if x == math.MinInt64 && y == -1 {
			return x, ErrNone
		}
		return x / y, ErrNone
	case Float:
		y, ok := b.(Float)
		if !ok {
			return nil, ErrType
		}
		if y == 0 {
			return nil, ErrDiv
		}
		return checkFloat(float64(x) / float64(y))
	}
	return nil, ErrType
}

// Mod implements the % operator with the sign of the dividend.
func Mod(a, b Value) (Value, Code) {
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		if !ok {
			return nil, ErrType
		}
		if y == 0 {
			return nil, ErrDiv
		}
		if x == math.MinInt64 && y == -1 {
			return Int(0), ErrNone
		}
		return x % y, ErrNone
	case Float:
		y, ok := b.(Float)
		if !ok {
			return nil, ErrType
		}
		if y == 0 {
			return nil, ErrDiv
		}
		return checkFloat(math.Mod(float64(x), float64(y)))
	}
	return nil, ErrType
}

// Pow implements the ^ operator. An integer base with a negative exponent
// is only meaningful for 0, 1 and -1; anything else truncates to 0.
func Pow(a, b Value) (Value, Code) {
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		if !ok {
			return nil, ErrType
		}
		if y < 0 {
			switch x {
			case 0:
				return nil, ErrDiv
			case 1:
				return Int(1), ErrNone
			case -1:
				if y%2 == 0 {
					return Int(1), ErrNone
				}
				return Int(-1), ErrNone
			default:
				return Int(0), ErrNone
			}
		}
		r := Int(1)
		for e := y; e > 0; e-- {
			r *= x
		}
		return r, ErrNone
	case Float:
		switch y := b.(type) {
		case Int:
			return checkFloat(math.Pow(float64(x), float64(y)))
		case Float:
			return checkFloat(math.Pow(float64(x), float64(y)))
		}
		return nil, ErrType
	}
	return nil, ErrType
}

// Neg implements unary minus.
func Neg(a Value) (Value, Code) {
	switch x := a.(type) {
	case Int:
		return -x, ErrNone
	case Float:
		return -x, ErrNone
	}
	return nil, ErrType
}
