// Package value implements the MOO value model: the tagged runtime values
// manipulated by the interpreter, their equality and ordering rules, and
// their textual representations.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type identifies the runtime type of a Value. The numeric codes are the
// ones typeof() reports to MOO code.
type Type int

const (
	TypeInt   Type = 0
	TypeObj   Type = 1
	TypeStr   Type = 2
	TypeErr   Type = 3
	TypeList  Type = 4
	TypeFloat Type = 9
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeObj:
		return "OBJ"
	case TypeStr:
		return "STR"
	case TypeErr:
		return "ERR"
	case TypeList:
		return "LIST"
	case TypeFloat:
		return "FLOAT"
	default:
		return "UNKNOWN"
	}
}

// Value is a MOO runtime value.
type Value interface {
	Type() Type
	Truthy() bool
}

// Int is a MOO integer. The build uses 64-bit integers throughout.
type Int int64

// Float is a MOO float. Infinities and NaNs are never valid results;
// arithmetic converts them to E_FLOAT and E_INVARG respectively.
type Float float64

// Str is a MOO string. Comparison and equality are case-insensitive but the
// original case is preserved.
type Str string

// Obj is a MOO object number. Negative values are sentinels or unclaimed
// connection ids.
type Obj int64

// Err is a MOO error value.
type Err Code

// List is an ordered sequence of values.
type List []Value

// Object number sentinels.
const (
	Nothing   Obj = -1
	Ambiguous Obj = -2
	Failed    Obj = -3

	// FirstConnID is the first id handed to an unclaimed connection;
	// subsequent connections count downward.
	FirstConnID Obj = -4
)

func (Int) Type() Type   { return TypeInt }
func (Float) Type() Type { return TypeFloat }
func (Str) Type() Type   { return TypeStr }
func (Obj) Type() Type   { return TypeObj }
func (Err) Type() Type   { return TypeErr }
func (List) Type() Type  { return TypeList }

func (v Int) Truthy() bool   { return v != 0 }
func (v Float) Truthy() bool { return v != 0 }
func (v Str) Truthy() bool   { return v != "" }
func (Obj) Truthy() bool     { return false }
func (Err) Truthy() bool     { return false }
func (v List) Truthy() bool  { return len(v) > 0 }

// Fold normalizes a string for case-insensitive identifier and string
// comparison. Identifiers keep their original case for display.
func Fold(s string) string {
	return strings.ToLower(s)
}

// Equal is language-level equality: case-insensitive for strings and
// recursively so for lists. This is the == operator.
func Equal(a, b Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case Str:
		return strings.EqualFold(string(x), string(b.(Str)))
	case List:
		y := b.(List)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Identical is identity-level equality: exact, including string case.
// This is the equal() built-in.
func Identical(a, b Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case List:
		y := b.(List)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Identical(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Compare orders two values of the same type. Lists are not orderable.
// Returns <0, 0, >0 and E_NONE, or E_TYPE when the pair is not comparable.
func Compare(a, b Value) (int, Code) {
	if a.Type() != b.Type() {
		return 0, ErrType
	}
	switch x := a.(type) {
	case Int:
		return cmpOrdered(x, b.(Int)), ErrNone
	case Float:
		return cmpOrdered(x, b.(Float)), ErrNone
	case Str:
		return strings.Compare(Fold(string(x)), Fold(string(b.(Str)))), ErrNone
	case Obj:
		return cmpOrdered(x, b.(Obj)), ErrNone
	case Err:
		return cmpOrdered(x, b.(Err)), ErrNone
	default:
		return 0, ErrType
	}
}

func cmpOrdered[T Int | Float | Obj | Err](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ToLiteral renders a value in the literal syntax the language can read
// back: strings quoted, lists braced, objects as #n, errors by name.
func ToLiteral(v Value) string {
	switch x := v.(type) {
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return formatFloat(float64(x))
	case Str:
		return quote(string(x))
	case Obj:
		return "#" + strconv.FormatInt(int64(x), 10)
	case Err:
		return Code(x).Name()
	case List:
		var b strings.Builder
		b.WriteByte('{')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ToLiteral(e))
		}
		b.WriteByte('}')
		return b.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToStr renders a value the way tostr() does: strings unquoted, errors by
// message, lists as "{list}", everything else as its literal form.
func ToStr(v Value) string {
	switch x := v.(type) {
	case Str:
		return string(x)
	case Err:
		return Code(x).Message()
	case List:
		return "{list}"
	default:
		return ToLiteral(v)
	}
}

// formatFloat prints a float so that it reads back as a float: a decimal
// point or exponent is always present.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "1e999"
	}
	if math.IsInf(f, -1) {
		return "-1e999"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}
