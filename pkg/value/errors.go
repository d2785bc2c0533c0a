package value

// Code enumerates the MOO error values.
type Code int

const (
	ErrNone Code = iota
	ErrType
	ErrDiv
	ErrPerm
	ErrPropNF
	ErrVerbNF
	ErrVarNF
	ErrInvInd
	ErrRecMove
	ErrMaxRec
	ErrRange
	ErrArgs
	ErrNacc
	ErrInvArg
	ErrQuota
	ErrFloat
)

var errNames = [...]string{
	ErrNone:    "E_NONE",
	ErrType:    "E_TYPE",
	ErrDiv:     "E_DIV",
	ErrPerm:    "E_PERM",
	ErrPropNF:  "E_PROPNF",
	ErrVerbNF:  "E_VERBNF",
	ErrVarNF:   "E_VARNF",
	ErrInvInd:  "E_INVIND",
	ErrRecMove: "E_RECMOVE",
	ErrMaxRec:  "E_MAXREC",
	ErrRange:   "E_RANGE",
	ErrArgs:    "E_ARGS",
	ErrNacc:    "E_NACC",
	ErrInvArg:  "E_INVARG",
	ErrQuota:   "E_QUOTA",
	ErrFloat:   "E_FLOAT",
}

var errMessages = [...]string{
	ErrNone:    "No error",
	ErrType:    "Type mismatch",
	ErrDiv:     "Division by zero",
	ErrPerm:    "Permission denied",
	ErrPropNF:  "Property not found",
	ErrVerbNF:  "Verb not found",
	ErrVarNF:   "Variable not found",
	ErrInvInd:  "Invalid indirection",
	ErrRecMove: "Recursive move",
	ErrMaxRec:  "Too many verb calls",
	ErrRange:   "Range error",
	ErrArgs:    "Incorrect number of arguments",
	ErrNacc:    "Move refused by destination",
	ErrInvArg:  "Invalid argument",
	ErrQuota:   "Resource limit exceeded",
	ErrFloat:   "Floating-point arithmetic error",
}

// Name returns the literal form of the error, e.g. "E_TYPE".
func (c Code) Name() string {
	if c >= 0 && int(c) < len(errNames) {
		return errNames[c]
	}
	return "E_NONE"
}

// Message returns the default human message for the error.
func (c Code) Message() string {
	if c >= 0 && int(c) < len(errMessages) {
		return errMessages[c]
	}
	return "No error"
}

// CodeByName resolves an error literal like "E_TYPE" back to its code.
func CodeByName(name string) (Code, bool) {
	for i, n := range errNames {
		if n == name {
			return Code(i), true
		}
	}
	return ErrNone, false
}
