// Package eval implements the MOO interpreter: a tree-walking evaluator
// with lvalue semantics, exception handling and tick accounting, executing
// inside a task's atomic attempt against the world.
package eval

import (
	"fmt"

	"github.com/kruton/etamoo/pkg/value"
)

// Traceback is one captured frame of an exception's call stack.
type Traceback struct {
	This     value.Obj
	VerbName string
	VerbLoc  value.Obj
	Perms    value.Obj
	Player   value.Obj
	Line     int
	Builtin  bool
}

// Exception is a raised MOO error travelling up the interpreter. Code is
// usually a value.Err but raise() admits arbitrary values.
type Exception struct {
	Code    value.Value
	Message string
	Value   value.Value
	Stack   []Traceback
	Debug   bool // debug bit of the raising frame
}

func (e *Exception) Error() string {
	return fmt.Sprintf("%s: %s", value.ToLiteral(e.Code), e.Message)
}

// ErrValue returns the error code as the value the expression yields when
// the raising frame's debug bit is clear.
func (e *Exception) ErrValue() value.Value { return e.Code }

// AbortKind says why a task was torn down outside the exception mechanism.
type AbortKind int

const (
	AbortTicks AbortKind = iota
	AbortSeconds
	AbortKilled
)

// Abort unwinds the whole task: resource exhaustion and kill_task do not
// run except or finally handlers.
type Abort struct {
	Kind  AbortKind
	Stack []Traceback
}

func (a *Abort) Error() string {
	switch a.Kind {
	case AbortTicks:
		return "task aborted: out of ticks"
	case AbortSeconds:
		return "task aborted: out of seconds"
	default:
		return "task aborted: killed"
	}
}

// Resource names the exhausted budget for handle_task_timeout.
func (a *Abort) Resource() string {
	if a.Kind == AbortSeconds {
		return "seconds"
	}
	return "ticks"
}

// TracebackValue renders a captured stack as the MOO-visible callers()
// shape: one {this, verb-name, programmer, verb-loc, player, line} per
// frame.
func TracebackValue(stack []Traceback) value.List {
	out := make(value.List, len(stack))
	for i, fr := range stack {
		out[i] = value.List{
			fr.This,
			value.Str(fr.VerbName),
			fr.Perms,
			fr.VerbLoc,
			fr.Player,
			value.Int(fr.Line),
		}
	}
	return out
}

// FormatTraceback renders the human-readable traceback lines delivered to
// players when an exception goes uncaught.
func FormatTraceback(e *Exception) []string {
	lines := make([]string, 0, len(e.Stack)+1)
	for i, fr := range e.Stack {
		where := fmt.Sprintf("#%d:%s", int64(fr.VerbLoc), fr.VerbName)
		if fr.VerbLoc != fr.This {
			where += fmt.Sprintf(" (this == #%d)", int64(fr.This))
		}
		if fr.Builtin {
			where = "built-in function " + fr.VerbName + "()"
		}
		if i == 0 {
			lines = append(lines, fmt.Sprintf("%s, line %d:  %s", where, fr.Line, e.Message))
		} else {
			lines = append(lines, fmt.Sprintf("... called from %s, line %d", where, fr.Line))
		}
	}
	lines = append(lines, "(End of traceback)")
	return lines
}
