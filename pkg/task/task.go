// Package task implements the task engine: scheduling of concurrent
// interpreter instances, tick and wall-clock budgets, forking, suspension
// and resumption, and delivery of uncaught errors.
package task

import (
	"sync"
	"time"

	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/value"
)

// State is a task's position in its lifecycle.
type State int

const (
	StatePending State = iota
	StateRunning
	StateSuspended
	StateReading
	StateForked
	StateComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateReading:
		return "reading"
	case StateForked:
		return "forked"
	case StateComplete:
		return "complete"
	default:
		return "aborted"
	}
}

// queued reports whether the state counts against the queued-task quota.
func (s State) queued() bool {
	switch s {
	case StateSuspended, StateReading, StateForked, StatePending:
		return true
	}
	return false
}

// Body is the computation a task runs: everything between transaction
// begin and final commit.
type Body func(c *eval.Context) (value.Value, error)

// Task is one concurrent interpreter instance. Each task runs on its own
// goroutine; its Context carries the frame stack and budget.
type Task struct {
	ID       int64
	Owner    value.Obj // permissions the task queues under
	Player   value.Obj
	Listener value.Obj // object whose system verbs handle this task's errors

	sched *Scheduler
	ctx   *eval.Context
	body  Body

	mu      sync.Mutex
	state   State
	startAt time.Time // wake/start eligibility for forked and suspended
	wake    chan value.Value
	timer   *time.Timer

	// Frame metadata mirrored for queued_tasks() and queue_info().
	VerbName string
	VerbLoc  value.Obj
	This     value.Obj
	Line     int
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Context returns the task's evaluator context.
func (t *Task) Context() *eval.Context { return t.ctx }

// StartTime returns when a queued task becomes eligible to run.
func (t *Task) StartTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startAt
}

// QueueEntry renders the task the way queued_tasks() reports it.
func (t *Task) QueueEntry() value.List {
	t.mu.Lock()
	defer t.mu.Unlock()
	return value.List{
		value.Int(t.ID),
		value.Int(t.startAt.Unix()),
		value.Int(0), // historical clock id
		value.Int(0), // historical ticks field
		t.Owner,
		t.VerbLoc,
		value.Str(t.VerbName),
		value.Int(t.Line),
		t.This,
	}
}
