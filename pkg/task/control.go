package task

import (
	"time"

	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// Task implements eval.TaskControl: the evaluator's suspension, reading and
// forking all arrive here.
var _ eval.TaskControl = (*Task)(nil)

// TaskID returns this task's id.
func (t *Task) TaskID() int64 { return t.ID }

// Suspend commits the current attempt, parks the task, and resumes it in a
// fresh attempt under background limits. A suspension already in the past
// returns immediately (still through a commit boundary). The value returned
// is resume()'s payload, or 0 on timer expiry.
func (t *Task) Suspend(c *eval.Context, delay time.Duration, indefinite bool) (value.Value, error) {
	if !t.sched.checkQuota(t.Owner) {
		return nil, c.RaiseCode(value.ErrQuota)
	}

	t.mu.Lock()
	t.state = StateSuspended
	t.startAt = time.Now().Add(delay)
	t.Line = c.Frame().Line
	var timerC <-chan time.Time
	if !indefinite {
		t.timer = time.NewTimer(delay)
		timerC = t.timer.C
	}
	t.mu.Unlock()

	// Commit: everything the task did so far becomes visible, and its
	// deferred I/O runs while we are parked.
	c.Tx.Commit()
	c.Tx = nil

	var result value.Value = value.Int(0)
	aborted := false
	select {
	case v, ok := <-t.wake:
		if !ok {
			aborted = true
		} else {
			result = v
		}
	case <-timerC:
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	if aborted || t.State() == StateAborted {
		return nil, &eval.Abort{Kind: eval.AbortKilled}
	}

	c.Tx = t.sched.world.Begin()
	t.setState(StateRunning)
	c.ResetLimits(false)
	return result, nil
}

// Read parks the task until a line arrives on the connection bound to conn.
// EOF (connection closed) raises E_INVARG, as does a connection that
// already has a reader.
func (t *Task) Read(c *eval.Context, conn value.Obj) (value.Value, error) {
	if !t.sched.checkQuota(t.Owner) {
		return nil, c.RaiseCode(value.ErrQuota)
	}
	connection, ok := t.sched.world.Connections[conn]
	if !ok {
		return nil, c.RaiseCode(value.ErrInvArg)
	}
	ch := make(chan gamedb.ReadEvent, 1)
	if code := connection.AttachReader(ch); code != value.ErrNone {
		return nil, c.RaiseCode(code)
	}

	t.mu.Lock()
	t.state = StateReading
	t.Line = c.Frame().Line
	t.mu.Unlock()

	c.Tx.Commit()
	c.Tx = nil

	var ev gamedb.ReadEvent
	aborted := false
	select {
	case ev = <-ch:
	case _, ok := <-t.wake:
		aborted = !ok
		connection.DetachReader()
	}
	if aborted || t.State() == StateAborted {
		connection.DetachReader()
		return nil, &eval.Abort{Kind: eval.AbortKilled}
	}

	c.Tx = t.sched.world.Begin()
	t.setState(StateRunning)
	c.ResetLimits(false)
	if ev.EOF {
		return nil, c.RaiseCode(value.ErrInvArg)
	}
	return value.Str(ev.Line), nil
}

// NewForkID reserves a random task id for a fork statement.
func (t *Task) NewForkID() int64 {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.reserved[id] = true
	return id
}

// StartFork registers a forked child in Forked state. The child's start is
// deferred to the parent's commit: a parent that aborts never starts its
// forks.
func (t *Task) StartFork(c *eval.Context, spec eval.ForkSpec) error {
	s := t.sched
	if !s.checkQuota(t.Owner) {
		s.mu.Lock()
		delete(s.reserved, spec.ID)
		s.mu.Unlock()
		return c.RaiseCode(value.ErrQuota)
	}

	fr := &eval.Frame{
		Vars:     spec.Env,
		Debug:    spec.Debug,
		Perms:    spec.Perms,
		VerbName: spec.VerbName,
		VerbLoc:  spec.VerbLoc,
		This:     spec.This,
		Player:   spec.Player,
	}
	body := spec.Body
	child := &Task{
		ID:       spec.ID,
		Owner:    spec.Perms,
		Player:   spec.Player,
		Listener: t.Listener,
		sched:    s,
		state:    StateForked,
		startAt:  time.Now().Add(spec.Delay),
		wake:     make(chan value.Value, 1),
		VerbName: spec.VerbName,
		VerbLoc:  spec.VerbLoc,
		This:     spec.This,
	}
	child.body = func(cc *eval.Context) (value.Value, error) {
		return cc.RunStmts(body)
	}
	child.ctx = eval.NewContext(s.world, s.reg, child, fr)

	// Registration happens post-commit: a parent that aborts never starts
	// its forks, and the child never appears in the task map.
	delay := spec.Delay
	c.Defer(func() {
		s.mu.Lock()
		delete(s.reserved, spec.ID)
		s.tasks[spec.ID] = child
		s.mu.Unlock()

		child.mu.Lock()
		child.timer = time.AfterFunc(delay, func() {
			child.mu.Lock()
			if child.state != StateForked {
				child.mu.Unlock()
				return
			}
			child.state = StatePending
			child.mu.Unlock()
			s.Start(child, false)
		})
		child.mu.Unlock()
	})
	return nil
}

// IO runs an operation that cannot happen inside a transaction: the current
// attempt commits, f runs with the world unlocked, and the task resumes in
// a fresh attempt with the result.
func (t *Task) IO(c *eval.Context, f func() (value.Value, error)) (value.Value, error) {
	c.Tx.Commit()
	c.Tx = nil
	v, err := f()
	c.Tx = t.sched.world.Begin()
	return v, err
}
