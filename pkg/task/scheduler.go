package task

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// Scheduler owns the task map and multiplexes interpreter instances over
// the world's single-writer store.
type Scheduler struct {
	world *gamedb.World
	reg   *eval.Registry

	mu       sync.Mutex
	tasks    map[int64]*Task
	reserved map[int64]bool // fork ids handed out but not yet registered
	rng      *rand.Rand
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler bound to a world and built-in registry.
func NewScheduler(w *gamedb.World, reg *eval.Registry) *Scheduler {
	return &Scheduler{
		world:    w,
		reg:      reg,
		tasks:    make(map[int64]*Task),
		reserved: make(map[int64]bool),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Registry returns the built-in registry tasks dispatch through.
func (s *Scheduler) Registry() *eval.Registry { return s.reg }

// World returns the world the scheduler runs against.
func (s *Scheduler) World() *gamedb.World { return s.world }

// newID draws an unused random task id from the positive 32-bit range.
func (s *Scheduler) newID() int64 {
	for {
		id := int64(s.rng.Int31())
		if id == 0 {
			continue
		}
		if _, taken := s.tasks[id]; !taken && !s.reserved[id] {
			return id
		}
	}
}

// NewTask registers a task in Pending state. The top frame's metadata is
// mirrored for queue introspection; run it with Start.
func (s *Scheduler) NewTask(owner, player, listener value.Obj, fr *eval.Frame, body Body) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Task{
		Owner:    owner,
		Player:   player,
		Listener: listener,
		sched:    s,
		body:     body,
		state:    StatePending,
		startAt:  time.Now(),
		wake:     make(chan value.Value, 1),
		VerbName: fr.VerbName,
		VerbLoc:  fr.VerbLoc,
		This:     fr.This,
	}
	t.ID = s.newID()
	t.ctx = eval.NewContext(s.world, s.reg, t, fr)
	s.tasks[t.ID] = t
	return t
}

// Start launches a pending task on its own goroutine.
func (s *Scheduler) Start(t *Task, foreground bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(t, foreground)
	}()
}

// StartSync runs a pending task to completion on the calling goroutine;
// the connection drivers use this to keep per-connection ordering.
func (s *Scheduler) StartSync(t *Task, foreground bool) {
	s.wg.Add(1)
	defer s.wg.Done()
	s.run(t, foreground)
}

// Get finds a live task by id.
func (s *Scheduler) Get(id int64) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// QueuedTasks lists the queued (not running) tasks, optionally restricted
// to one owner.
func (s *Scheduler) QueuedTasks(owner value.Obj, all bool) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for _, t := range s.tasks {
		if !t.State().queued() {
			continue
		}
		if !all && t.Owner != owner {
			continue
		}
		out = append(out, t)
	}
	return out
}

// CountQueuedByOwner counts the queued tasks charged to an owner's quota.
func (s *Scheduler) CountQueuedByOwner(owner value.Obj) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.Owner == owner && t.State().queued() {
			n++
		}
	}
	return n
}

// checkQuota enforces queued_task_limit before another queued task is
// created for owner. The world lock is held by the caller.
func (s *Scheduler) checkQuota(owner value.Obj) bool {
	limit := s.world.QueuedTaskLimitFor(owner)
	if limit < 0 {
		return true
	}
	return s.CountQueuedByOwner(owner) < limit
}

// Kill aborts a task. A running task stops at its next tick boundary with
// its deferred I/O discarded; a queued task is removed outright.
func (s *Scheduler) Kill(id int64, who value.Obj, wizard bool) value.Code {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return value.ErrInvArg
	}
	if !wizard && t.Owner != who {
		return value.ErrPerm
	}
	t.mu.Lock()
	st := t.state
	t.mu.Unlock()
	switch st {
	case StateRunning:
		t.ctx.Killed.Store(true)
	default:
		t.mu.Lock()
		if t.timer != nil {
			t.timer.Stop()
		}
		t.state = StateAborted
		close(t.wake)
		t.mu.Unlock()
		s.remove(t)
	}
	return value.ErrNone
}

// Resume wakes a suspended task with the given value.
func (s *Scheduler) Resume(id int64, who value.Obj, wizard bool, v value.Value) value.Code {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return value.ErrInvArg
	}
	if !wizard && t.Owner != who {
		return value.ErrPerm
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateSuspended {
		return value.ErrInvArg
	}
	select {
	case t.wake <- v:
		return value.ErrNone
	default:
		return value.ErrInvArg
	}
}

// KillAll aborts every task; used at shutdown.
func (s *Scheduler) KillAll() {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	for _, t := range tasks {
		s.Kill(t.ID, value.Nothing, true)
	}
}

// Wait blocks until all task goroutines have finished.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) remove(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t.ID)
	s.mu.Unlock()
}

// run is a task goroutine's whole life: an attempt begun against the
// world, the body executed under budget, and the outcome handled. The body
// may commit and reopen attempts as it suspends, so the final disposition
// applies to whatever attempt is current when it returns.
func (s *Scheduler) run(t *Task, foreground bool) {
	t.ctx.Tx = s.world.Begin()
	t.ctx.ResetLimits(foreground)
	t.setState(StateRunning)

	result, err := t.body(t.ctx)
	tx := t.ctx.Tx
	switch e := err.(type) {
	case nil:
		t.setState(StateComplete)
		_ = result
		if tx != nil {
			tx.Commit()
		}
	case *eval.Exception:
		t.setState(StateAborted)
		if tx != nil {
			s.handleUncaught(t, e)
			tx.Commit()
		}
	case *eval.Abort:
		t.setState(StateAborted)
		switch {
		case tx == nil:
			// Killed while parked; there is no attempt to finish.
		case e.Kind == eval.AbortKilled:
			tx.Abort()
		default:
			s.handleTimeout(t, e)
			tx.Commit()
		}
	default:
		t.setState(StateAborted)
		log.Printf("ERROR: task %d died: %v", t.ID, err)
		if tx != nil {
			tx.Abort()
		}
	}
	t.ctx.Tx = nil
	s.remove(t)
}

// handleUncaught gives $handle_uncaught_error a chance to swallow the
// traceback; otherwise the formatted lines go to the task's player. Runs
// inside the task's final attempt, under a fresh background budget.
func (s *Scheduler) handleUncaught(t *Task, exc *eval.Exception) {
	lines := eval.FormatTraceback(exc)
	args := value.List{
		exc.Code,
		value.Str(exc.Message),
		exc.Value,
		eval.TracebackValue(exc.Stack),
		stringList(lines),
	}
	if s.callHandler(t, "handle_uncaught_error", args) {
		return
	}
	s.notifyPlayer(t, lines)
}

// handleTimeout is the analogous path for tick and second exhaustion.
func (s *Scheduler) handleTimeout(t *Task, abort *eval.Abort) {
	msg := "Task ran out of " + abort.Resource()
	lines := []string{msg + " (task aborted)", "(End of traceback)"}
	args := value.List{
		value.Str(abort.Resource()),
		eval.TracebackValue(abort.Stack),
		stringList(lines),
	}
	if s.callHandler(t, "handle_task_timeout", args) {
		return
	}
	s.notifyPlayer(t, lines)
}

// callHandler invokes a system verb on the task's listener object with a
// small fresh budget. Returns true when the handler ran and returned
// something truthy.
func (s *Scheduler) callHandler(t *Task, verb string, args value.List) bool {
	listener := t.Listener
	if !s.world.Valid(listener) {
		listener = gamedb.SystemObject
	}
	c := t.ctx
	c.ResetLimits(false)
	res, err := c.CallVerb(listener, verb, args)
	if err != nil {
		if _, isVerbNF := errCode(err, value.ErrVerbNF); !isVerbNF {
			log.Printf("WARNING: $%s failed: %v", verb, err)
		}
		return false
	}
	return res.Truthy()
}

// notifyPlayer queues traceback lines for the task's player as deferred
// output through the event bus; with no connection bound they go to the
// server log instead.
func (s *Scheduler) notifyPlayer(t *Task, lines []string) {
	t.ctx.Defer(func() {
		if !s.world.Events.EmitLines(t.Player, lines) {
			for _, l := range lines {
				log.Printf("TRACEBACK (#%d): %s", int64(t.Player), l)
			}
		}
	})
}

func errCode(err error, code value.Code) (*eval.Exception, bool) {
	exc, ok := err.(*eval.Exception)
	if !ok {
		return nil, false
	}
	return exc, value.Equal(exc.Code, value.Err(code))
}

func stringList(lines []string) value.List {
	out := make(value.List, len(lines))
	for i, l := range lines {
		out[i] = value.Str(l)
	}
	return out
}
