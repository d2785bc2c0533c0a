package gamedb

import (
	"sort"
	"sync"

	"github.com/kruton/etamoo/pkg/events"
	"github.com/kruton/etamoo/pkg/value"
)

// ReadEvent is one delivery to a task blocked in read(): an input line, or
// EOF when the connection closed first.
type ReadEvent struct {
	Line string
	EOF  bool
}

// Connection is the world's view of one live network connection. The
// concrete type lives in the server package; world code only needs enough
// surface to notify, inspect and boot it.
type Connection interface {
	// AttachReader registers a pending reader; E_INVARG when one is
	// already attached. DetachReader is idempotent.
	AttachReader(ch chan ReadEvent) value.Code
	DetachReader()
	Player() value.Obj
	ListenerObj() value.Obj
	Notify(line string) bool
	NotifyBinary(data []byte) bool
	Boot()
	ConnectionName() string
	ConnectedSeconds() float64
	IdleSeconds() float64
	SetOption(name string, v value.Value) value.Code
	GetOption(name string) (value.Value, value.Code)
	OptionPairs() value.List
	FlushedLines() int
}

// Listener records one listening endpoint and the object whose verbs handle
// logins accepted there.
type Listener struct {
	Object        value.Obj
	Point         string // host:port endpoint
	PrintMessages bool
	Cancel        func() // stops the accept loop
}

// World is the process-wide registry: the object array, the player set,
// live connections, listeners, options, and the shutdown signal. It is
// created once at startup and passed by reference; all mutation of world
// state happens with the store lock held (see Begin/Attempt).
type World struct {
	mu sync.Mutex

	objects []*Object // indexed by object number, nil holes for recycled
	players map[value.Obj]bool

	Connections map[value.Obj]Connection
	Listeners   map[string]*Listener
	nextConnID  value.Obj

	// Events carries committed player-addressed output to the bound
	// connections; emissions belong in post-commit deferred actions.
	Events *events.Bus

	Options *Options

	shutdown     chan string
	shutdownOnce sync.Once
}

// NewWorld creates an empty world with default options.
func NewWorld() *World {
	return &World{
		players:     make(map[value.Obj]bool),
		Connections: make(map[value.Obj]Connection),
		Listeners:   make(map[string]*Listener),
		nextConnID:  value.FirstConnID,
		Events:      events.NewBus(),
		Options:     DefaultOptions(),
		shutdown:    make(chan string, 1),
	}
}

// Tx is one atomic attempt against the world. All reads and writes between
// Begin and Commit observe and publish a consistent snapshot; actions that
// must not run inside the attempt (network sends, log lines, task starts)
// are deferred and run after commit.
type Tx struct {
	w        *World
	deferred []func()
	aborted  bool
}

// Begin locks the world for one atomic attempt.
func (w *World) Begin() *Tx {
	w.mu.Lock()
	return &Tx{w: w}
}

// Defer queues an action to run after the attempt commits. A commit runs
// deferred actions in order; an abort discards them.
func (tx *Tx) Defer(f func()) {
	tx.deferred = append(tx.deferred, f)
}

// Commit publishes the attempt and runs its deferred actions.
func (tx *Tx) Commit() {
	deferred := tx.deferred
	tx.deferred = nil
	tx.w.mu.Unlock()
	for _, f := range deferred {
		f()
	}
}

// Abort releases the world without running deferred actions. Mutations made
// during the attempt are not rolled back and stay visible to later attempts
// once the lock is released; callers that can fail partway must not have
// mutated.
func (tx *Tx) Abort() {
	tx.aborted = true
	tx.deferred = nil
	tx.w.mu.Unlock()
}

// Attempt runs fn as one atomic attempt, committing when it returns nil and
// aborting otherwise.
func (w *World) Attempt(fn func(tx *Tx) error) error {
	tx := w.Begin()
	err := fn(tx)
	if err != nil {
		tx.Abort()
		return err
	}
	tx.Commit()
	return nil
}

// Get returns the object with the given number, or nil when the number is
// out of range or recycled.
func (w *World) Get(id value.Obj) *Object {
	if id < 0 || int64(id) >= int64(len(w.objects)) {
		return nil
	}
	return w.objects[id]
}

// Valid reports whether id names a live object.
func (w *World) Valid(id value.Obj) bool { return w.Get(id) != nil }

// MaxObject returns the highest object number ever allocated, or -1.
func (w *World) MaxObject() value.Obj { return value.Obj(len(w.objects) - 1) }

// IsPlayer reports whether id is in the player set.
func (w *World) IsPlayer(id value.Obj) bool { return w.players[id] }

// SetPlayer adds or removes id from the player set and flips its player
// flag.
func (w *World) SetPlayer(id value.Obj, yes bool) value.Code {
	o := w.Get(id)
	if o == nil {
		return value.ErrInvArg
	}
	o.SetFlag(FlagPlayer, yes)
	if yes {
		w.players[id] = true
	} else {
		delete(w.players, id)
	}
	return value.ErrNone
}

// Players returns the player set as a sorted list.
func (w *World) Players() []value.Obj {
	out := make([]value.Obj, 0, len(w.players))
	for id := range w.players {
		out = append(out, id)
	}
	sortObjs(out)
	return out
}

// IsWizard reports whether id is a valid object with the wizard flag.
func (w *World) IsWizard(id value.Obj) bool {
	o := w.Get(id)
	return o != nil && o.HasFlag(FlagWizard)
}

// NextConnID hands out the next unclaimed-connection id, counting downward
// from -4.
func (w *World) NextConnID() value.Obj {
	id := w.nextConnID
	w.nextConnID--
	return id
}

// RequestShutdown signals the server to shut down. Only the first request
// carries its message through.
func (w *World) RequestShutdown(msg string) {
	w.shutdownOnce.Do(func() { w.shutdown <- msg })
}

// ShutdownC returns the channel the shutdown message arrives on.
func (w *World) ShutdownC() <-chan string { return w.shutdown }

func sortObjs(s []value.Obj) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
