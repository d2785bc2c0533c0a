package server

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/builtins"
	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/events"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/task"
	"github.com/kruton/etamoo/pkg/value"
)

// dispatchEnv is a full in-memory server: world, scheduler, builtins, and
// connections over net.Pipe.
type dispatchEnv struct {
	world *gamedb.World
	srv   *Server
	wiz   value.Obj
}

func konst(v value.Value) ast.Expr { return &ast.Const{Val: v} }

func notifyStmt(target ast.Expr, text ast.Expr) ast.Stmt {
	return &ast.ExprStmt{E: &ast.BuiltinCall{Name: "notify",
		Args: []ast.Arg{{Expr: target}, {Expr: text}}}}
}

func newDispatchEnv(t *testing.T) *dispatchEnv {
	t.Helper()
	w := gamedb.NewWorld()
	sys, _ := w.CreateObject(value.Nothing, value.Nothing)
	w.Get(sys).Name = "System Object"
	root, _ := w.CreateObject(value.Nothing, value.Nothing)
	wiz, _ := w.CreateObject(root, value.Nothing)
	w.Get(wiz).Name = "Wizard"
	w.Get(wiz).SetFlag(gamedb.FlagWizard, true)
	w.SetPlayer(wiz, true)

	// Login: any line connects as the wizard.
	w.AddVerb(sys, &gamedb.Verb{
		Names: "do_login_command", Owner: wiz,
		Perms: gamedb.VerbExec | gamedb.VerbDebug,
		Program: &ast.Program{Stmts: []ast.Stmt{
			&ast.Return{E: konst(wiz)},
		}},
	})
	// OOB lines announce themselves.
	w.AddVerb(sys, &gamedb.Verb{
		Names: "do_out_of_band_command", Owner: wiz,
		Perms: gamedb.VerbExec | gamedb.VerbDebug,
		Program: &ast.Program{Stmts: []ast.Stmt{
			notifyStmt(&ast.Var{Name: "player"}, konst(value.Str("oob received"))),
		}},
	})
	// A ping command on the player.
	w.AddVerb(wiz, &gamedb.Verb{
		Names: "ping", Owner: wiz,
		Perms: gamedb.VerbExec | gamedb.VerbDebug,
		Dobj:  gamedb.ArgNone, Prep: gamedb.PrepNone, Iobj: gamedb.ArgNone,
		Program: &ast.Program{Stmts: []ast.Stmt{
			notifyStmt(&ast.Var{Name: "player"}, konst(value.Str("pong"))),
		}},
	})

	reg := eval.NewRegistry()
	sched := task.NewScheduler(w, reg)
	srv := NewServer(w, sched, reg, DefaultConfig())
	builtins.RegisterAll(reg, sched, srv)
	return &dispatchEnv{world: w, srv: srv, wiz: wiz}
}

// connect wires one client through net.Pipe and starts the connection
// machinery; returns the client side and the server's Connection.
func (e *dispatchEnv) connect(t *testing.T) (net.Conn, *Connection) {
	t.Helper()
	client, serverSide := net.Pipe()
	var c *Connection
	e.world.Attempt(func(tx *gamedb.Tx) error {
		id := e.world.NextConnID()
		c = newConnection(e.srv, serverSide, gamedb.SystemObject, id)
		e.world.Connections[id] = c
		e.world.Events.Bind(id, c)
		return nil
	})
	go c.readLoop()
	go c.writeLoop()
	go e.srv.drive(c)
	t.Cleanup(func() { client.Close() })
	return client, c
}

func readLine(t *testing.T, client net.Conn, br *bufio.Reader) string {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v (got %q)", err, line)
	}
	return strings.TrimRight(line, "\r\n")
}

func writeLine(t *testing.T, client net.Conn, line string) {
	t.Helper()
	client.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := client.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoginAndCommandDispatch(t *testing.T) {
	env := newDispatchEnv(t)
	client, c := env.connect(t)
	br := bufio.NewReader(client)

	if c.Player() >= 0 {
		t.Fatalf("fresh connection already authenticated: %v", c.Player())
	}
	writeLine(t, client, "connect wizard")

	deadline := time.Now().Add(5 * time.Second)
	for c.Player() != env.wiz {
		if time.Now().After(deadline) {
			t.Fatalf("login never bound the player (player=%v)", c.Player())
		}
		time.Sleep(5 * time.Millisecond)
	}

	writeLine(t, client, "ping")
	if got := readLine(t, client, br); got != "pong" {
		t.Errorf("command output = %q", got)
	}

	// Commands that no verb matches fall through to the huh handler.
	writeLine(t, client, "frobnicate the baz")
	if got := readLine(t, client, br); got != "I couldn't understand that." {
		t.Errorf("huh output = %q", got)
	}
}

func TestOOBRouting(t *testing.T) {
	env := newDispatchEnv(t)
	client, c := env.connect(t)
	br := bufio.NewReader(client)

	writeLine(t, client, "login")
	deadline := time.Now().Add(5 * time.Second)
	for c.Player() != env.wiz {
		if time.Now().After(deadline) {
			t.Fatal("login never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	writeLine(t, client, oobPrefix+"hello world")
	if got := readLine(t, client, br); got != "oob received" {
		t.Errorf("oob output = %q", got)
	}

	// With disable-oob set, the same line goes through command parsing
	// and reaches the huh handler instead.
	c.SetOption("disable-oob", value.Int(1))
	writeLine(t, client, oobPrefix+"hello world")
	if got := readLine(t, client, br); got != "I couldn't understand that." {
		t.Errorf("disable-oob output = %q", got)
	}
}

func TestPrefixSuffixIntrinsics(t *testing.T) {
	env := newDispatchEnv(t)
	client, c := env.connect(t)
	br := bufio.NewReader(client)

	writeLine(t, client, "login")
	deadline := time.Now().Add(5 * time.Second)
	for c.Player() != env.wiz {
		if time.Now().After(deadline) {
			t.Fatal("login never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	writeLine(t, client, "PREFIX ===begin===")
	writeLine(t, client, "SUFFIX ===end===")
	writeLine(t, client, "ping")
	if got := readLine(t, client, br); got != "===begin===" {
		t.Errorf("prefix = %q", got)
	}
	if got := readLine(t, client, br); got != "pong" {
		t.Errorf("body = %q", got)
	}
	if got := readLine(t, client, br); got != "===end===" {
		t.Errorf("suffix = %q", got)
	}
}

func TestReconnectRedirectsOlderConnection(t *testing.T) {
	env := newDispatchEnv(t)
	client1, c1 := env.connect(t)
	writeLine(t, client1, "login")
	deadline := time.Now().Add(5 * time.Second)
	for c1.Player() != env.wiz {
		if time.Now().After(deadline) {
			t.Fatal("first login never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Drain client1 in the background so its writer never wedges.
	go func() {
		br := bufio.NewReader(client1)
		for {
			if _, err := br.ReadString('\n'); err != nil {
				return
			}
		}
	}()

	client2, c2 := env.connect(t)
	writeLine(t, client2, "login")
	deadline = time.Now().Add(5 * time.Second)
	for c2.Player() != env.wiz {
		if time.Now().After(deadline) {
			t.Fatal("second login never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The player object now belongs to the second connection; the first
	// was pushed back to an unclaimed id and booted.
	var bound gamedb.Connection
	env.world.Attempt(func(tx *gamedb.Tx) error {
		bound = env.world.Connections[env.wiz]
		return nil
	})
	if bound != gamedb.Connection(c2) {
		t.Errorf("player bound to the wrong connection")
	}
	deadline = time.Now().Add(5 * time.Second)
	for !c1.IsClosed() {
		if time.Now().After(deadline) {
			t.Fatal("older connection never closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if c1.Player() >= 0 {
		t.Errorf("older connection kept the player: %v", c1.Player())
	}
}

// recordingTap collects every event the server emits on the bus.
type recordingTap struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingTap) Receive(ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingTap) Closed() bool { return false }

func (r *recordingTap) count(kind events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == kind {
			n++
		}
	}
	return n
}

func TestBusCarriesOutputAndLifecycle(t *testing.T) {
	env := newDispatchEnv(t)
	tap := &recordingTap{}
	env.world.Events.Tap(tap)

	client, c := env.connect(t)
	br := bufio.NewReader(client)

	writeLine(t, client, "login")
	deadline := time.Now().Add(5 * time.Second)
	for c.Player() != env.wiz {
		if time.Now().After(deadline) {
			t.Fatal("login never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if tap.count(events.EvConnect) != 1 {
		t.Errorf("EvConnect seen %d times", tap.count(events.EvConnect))
	}

	// The pong line reaches the client through the bus binding, and the
	// tap observes the same emission.
	writeLine(t, client, "ping")
	if got := readLine(t, client, br); got != "pong" {
		t.Fatalf("command output = %q", got)
	}
	if tap.count(events.EvLine) == 0 {
		t.Errorf("no EvLine passed the tap")
	}

	client.Close()
	deadline = time.Now().Add(5 * time.Second)
	for tap.count(events.EvDisconnect) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("EvDisconnect never emitted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectionOptionRecord(t *testing.T) {
	env := newDispatchEnv(t)
	_, c := env.connect(t)

	if code := c.SetOption("hold-input", value.Int(1)); code != value.ErrNone {
		t.Fatalf("set hold-input: %v", code)
	}
	if v, _ := c.GetOption("hold-input"); v != value.Int(1) {
		t.Errorf("hold-input = %v", v)
	}
	if code := c.SetOption("no-such-option", value.Int(1)); code != value.ErrInvArg {
		t.Errorf("unknown option: %v", code)
	}
	pairs := c.OptionPairs()
	if len(pairs) != 6 {
		t.Errorf("option pairs = %d", len(pairs))
	}
	c.SetOption("hold-input", value.Int(0))
}

func TestAttachReaderExclusive(t *testing.T) {
	env := newDispatchEnv(t)
	_, c := env.connect(t)

	ch := make(chan gamedb.ReadEvent, 1)
	if code := c.AttachReader(ch); code != value.ErrNone {
		t.Fatalf("attach: %v", code)
	}
	if code := c.AttachReader(make(chan gamedb.ReadEvent, 1)); code != value.ErrInvArg {
		t.Errorf("second reader accepted: %v", code)
	}
	c.DetachReader()
	c.DetachReader() // idempotent
	if code := c.AttachReader(ch); code != value.ErrNone {
		t.Errorf("reattach after detach: %v", code)
	}
}

func TestReaderReceivesLineNotCommand(t *testing.T) {
	env := newDispatchEnv(t)
	client, c := env.connect(t)

	writeLine(t, client, "login")
	deadline := time.Now().Add(5 * time.Second)
	for c.Player() != env.wiz {
		if time.Now().After(deadline) {
			t.Fatal("login never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ch := make(chan gamedb.ReadEvent, 1)
	if code := c.AttachReader(ch); code != value.ErrNone {
		t.Fatalf("attach: %v", code)
	}
	// An OOB line dispatches without waking the reader; the next in-band
	// line is what the reader receives.
	writeLine(t, client, oobPrefix+"status")
	writeLine(t, client, "ping")
	select {
	case ev := <-ch:
		if ev.EOF || ev.Line != "ping" {
			t.Errorf("reader got %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reader never woke")
	}
}
