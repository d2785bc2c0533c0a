package server

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/events"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/task"
	"github.com/kruton/etamoo/pkg/value"
)

// Version components reported by server_version().
const (
	ServerName    = "etamoo"
	ServerVersion = "1.0.0"
)

// VersionString returns the full server identification string.
func VersionString() string {
	return fmt.Sprintf("%s %s", ServerName, ServerVersion)
}

// Persister is the persistence surface the server checkpoints through.
type Persister interface {
	SaveWorld(w *gamedb.World) error
}

// ProgramParser compiles verb source lines into a program. The MOO grammar
// itself lives outside this module; the server only carries the hook.
type ProgramParser func(lines []string) (*ast.Program, error)

// Server binds the world, the task engine and the network together: it
// owns the listeners and the live connections, and taps the world's event
// bus for operator logging and metrics.
type Server struct {
	World *gamedb.World
	Sched *task.Scheduler
	Reg   *eval.Registry
	Conf  *Config
	Store Persister

	// Parser compiles `.program` submissions; nil disables programming.
	Parser ProgramParser

	Metrics *Metrics

	wg sync.WaitGroup
}

// NewServer wires a server around an existing world and scheduler.
func NewServer(w *gamedb.World, sched *task.Scheduler, reg *eval.Registry, conf *Config) *Server {
	if conf == nil {
		conf = DefaultConfig()
	}
	s := &Server{
		World: w,
		Sched: sched,
		Reg:   reg,
		Conf:  conf,
	}
	w.Events.Tap(&serverTap{srv: s})
	return s
}

// serverTap observes the whole event stream for the operator: connection
// lifecycle goes to the server log and the metrics counters, emitted
// lines feed the output counter.
type serverTap struct {
	srv *Server
}

func (t *serverTap) Receive(ev events.Event) {
	switch ev.Type {
	case events.EvLine, events.EvBinary:
		if t.srv.Metrics != nil {
			t.srv.Metrics.LineDelivered()
		}
	case events.EvConnect:
		log.Printf("CONNECTED: #%d", int64(ev.Player))
	case events.EvReconnect:
		log.Printf("REDIRECTED: #%d to a newer connection", int64(ev.Player))
	case events.EvDisconnect:
		log.Printf("DISCONNECTED: #%d", int64(ev.Player))
		if t.srv.Metrics != nil {
			t.srv.Metrics.ConnectionClosed()
		}
	case events.EvBoot:
		log.Printf("BOOTED: #%d", int64(ev.Player))
	}
}

func (t *serverTap) Closed() bool { return false }

// Listen opens a listening endpoint handled by the given object's system
// verbs. Implements the listen() built-in; also used at startup.
func (s *Server) Listen(obj value.Obj, point string, printMessages bool) value.Code {
	if _, exists := s.World.Listeners[point]; exists {
		return value.ErrInvArg
	}
	ln, err := net.Listen("tcp", point)
	if err != nil {
		log.Printf("ERROR: listen %s: %v", point, err)
		return value.ErrQuota
	}
	listener := &gamedb.Listener{
		Object:        obj,
		Point:         point,
		PrintMessages: printMessages,
		Cancel:        func() { ln.Close() },
	}
	s.World.Listeners[point] = listener
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln, listener)
	}()
	log.Printf("Listening on %s for #%d", point, int64(obj))
	return value.ErrNone
}

// Unlisten stops the accept loop on an endpoint.
func (s *Server) Unlisten(point string) value.Code {
	l, ok := s.World.Listeners[point]
	if !ok {
		return value.ErrInvArg
	}
	delete(s.World.Listeners, point)
	l.Cancel()
	return value.ErrNone
}

func (s *Server) acceptLoop(ln net.Listener, listener *gamedb.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn, listener)
		}()
	}
}

// handleConn registers a fresh connection and runs its driver loop. A
// server over its connection limit turns the client away with
// $server_full_msg.
func (s *Server) handleConn(conn net.Conn, listener *gamedb.Listener) {
	var c *Connection
	full := false
	s.World.Attempt(func(tx *gamedb.Tx) error {
		if s.Conf.MaxConnections > 0 && len(s.World.Connections) >= s.Conf.MaxConnections {
			full = true
			return nil
		}
		id := s.World.NextConnID()
		c = newConnection(s, conn, listener.Object, id)
		s.World.Connections[id] = c
		s.World.Events.Bind(id, c)
		return nil
	})
	if full {
		for _, line := range s.messages("server_full_msg", "*** Sorry, but the server cannot accept any more connections right now. ***") {
			conn.Write([]byte(line + "\r\n"))
		}
		conn.Close()
		return
	}
	if s.Metrics != nil {
		s.Metrics.ConnectionOpened()
	}
	c.armWatchdog(time.Duration(s.World.Options.ConnectTimeout) * time.Second)

	go c.readLoop()
	go c.writeLoop()

	if listener.PrintMessages {
		for _, line := range s.messages("welcome_msg", "") {
			c.Notify(line)
		}
	}
	s.drive(c)
}

// OpenNetwork dials an outbound connection and registers it under a fresh
// unclaimed connection id. Implements open_network_connection(); the caller
// has already left its transaction.
func (s *Server) OpenNetwork(host string, port int) (value.Obj, value.Code) {
	timeout := time.Duration(s.World.Options.OutboundConnectTimeout) * time.Second
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), timeout)
	if err != nil {
		log.Printf("WARNING: outbound connection to %s:%d failed: %v", host, port, err)
		return value.Nothing, value.ErrQuota
	}
	var c *Connection
	s.World.Attempt(func(tx *gamedb.Tx) error {
		id := s.World.NextConnID()
		c = newConnection(s, conn, gamedb.SystemObject, id)
		s.World.Connections[id] = c
		s.World.Events.Bind(id, c)
		return nil
	})
	go c.readLoop()
	go c.writeLoop()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drive(c)
	}()
	return c.Player(), value.ErrNone
}

// Checkpoint snapshots the world through the persister, inside its own
// attempt so the image is consistent.
func (s *Server) Checkpoint() error {
	if s.Store == nil {
		return fmt.Errorf("server: no persistent store configured")
	}
	var err error
	s.World.Attempt(func(tx *gamedb.Tx) error {
		err = s.Store.SaveWorld(s.World)
		return nil
	})
	if err == nil {
		log.Printf("Checkpoint complete")
	}
	return err
}

// VersionString implements the NetworkController surface.
func (s *Server) VersionString() string { return VersionString() }

// messages reads a #0 message property under the world lock, falling back
// to a default line when unset.
func (s *Server) messages(name, fallback string) []string {
	var out []string
	s.World.Attempt(func(tx *gamedb.Tx) error {
		out = s.World.Messages(name)
		return nil
	})
	if out == nil && fallback != "" {
		out = []string{fallback}
	}
	return out
}

// callSystemVerb runs one system-verb invocation as its own foreground
// task on the calling goroutine and hands back the verb's return value.
// A missing verb yields ok=false without an error.
func (s *Server) callSystemVerb(player value.Obj, listener value.Obj, verb string, args value.List) (value.Value, bool) {
	fr := &eval.Frame{
		Perms:    gamedb.SystemObject,
		Debug:    true,
		VerbName: verb,
		This:     listener,
		Player:   player,
		VerbLoc:  listener,
	}
	eval.InitVerbEnv(fr, args, player)

	var result value.Value
	ok := false
	t := s.Sched.NewTask(gamedb.SystemObject, player, listener, fr, func(ctx *eval.Context) (value.Value, error) {
		v, err := ctx.CallVerb(listener, verb, args)
		if err != nil {
			if exc, isExc := err.(*eval.Exception); isExc && value.Equal(exc.Code, value.Err(value.ErrVerbNF)) {
				return value.Int(0), nil
			}
			return nil, err
		}
		result = v
		ok = true
		return v, nil
	})
	s.Sched.StartSync(t, true)
	return result, ok
}

// ServerStarted fires the $server_started hook once listeners are up.
func (s *Server) ServerStarted() {
	s.callSystemVerb(gamedb.SystemObject, gamedb.SystemObject, "server_started", value.List{})
}

// Shutdown closes every listener, boots every connection and kills every
// task, then gives the world a final checkpoint.
func (s *Server) Shutdown(msg string) {
	log.Printf("Shutting down: %s", msg)
	for point, l := range s.World.Listeners {
		l.Cancel()
		delete(s.World.Listeners, point)
	}
	var conns []*Connection
	s.World.Attempt(func(tx *gamedb.Tx) error {
		for _, gc := range s.World.Connections {
			if c, ok := gc.(*Connection); ok {
				conns = append(conns, c)
			}
		}
		return nil
	})
	for _, c := range conns {
		if msg != "" {
			c.Notify(msg)
		}
		s.bootConnection(c)
	}
	s.Sched.KillAll()
	if s.Store != nil {
		if err := s.Checkpoint(); err != nil {
			log.Printf("ERROR: final checkpoint failed: %v", err)
		}
	}
}
