package server

import (
	"net"
	"sync"
	"time"

	"github.com/kruton/etamoo/pkg/events"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// Telnet IAC sequences emitted when the client-echo option flips.
var (
	iacWillEcho = []byte{255, 251, 1}
	iacWontEcho = []byte{255, 252, 1}
)

// connOptions is a connection's mutable options record.
type connOptions struct {
	binary     bool
	holdInput  bool
	disableOOB bool
	clientEcho bool
	flushCmd   string
	intrinsics map[string]bool // enabled intrinsic commands, folded names
}

func defaultIntrinsics() map[string]bool {
	return map[string]bool{
		"prefix": true, "suffix": true,
		"outputprefix": true, "outputsuffix": true,
		".program": true,
	}
}

// Connection is one live client connection: the pair of driver goroutines
// (reader and writer), the bounded queues between them and the world, and
// the connection-local options record.
type Connection struct {
	srv      *Server
	conn     net.Conn
	listener value.Obj

	in  chan InputItem
	out *outQueue

	connectedAt time.Time

	mu           sync.Mutex
	player       value.Obj
	name         string
	lastActivity time.Time
	opts         connOptions
	prefix       string
	suffix       string
	reader       chan gamedb.ReadEvent
	readerWait   *sync.Cond
	holdWait     *sync.Cond
	watchdog     *time.Timer
	closed       bool
	booted       bool
	prog         *programState

	closeOnce sync.Once
	done      chan struct{}
}

var _ gamedb.Connection = (*Connection)(nil)
var _ events.Subscriber = (*Connection)(nil)

func newConnection(srv *Server, conn net.Conn, listener value.Obj, connID value.Obj) *Connection {
	c := &Connection{
		srv:         srv,
		conn:        conn,
		listener:    listener,
		in:          make(chan InputItem, queueCapacity),
		out:         newOutQueue(),
		connectedAt: time.Now(),
		player:      connID,
		lastActivity: time.Now(),
		opts: connOptions{
			flushCmd:   srv.World.Options.DefaultFlushCommand,
			intrinsics: defaultIntrinsics(),
		},
		done: make(chan struct{}),
	}
	// The connection name is fixed at accept so later lookups cannot block
	// or be cancelled mid-read.
	if conn != nil && conn.RemoteAddr() != nil {
		c.name = "port " + connPort(conn) + " from " + connHost(conn)
	} else {
		c.name = "internal"
	}
	c.readerWait = sync.NewCond(&c.mu)
	c.holdWait = sync.NewCond(&c.mu)
	return c
}

func connHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func connPort(conn net.Conn) string {
	if conn.LocalAddr() == nil {
		return "?"
	}
	_, port, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "?"
	}
	return port
}

// Player returns the object the connection is bound to; negative ids mean
// the connection is still unauthenticated.
func (c *Connection) Player() value.Obj {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// SetPlayer rebinds the connection; the server uses this during login and
// redirect handling.
func (c *Connection) SetPlayer(p value.Obj) {
	c.mu.Lock()
	c.player = p
	c.mu.Unlock()
}

// ListenerObj returns the object that accepted this connection.
func (c *Connection) ListenerObj() value.Obj { return c.listener }

// Notify queues one text line of output.
func (c *Connection) Notify(line string) bool {
	return c.out.Push(OutMessage{Line: line})
}

// NotifyBinary queues raw bytes of output.
func (c *Connection) NotifyBinary(data []byte) bool {
	return c.out.Push(OutMessage{Data: data, Binary: true})
}

// Boot schedules a server-side disconnect: queued output drains first.
func (c *Connection) Boot() {
	c.srv.bootConnection(c)
}

// Receive implements events.Subscriber: line and binary events addressed
// to the bound player land on the output queue. Lifecycle events are for
// the server's taps, not the client.
func (c *Connection) Receive(ev events.Event) {
	switch ev.Type {
	case events.EvLine:
		c.Notify(ev.Line)
	case events.EvBinary:
		c.NotifyBinary(ev.Data)
	}
}

// Closed implements events.Subscriber.
func (c *Connection) Closed() bool { return c.IsClosed() }

// ConnectionName returns the precomputed peer description.
func (c *Connection) ConnectionName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// ConnectedSeconds reports how long the connection has existed.
func (c *Connection) ConnectedSeconds() float64 {
	return time.Since(c.connectedAt).Seconds()
}

// IdleSeconds reports the time since the last input activity.
func (c *Connection) IdleSeconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivity).Seconds()
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// FlushedLines reports how many output messages overflow has dropped.
func (c *Connection) FlushedLines() int { return c.out.Flushed() }

// AttachReader registers a task blocked in read(); only one may wait.
func (c *Connection) AttachReader(ch chan gamedb.ReadEvent) value.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		return value.ErrInvArg
	}
	if c.closed {
		return value.ErrInvArg
	}
	c.reader = ch
	c.readerWait.Broadcast()
	return value.ErrNone
}

// DetachReader clears a pending reader; safe to call twice.
func (c *Connection) DetachReader() {
	c.mu.Lock()
	c.reader = nil
	c.mu.Unlock()
}

// takeReader claims the pending reader channel, if any.
func (c *Connection) takeReader() chan gamedb.ReadEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.reader
	c.reader = nil
	return ch
}

// SetOption updates one connection option.
func (c *Connection) SetOption(name string, v value.Value) value.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch value.Fold(name) {
	case "binary":
		c.opts.binary = v.Truthy()
	case "hold-input":
		c.opts.holdInput = v.Truthy()
		if !c.opts.holdInput {
			c.holdWait.Broadcast()
		}
	case "disable-oob":
		c.opts.disableOOB = v.Truthy()
	case "client-echo":
		want := v.Truthy()
		if want != c.opts.clientEcho {
			c.opts.clientEcho = want
			seq := iacWontEcho
			if want {
				seq = iacWillEcho
			}
			c.out.Push(OutMessage{Data: seq, Binary: true})
		}
	case "flush-command":
		if s, ok := v.(value.Str); ok {
			c.opts.flushCmd = string(s)
		} else {
			c.opts.flushCmd = ""
		}
	case "intrinsic-commands":
		switch x := v.(type) {
		case value.List:
			enabled := make(map[string]bool)
			all := defaultIntrinsics()
			for _, e := range x {
				s, ok := e.(value.Str)
				if !ok {
					return value.ErrType
				}
				folded := value.Fold(string(s))
				if !all[folded] {
					return value.ErrInvArg
				}
				enabled[folded] = true
			}
			c.opts.intrinsics = enabled
		case value.Int:
			if x == 0 {
				c.opts.intrinsics = map[string]bool{}
			} else {
				c.opts.intrinsics = defaultIntrinsics()
			}
		default:
			return value.ErrType
		}
	default:
		return value.ErrInvArg
	}
	return value.ErrNone
}

// GetOption reads one connection option.
func (c *Connection) GetOption(name string) (value.Value, value.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch value.Fold(name) {
	case "binary":
		return boolInt(c.opts.binary), value.ErrNone
	case "hold-input":
		return boolInt(c.opts.holdInput), value.ErrNone
	case "disable-oob":
		return boolInt(c.opts.disableOOB), value.ErrNone
	case "client-echo":
		return boolInt(c.opts.clientEcho), value.ErrNone
	case "flush-command":
		return value.Str(c.opts.flushCmd), value.ErrNone
	case "intrinsic-commands":
		out := value.List{}
		for name := range c.opts.intrinsics {
			out = append(out, value.Str(name))
		}
		return out, value.ErrNone
	case "buffered-output-length":
		return value.Int(c.out.Len()), value.ErrNone
	}
	return nil, value.ErrInvArg
}

// OptionPairs renders the whole options record as {name, value} pairs.
func (c *Connection) OptionPairs() value.List {
	out := value.List{}
	for _, name := range []string{"binary", "hold-input", "disable-oob", "client-echo", "flush-command", "intrinsic-commands"} {
		v, _ := c.GetOption(name)
		out = append(out, value.List{value.Str(name), v})
	}
	return out
}

// armWatchdog starts the login timeout: an unauthenticated connection is
// closed after connect_timeout seconds.
func (c *Connection) armWatchdog(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchdog = time.AfterFunc(timeout, func() {
		if c.Player() >= 0 {
			return
		}
		for _, line := range c.srv.messages("timeout_msg", "*** Timed-out waiting for login. ***") {
			c.Notify(line)
		}
		c.srv.bootConnection(c)
	})
}

func (c *Connection) disarmWatchdog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

// markClosed flips the terminal disconnect signal.
func (c *Connection) markClosed() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		c.readerWait.Broadcast()
		c.holdWait.Broadcast()
	})
}

// IsClosed reports whether the connection has been torn down.
func (c *Connection) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func boolInt(b bool) value.Value {
	if b {
		return value.Int(1)
	}
	return value.Int(0)
}
