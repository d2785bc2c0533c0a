package server

import (
	"log"
	"strings"

	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/events"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// drive is the per-connection command dispatch loop: it pulls decoded
// input items and routes each one as out-of-band, reader wakeup, login or
// command.
func (s *Server) drive(c *Connection) {
	clientClosed := true
	for item := range c.in {
		if item.EOF {
			c.mu.Lock()
			booted := c.booted
			c.mu.Unlock()
			clientClosed = !booted
			break
		}

		if item.Binary {
			s.deliverBinary(c, item.Data)
			continue
		}
		line := item.Line

		c.mu.Lock()
		disableOOB := c.opts.disableOOB
		c.mu.Unlock()
		if !disableOOB {
			if strings.HasPrefix(line, oobPrefix) {
				// OOB lines dispatch immediately: they never wake a reader
				// and never wait on hold-input.
				s.dispatchOOB(c, line)
				continue
			}
			if strings.HasPrefix(line, oobEscPrefix) {
				line = line[len(oobEscPrefix):]
			}
		}

		if rd := c.takeReader(); rd != nil {
			rd <- gamedb.ReadEvent{Line: line}
			continue
		}

		if !c.waitHoldCleared() {
			break
		}

		if c.Player() < 0 {
			s.runLogin(c, line)
		} else {
			s.runCommand(c, line)
		}
		if s.Metrics != nil {
			s.Metrics.CommandProcessed()
		}
	}
	s.dropConnection(c, clientClosed)
}

// deliverBinary hands a binary-mode chunk to the pending reader as a
// binary string, waiting for a reader to arrive if none is attached yet.
func (s *Server) deliverBinary(c *Connection, data []byte) {
	for {
		if rd := c.takeReader(); rd != nil {
			rd <- gamedb.ReadEvent{Line: string(value.EncodeBinary(data))}
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.readerWait.Wait()
		c.mu.Unlock()
	}
}

// waitHoldCleared blocks while hold-input is set; false means the
// connection closed while held.
func (c *Connection) waitHoldCleared() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.opts.holdInput && !c.closed {
		c.holdWait.Wait()
	}
	return !c.closed
}

// dispatchOOB routes a #$# line to $do_out_of_band_command.
func (s *Server) dispatchOOB(c *Connection, line string) {
	words := splitWords(line)
	args := make(value.List, 0, len(words)+1)
	for _, w := range words {
		args = append(args, value.Str(w))
	}
	args = append(args, value.Str(line))
	s.callSystemVerb(c.Player(), c.listener, "do_out_of_band_command", args)
}

// runLogin feeds one pre-authentication line through $do_login_command and
// binds the connection when it returns a player.
func (s *Server) runLogin(c *Connection, line string) {
	words := splitWords(line)
	args := make(value.List, len(words))
	for i, w := range words {
		args[i] = value.Str(w)
	}

	listener := c.listener
	if !s.World.Valid(listener) {
		listener = gamedb.SystemObject
	}
	connID := c.Player()
	fr := &eval.Frame{
		Perms:    gamedb.SystemObject,
		Debug:    true,
		VerbName: "do_login_command",
		This:     listener,
		Player:   connID,
		VerbLoc:  listener,
	}
	eval.InitVerbEnv(fr, args, connID)

	t := s.Sched.NewTask(gamedb.SystemObject, connID, listener, fr, func(ctx *eval.Context) (value.Value, error) {
		maxBefore := ctx.World.MaxObject()
		res, err := ctx.CallVerb(listener, "do_login_command", args)
		if err != nil {
			if exc, isExc := err.(*eval.Exception); isExc && value.Equal(exc.Code, value.Err(value.ErrVerbNF)) {
				// No login verb in the world yet; stay unauthenticated.
				return value.Int(0), nil
			}
			return nil, err
		}
		player, ok := loginResult(res)
		if !ok || !ctx.World.Valid(player) || !ctx.World.IsPlayer(player) {
			return value.Int(0), nil
		}
		s.bindPlayer(ctx, c, listener, player, player > maxBefore)
		return value.Int(1), nil
	})
	s.Sched.StartSync(t, true)
}

// loginResult interprets $do_login_command's return: a {max_object, player}
// list, or a bare player object.
func loginResult(res value.Value) (value.Obj, bool) {
	switch v := res.(type) {
	case value.Obj:
		if v >= 0 {
			return v, true
		}
	case value.List:
		if len(v) == 2 {
			if p, ok := v[1].(value.Obj); ok && p >= 0 {
				return p, true
			}
		}
	}
	return value.Nothing, false
}

// bindPlayer attaches the connection to its player object, redirecting any
// older connection that owns it, and fires the appropriate user_* hook.
// Runs inside the login task's attempt.
func (s *Server) bindPlayer(ctx *eval.Context, c *Connection, listener, player value.Obj, created bool) {
	w := ctx.World
	oldID := c.Player()

	hook := "user_connected"
	if created {
		hook = "user_created"
	}
	if prev, exists := w.Connections[player]; exists && prev != gamedb.Connection(c) {
		hook = "user_reconnected"
		// The older connection loses the player: swap it back onto a fresh
		// unclaimed id and close it after the messages drain.
		old := prev.(*Connection)
		freshID := w.NextConnID()
		old.SetPlayer(freshID)
		delete(w.Connections, player)
		w.Connections[freshID] = old
		w.Events.Bind(freshID, old)
		fromMsg := w.Messages("redirect_from_msg")
		toMsg := w.Messages("redirect_to_msg")
		ctx.Defer(func() {
			// The displaced connection is no longer addressable by the
			// player, so its goodbye goes to it directly.
			for _, l := range fromMsg {
				old.Notify(l)
			}
			for _, l := range toMsg {
				c.Notify(l)
			}
			s.bootConnection(old)
			w.Events.Emit(events.Event{Type: events.EvReconnect, Player: player})
		})
	}

	w.Events.Unbind(oldID, c)
	delete(w.Connections, oldID)
	c.SetPlayer(player)
	w.Connections[player] = c
	w.Events.Bind(player, c)

	var greeting []string
	switch hook {
	case "user_connected":
		greeting = w.Messages("connect_msg")
	case "user_created":
		greeting = w.Messages("create_msg")
	}

	ctx.Defer(func() {
		c.disarmWatchdog()
		w.Events.EmitLines(player, greeting)
		w.Events.Emit(events.Event{Type: events.EvConnect, Player: player})
	})

	if _, verb, _, ok := w.LookupVerb(listener, hook, false); ok && verb.Program != nil {
		if _, err := ctx.CallVerb(listener, hook, value.List{player}); err != nil {
			if _, isExc := err.(*eval.Exception); isExc {
				log.Printf("WARNING: $%s failed: %v", hook, err)
			}
		}
	}
}

// runCommand handles one in-band line from an authenticated connection:
// intrinsic commands run directly, everything else becomes a command task.
func (s *Server) runCommand(c *Connection, line string) {
	if s.handleProgramMode(c, line) {
		return
	}
	if s.handleIntrinsic(c, line) {
		return
	}

	player := c.Player()
	listener := c.listener
	if !s.World.Valid(listener) {
		listener = gamedb.SystemObject
	}
	pc := ParseCommand(line)
	if pc.Verb == "" {
		return
	}
	args := make(value.List, len(pc.Args))
	for i, w := range pc.Args {
		args[i] = value.Str(w)
	}

	c.mu.Lock()
	prefix, suffix := c.prefix, c.suffix
	c.mu.Unlock()
	if prefix != "" {
		c.Notify(prefix)
	}

	fr := &eval.Frame{
		Perms:    player,
		Debug:    true,
		VerbName: pc.Verb,
		This:     player,
		Player:   player,
		VerbLoc:  player,
	}
	eval.InitVerbEnv(fr, args, player)

	t := s.Sched.NewTask(player, player, listener, fr, func(ctx *eval.Context) (value.Value, error) {
		w := ctx.World

		// $do_command gets first refusal.
		allWords := append(value.List{value.Str(pc.Verb)}, args...)
		if _, verb, _, ok := w.LookupVerb(listener, "do_command", false); ok && verb.Program != nil {
			res, err := ctx.CallVerb(listener, "do_command", allWords)
			if err != nil {
				return nil, err
			}
			if res.Truthy() {
				return res, nil
			}
		}

		dobj := MatchObject(w, player, pc.Dobjstr)
		iobj := MatchObject(w, player, pc.Iobjstr)
		this, holder, verb, found := ResolveCommandVerb(w, player, pc, dobj, iobj)
		if !found {
			s.sayHuh(ctx, c, player, pc)
			return value.Int(0), nil
		}
		return s.runCommandVerb(ctx, c, pc, this, holder, verb, dobj, iobj, args)
	})
	s.Sched.StartSync(t, true)
	// The suffix delimiter follows everything the task's commit queued.
	if suffix != "" {
		c.Notify(suffix)
	}
}

// runCommandVerb invokes a matched command verb with the full command
// environment (dobj, prepstr and friends).
func (s *Server) runCommandVerb(ctx *eval.Context, c *Connection, pc ParsedCommand, this, holder value.Obj, verb *gamedb.Verb, dobj, iobj value.Obj, args value.List) (value.Value, error) {
	player := c.Player()
	fr := &eval.Frame{
		Perms:    verb.Owner,
		Debug:    verb.Perms&gamedb.VerbDebug != 0,
		VerbName: pc.Verb,
		VerbFull: verb.Names,
		This:     this,
		Player:   player,
		VerbLoc:  holder,
	}
	eval.InitVerbEnv(fr, args, player)
	fr.Vars["argstr"] = value.Str(pc.Argstr)
	fr.Vars["dobj"] = dobj
	fr.Vars["dobjstr"] = value.Str(pc.Dobjstr)
	fr.Vars["prepstr"] = value.Str(pc.Prepstr)
	fr.Vars["iobj"] = iobj
	fr.Vars["iobjstr"] = value.Str(pc.Iobjstr)

	if err := ctx.PushFrame(fr); err != nil {
		return nil, err
	}
	defer ctx.PopFrame()
	return ctx.RunProgram(verb.Program)
}

// sayHuh reports an unmatched command, through $huh when the player's
// location carries one.
func (s *Server) sayHuh(ctx *eval.Context, c *Connection, player value.Obj, pc ParsedCommand) {
	w := ctx.World
	if p := w.Get(player); p != nil && p.Location != value.Nothing {
		if _, verb, _, ok := w.LookupVerb(p.Location, "huh", false); ok && verb.Program != nil {
			allWords := append(value.List{value.Str(pc.Verb)}, stringsToList(pc.Args)...)
			if _, err := ctx.CallVerb(p.Location, "huh", allWords); err == nil {
				return
			}
		}
	}
	ctx.Defer(func() { w.Events.EmitLine(player, "I couldn't understand that.") })
}

func stringsToList(words []string) value.List {
	out := make(value.List, len(words))
	for i, w := range words {
		out[i] = value.Str(w)
	}
	return out
}

// dropConnection tears a connection down and fires the disconnect hook:
// user_disconnected when the client went away, user_client_disconnected
// when the server closed it.
func (s *Server) dropConnection(c *Connection, clientClosed bool) {
	c.markClosed()
	c.disarmWatchdog()

	// A task blocked in read() wakes with EOF.
	if rd := c.takeReader(); rd != nil {
		rd <- gamedb.ReadEvent{EOF: true}
	}

	player := c.Player()
	s.World.Attempt(func(tx *gamedb.Tx) error {
		delete(s.World.Connections, player)
		s.World.Events.Unbind(player, c)
		return nil
	})

	if player >= 0 {
		hook := "user_disconnected"
		if !clientClosed {
			hook = "user_client_disconnected"
		}
		listener := c.listener
		if !s.World.Valid(listener) {
			listener = gamedb.SystemObject
		}
		s.callSystemVerb(player, listener, hook, value.List{player})
	}
	s.World.Events.Emit(events.Event{Type: events.EvDisconnect, Player: player})

	c.out.Close()
}

// bootConnection closes a connection server-side: the output queue drains
// and the writer half shuts the socket.
func (s *Server) bootConnection(c *Connection) {
	c.mu.Lock()
	c.booted = true
	c.mu.Unlock()
	for _, line := range s.messages("boot_msg", "") {
		c.Notify(line)
	}
	s.World.Events.Emit(events.Event{Type: events.EvBoot, Player: c.Player()})
	// The writer half drains what is queued, then closes the socket,
	// which in turn stops the read loop and the driver.
	c.out.Close()
}
