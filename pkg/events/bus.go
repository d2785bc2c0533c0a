package events

import (
	"sync"

	"github.com/kruton/etamoo/pkg/value"
)

// Subscriber consumes events. Connections subscribe for the object they
// are bound to; taps observe the whole stream.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus routes player-addressed events from committed tasks and server code
// to the connection bound to each player object. A player has at most one
// binding at a time, mirroring the connection registry: binding a player
// displaces the previous subscriber and hands it back to the caller, which
// is how the login flow finds the older connection to redirect. Taps see
// every event regardless of addressing; the server hangs its logging and
// metrics off one.
type Bus struct {
	mu       sync.RWMutex
	bindings map[value.Obj]Subscriber
	taps     []Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{bindings: make(map[value.Obj]Subscriber)}
}

// Bind makes sub the sole receiver for a player's events and returns the
// subscriber it displaced, if any.
func (b *Bus) Bind(player value.Obj, sub Subscriber) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.bindings[player]
	b.bindings[player] = sub
	if prev == sub {
		return nil
	}
	return prev
}

// Unbind removes a player's binding, but only while it still belongs to
// sub: a displaced connection tearing itself down must not unbind its
// successor.
func (b *Bus) Unbind(player value.Obj, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bindings[player] == sub {
		delete(b.bindings, player)
	}
}

// Bound reports whether a live subscriber is bound for the player.
func (b *Bus) Bound(player value.Obj) bool {
	b.mu.RLock()
	sub := b.bindings[player]
	b.mu.RUnlock()
	return sub != nil && !sub.Closed()
}

// Tap registers an observer of every event.
func (b *Bus) Tap(sub Subscriber) {
	b.mu.Lock()
	b.taps = append(b.taps, sub)
	b.mu.Unlock()
}

// Emit delivers ev to the player's binding and to every tap. It reports
// whether a live binding received it, so callers can fall back when no one
// is listening (the task engine logs tracebacks it cannot deliver). A
// binding found closed is dropped on the way past.
func (b *Bus) Emit(ev Event) bool {
	b.mu.RLock()
	sub := b.bindings[ev.Player]
	taps := b.taps
	b.mu.RUnlock()

	delivered := false
	if sub != nil {
		if sub.Closed() {
			b.Unbind(ev.Player, sub)
		} else {
			sub.Receive(ev)
			delivered = true
		}
	}
	for _, tap := range taps {
		if !tap.Closed() {
			tap.Receive(ev)
		}
	}
	return delivered
}

// EmitLine addresses one text line to a player.
func (b *Bus) EmitLine(player value.Obj, line string) bool {
	return b.Emit(Event{Type: EvLine, Player: player, Line: line})
}

// EmitLines sends several lines in order; true only when every line
// reached a binding.
func (b *Bus) EmitLines(player value.Obj, lines []string) bool {
	ok := true
	for _, l := range lines {
		if !b.EmitLine(player, l) {
			ok = false
		}
	}
	return ok
}
