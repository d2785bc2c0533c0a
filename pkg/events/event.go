// Package events is the post-commit delivery fabric between the world and
// the connections: committed tasks and server code emit events addressed
// to player objects, the connection bound to each player receives its
// output, and taps (logging, metrics) observe the whole stream.
package events

import "github.com/kruton/etamoo/pkg/value"

// EventType classifies events for subscribers that care about more than
// the text.
type EventType int

const (
	EvLine       EventType = iota // A text line for the client
	EvBinary                      // Raw bytes for a binary-mode client
	EvConnect                     // Player finished the login flow
	EvReconnect                   // Player redirected an older connection
	EvDisconnect                  // Connection went away
	EvBoot                        // Connection was booted server-side
)

func (t EventType) String() string {
	switch t {
	case EvLine:
		return "line"
	case EvBinary:
		return "binary"
	case EvConnect:
		return "connect"
	case EvReconnect:
		return "reconnect"
	case EvDisconnect:
		return "disconnect"
	case EvBoot:
		return "boot"
	default:
		return "unknown"
	}
}

// Event is one delivery addressed to a player object.
type Event struct {
	Type   EventType
	Player value.Obj
	Line   string
	Data   []byte // EvBinary payload
}
