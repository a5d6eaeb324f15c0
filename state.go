package edgemq

import "fmt"

// State is a phase of the connection state machine.
//
// The machine cycles Open, Connect, Connack, Accepted, Establish, Close,
// Wait and back to Open for as long as Run is active.
type State int32

const (
	// StateOpen dials the transport.
	StateOpen State = iota
	// StateConnect sends CONNECT.
	StateConnect
	// StateConnack waits for the server's CONNACK.
	StateConnack
	// StateAccepted restores subscriptions and flushes queued publications.
	StateAccepted
	// StateEstablish is the steady state: read and dispatch packets.
	StateEstablish
	// StateClose releases the transport.
	StateClose
	// StateWait sleeps before the next attempt.
	StateWait
)

var stateNames = [...]string{
	StateOpen:      "OPEN",
	StateConnect:   "CONNECT",
	StateConnack:   "CONNACK",
	StateAccepted:  "ACCEPTED",
	StateEstablish: "ESTABLISH",
	StateClose:     "CLOSE",
	StateWait:      "WAIT",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}
