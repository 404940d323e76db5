package packet

import "fmt"

// ConnState is the protocol phase scoping packet-id meaning. The same
// numeric id resolves to different packets in different states.
type ConnState int32

const (
	StateHandshake ConnState = iota
	StateStatus
	StateLogin
	StatePlay
)

func (s ConnState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateStatus:
		return "Status"
	case StateLogin:
		return "Login"
	case StatePlay:
		return "Play"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// StateFromID maps the Handshake packet's declared next-state value to a
// ConnState. Only 1 (Status) and 2 (Login) are defined by the protocol;
// anything else reports false and the caller must reject the connection.
func StateFromID(id int32) (ConnState, bool) {
	switch id {
	case 1:
		return StateStatus, true
	case 2:
		return StateLogin, true
	default:
		return StateHandshake, false
	}
}
