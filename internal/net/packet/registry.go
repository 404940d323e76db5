package packet

import (
	"fmt"
	"reflect"
)

// Factory produces a blank, mutable packet instance ready for Unmarshal.
type Factory func() Inbound

// Registry is the single source of truth for what a numeric id means while
// a connection is in a given state. It is built once at startup and
// read-only afterward, so lookups need no locking.
type Registry struct {
	inbound  map[ConnState]map[int32]Factory
	outbound map[ConnState]map[reflect.Type]int32
}

// NewRegistry registers every packet the protocol defines, in both
// directions, scoped by connection state.
func NewRegistry() *Registry {
	r := &Registry{
		inbound:  make(map[ConnState]map[int32]Factory),
		outbound: make(map[ConnState]map[reflect.Type]int32),
	}

	r.registerInbound(StateHandshake, 0x00, func() Inbound { return &Handshake{} })

	r.registerInbound(StateStatus, 0x00, func() Inbound { return &StatusRequest{} })
	r.registerOutbound(StateStatus, 0x00, &StatusResponse{})
	r.registerInbound(StateStatus, 0x01, func() Inbound { return &Ping{} })
	r.registerOutbound(StateStatus, 0x01, &Pong{})

	r.registerInbound(StateLogin, 0x00, func() Inbound { return &LoginStart{} })
	r.registerOutbound(StateLogin, 0x00, &Disconnect{})
	r.registerInbound(StateLogin, 0x01, func() Inbound { return &EncryptionResponse{} })
	r.registerOutbound(StateLogin, 0x01, &EncryptionRequest{})
	r.registerOutbound(StateLogin, 0x02, &LoginSuccess{})

	return r
}

func (r *Registry) registerInbound(state ConnState, id int32, f Factory) {
	row := r.inbound[state]
	if row == nil {
		row = make(map[int32]Factory)
		r.inbound[state] = row
	}
	if _, dup := row[id]; dup {
		panic(fmt.Sprintf("packet: duplicate inbound id 0x%02X in state %s", id, state))
	}
	row[id] = f
}

func (r *Registry) registerOutbound(state ConnState, id int32, p Outbound) {
	row := r.outbound[state]
	if row == nil {
		row = make(map[reflect.Type]int32)
		r.outbound[state] = row
	}
	t := reflect.TypeOf(p)
	if _, dup := row[t]; dup {
		panic(fmt.Sprintf("packet: duplicate outbound type %s in state %s", t, state))
	}
	row[t] = id
}

// Find resolves an inbound (state, id) pair to its factory. A miss is a
// protocol violation for the caller to handle, not an error here.
func (r *Registry) Find(state ConnState, id int32) (Factory, bool) {
	f, ok := r.inbound[state][id]
	return f, ok
}

// OutboundID returns the wire id for an outbound packet in the given state.
// An unregistered type means the registry is incomplete. That is a
// programming error with no recovery path, so it panics.
func (r *Registry) OutboundID(state ConnState, p Outbound) int32 {
	id, ok := r.outbound[state][reflect.TypeOf(p)]
	if !ok {
		panic(fmt.Sprintf("packet: %T is not registered outbound in state %s", p, state))
	}
	return id
}
