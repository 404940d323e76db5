package event

// Priority orders bindings for one event type. Dispatch walks ascending
// values, so High runs before Normal runs before Low; Monitor always runs
// last and is meant for observation only.
type Priority int

const (
	High Priority = iota
	Normal
	Low
	Monitor
)

func (p Priority) String() string {
	switch p {
	case High:
		return "High"
	case Normal:
		return "Normal"
	case Low:
		return "Low"
	case Monitor:
		return "Monitor"
	default:
		return "Unknown"
	}
}

// Cancellable is implemented by events whose delivery can be vetoed by an
// earlier binding. Cancellation only has meaning before the dispatch that
// carries the event returns.
type Cancellable interface {
	Cancelled() bool
	SetCancelled(bool)
}

// Cancel is an embeddable cancellation flag.
type Cancel struct {
	cancelled bool
}

func (c *Cancel) Cancelled() bool     { return c.cancelled }
func (c *Cancel) SetCancelled(v bool) { c.cancelled = v }

// PacketEvent wraps a packet on its way in or out of a session so listeners
// can observe or cancel it. Session and Packet are opaque interfaces to
// avoid an import cycle with the net package; listeners subscribed via
// SubscribePacket know the concrete packet type already.
type PacketEvent struct {
	Cancel
	Session any
	Packet  any
}

// LoginEvent fires once a client's identity is settled, before the login
// success packet is sent. Cancelling it turns the client away.
type LoginEvent struct {
	Cancel
	Session  any
	Username string

	// Reason is the disconnect message used when the event is cancelled.
	Reason string
}

// DisconnectEvent fires when a session closes for any reason. Not
// cancellable; listeners use it for cleanup.
type DisconnectEvent struct {
	Session any
}
