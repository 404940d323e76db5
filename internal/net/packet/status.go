package packet

import "github.com/railsgo/server/internal/net/buffer"

// StatusRequest asks for the server-list status document. It has no fields.
type StatusRequest struct{}

func (p *StatusRequest) Unmarshal(b *buffer.Buffer) error { return nil }

// StatusResponse carries the status document as a JSON string. Its content
// is assembled by the status handler; this packet only frames it.
type StatusResponse struct {
	Status string
}

func (p *StatusResponse) Marshal(b *buffer.Buffer) error {
	return b.WriteStringMax(p.Status, buffer.MaxVarIntBytes)
}

// Ping carries a client-chosen timestamp the server must echo unchanged.
type Ping struct {
	Time int64
}

func (p *Ping) Unmarshal(b *buffer.Buffer) error {
	var err error
	p.Time, err = b.ReadInt64()
	return err
}

// Pong echoes the timestamp from the Ping that triggered it.
type Pong struct {
	Time int64
}

func (p *Pong) Marshal(b *buffer.Buffer) error {
	b.WriteInt64(p.Time)
	return nil
}
