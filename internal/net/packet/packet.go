package packet

import "github.com/railsgo/server/internal/net/buffer"

// Inbound is a client-to-server packet able to decode its own fields from a
// frame payload. Instances are created blank by a registry factory and do
// not outlive the request they represent.
type Inbound interface {
	Unmarshal(b *buffer.Buffer) error
}

// Outbound is a server-to-client packet able to encode its own fields.
type Outbound interface {
	Marshal(b *buffer.Buffer) error
}

// Unresolved is a decoded frame before its concrete packet type is known:
// the leading id has been read, the remaining payload has not. It exists
// only between the frame assembler and registry resolution.
//
// The session is carried as an opaque interface to avoid an import cycle
// with the net package.
type Unresolved struct {
	Session any
	ID      int32
	Buf     *buffer.Buffer
}
