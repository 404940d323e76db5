package packet

import "github.com/railsgo/server/internal/net/buffer"

// handshakeWeight caps the protocol and next-state varints: both are small
// enums and never need more than 2 bytes.
const handshakeWeight = 2

// Handshake is the first packet of every connection. The declared next
// state is adopted verbatim as the session's new protocol phase; it is the
// only packet permitted to change state.
type Handshake struct {
	Protocol  int32
	Address   string
	Port      uint16
	NextState int32
}

func (p *Handshake) Unmarshal(b *buffer.Buffer) error {
	var err error
	if p.Protocol, err = b.ReadVarIntMax(handshakeWeight); err != nil {
		return err
	}
	if p.Address, err = b.ReadString(); err != nil {
		return err
	}
	if p.Port, err = b.ReadUint16(); err != nil {
		return err
	}
	p.NextState, err = b.ReadVarIntMax(handshakeWeight)
	return err
}
