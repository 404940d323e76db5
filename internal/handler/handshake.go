package handler

import (
	"fmt"

	"github.com/railsgo/server/internal/net"
	"github.com/railsgo/server/internal/net/packet"
	"go.uber.org/zap"
)

// HandleHandshake adopts the client's requested next state and records the
// handshake metadata. A next state outside status/login is a protocol
// violation; the session is closed without a reply since no disconnect
// packet exists this early.
func HandleHandshake(s *net.Session, p *packet.Handshake, deps *Deps) error {
	next, ok := packet.StateFromID(p.NextState)
	if !ok {
		deps.Log.Warn("handshake with invalid next state",
			zap.Int32("next_state", p.NextState),
			zap.String("ip", s.IP),
		)
		s.Close()
		return nil
	}

	s.Protocol = p.Protocol
	s.Address = p.Address
	s.Port = p.Port
	s.SetState(next)

	deps.Log.Debug("handshake",
		zap.Int32("protocol", p.Protocol),
		zap.String("next_state", next.String()),
	)

	// Version enforcement only applies to clients trying to log in;
	// status pings from any client version are answered.
	if next == packet.StateLogin && p.Protocol != deps.Config.Server.ProtocolVersion {
		s.Disconnect(fmt.Sprintf("Outdated protocol %d, server speaks %d",
			p.Protocol, deps.Config.Server.ProtocolVersion))
	}
	return nil
}
