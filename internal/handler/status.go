package handler

import (
	"fmt"

	"github.com/railsgo/server/internal/net"
	"github.com/railsgo/server/internal/net/packet"
)

// HandleStatusRequest answers a server list query with the advertised
// status document, substituting the live session count.
func HandleStatusRequest(s *net.Session, _ *packet.StatusRequest, deps *Deps) error {
	body, err := deps.Status.JSON(deps.Sessions.Len())
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}
	return s.SendPacket(&packet.StatusResponse{Status: body})
}

// HandlePing echoes the client's timestamp and closes once it is flushed;
// the status exchange is over after the pong.
func HandlePing(s *net.Session, p *packet.Ping, deps *Deps) error {
	if err := s.SendPacket(&packet.Pong{Time: p.Time}); err != nil {
		return err
	}
	s.CloseAfterFlush()
	return nil
}
