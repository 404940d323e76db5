// Package handler pairs each inbound packet type with the code that acts
// on it. The pairing is a compile-time type switch, so adding a packet
// without a handler (or the reverse) is caught in review, not at runtime
// by a reflection miss.
package handler

import (
	"context"
	"fmt"

	"github.com/railsgo/server/internal/config"
	"github.com/railsgo/server/internal/crypt"
	"github.com/railsgo/server/internal/data"
	"github.com/railsgo/server/internal/event"
	"github.com/railsgo/server/internal/identity"
	"github.com/railsgo/server/internal/net"
	"github.com/railsgo/server/internal/net/packet"
	"github.com/railsgo/server/internal/task"
	"go.uber.org/zap"
)

// Verifier vouches for a client's claimed name given the session hash.
// Satisfied by identity.Client; tests substitute their own.
type Verifier interface {
	HasJoined(ctx context.Context, username, sessionHash string) (*identity.Profile, error)
}

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Config    *config.Config
	Log       *zap.Logger
	Keys      *crypt.KeyPair
	Identity  Verifier // nil when verification is disabled
	Status    *data.StatusInfo
	Sessions  *net.SessionStore
	Scheduler *task.Scheduler
	Bus       *event.Bus
}

// Table implements net.Dispatcher over the packet families the server
// understands.
type Table struct {
	deps *Deps
}

func NewTable(deps *Deps) *Table {
	return &Table{deps: deps}
}

// Dispatch routes one decoded packet to its handler. The registry already
// scoped decoding by connection state, so a packet arriving here is legal
// for the session's current phase.
func (t *Table) Dispatch(s *net.Session, p packet.Inbound) error {
	switch p := p.(type) {
	case *packet.Handshake:
		return HandleHandshake(s, p, t.deps)
	case *packet.StatusRequest:
		return HandleStatusRequest(s, p, t.deps)
	case *packet.Ping:
		return HandlePing(s, p, t.deps)
	case *packet.LoginStart:
		return HandleLoginStart(s, p, t.deps)
	case *packet.EncryptionResponse:
		return HandleEncryptionResponse(s, p, t.deps)
	default:
		t.deps.Log.Warn("no handler for packet", zap.String("packet", fmt.Sprintf("%T", p)))
		return nil
	}
}
