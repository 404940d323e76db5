package net

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/railsgo/server/internal/event"
	"github.com/railsgo/server/internal/metrics"
	"github.com/railsgo/server/internal/net/packet"
	"go.uber.org/zap"
)

// Config carries the per-connection tuning knobs the server hands each
// session it creates.
type Config struct {
	InQueueSize  int
	OutQueueSize int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// PacketsPerSecond caps the sustained inbound packet rate per session.
	// Zero disables the limiter.
	PacketsPerSecond int

	// DisconnectOnUnknown drops a session that sends a packet id the
	// registry does not know for its state. Off, the packet is logged and
	// skipped.
	DisconnectOnUnknown bool
}

// Server accepts TCP connections and creates Sessions. Protocol behaviour
// lives in the registry, the event bus, and the dispatcher; the server only
// owns the listener and the session table.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64

	cfg        Config
	registry   *packet.Registry
	bus        *event.Bus
	dispatcher Dispatcher
	store      *SessionStore

	log     *zap.Logger
	closeCh chan struct{}
}

func NewServer(bindAddr string, cfg Config, registry *packet.Registry, bus *event.Bus, dispatcher Dispatcher, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:   ln,
		cfg:        cfg,
		registry:   registry,
		bus:        bus,
		dispatcher: dispatcher,
		store:      NewSessionStore(),
		log:        log,
		closeCh:    make(chan struct{}),
	}, nil
}

// Bus exposes the event bus for handlers that need to fire their own
// events from a session callback.
func (s *Server) Bus() *event.Bus { return s.bus }

// Sessions exposes the live session table.
func (s *Server) Sessions() *SessionStore { return s.store }

// AcceptLoop runs in its own goroutine. It accepts connections, creates
// sessions, and starts their goroutines. It returns when Shutdown closes
// the listener.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}

		id := s.nextID.Add(1)
		sess := newSession(s, conn, id)
		s.store.Add(sess)
		metrics.ConnectionsTotal.Inc()
		metrics.ConnectionsActive.Inc()
		sess.Start()

		s.log.Info("client connected",
			zap.Uint64("session", id),
			zap.String("ip", sess.IP),
		)
	}
}

// Shutdown stops accepting new connections and closes every live session.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
	for _, sess := range s.store.All() {
		sess.Close()
	}
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
