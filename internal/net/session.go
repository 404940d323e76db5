package net

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/railsgo/server/internal/event"
	"github.com/railsgo/server/internal/metrics"
	"github.com/railsgo/server/internal/net/buffer"
	"github.com/railsgo/server/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher routes a decoded inbound packet to the handler its type is
// paired with. Implemented by the handler package; declared here as an
// interface to avoid an import cycle.
type Dispatcher interface {
	Dispatch(s *Session, p packet.Inbound) error
}

// readBufSize is the chunk size for socket reads. Frames may span any
// number of chunks; the assembler reconciles them.
const readBufSize = 4096

// Session represents a single client connection. It owns all per-connection
// protocol state: the phase, the pending login claim, and the negotiated
// cipher. Socket reads and writes run in dedicated goroutines; everything
// else, including every handler invocation and every state mutation,
// happens on the session's processing goroutine, so none of it needs locks.
type Session struct {
	ID   uint64
	conn net.Conn

	// SessionID is the random per-session identifier string salted into
	// the session hash during the encryption handshake.
	SessionID string

	IP string

	// Pending login claim, set by LoginStart and consumed by the
	// encryption exchange. Processing-goroutine only.
	Username    string
	VerifyToken []byte

	// Handshake metadata, kept for logging and the version check.
	Protocol int32
	Address  string
	Port     uint16

	state atomic.Int32 // packet.ConnState

	srv       *Server
	assembler FrameAssembler
	cipher    *Cipher // nil until the handshake enables encryption
	limiter   *rate.Limiter

	inQueue  chan []byte // raw socket chunks, readLoop → processLoop
	outQueue chan []byte // wire-ready bytes, processLoop → writeLoop
	postC    chan func() // work handed back onto the processing goroutine

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	log *zap.Logger
}

func newSession(srv *Server, conn net.Conn, id uint64) *Session {
	s := &Session{
		ID:        id,
		conn:      conn,
		SessionID: randomSessionID(),
		IP:        conn.RemoteAddr().String(),
		srv:       srv,
		inQueue:   make(chan []byte, srv.cfg.InQueueSize),
		outQueue:  make(chan []byte, srv.cfg.OutQueueSize),
		postC:     make(chan func(), 16),
		closeCh:   make(chan struct{}),
		log:       srv.log.With(zap.Uint64("session", id)),
	}
	if srv.cfg.PacketsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(srv.cfg.PacketsPerSecond), srv.cfg.PacketsPerSecond)
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

// randomSessionID produces the per-session hash salt.
func randomSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the process is in far worse trouble
		// than one session id.
		panic(fmt.Sprintf("net: read random session id: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// State returns the session's current protocol phase.
func (s *Session) State() packet.ConnState {
	return packet.ConnState(s.state.Load())
}

// SetState advances the protocol phase. Transitions are monotonic and only
// the Handshake packet's handler calls this.
func (s *Session) SetState(st packet.ConnState) {
	s.state.Store(int32(st))
}

// Start launches the reader, processing, and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.processLoop()
	go s.writeLoop()
}

// Post hands fn back onto the session's processing goroutine. Background
// work (identity verification) uses this to mutate session state and send
// packets without racing frame processing.
func (s *Session) Post(fn func()) {
	select {
	case s.postC <- fn:
	case <-s.closeCh:
	}
}

// SendPacket resolves the packet's outbound id for the current state, gives
// listeners a chance to cancel it, serializes it, and queues the framed
// (and, once negotiated, encrypted) bytes for the writer. Called only from
// the processing goroutine.
func (s *Session) SendPacket(p packet.Outbound) error {
	if s.closed.Load() {
		return nil
	}

	id := s.srv.registry.OutboundID(s.State(), p)

	if s.srv.bus.FirePacket(s, p) {
		metrics.PacketsCancelled.Inc()
		s.log.Debug("outbound packet cancelled by listener", zap.String("packet", fmt.Sprintf("%T", p)))
		return nil
	}

	buf := buffer.New()
	buf.WriteVarInt(id)
	if err := p.Marshal(buf); err != nil {
		return fmt.Errorf("marshal %T: %w", p, err)
	}
	s.enqueue(s.encodeFrame(buf.Bytes()))
	metrics.PacketsOut.Inc()
	return nil
}

// Disconnect sends a Disconnect packet with the reason (where the protocol
// stage allows one) and closes once the writer has drained. Pre-handshake
// connections get a silent close: there is no packet to express a reason in
// that stage.
func (s *Session) Disconnect(reason string) {
	state := s.State()
	if state == packet.StateLogin {
		if err := s.SendPacket(&packet.Disconnect{Reason: reason}); err != nil {
			s.log.Debug("marshal disconnect", zap.Error(err))
		}
	}
	s.log.Info("disconnecting session",
		zap.String("state", state.String()),
		zap.String("reason", reason),
	)
	metrics.Disconnects.Inc()
	s.CloseAfterFlush()
}

// encodeFrame wraps a payload in its length prefix and runs the transport
// cipher over the result when encryption is enabled.
func (s *Session) encodeFrame(payload []byte) []byte {
	head := buffer.New()
	head.WriteVarInt(int32(len(payload)))
	out := append(head.Bytes(), payload...)
	if s.cipher != nil {
		s.cipher.Encrypt(out)
	}
	return out
}

// EnableEncryption switches the transport to AES/CFB8 with the negotiated
// shared secret. Every frame after this call is encrypted in both
// directions. Called only from the processing goroutine, between frames.
func (s *Session) EnableEncryption(secret []byte) error {
	c, err := NewCipher(secret)
	if err != nil {
		return err
	}
	s.cipher = c
	return nil
}

// enqueue hands wire-ready bytes to the writer. If the queue is full the
// peer is too slow and the session is dropped (backpressure).
func (s *Session) enqueue(data []byte) {
	select {
	case s.outQueue <- data:
	default:
		s.log.Warn("output queue full, dropping slow connection")
		s.Close()
	}
}

// CloseAfterFlush tells the writer to close the connection once everything
// queued so far has been written. A nil entry is the sentinel.
func (s *Session) CloseAfterFlush() {
	select {
	case s.outQueue <- nil:
	default:
		s.Close()
	}
}

// Close tears the session down: the connection handle is closed, the store
// entry is disposed, and no further packets are delivered for it.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
		s.srv.store.Remove(s.ID)
		metrics.ConnectionsActive.Dec()
		s.srv.bus.Fire(&event.DisconnectEvent{Session: s})
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop reads raw chunks from the socket and hands them to the
// processing goroutine. It knows nothing about frames or ciphers.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		if t := s.srv.cfg.ReadTimeout; t > 0 {
			s.conn.SetReadDeadline(time.Now().Add(t))
		}
		buf := make([]byte, readBufSize)
		n, err := s.conn.Read(buf)
		if n > 0 {
			select {
			case s.inQueue <- buf[:n]:
			case <-s.closeCh:
				return
			}
		}
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
	}
}

// processLoop is the session's worker context. It decrypts inbound chunks,
// reassembles frames, and dispatches them strictly in arrival order,
// interleaved with posted callbacks. All session state is owned here.
func (s *Session) processLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.inQueue:
			if s.cipher != nil {
				s.cipher.Decrypt(data)
			}
			s.assembler.Push(data)
			if !s.drainFrames() {
				return
			}
		case fn := <-s.postC:
			fn()
		case <-s.closeCh:
			return
		}
	}
}

// drainFrames dispatches every complete frame buffered so far. Returns
// false when the session must be dropped.
func (s *Session) drainFrames() bool {
	for {
		frame, ok, err := s.assembler.Next()
		if err != nil {
			s.log.Warn("corrupt frame stream", zap.Error(err))
			return false
		}
		if !ok {
			return true
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("packet rate exceeded, dropping connection")
			return false
		}
		if err := s.handleFrame(frame); err != nil {
			s.log.Warn("packet handling failed", zap.Error(err))
			return false
		}
		if s.closed.Load() {
			return false
		}
	}
}

// handleFrame decodes one frame and routes it: read the leading id, resolve
// (state, id) in the registry, let the blank packet deserialize itself,
// give listeners a chance to cancel delivery, then dispatch to the handler.
func (s *Session) handleFrame(frame []byte) error {
	metrics.PacketsIn.Inc()

	buf := buffer.From(frame)
	id, err := buf.ReadVarInt()
	if err != nil {
		return fmt.Errorf("read packet id: %w", err)
	}

	state := s.State()
	raw := packet.Unresolved{Session: s, ID: id, Buf: buf}

	factory, ok := s.srv.registry.Find(state, raw.ID)
	if !ok {
		metrics.UnknownPackets.Inc()
		s.log.Warn("unrecognised packet",
			zap.Int32("id", raw.ID),
			zap.String("state", state.String()),
		)
		if s.srv.cfg.DisconnectOnUnknown {
			return fmt.Errorf("unrecognised packet 0x%02X in state %s", raw.ID, state)
		}
		return nil
	}

	p := factory()
	if err := p.Unmarshal(raw.Buf); err != nil {
		return fmt.Errorf("decode %T: %w", p, err)
	}

	if s.srv.bus.FirePacket(s, p) {
		metrics.PacketsCancelled.Inc()
		s.log.Debug("inbound packet cancelled by listener", zap.String("packet", fmt.Sprintf("%T", p)))
		return nil
	}

	return s.safeDispatch(p)
}

// safeDispatch invokes the handler with panic recovery so a single bad
// packet never takes the process down, only its connection.
func (s *Session) safeDispatch(p packet.Inbound) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("handler panic recovered",
				zap.String("packet", fmt.Sprintf("%T", p)),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %T: %v", p, rec)
		}
	}()
	return s.srv.dispatcher.Dispatch(s, p)
}

// writeLoop writes queued wire bytes to the socket. A nil entry closes the
// connection after everything before it has drained.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.outQueue:
			if data == nil {
				return
			}
			if t := s.srv.cfg.WriteTimeout; t > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(t))
			}
			if _, err := s.conn.Write(data); err != nil {
				if !s.closed.Load() && !errors.Is(err, net.ErrClosed) {
					s.log.Debug("write error", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}
