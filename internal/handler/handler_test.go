package handler

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	gnet "net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/railsgo/server/internal/config"
	"github.com/railsgo/server/internal/crypt"
	"github.com/railsgo/server/internal/data"
	"github.com/railsgo/server/internal/event"
	"github.com/railsgo/server/internal/identity"
	"github.com/railsgo/server/internal/net"
	"github.com/railsgo/server/internal/net/buffer"
	"github.com/railsgo/server/internal/net/packet"
	"github.com/railsgo/server/internal/task"
	"go.uber.org/zap"
)

type testServer struct {
	addr string
	bus  *event.Bus
	deps *Deps
	srv  *net.Server
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()

	keys, err := crypt.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{}
	cfg.Server.Name = "test"
	cfg.Server.ProtocolVersion = 47

	status, err := data.LoadStatusInfo(filepath.Join(t.TempDir(), "none.yml"), 47, "test")
	if err != nil {
		t.Fatal(err)
	}

	scheduler := task.NewScheduler(zap.NewNop())
	t.Cleanup(scheduler.Stop)

	bus := event.NewBus()
	deps := &Deps{
		Config:    cfg,
		Log:       zap.NewNop(),
		Keys:      keys,
		Status:    status,
		Scheduler: scheduler,
		Bus:       bus,
	}
	if mutate != nil {
		mutate(deps)
	}

	netCfg := net.Config{
		InQueueSize:  16,
		OutQueueSize: 32,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	srv, err := net.NewServer("127.0.0.1:0", netCfg, packet.NewRegistry(), bus, NewTable(deps), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	deps.Sessions = srv.Sessions()
	go srv.AcceptLoop()
	t.Cleanup(srv.Shutdown)

	return &testServer{addr: srv.Addr().String(), bus: bus, deps: deps, srv: srv}
}

// client drives the wire protocol from the peer's side of the socket.
type client struct {
	t         *testing.T
	conn      gnet.Conn
	assembler net.FrameAssembler
	cipher    *net.Cipher
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := gnet.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &client{t: t, conn: conn}
}

func (c *client) send(id int32, build func(*buffer.Buffer)) {
	c.t.Helper()
	b := buffer.New()
	b.WriteVarInt(id)
	if build != nil {
		build(b)
	}
	payload := b.Bytes()
	framed := buffer.New()
	framed.WriteVarInt(int32(len(payload)))
	framed.WriteRaw(payload)
	wire := framed.Bytes()
	if c.cipher != nil {
		c.cipher.Encrypt(wire)
	}
	if _, err := c.conn.Write(wire); err != nil {
		c.t.Fatal(err)
	}
}

// readFrame blocks until one complete frame arrives and returns its payload
// positioned after the packet id.
func (c *client) readFrame() (int32, *buffer.Buffer, error) {
	for {
		if frame, ok, err := c.assembler.Next(); err != nil {
			return 0, nil, err
		} else if ok {
			b := buffer.From(frame)
			id, err := b.ReadVarInt()
			return id, b, err
		}
		chunk := make([]byte, 4096)
		n, err := c.conn.Read(chunk)
		if n > 0 {
			if c.cipher != nil {
				c.cipher.Decrypt(chunk[:n])
			}
			c.assembler.Push(chunk[:n])
			continue
		}
		if err != nil {
			return 0, nil, err
		}
	}
}

func (c *client) mustReadFrame(wantID int32) *buffer.Buffer {
	c.t.Helper()
	id, b, err := c.readFrame()
	if err != nil {
		c.t.Fatal(err)
	}
	if id != wantID {
		c.t.Fatalf("packet id 0x%02X, want 0x%02X", id, wantID)
	}
	return b
}

func (c *client) handshake(protocol, next int32) {
	c.send(0x00, func(b *buffer.Buffer) {
		b.WriteVarInt(protocol)
		b.WriteString("localhost")
		b.WriteUint16(25565)
		b.WriteVarInt(next)
	})
}

func TestStatusExchange(t *testing.T) {
	ts := newTestServer(t, nil)
	c := dial(t, ts.addr)

	c.handshake(47, 1)
	c.send(0x00, nil) // status request

	body := c.mustReadFrame(0x00)
	raw, err := body.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	var status struct {
		Version struct {
			Protocol int32 `json:"protocol"`
		} `json:"version"`
		Players struct {
			Online int `json:"online"`
		} `json:"players"`
	}
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		t.Fatalf("status is not JSON: %v\n%s", err, raw)
	}
	if status.Version.Protocol != 47 {
		t.Errorf("protocol %d", status.Version.Protocol)
	}
	if status.Players.Online < 1 {
		t.Errorf("online %d, want at least this connection", status.Players.Online)
	}

	c.send(0x01, func(b *buffer.Buffer) { b.WriteInt64(123456789) })
	pong := c.mustReadFrame(0x01)
	if v, err := pong.ReadInt64(); err != nil || v != 123456789 {
		t.Fatalf("pong = %d, %v", v, err)
	}
}

func TestStatusFromOldClient(t *testing.T) {
	// Version enforcement must not apply to the status phase.
	ts := newTestServer(t, nil)
	c := dial(t, ts.addr)

	c.handshake(5, 1)
	c.send(0x00, nil)
	c.mustReadFrame(0x00)
}

func TestOutdatedProtocolLogin(t *testing.T) {
	ts := newTestServer(t, nil)
	c := dial(t, ts.addr)

	c.handshake(999, 2)
	body := c.mustReadFrame(0x00) // login disconnect
	reason, err := body.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reason, "Outdated protocol") {
		t.Errorf("reason %q", reason)
	}
}

func TestInvalidNextStateClosesSilently(t *testing.T) {
	ts := newTestServer(t, nil)
	c := dial(t, ts.addr)

	c.handshake(47, 9)
	if _, _, err := c.readFrame(); err == nil {
		t.Fatal("expected connection close, got a frame")
	}
}

func TestEncryptedLogin(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("username") != "Notch" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(`{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch"}`))
	}))
	defer auth.Close()

	ts := newTestServer(t, func(d *Deps) {
		d.Identity = identity.NewClient(auth.URL, time.Second)
	})
	c := dial(t, ts.addr)

	c.handshake(47, 2)
	c.send(0x00, func(b *buffer.Buffer) { b.WriteString("Notch") })

	req := c.mustReadFrame(0x01) // encryption request
	serverID, err := req.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	publicKey, err := req.ReadByteArray()
	if err != nil {
		t.Fatal(err)
	}
	token, err := req.ReadByteArray()
	if err != nil {
		t.Fatal(err)
	}
	if len(token) != 4 {
		t.Fatalf("verify token %d bytes", len(token))
	}
	if serverID == "" {
		t.Fatal("empty server id salt")
	}

	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatal(err)
	}
	encSecret, err := crypt.Encrypt(publicKey, secret)
	if err != nil {
		t.Fatal(err)
	}
	encToken, err := crypt.Encrypt(publicKey, token)
	if err != nil {
		t.Fatal(err)
	}
	c.send(0x01, func(b *buffer.Buffer) {
		b.WriteByteArray(encSecret)
		b.WriteByteArray(encToken)
	})

	// Everything from here on is ciphered with the shared secret.
	c.cipher, err = net.NewCipher(secret)
	if err != nil {
		t.Fatal(err)
	}

	success := c.mustReadFrame(0x02)
	uuidStr, err := success.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	name, err := success.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	if uuidStr != "069a79f4-44e9-4726-a5be-fca90e38aaf5" {
		t.Errorf("uuid %q", uuidStr)
	}
	if name != "Notch" {
		t.Errorf("name %q", name)
	}
}

func TestWrongVerifyTokenRejected(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		d.Identity = identity.NewClient("http://127.0.0.1:0", time.Second)
	})
	c := dial(t, ts.addr)

	c.handshake(47, 2)
	c.send(0x00, func(b *buffer.Buffer) { b.WriteString("Notch") })

	req := c.mustReadFrame(0x01)
	if _, err := req.ReadString(); err != nil {
		t.Fatal(err)
	}
	publicKey, err := req.ReadByteArray()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := req.ReadByteArray(); err != nil {
		t.Fatal(err)
	}

	secret := make([]byte, 16)
	encSecret, err := crypt.Encrypt(publicKey, secret)
	if err != nil {
		t.Fatal(err)
	}
	encToken, err := crypt.Encrypt(publicKey, []byte{9, 9, 9, 9})
	if err != nil {
		t.Fatal(err)
	}
	c.send(0x01, func(b *buffer.Buffer) {
		b.WriteByteArray(encSecret)
		b.WriteByteArray(encToken)
	})

	// The token fails before encryption turns on, so the disconnect
	// arrives in the clear.
	body := c.mustReadFrame(0x00)
	reason, err := body.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reason, "verify token") {
		t.Errorf("reason %q", reason)
	}
}

func TestUnverifiedLoginRejected(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer auth.Close()

	ts := newTestServer(t, func(d *Deps) {
		d.Identity = identity.NewClient(auth.URL, time.Second)
	})
	c := dial(t, ts.addr)

	c.handshake(47, 2)
	c.send(0x00, func(b *buffer.Buffer) { b.WriteString("ghost") })

	req := c.mustReadFrame(0x01)
	if _, err := req.ReadString(); err != nil {
		t.Fatal(err)
	}
	publicKey, err := req.ReadByteArray()
	if err != nil {
		t.Fatal(err)
	}
	token, err := req.ReadByteArray()
	if err != nil {
		t.Fatal(err)
	}

	secret := make([]byte, 16)
	encSecret, _ := crypt.Encrypt(publicKey, secret)
	encToken, _ := crypt.Encrypt(publicKey, token)
	c.send(0x01, func(b *buffer.Buffer) {
		b.WriteByteArray(encSecret)
		b.WriteByteArray(encToken)
	})

	c.cipher, err = net.NewCipher(secret)
	if err != nil {
		t.Fatal(err)
	}
	body := c.mustReadFrame(0x00)
	reason, err := body.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reason, "verify") {
		t.Errorf("reason %q", reason)
	}
}

func TestOfflineLogin(t *testing.T) {
	// No verifier: the claim is accepted and login completes without an
	// encryption exchange.
	ts := newTestServer(t, nil)
	c := dial(t, ts.addr)

	c.handshake(47, 2)
	c.send(0x00, func(b *buffer.Buffer) { b.WriteString("Steve") })

	success := c.mustReadFrame(0x02)
	if _, err := success.ReadString(); err != nil {
		t.Fatal(err)
	}
	name, err := success.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	if name != "Steve" {
		t.Errorf("name %q", name)
	}
}

func TestLoginEventCancellation(t *testing.T) {
	ts := newTestServer(t, nil)
	event.Subscribe[event.LoginEvent](ts.bus, t.Name(), event.High, false, func(ev *event.LoginEvent) {
		if ev.Username == "Banned" {
			ev.Reason = "You are banned"
			ev.SetCancelled(true)
		}
	})

	c := dial(t, ts.addr)
	c.handshake(47, 2)
	c.send(0x00, func(b *buffer.Buffer) { b.WriteString("Banned") })

	body := c.mustReadFrame(0x00)
	reason, err := body.ReadString()
	if err != nil {
		t.Fatal(err)
	}
	if reason != "You are banned" {
		t.Errorf("reason %q", reason)
	}
}

func TestInboundPacketCancellation(t *testing.T) {
	ts := newTestServer(t, nil)
	event.SubscribePacket[packet.StatusRequest](ts.bus, t.Name(), event.High, false, func(ev *event.PacketEvent) {
		ev.SetCancelled(true)
	})

	c := dial(t, ts.addr)
	c.handshake(47, 1)
	c.send(0x00, nil)

	// The request was swallowed, so no response may arrive before the
	// deadline.
	c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := c.readFrame(); err == nil {
		t.Fatal("cancelled request still answered")
	} else if !isTimeout(err) {
		t.Fatalf("got %v, want read timeout", err)
	}
}

func isTimeout(err error) bool {
	var nerr gnet.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF)
}

func TestHandshakeStateTransition(t *testing.T) {
	ts := newTestServer(t, nil)
	c := dial(t, ts.addr)

	// A status request before any handshake is an unknown id in the
	// handshake state; the default policy skips it, so the connection
	// stays open and a proper handshake still works.
	c.send(0x05, nil)
	c.handshake(47, 1)
	c.send(0x00, nil)
	c.mustReadFrame(0x00)

	if ts.srv.Sessions().Len() != 1 {
		t.Errorf("session count %d", ts.srv.Sessions().Len())
	}
}
