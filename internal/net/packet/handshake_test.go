package packet

import (
	"errors"
	"testing"

	"github.com/railsgo/server/internal/net/buffer"
)

func TestHandshakeUnmarshal(t *testing.T) {
	b := buffer.New()
	b.WriteVarInt(47)
	b.WriteString("play.example.net")
	b.WriteUint16(25565)
	b.WriteVarInt(2)

	var h Handshake
	if err := h.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if h.Protocol != 47 || h.Address != "play.example.net" || h.Port != 25565 || h.NextState != 2 {
		t.Errorf("decoded %+v", h)
	}
}

func TestHandshakeRejectsWideProtocol(t *testing.T) {
	// The protocol field is capped at two varint bytes; a three-byte
	// encoding is not a legal handshake.
	b := buffer.New()
	b.WriteVarInt(1 << 20)
	b.WriteString("host")
	b.WriteUint16(1)
	b.WriteVarInt(1)

	var h Handshake
	if err := h.Unmarshal(b); !errors.Is(err, buffer.ErrMalformedVarint) {
		t.Fatalf("got %v, want ErrMalformedVarint", err)
	}
}

func TestHandshakeTruncated(t *testing.T) {
	b := buffer.New()
	b.WriteVarInt(47)
	b.WriteString("host")

	var h Handshake
	if err := h.Unmarshal(b); !errors.Is(err, buffer.ErrBufferUnderrun) {
		t.Fatalf("got %v, want ErrBufferUnderrun", err)
	}
}
