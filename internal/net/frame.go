package net

import (
	"fmt"
	"io"

	"github.com/railsgo/server/internal/net/buffer"
)

// MaxFrameLen caps how much a single length prefix may announce. Anything
// larger is a protocol violation, not a real packet.
const MaxFrameLen = 1 << 21

// frameLenWeight bounds the length prefix to 3 varint bytes, enough for any
// frame up to MaxFrameLen.
const frameLenWeight = 3

// FrameAssembler turns an arbitrarily fragmented byte stream into discrete
// frames. A frame is a varint length prefix followed by that many payload
// bytes. Push may deliver any split of the stream; Next emits one complete
// frame per call and consumes nothing while a frame is still partial.
type FrameAssembler struct {
	buf []byte
}

// Push appends raw stream bytes to the pending window.
func (a *FrameAssembler) Push(p []byte) {
	a.buf = append(a.buf, p...)
}

// Pending returns the number of buffered, not-yet-framed bytes.
func (a *FrameAssembler) Pending() int { return len(a.buf) }

// Next returns the next complete frame payload, or (nil, false, nil) when
// more stream bytes are needed. The length prefix is stripped. On a
// malformed or oversized prefix the stream is unrecoverable and an error is
// returned.
func (a *FrameAssembler) Next() ([]byte, bool, error) {
	prefixLen, ok := completeVarInt(a.buf)
	if !ok {
		return nil, false, nil
	}

	length, err := buffer.From(a.buf).ReadVarIntMax(frameLenWeight)
	if err != nil {
		return nil, false, err
	}
	if length < 0 || length > MaxFrameLen {
		return nil, false, fmt.Errorf("invalid frame length: %d", length)
	}

	// Partial payload: leave every byte in place so the same prefix is
	// re-evaluated once more data arrives.
	if len(a.buf)-prefixLen < int(length) {
		return nil, false, nil
	}

	frame := make([]byte, length)
	copy(frame, a.buf[prefixLen:prefixLen+int(length)])
	a.buf = a.buf[:copy(a.buf, a.buf[prefixLen+int(length):])]
	return frame, true, nil
}

// completeVarInt reports whether buf starts with a full varint encoding and
// returns its byte count. Bounded by MaxVarIntBytes; a longer run is decided
// by ReadVarInt, which will reject it.
func completeVarInt(buf []byte) (int, bool) {
	for i := 0; i < len(buf) && i < buffer.MaxVarIntBytes; i++ {
		if buf[i]&0x80 == 0 {
			return i + 1, true
		}
	}
	return 0, len(buf) >= buffer.MaxVarIntBytes
}

// WriteFrame writes one frame to w: varint payload length, then the payload.
func WriteFrame(w io.Writer, payload []byte) error {
	head := buffer.New()
	head.WriteVarInt(int32(len(payload)))
	if _, err := w.Write(head.Bytes()); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload (%d bytes): %w", len(payload), err)
	}
	return nil
}
