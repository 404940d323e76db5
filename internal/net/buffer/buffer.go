package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxVarIntBytes is the longest legal varint encoding. A 32-bit value never
// needs more than 5 bytes of 7 data bits each.
const MaxVarIntBytes = 5

var (
	// ErrMalformedVarint reports a varint whose continuation bits run past
	// the allowed byte count.
	ErrMalformedVarint = errors.New("malformed varint")
	// ErrPayloadTooLarge reports a string or byte array whose length cannot
	// be represented within the configured varint weight.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrBufferUnderrun reports a read past the end of the buffer.
	ErrBufferUnderrun = errors.New("buffer underrun")
)

// Buffer is a byte cursor for packet fields. Writes append at the end, reads
// advance an independent read offset. All multi-byte values are big-endian,
// matching the wire format.
type Buffer struct {
	data []byte
	r    int
}

// New returns an empty Buffer ready for writing.
func New() *Buffer {
	return &Buffer{data: make([]byte, 0, 64)}
}

// From wraps an existing payload for reading. The slice is not copied.
func From(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the written content.
func (b *Buffer) Bytes() []byte { return b.data }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.r }

func (b *Buffer) need(n int) error {
	if b.r+n > len(b.data) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferUnderrun, n, len(b.data)-b.r)
	}
	return nil
}

// ── Fixed-width writes ─────────────────────────────────────────────

func (b *Buffer) WriteUint8(v uint8) {
	b.data = append(b.data, v)
}

func (b *Buffer) WriteUint16(v uint16) {
	b.data = binary.BigEndian.AppendUint16(b.data, v)
}

func (b *Buffer) WriteInt16(v int16) {
	b.data = binary.BigEndian.AppendUint16(b.data, uint16(v))
}

func (b *Buffer) WriteInt32(v int32) {
	b.data = binary.BigEndian.AppendUint32(b.data, uint32(v))
}

func (b *Buffer) WriteInt64(v int64) {
	b.data = binary.BigEndian.AppendUint64(b.data, uint64(v))
}

// WriteUUID writes a 128-bit identifier as two big-endian 64-bit halves.
func (b *Buffer) WriteUUID(u uuid.UUID) {
	b.data = append(b.data, u[:]...)
}

// WriteRaw appends bytes with no length prefix.
func (b *Buffer) WriteRaw(p []byte) {
	b.data = append(b.data, p...)
}

// ── Fixed-width reads ──────────────────────────────────────────────

func (b *Buffer) ReadUint8() (uint8, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.data[b.r]
	b.r++
	return v, nil
}

func (b *Buffer) ReadUint16() (uint16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.data[b.r:])
	b.r += 2
	return v, nil
}

func (b *Buffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *Buffer) ReadInt32() (int32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.data[b.r:])
	b.r += 4
	return int32(v), nil
}

func (b *Buffer) ReadInt64() (int64, error) {
	if err := b.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(b.data[b.r:])
	b.r += 8
	return int64(v), nil
}

// ReadUUID reads a 128-bit identifier written as two 64-bit halves.
func (b *Buffer) ReadUUID() (uuid.UUID, error) {
	var u uuid.UUID
	if err := b.need(16); err != nil {
		return u, err
	}
	copy(u[:], b.data[b.r:])
	b.r += 16
	return u, nil
}

// ReadRaw reads exactly n bytes with no length prefix.
func (b *Buffer) ReadRaw(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrBufferUnderrun, n)
	}
	if err := b.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[b.r:])
	b.r += n
	return out, nil
}

// ── Varints ────────────────────────────────────────────────────────

// VarIntSize returns the exact number of bytes WriteVarInt emits for v.
func VarIntSize(v int32) int {
	n := 1
	for u := uint32(v); u >= 0x80; u >>= 7 {
		n++
	}
	return n
}

// WriteVarInt writes v as little-endian groups of 7 data bits, high bit set
// on every byte except the last.
func (b *Buffer) WriteVarInt(v int32) {
	u := uint32(v)
	for u >= 0x80 {
		b.data = append(b.data, byte(u)|0x80)
		u >>= 7
	}
	b.data = append(b.data, byte(u))
}

// ReadVarInt decodes a varint of at most MaxVarIntBytes bytes.
func (b *Buffer) ReadVarInt() (int32, error) {
	return b.ReadVarIntMax(MaxVarIntBytes)
}

// ReadVarIntMax decodes a varint consuming at most maxBytes bytes. Exceeding
// the cap fails with ErrMalformedVarint and the error is not recoverable:
// the cursor stops inside the malformed encoding.
func (b *Buffer) ReadVarIntMax(maxBytes int) (int32, error) {
	if maxBytes > MaxVarIntBytes {
		maxBytes = MaxVarIntBytes
	}
	var result uint32
	for count := 0; ; count++ {
		if count >= maxBytes {
			return 0, fmt.Errorf("%w: more than %d bytes", ErrMalformedVarint, maxBytes)
		}
		in, err := b.ReadUint8()
		if err != nil {
			return 0, err
		}
		result |= uint32(in&0x7f) << (count * 7)
		if in&0x80 == 0 {
			break
		}
	}
	return int32(result), nil
}

// ── Length-prefixed strings and arrays ─────────────────────────────

// WriteString writes a UTF-8 string prefixed with its byte length as a
// varint of unrestricted weight.
func (b *Buffer) WriteString(s string) {
	b.WriteVarInt(int32(len(s)))
	b.data = append(b.data, s...)
}

// WriteStringMax writes s only if its byte-length varint fits in weight
// bytes; otherwise it fails with ErrPayloadTooLarge and writes nothing.
func (b *Buffer) WriteStringMax(s string, weight int) error {
	if VarIntSize(int32(len(s))) > weight {
		return fmt.Errorf("%w: string of %d bytes exceeds varint weight %d", ErrPayloadTooLarge, len(s), weight)
	}
	b.WriteString(s)
	return nil
}

// ReadString reads a varint-prefixed UTF-8 string.
func (b *Buffer) ReadString() (string, error) {
	return b.ReadStringMax(MaxVarIntBytes)
}

// ReadStringMax reads a string whose length prefix consumes at most weight
// bytes. This bounds the largest announceable allocation before any payload
// byte is trusted.
func (b *Buffer) ReadStringMax(weight int) (string, error) {
	length, err := b.ReadVarIntMax(weight)
	if err != nil {
		return "", err
	}
	raw, err := b.ReadRaw(int(length))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// WriteByteArray writes a varint length prefix followed by the bytes.
func (b *Buffer) WriteByteArray(p []byte) {
	b.WriteVarInt(int32(len(p)))
	b.data = append(b.data, p...)
}

// ReadByteArray reads a varint-prefixed byte array.
func (b *Buffer) ReadByteArray() ([]byte, error) {
	length, err := b.ReadVarInt()
	if err != nil {
		return nil, err
	}
	return b.ReadRaw(int(length))
}
