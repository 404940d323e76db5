package net

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Cipher is the per-session AES/CFB8 transport cipher negotiated by the
// encryption handshake. CFB8 feeds one ciphertext byte back into the shift
// register per step, so it needs no padding and can encrypt a stream byte
// by byte. It keeps a separate shift register per direction; both are
// seeded with the shared secret, which doubles as the IV.
type Cipher struct {
	block cipher.Block
	encSR []byte
	decSR []byte
}

// NewCipher builds the transport cipher from the negotiated shared secret.
// The secret must be a valid AES key length (16 bytes on the wire).
func NewCipher(secret []byte) (*Cipher, error) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("init transport cipher: %w", err)
	}
	return &Cipher{
		block: block,
		encSR: append([]byte(nil), secret...),
		decSR: append([]byte(nil), secret...),
	}, nil
}

// Encrypt encrypts data in place and returns it.
func (c *Cipher) Encrypt(data []byte) []byte {
	buf := make([]byte, aes.BlockSize)
	for i, b := range data {
		c.block.Encrypt(buf, c.encSR)
		cb := b ^ buf[0]
		data[i] = cb
		copy(c.encSR, c.encSR[1:])
		c.encSR[aes.BlockSize-1] = cb
	}
	return data
}

// Decrypt decrypts data in place and returns it.
func (c *Cipher) Decrypt(data []byte) []byte {
	buf := make([]byte, aes.BlockSize)
	for i, cb := range data {
		c.block.Encrypt(buf, c.decSR)
		data[i] = cb ^ buf[0]
		copy(c.decSR, c.decSR[1:])
		c.decSR[aes.BlockSize-1] = cb
	}
	return data
}
