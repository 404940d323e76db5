// Package crypt holds the login handshake primitives: the server-wide RSA
// key pair, verify tokens, and the session hash sent to the identity
// verification service.
package crypt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidVerifyToken reports a round-tripped verify token that does not
// match the one the server issued. The session must be rejected.
var ErrInvalidVerifyToken = errors.New("invalid verify token")

// rsaBits matches the key size every protocol-47 client accepts.
const rsaBits = 1024

// KeyPair is the server's long-lived asymmetric key pair, generated once at
// startup and shared by every session.
type KeyPair struct {
	private *rsa.PrivateKey

	// PublicDER is the public half in X.509/PKIX DER encoding, the form
	// sent inside EncryptionRequest and fed into the session hash.
	PublicDER []byte
}

// GenerateKeyPair creates the server key pair. Failure here is
// startup-fatal: the server cannot run without it.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key pair: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	return &KeyPair{private: priv, PublicDER: der}, nil
}

// Decrypt recovers a client ciphertext (shared secret or verify token) with
// the server's private key.
func (kp *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, kp.private, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("rsa decrypt: %w", err)
	}
	return plain, nil
}

// Encrypt performs the client half of the exchange: encrypting data with an
// X.509-encoded public key.
func Encrypt(publicDER, data []byte) ([]byte, error) {
	key, err := x509.ParsePKIXPublicKey(publicDER)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not RSA", key)
	}
	out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, data)
	if err != nil {
		return nil, fmt.Errorf("rsa encrypt: %w", err)
	}
	return out, nil
}

// GenerateToken returns n random bytes for the anti-spoof verify token.
func GenerateToken(n int) ([]byte, error) {
	token := make([]byte, n)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// AuthDigest computes the session hash: SHA-1 over session id bytes, the
// shared secret, and the server public key, rendered as a signed
// hexadecimal integer string. The signed form (two's complement with a
// leading minus) is what the identity verification service expects.
func AuthDigest(sessionID string, secret, publicDER []byte) string {
	h := sha1.New()
	h.Write([]byte(sessionID))
	h.Write(secret)
	h.Write(publicDER)
	digest := h.Sum(nil)

	negative := digest[0]&0x80 != 0
	if negative {
		twosComplement(digest)
	}
	s := strings.TrimLeft(hex.EncodeToString(digest), "0")
	if s == "" {
		s = "0"
	}
	if negative {
		s = "-" + s
	}
	return s
}

func twosComplement(p []byte) {
	carry := true
	for i := len(p) - 1; i >= 0; i-- {
		p[i] = ^p[i]
		if carry {
			carry = p[i] == 0xff
			p[i]++
		}
	}
}
