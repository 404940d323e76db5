package packet

import "github.com/railsgo/server/internal/net/buffer"

// maxUsernameWeight bounds the login name length prefix. Names are at most
// 16 characters; a single varint byte is already generous.
const maxUsernameWeight = 1

// LoginStart opens the login flow with the client's claimed username. The
// claim is not trusted until the encryption exchange and identity
// verification complete.
type LoginStart struct {
	Name string
}

func (p *LoginStart) Unmarshal(b *buffer.Buffer) error {
	var err error
	p.Name, err = b.ReadStringMax(maxUsernameWeight)
	return err
}

// EncryptionRequest asks the client to negotiate a transport key: the
// session id string (hash salt), the server's X.509-encoded public key, and
// a random verify token the client must echo back encrypted.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

func (p *EncryptionRequest) Marshal(b *buffer.Buffer) error {
	if err := b.WriteStringMax(p.ServerID, buffer.MaxVarIntBytes); err != nil {
		return err
	}
	b.WriteByteArray(p.PublicKey)
	b.WriteByteArray(p.VerifyToken)
	return nil
}

// EncryptionResponse carries the client's RSA ciphertexts: the shared
// symmetric secret and the round-tripped verify token.
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func (p *EncryptionResponse) Unmarshal(b *buffer.Buffer) error {
	var err error
	if p.SharedSecret, err = b.ReadByteArray(); err != nil {
		return err
	}
	p.VerifyToken, err = b.ReadByteArray()
	return err
}

// Disconnect tells the client why the server is dropping it. The transport
// closes the connection after the write drains.
type Disconnect struct {
	Reason string
}

func (p *Disconnect) Marshal(b *buffer.Buffer) error {
	return b.WriteStringMax(p.Reason, buffer.MaxVarIntBytes)
}

// LoginSuccess completes the login flow with the verified identity and
// moves the session to Play.
type LoginSuccess struct {
	UUID     string
	Username string
}

func (p *LoginSuccess) Marshal(b *buffer.Buffer) error {
	if err := b.WriteStringMax(p.UUID, buffer.MaxVarIntBytes); err != nil {
		return err
	}
	return b.WriteStringMax(p.Username, buffer.MaxVarIntBytes)
}
