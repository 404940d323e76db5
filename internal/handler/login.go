package handler

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/railsgo/server/internal/crypt"
	"github.com/railsgo/server/internal/event"
	"github.com/railsgo/server/internal/identity"
	"github.com/railsgo/server/internal/metrics"
	"github.com/railsgo/server/internal/net"
	"github.com/railsgo/server/internal/net/packet"
	"go.uber.org/zap"
)

// verifyTokenLen is the size of the random anti-spoof token round-tripped
// through the client's RSA encryption.
const verifyTokenLen = 4

// HandleLoginStart records the client's claimed name and opens the
// encryption exchange. With identity verification disabled the claim is
// accepted as-is and login completes immediately, unencrypted.
func HandleLoginStart(s *net.Session, p *packet.LoginStart, deps *Deps) error {
	if s.Username != "" {
		return fmt.Errorf("duplicate login start from %q", s.Username)
	}
	s.Username = p.Name

	if deps.Identity == nil {
		finishLogin(s, identity.OfflineProfile(p.Name), deps)
		return nil
	}

	token, err := crypt.GenerateToken(verifyTokenLen)
	if err != nil {
		return err
	}
	s.VerifyToken = token

	return s.SendPacket(&packet.EncryptionRequest{
		ServerID:    s.SessionID,
		PublicKey:   deps.Keys.PublicDER,
		VerifyToken: token,
	})
}

// HandleEncryptionResponse closes the encryption exchange: the token must
// round-trip intact, the shared secret becomes the transport key, and the
// claimed name goes to the identity service together with the session
// hash. Verification runs off the session goroutine; the result is posted
// back so login completion never races frame processing.
func HandleEncryptionResponse(s *net.Session, p *packet.EncryptionResponse, deps *Deps) error {
	if s.Username == "" || s.VerifyToken == nil {
		return fmt.Errorf("encryption response before login start")
	}

	token, err := deps.Keys.Decrypt(p.VerifyToken)
	if err != nil {
		return fmt.Errorf("decrypt verify token: %w", err)
	}
	if subtle.ConstantTimeCompare(token, s.VerifyToken) != 1 {
		metrics.LoginsFailed.Inc()
		deps.Log.Warn("verify token mismatch",
			zap.String("username", s.Username),
			zap.String("ip", s.IP),
			zap.Error(crypt.ErrInvalidVerifyToken),
		)
		// Disconnect instead of erroring out so the reason still
		// reaches the client before the writer closes.
		s.Disconnect("Invalid verify token")
		return nil
	}
	s.VerifyToken = nil

	secret, err := deps.Keys.Decrypt(p.SharedSecret)
	if err != nil {
		return fmt.Errorf("decrypt shared secret: %w", err)
	}
	if err := s.EnableEncryption(secret); err != nil {
		return err
	}

	hash := crypt.AuthDigest(s.SessionID, secret, deps.Keys.PublicDER)
	username := s.Username

	deps.Scheduler.Submit(func(ctx context.Context) {
		profile, err := deps.Identity.HasJoined(ctx, username, hash)
		s.Post(func() {
			if err != nil {
				metrics.LoginsFailed.Inc()
				deps.Log.Warn("identity verification failed",
					zap.String("username", username),
					zap.Error(err),
				)
				s.Disconnect("Failed to verify username")
				return
			}
			finishLogin(s, profile, deps)
		})
	})
	return nil
}

// finishLogin announces success and moves the session into play. Runs on
// the session's processing goroutine.
func finishLogin(s *net.Session, profile *identity.Profile, deps *Deps) {
	if s.IsClosed() {
		return
	}

	ev := &event.LoginEvent{Session: s, Username: profile.Name}
	deps.Bus.Fire(ev)
	if ev.Cancelled() {
		metrics.LoginsFailed.Inc()
		reason := ev.Reason
		if reason == "" {
			reason = "Login refused"
		}
		s.Disconnect(reason)
		return
	}

	s.Username = profile.Name
	if err := s.SendPacket(&packet.LoginSuccess{
		UUID:     profile.ID.String(),
		Username: profile.Name,
	}); err != nil {
		deps.Log.Error("send login success", zap.Error(err))
		s.Close()
		return
	}
	s.SetState(packet.StatePlay)
	metrics.LoginsSucceeded.Inc()

	deps.Log.Info("login complete",
		zap.String("username", profile.Name),
		zap.String("uuid", profile.ID.String()),
	)
}
