package protocol

import (
	"fmt"

	"carbonvpn/infrastructure/cryptography/envelope"
	"carbonvpn/infrastructure/network/wire"
	"carbonvpn/infrastructure/tunnel/session"
)

// writeFrame frames and sends one message, consuming one counter step.
func (e *Engine) writeFrame(s *session.Session, mode wire.Mode, nonce *[wire.NonceSize]byte, body []byte) error {
	h := wire.Header{
		PacketCnt: s.NextCounter(),
		Mode:      mode,
	}
	if nonce != nil {
		h.Nonce = *nonce
	}

	frame, err := wire.EncodeFrame(&h, body)
	if err != nil {
		return err
	}
	if _, err := s.Transport().Write(frame); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", mode, s.Transport().RemoteAddr(), err)
	}
	return nil
}

// SendClientHello opens the handshake with the local identity envelope.
func (e *Engine) SendClientHello(s *session.Session) error {
	return e.writeFrame(s, wire.ClientHello, nil, e.identity)
}

// SendPing emits a liveness probe.
func (e *Engine) SendPing(s *session.Session) error {
	return e.writeFrame(s, wire.Ping, nil, nil)
}

// SendStream seals one plaintext packet for the session. Sessions without
// a shared key are skipped.
func (e *Engine) SendStream(s *session.Session, packet []byte) error {
	shared := s.SharedKey()
	if shared == nil {
		return nil
	}

	nonce, err := envelope.NewNonce()
	if err != nil {
		return err
	}
	return e.writeFrame(s, wire.Stream, &nonce, envelope.SealStream(packet, &nonce, shared))
}

// InitiateRekey starts an ephemeral exchange: a fresh keypair sealed under
// the peer's long-term key. The counters reset once the exchange completes.
func (e *Engine) InitiateRekey(s *session.Session) error {
	if s.PeerKey() == nil {
		return nil
	}
	if err := s.RotateEphemeral(); err != nil {
		return fmt.Errorf("failed to rotate ephemeral key: %w", err)
	}
	return e.sendSealedEphemeral(s, wire.InitEphex)
}

func (e *Engine) sendSealedEphemeral(s *session.Session, mode wire.Mode) error {
	nonce, err := envelope.NewNonce()
	if err != nil {
		return err
	}
	sealed := envelope.SealEphemeral(s.EphemeralPublic(), &nonce, s.PeerKey(), e.privateKey)
	return e.writeFrame(s, mode, &nonce, sealed)
}
