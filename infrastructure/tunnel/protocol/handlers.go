package protocol

import (
	"carbonvpn/infrastructure/cryptography/envelope"
	"carbonvpn/infrastructure/network/ip"
	"carbonvpn/infrastructure/network/wire"
	"carbonvpn/infrastructure/tunnel/session"
)

// HandleFrame dispatches one parsed inbound frame for the given session.
// Crypto failures drop the frame without touching session state; only
// transport write failures and failures to generate a re-key keypair or
// nonce surface as errors.
func (e *Engine) HandleFrame(s *session.Session, h wire.Header, body []byte) error {
	// Any inbound frame proves liveness.
	s.TouchHeartbeat()
	e.log.Debugf("client %d: packet count %d", s.Index(), h.PacketCnt)

	var err error
	switch h.Mode {
	case wire.ClientHello:
		err = e.handleClientHello(s, body)
	case wire.ServerHello:
		err = e.handleServerHello(s, body)
	case wire.InitEphex:
		err = e.handleInitEphex(s, h, body)
	case wire.RespEphex:
		e.handleRespEphex(s, h, body)
	case wire.Stream:
		e.handleStream(s, h, body)
	case wire.Ping:
		err = e.writeFrame(s, wire.PingBack, nil, nil)
	case wire.PingBack:
		e.log.Printf("client %d: pingback heartbeat alive", s.Index())
	default:
		e.log.Debugf("client %d: request unknown, packet dropped", s.Index())
	}
	if err != nil {
		return err
	}

	// The peer's counter ran out: rotate keys now, within this callback.
	if e.server && h.PacketCnt == 1 {
		e.log.Printf("client %d: ephemeral keypair expired", s.Index())
		return e.InitiateRekey(s)
	}
	return nil
}

func (e *Engine) handleClientHello(s *session.Session, body []byte) error {
	if !e.server {
		e.log.Debugf("client %d: unexpected CLIENT_HELLO, packet dropped", s.Index())
		return nil
	}

	peerKey, err := envelope.VerifyIdentity(body, e.caPublicKey, e.caCert)
	if err != nil {
		e.log.Printf("client %d: authentication mismatch: %v", s.Index(), err)
		return nil
	}
	e.log.Printf("client %d: authentication verified", s.Index())

	s.SetPeerKey(peerKey)
	s.SetState(session.StateAuthenticated)

	addr, err := ip.NextAddr(e.router, s.Index())
	if err != nil {
		e.log.Printf("client %d: cannot assign address: %v", s.Index(), err)
		return nil
	}
	s.SetAddr(addr)

	hello := ServerHello{Identity: e.identity, Addr: addr, Netmask: e.netmask}
	payload, err := hello.MarshalBinary()
	if err != nil {
		e.log.Printf("client %d: cannot build server hello: %v", s.Index(), err)
		return nil
	}
	if err := e.writeFrame(s, wire.ServerHello, nil, payload); err != nil {
		return err
	}

	e.log.Printf("client %d: assigned %s", s.Index(), addr)
	return nil
}

func (e *Engine) handleServerHello(s *session.Session, body []byte) error {
	if e.server {
		e.log.Debugf("client %d: unexpected SERVER_HELLO, packet dropped", s.Index())
		return nil
	}

	var hello ServerHello
	if err := hello.UnmarshalBinary(body); err != nil {
		e.log.Printf("server hello rejected: %v", err)
		return nil
	}

	peerKey, err := envelope.VerifyIdentity(hello.Identity, e.caPublicKey, e.caCert)
	if err != nil {
		e.log.Printf("server authentication mismatch: %v", err)
		return nil
	}
	e.log.Printf("server authentication verified")

	s.SetPeerKey(peerKey)
	s.SetState(session.StateAuthenticated)
	s.SetAddr(hello.Addr)

	if e.configurator != nil {
		if err := e.configurator.Configure(hello.Addr.String(), hello.Netmask.String(), e.mtu); err != nil {
			e.log.Printf("cannot configure interface: %v", err)
			return nil
		}
	}
	e.log.Printf("assigned %s/%s", hello.Addr, hello.Netmask)

	// Addressing is in place; start the ephemeral exchange.
	return e.InitiateRekey(s)
}

// handleInitEphex answers an ephemeral key exchange, whether it opens a
// fresh session or re-keys an active one.
func (e *Engine) handleInitEphex(s *session.Session, h wire.Header, body []byte) error {
	if s.PeerKey() == nil {
		e.log.Debugf("client %d: ephemeral exchange before hello, packet dropped", s.Index())
		return nil
	}

	peerEphemeral, err := envelope.OpenEphemeral(body, &h.Nonce, s.PeerKey(), e.privateKey)
	if err != nil {
		e.log.Debugf("client %d: ephemeral key exchange failed", s.Index())
		return nil
	}

	if err := s.RotateEphemeral(); err != nil {
		e.log.Printf("client %d: cannot rotate ephemeral key: %v", s.Index(), err)
		return nil
	}
	s.DeriveShared(peerEphemeral)
	s.SetState(session.StateKeyed)
	e.log.Printf("client %d: ephemeral key exchanged", s.Index())

	if err := e.sendSealedEphemeral(s, wire.RespEphex); err != nil {
		return err
	}
	s.ResetCounter()
	return nil
}

func (e *Engine) handleRespEphex(s *session.Session, h wire.Header, body []byte) {
	if s.PeerKey() == nil || s.EphemeralPublic() == nil {
		e.log.Debugf("client %d: unsolicited RESP_EPHEX, packet dropped", s.Index())
		return
	}

	peerEphemeral, err := envelope.OpenEphemeral(body, &h.Nonce, s.PeerKey(), e.privateKey)
	if err != nil {
		e.log.Debugf("client %d: ephemeral key exchange failed", s.Index())
		return
	}

	s.DeriveShared(peerEphemeral)
	s.SetState(session.StateKeyed)
	s.ResetCounter()
	e.log.Printf("client %d: ephemeral key exchanged", s.Index())
}

func (e *Engine) handleStream(s *session.Session, h wire.Header, body []byte) {
	plaintext, err := envelope.OpenStream(body, &h.Nonce, s.SharedKey())
	if err != nil {
		e.log.Debugf("client %d: unable to decrypt packet", s.Index())
		return
	}
	s.SetState(session.StateActive)

	n, err := e.tunWriter.Write(plaintext)
	if err != nil {
		e.log.Printf("client %d: cannot write device: %v", s.Index(), err)
		return
	}
	e.log.Debugf("client %d: wrote %d bytes to tun", s.Index(), n)
}
