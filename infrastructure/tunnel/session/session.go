package session

import (
	"net/netip"

	"carbonvpn/application/connection"
	"carbonvpn/infrastructure/cryptography/envelope"
	"carbonvpn/infrastructure/cryptography/mem"
)

// InitCounter seeds the per-session send counter; the peer observing it
// reach 1 triggers a re-key.
const InitCounter = 2048

// HeartbeatTimeout is the number of ticks a session survives without any
// inbound frame.
const HeartbeatTimeout = 2

// State tracks a session through the handshake.
type State uint8

const (
	StateNew State = iota
	StateAuthenticated
	StateKeyed
	StateActive
	StateClosed
)

// Session is one remote peer: its transport endpoint, identity and key
// material, counters and assigned tunnel address. All fields are owned by
// the dispatcher goroutine; Session does no locking.
type Session struct {
	index     int
	transport connection.Transport
	state     State

	// peerKey is the peer's long-term box public key, learned in HELLO.
	peerKey *[envelope.KeySize]byte
	// ephPublic/ephSecret are the local ephemeral keypair, rotated on
	// every key exchange.
	ephPublic *[envelope.KeySize]byte
	ephSecret *[envelope.KeySize]byte
	// shared is the precomputed AEAD key.
	shared *[envelope.KeySize]byte

	packetCnt uint32
	hbCnt     uint8
	// addr is the assigned tunnel address, used to route outbound
	// plaintext to this peer.
	addr netip.Addr
}

func NewSession(index int, transport connection.Transport) *Session {
	return &Session{
		index:     index,
		transport: transport,
		state:     StateNew,
		packetCnt: InitCounter,
		hbCnt:     HeartbeatTimeout,
	}
}

func (s *Session) Index() int                       { return s.index }
func (s *Session) Transport() connection.Transport  { return s.transport }
func (s *Session) State() State                     { return s.state }
func (s *Session) SetState(state State)             { s.state = state }
func (s *Session) Addr() netip.Addr                 { return s.addr }
func (s *Session) SetAddr(addr netip.Addr)          { s.addr = addr }
func (s *Session) PeerKey() *[envelope.KeySize]byte { return s.peerKey }

func (s *Session) SetPeerKey(key *[envelope.KeySize]byte) {
	s.peerKey = key
}

// RotateEphemeral installs a fresh local ephemeral keypair, erasing the
// previous secret.
func (s *Session) RotateEphemeral() error {
	publicKey, secretKey, err := envelope.NewKeyPair()
	if err != nil {
		return err
	}
	mem.ZeroKey(s.ephSecret)
	s.ephPublic, s.ephSecret = publicKey, secretKey
	return nil
}

func (s *Session) EphemeralPublic() *[envelope.KeySize]byte {
	return s.ephPublic
}

// DeriveShared precomputes the session AEAD key from the peer's ephemeral
// public key and the local ephemeral secret, replacing (and erasing) any
// previous shared key.
func (s *Session) DeriveShared(peerEphemeral *[envelope.KeySize]byte) {
	mem.ZeroKey(s.shared)
	s.shared = envelope.Precompute(peerEphemeral, s.ephSecret)
}

func (s *Session) SharedKey() *[envelope.KeySize]byte { return s.shared }

// NextCounter decrements the send counter and returns the remaining value,
// which is what goes on the wire.
func (s *Session) NextCounter() uint32 {
	s.packetCnt--
	return s.packetCnt
}

func (s *Session) Counter() uint32 { return s.packetCnt }

func (s *Session) ResetCounter() { s.packetCnt = InitCounter }

// TouchHeartbeat resets the liveness counter; called on every inbound frame.
func (s *Session) TouchHeartbeat() { s.hbCnt = HeartbeatTimeout }

// TickHeartbeat decrements the liveness counter on a heartbeat tick.
func (s *Session) TickHeartbeat() { s.hbCnt-- }

// Expired reports whether the session missed enough ticks to be evicted.
func (s *Session) Expired() bool { return s.hbCnt == 0 }

func (s *Session) Heartbeat() uint8 { return s.hbCnt }

// Close zeroes the session's sensitive key material and releases the
// transport. Safe to call more than once.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	mem.ZeroKey(s.shared)
	mem.ZeroKey(s.ephSecret)

	if s.transport != nil {
		return s.transport.Close()
	}
	return nil
}
