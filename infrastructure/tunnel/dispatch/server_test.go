package dispatch

import (
	"bytes"
	"fmt"
	"net/netip"
	"strings"
	"testing"

	"carbonvpn/application/tun"
	"carbonvpn/infrastructure/cryptography/envelope"
	"carbonvpn/infrastructure/network/wire"
	"carbonvpn/infrastructure/settings"
	"carbonvpn/infrastructure/tunnel/protocol"
	"carbonvpn/infrastructure/tunnel/session"
)

type fakeLogger struct {
	lines []string
}

func (f *fakeLogger) Printf(format string, v ...any) {
	f.lines = append(f.lines, fmt.Sprintf(format, v...))
}

func (f *fakeLogger) Debugf(format string, v ...any) { f.Printf(format, v...) }

func (f *fakeLogger) contains(substr string) bool {
	for _, line := range f.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type fakeDevice struct {
	packetInfo bool
	writes     [][]byte
}

func (f *fakeDevice) Read(p []byte) (int, error) { return 0, nil }

func (f *fakeDevice) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	f.writes = append(f.writes, buf)
	return len(p), nil
}

func (f *fakeDevice) Close() error     { return nil }
func (f *fakeDevice) Name() string     { return "tun0" }
func (f *fakeDevice) PacketInfo() bool { return f.packetInfo }

type fakeUdpListener struct {
	sent map[string][][]byte
}

func newFakeUdpListener() *fakeUdpListener {
	return &fakeUdpListener{sent: make(map[string][][]byte)}
}

func (f *fakeUdpListener) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	return 0, netip.AddrPort{}, nil
}

func (f *fakeUdpListener) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	buf := make([]byte, len(b))
	copy(buf, b)
	f.sent[addr.String()] = append(f.sent[addr.String()], buf)
	return len(b), nil
}

func (f *fakeUdpListener) Close() error { return nil }

func testSettings(t *testing.T) settings.Settings {
	t.Helper()
	ca, err := envelope.GenerateCA()
	if err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	id, err := envelope.IssueIdentity(ca)
	if err != nil {
		t.Fatalf("IssueIdentity: %v", err)
	}

	conf := settings.NewDefaultSettings()
	conf.CACert = ca.Cert
	conf.CAPublicKey = ca.PublicKey
	conf.Identity = id.Public
	conf.PrivateKey = id.Secret
	return conf
}

func newTestServer(t *testing.T, conf settings.Settings) (*Server, *fakeDevice, *fakeUdpListener, *fakeLogger) {
	t.Helper()
	device := &fakeDevice{}
	listener := newFakeUdpListener()
	log := &fakeLogger{}
	engine := protocol.NewServerEngine(conf, device, log)
	return NewUDPServer(conf, device, tun.L3, engine, listener, log), device, listener, log
}

func pingFrom(t *testing.T, addr string) inboundFrame {
	t.Helper()
	return inboundFrame{
		addr: netip.MustParseAddrPort(addr),
		h:    wire.Header{PacketCnt: 2047, Mode: wire.Ping},
	}
}

func TestServer_AdmitsDatagramSources(t *testing.T) {
	conf := testSettings(t)
	srv, _, listener, _ := newTestServer(t, conf)

	srv.handleFrame(pingFrom(t, "203.0.113.1:4000"))
	srv.handleFrame(pingFrom(t, "203.0.113.2:4000"))

	if srv.total != 2 || srv.pool.Live() != 2 {
		t.Fatalf("expected 2 admitted clients, got total=%d live=%d", srv.total, srv.pool.Live())
	}
	// Ping elicits a pingback on each new session.
	for _, addr := range []string{"203.0.113.1:4000", "203.0.113.2:4000"} {
		frames := listener.sent[addr]
		if len(frames) != 1 {
			t.Fatalf("expected one reply to %s, got %d", addr, len(frames))
		}
		h, _, err := wire.ParseDatagram(frames[0])
		if err != nil || h.Mode != wire.PingBack {
			t.Fatalf("expected PING_BACK to %s, got %v %v", addr, h.Mode, err)
		}
	}

	// A frame from a known source must reuse its session.
	srv.handleFrame(pingFrom(t, "203.0.113.1:4000"))
	if srv.total != 2 {
		t.Fatalf("known source must not be re-admitted, total=%d", srv.total)
	}
}

func TestServer_AdmissionCeiling(t *testing.T) {
	conf := testSettings(t)
	conf.MaxClients = 2
	srv, _, listener, log := newTestServer(t, conf)

	srv.handleFrame(pingFrom(t, "203.0.113.1:4000"))
	srv.handleFrame(pingFrom(t, "203.0.113.2:4000"))
	srv.handleFrame(pingFrom(t, "203.0.113.3:4000"))

	if srv.total != 2 {
		t.Fatalf("third client must be rejected, total=%d", srv.total)
	}
	if !log.contains("client rejected") {
		t.Fatal("expected a rejection log line")
	}
	// No reply, not even a NACK, goes back to the rejected source.
	if frames := listener.sent["203.0.113.3:4000"]; len(frames) != 0 {
		t.Fatalf("rejected client must get no reply, got %d frames", len(frames))
	}
}

func TestServer_HeartbeatEviction(t *testing.T) {
	conf := testSettings(t)
	srv, _, _, log := newTestServer(t, conf)

	srv.handleFrame(pingFrom(t, "203.0.113.1:4000"))
	sess := srv.byAddr[netip.MustParseAddrPort("203.0.113.1:4000")]
	if sess == nil {
		t.Fatal("session not admitted")
	}
	shared := captureKeys(t, sess)

	// An idle session survives HeartbeatTimeout ticks and is evicted on
	// the next one.
	for tick := 0; tick < session.HeartbeatTimeout+1; tick++ {
		srv.heartbeatTick()
	}

	if srv.total != 0 || srv.pool.Live() != 0 {
		t.Fatalf("expected eviction, total=%d live=%d", srv.total, srv.pool.Live())
	}
	if len(srv.byAddr) != 0 {
		t.Fatal("evicted session must leave the address map")
	}
	if !log.contains("dequeued due to timeout") {
		t.Fatal("expected an eviction log line")
	}
	if *shared != ([envelope.KeySize]byte{}) {
		t.Fatal("evicted session keys must be zeroed")
	}

	// Subsequent ticks must not reference the evicted session.
	srv.heartbeatTick()
}

// captureKeys gives the session a derived shared key and returns a handle
// for checking erasure.
func captureKeys(t *testing.T, sess *session.Session) *[envelope.KeySize]byte {
	t.Helper()
	peerPk, _, err := envelope.NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair: %v", err)
	}
	if err := sess.RotateEphemeral(); err != nil {
		t.Fatalf("RotateEphemeral: %v", err)
	}
	sess.DeriveShared(peerPk)
	return sess.SharedKey()
}

func TestServer_InboundFrameKeepsSessionAlive(t *testing.T) {
	conf := testSettings(t)
	srv, _, _, _ := newTestServer(t, conf)

	addr := "203.0.113.1:4000"
	srv.handleFrame(pingFrom(t, addr))

	for tick := 0; tick < 5; tick++ {
		srv.heartbeatTick()
		srv.handleFrame(pingFrom(t, addr))
	}
	if srv.total != 1 {
		t.Fatalf("an active session must survive, total=%d", srv.total)
	}
}

func TestServer_PoolRebuildBoundary(t *testing.T) {
	conf := testSettings(t)
	conf.MaxClients = 4
	srv, _, _, _ := newTestServer(t, conf)

	// Admit five clients across evictions so the backing grows past the
	// ceiling while only one stays live.
	for i := 1; i <= 5; i++ {
		srv.handleFrame(pingFrom(t, fmt.Sprintf("203.0.113.%d:4000", i)))
		if i < 5 {
			sess := srv.byAddr[netip.MustParseAddrPort(fmt.Sprintf("203.0.113.%d:4000", i))]
			srv.evict(sess)
		}
	}

	if srv.pool.Size() != 5 || srv.total != 1 {
		t.Fatalf("precondition failed: size=%d total=%d", srv.pool.Size(), srv.total)
	}

	// size > max_clients && size/2 > total -> rebuild on the next tick.
	srv.heartbeatTick()
	if srv.pool.Size() != 1 {
		t.Fatalf("expected compacted pool, size=%d", srv.pool.Size())
	}

	survivor := srv.byAddr[netip.MustParseAddrPort("203.0.113.5:4000")]
	if survivor == nil || srv.pool.Get(0) != survivor {
		t.Fatal("rebuild must keep the live session addressable")
	}
}

func TestServer_ForwardPacketRoutesBySource(t *testing.T) {
	conf := testSettings(t)
	srv, _, listener, _ := newTestServer(t, conf)

	srv.handleFrame(pingFrom(t, "203.0.113.1:4000"))
	srv.handleFrame(pingFrom(t, "203.0.113.2:4000"))
	first := srv.byAddr[netip.MustParseAddrPort("203.0.113.1:4000")]
	second := srv.byAddr[netip.MustParseAddrPort("203.0.113.2:4000")]

	first.SetAddr(netip.MustParseAddr("10.7.0.2"))
	second.SetAddr(netip.MustParseAddr("10.7.0.3"))
	keyBoth(t, first, second)

	// Drain handshake replies before measuring.
	listener.sent = make(map[string][][]byte)

	packet := ipv4Packet("10.7.0.2", "10.7.0.99")
	srv.forwardPacket(packet)

	if n := len(listener.sent["203.0.113.1:4000"]); n != 1 {
		t.Fatalf("expected one frame for the owning session, got %d", n)
	}
	if n := len(listener.sent["203.0.113.2:4000"]); n != 0 {
		t.Fatalf("other sessions must not receive the packet, got %d", n)
	}

	h, body, err := wire.ParseDatagram(listener.sent["203.0.113.1:4000"][0])
	if err != nil || h.Mode != wire.Stream {
		t.Fatalf("expected a STREAM frame, got %v %v", h.Mode, err)
	}
	plain, err := envelope.OpenStream(body, &h.Nonce, first.SharedKey())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if !bytes.Equal(plain, packet) {
		t.Fatal("sealed payload must be the verbatim tun read")
	}
}

func TestServer_ForwardPacketTapFansOut(t *testing.T) {
	conf := testSettings(t)
	device := &fakeDevice{}
	listener := newFakeUdpListener()
	log := &fakeLogger{}
	engine := protocol.NewServerEngine(conf, device, log)
	srv := NewUDPServer(conf, device, tun.L2, engine, listener, log)

	srv.handleFrame(pingFrom(t, "203.0.113.1:4000"))
	srv.handleFrame(pingFrom(t, "203.0.113.2:4000"))
	first := srv.byAddr[netip.MustParseAddrPort("203.0.113.1:4000")]
	second := srv.byAddr[netip.MustParseAddrPort("203.0.113.2:4000")]
	keyBoth(t, first, second)
	listener.sent = make(map[string][][]byte)

	// An Ethernet frame has no IPv4 source filter: everyone gets it.
	srv.forwardPacket([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x02, 0x00})

	if len(listener.sent["203.0.113.1:4000"]) != 1 || len(listener.sent["203.0.113.2:4000"]) != 1 {
		t.Fatal("layer-2 frames must fan out to all sessions")
	}
}

func TestServer_ForwardPacketSkipsUnkeyedSessions(t *testing.T) {
	conf := testSettings(t)
	srv, _, listener, _ := newTestServer(t, conf)

	srv.handleFrame(pingFrom(t, "203.0.113.1:4000"))
	sess := srv.byAddr[netip.MustParseAddrPort("203.0.113.1:4000")]
	sess.SetAddr(netip.MustParseAddr("10.7.0.2"))
	listener.sent = make(map[string][][]byte)

	srv.forwardPacket(ipv4Packet("10.7.0.2", "10.7.0.99"))

	if n := len(listener.sent["203.0.113.1:4000"]); n != 0 {
		t.Fatalf("unkeyed session must not receive stream frames, got %d", n)
	}
}

func keyBoth(t *testing.T, sessions ...*session.Session) {
	t.Helper()
	for _, sess := range sessions {
		captureKeys(t, sess)
	}
}

func ipv4Packet(src, dst string) []byte {
	packet := make([]byte, 28)
	packet[0] = 0x45
	srcAddr := netip.MustParseAddr(src).As4()
	dstAddr := netip.MustParseAddr(dst).As4()
	copy(packet[12:16], srcAddr[:])
	copy(packet[16:20], dstAddr[:])
	return packet
}

func TestServer_ShutdownClosesEverySession(t *testing.T) {
	conf := testSettings(t)
	srv, _, _, _ := newTestServer(t, conf)

	srv.handleFrame(pingFrom(t, "203.0.113.1:4000"))
	srv.handleFrame(pingFrom(t, "203.0.113.2:4000"))
	first := srv.byAddr[netip.MustParseAddrPort("203.0.113.1:4000")]
	shared := captureKeys(t, first)

	srv.shutdown()

	if srv.pool.Live() != 0 || srv.total != 0 || len(srv.byAddr) != 0 {
		t.Fatalf("shutdown must release everything: live=%d total=%d addrs=%d",
			srv.pool.Live(), srv.total, len(srv.byAddr))
	}
	if first.State() != session.StateClosed {
		t.Fatal("sessions must be closed on shutdown")
	}
	if *shared != ([envelope.KeySize]byte{}) {
		t.Fatal("keys must be zeroed on shutdown")
	}
}
