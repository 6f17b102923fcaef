package dispatch

import (
	"context"
	"encoding/binary"
	"errors"
	"net/netip"
	"time"

	"golang.org/x/sync/errgroup"

	"carbonvpn/application/logging"
	"carbonvpn/application/tun"
	"carbonvpn/infrastructure/listeners/tcp_listener"
	"carbonvpn/infrastructure/listeners/udp_listener"
	"carbonvpn/infrastructure/network/ip"
	"carbonvpn/infrastructure/network/transport"
	"carbonvpn/infrastructure/network/wire"
	"carbonvpn/infrastructure/settings"
	"carbonvpn/infrastructure/tunnel/protocol"
	"carbonvpn/infrastructure/tunnel/session"
)

// Server is the server-side event core: one dispatcher goroutine owning the
// session pool, fed by the virtual-interface reader and the transport
// reader/acceptor. All session-state mutation happens on the dispatcher.
type Server struct {
	conf   settings.Settings
	device tun.Device
	layer  tun.Layer
	engine *protocol.Engine
	pool   *session.Pool
	log    logging.Debugger

	tcp tcp_listener.Listener
	udp udp_listener.Listener

	byAddr    map[netip.AddrPort]*session.Session
	total     int
	nextIndex int

	tunCh    chan []byte
	frameCh  chan inboundFrame
	acceptCh chan accepted
	closeCh  chan *session.Session
}

// NewTCPServer builds the event core for the stream transport.
func NewTCPServer(conf settings.Settings, device tun.Device, layer tun.Layer, engine *protocol.Engine, listener tcp_listener.Listener, log logging.Debugger) *Server {
	s := newServer(conf, device, layer, engine, log)
	s.tcp = listener
	return s
}

// NewUDPServer builds the event core for the datagram transport.
func NewUDPServer(conf settings.Settings, device tun.Device, layer tun.Layer, engine *protocol.Engine, listener udp_listener.Listener, log logging.Debugger) *Server {
	s := newServer(conf, device, layer, engine, log)
	s.udp = listener
	return s
}

func newServer(conf settings.Settings, device tun.Device, layer tun.Layer, engine *protocol.Engine, log logging.Debugger) *Server {
	return &Server{
		conf:      conf,
		device:    device,
		layer:     layer,
		engine:    engine,
		pool:      session.NewPool(conf.MaxClients),
		log:       log,
		byAddr:    make(map[netip.AddrPort]*session.Session),
		nextIndex: 1,
		tunCh:     make(chan []byte, 64),
		frameCh:   make(chan inboundFrame, 64),
		acceptCh:  make(chan accepted),
		closeCh:   make(chan *session.Session, 16),
	}
}

// Run blocks until ctx is cancelled or a fatal transport error occurs.
func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	// Closing the blocking sources is what unwinds the reader goroutines.
	go func() {
		<-ctx.Done()
		_ = s.device.Close()
		if s.tcp != nil {
			_ = s.tcp.Close()
		}
		if s.udp != nil {
			_ = s.udp.Close()
		}
	}()

	group.Go(func() error { return s.readDevice(ctx) })
	if s.udp != nil {
		s.log.Printf("using stateless connections")
		group.Go(func() error { return s.readDatagrams(ctx) })
	} else {
		s.log.Printf("using stateful connections")
		group.Go(func() error { return s.acceptStreams(ctx) })
	}
	group.Go(func() error { return s.dispatch(ctx) })

	return group.Wait()
}

// readDevice pumps plaintext packets from the virtual interface.
func (s *Server) readDevice(ctx context.Context) error {
	buf := make([]byte, settings.BufferSize)
	for {
		n, err := s.device.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n == 0 {
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])
		select {
		case s.tunCh <- packet:
		case <-ctx.Done():
			return nil
		}
	}
}

// readDatagrams pumps frames from the shared datagram socket.
func (s *Server) readDatagrams(ctx context.Context) error {
	buf := make([]byte, wire.HeaderSize+wire.MaxBodySize)
	for {
		n, addr, err := s.udp.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		h, body, parseErr := wire.ParseDatagram(buf[:n])
		if parseErr != nil {
			s.log.Debugf("invalid packet from %s, packet dropped", addr)
			continue
		}

		owned := make([]byte, len(body))
		copy(owned, body)
		select {
		case s.frameCh <- inboundFrame{addr: addr, h: h, body: owned}:
		case <-ctx.Done():
			return nil
		}
	}
}

// acceptStreams pumps accepted connections; admission happens on the
// dispatcher.
func (s *Server) acceptStreams(ctx context.Context) error {
	for {
		conn, err := s.tcp.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case s.acceptCh <- accepted{conn: conn}:
		case <-ctx.Done():
			_ = conn.Close()
			return nil
		}
	}
}

// readStream pumps frames from one accepted connection. Frames with a bad
// magic are dropped and reading goes on; a zero-byte read or any other
// error closes the session.
func (s *Server) readStream(ctx context.Context, sess *session.Session, conn accepted) {
	for {
		h, body, err := wire.ReadFrame(conn.conn)
		if errors.Is(err, wire.ErrBadMagic) {
			s.log.Debugf("client %d: invalid packet, packet dropped", sess.Index())
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				select {
				case s.closeCh <- sess:
				case <-ctx.Done():
				}
			}
			return
		}
		select {
		case s.frameCh <- inboundFrame{sess: sess, h: h, body: body}:
		case <-ctx.Done():
			return
		}
	}
}

// dispatch is the single goroutine owning all session state.
func (s *Server) dispatch(ctx context.Context) error {
	var tick <-chan time.Time
	if s.conf.HeartbeatInterval > 0 {
		ticker := time.NewTicker(s.conf.HeartbeatInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case packet := <-s.tunCh:
			s.forwardPacket(packet)
		case frame := <-s.frameCh:
			s.handleFrame(frame)
		case conn := <-s.acceptCh:
			s.admitStream(ctx, conn)
		case sess := <-s.closeCh:
			s.dropStream(sess)
		case <-tick:
			s.heartbeatTick()
		}
	}
}

// forwardPacket routes one plaintext packet from the virtual interface to
// every session owning its source address. Layer-2 frames skip the filter
// and fan out to all sessions. The packet is encrypted exactly as read,
// packet-info prefix included.
func (s *Server) forwardPacket(packet []byte) {
	s.log.Debugf("read %d bytes from tun", len(packet))

	tap := s.layer == tun.L2
	payload := packet
	if s.device.PacketInfo() && len(packet) >= 4 {
		if binary.BigEndian.Uint16(packet[:2])&tapFlag != 0 {
			tap = true
		}
		payload = packet[4:]
	}

	var src netip.Addr
	if !tap {
		var err error
		if src, err = ip.SourceAddr(payload); err != nil {
			s.log.Debugf("packet dropped: %v", err)
			return
		}
	}

	s.pool.ForEach(func(_ int, sess *session.Session) {
		if !tap && sess.Addr() != src {
			return
		}
		if err := s.engine.SendStream(sess, packet); err != nil {
			s.log.Printf("client %d: %v", sess.Index(), err)
		}
	})
}

// handleFrame routes one inbound frame to its session, admitting unknown
// datagram sources first.
func (s *Server) handleFrame(frame inboundFrame) {
	sess := frame.sess
	if sess == nil {
		sess = s.byAddr[frame.addr]
		if sess == nil {
			if s.total == s.conf.MaxClients {
				s.log.Printf("client rejected")
				s.log.Debugf("maximum number of clients reached")
				return
			}
			sess = s.admitDatagram(frame.addr)
		}
	}
	if sess.State() == session.StateClosed {
		return
	}
	if err := s.engine.HandleFrame(sess, frame.h, frame.body); err != nil {
		s.log.Printf("client %d: %v", sess.Index(), err)
	}
}

func (s *Server) admitDatagram(addr netip.AddrPort) *session.Session {
	sess := session.NewSession(s.nextIndex, transport.NewDatagramTransport(s.udp, addr))
	s.nextIndex++
	s.total++
	s.pool.Append(sess)
	s.byAddr[addr] = sess

	s.log.Printf("successfully connected with client")
	s.log.Printf("%d client(s) connected", s.total)
	return sess
}

// admitStream applies the admission ceiling to an accepted connection and
// starts its reader.
func (s *Server) admitStream(ctx context.Context, conn accepted) {
	if s.total == s.conf.MaxClients {
		s.log.Printf("client rejected")
		s.log.Debugf("maximum number of clients reached")
		_ = conn.conn.Close()
		return
	}

	sess := session.NewSession(s.nextIndex, transport.NewConnTransport(conn.conn))
	s.nextIndex++
	s.total++
	s.pool.Append(sess)

	s.log.Printf("successfully connected with client")
	s.log.Printf("%d client(s) connected", s.total)

	go s.readStream(ctx, sess, conn)
}

// dropStream handles a peer disconnect reported by a stream reader.
func (s *Server) dropStream(sess *session.Session) {
	if sess.State() == session.StateClosed {
		return
	}
	s.log.Printf("client %d: disconnected", sess.Index())
	s.evict(sess)
	s.log.Printf("%d client(s) connected", s.total)
}

// evict closes the session, zeroes its keys and releases its slot.
func (s *Server) evict(sess *session.Session) {
	_ = sess.Close()
	s.total--

	s.pool.ForEach(func(slot int, candidate *session.Session) {
		if candidate == sess {
			s.pool.Release(slot)
		}
	})
	for addr, candidate := range s.byAddr {
		if candidate == sess {
			delete(s.byAddr, addr)
		}
	}
}

// heartbeatTick walks the pool: expired sessions are evicted, the rest are
// pinged. The pool backing is compacted when it outgrew the ceiling and
// most slots are dead.
func (s *Server) heartbeatTick() {
	if s.pool.Size() > s.conf.MaxClients && s.pool.Size()/2 > s.total {
		s.pool.Rebuild(s.conf.MaxClients)
		s.log.Debugf("rebuilt client pool")
	}

	s.pool.ForEach(func(_ int, sess *session.Session) {
		if sess.Expired() {
			s.log.Printf("client %d: dequeued due to timeout", sess.Index())
			s.evict(sess)
			s.log.Printf("%d client(s) connected", s.total)
			return
		}

		s.log.Debugf("client %d: heartbeat timeout %d", sess.Index(), sess.Heartbeat())
		sess.TickHeartbeat()
		if err := s.engine.SendPing(sess); err != nil {
			s.log.Printf("client %d: pingback failed: %v", sess.Index(), err)
		}
	})
}

// shutdown closes every session before the loop stops.
func (s *Server) shutdown() {
	s.pool.ForEach(func(slot int, sess *session.Session) {
		_ = sess.Close()
		s.pool.Release(slot)
	})
	s.byAddr = make(map[netip.AddrPort]*session.Session)
	s.total = 0
}
