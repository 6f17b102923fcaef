package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"carbonvpn/application/logging"
	"carbonvpn/application/tun"
	"carbonvpn/infrastructure/network/transport"
	"carbonvpn/infrastructure/network/wire"
	"carbonvpn/infrastructure/settings"
	"carbonvpn/infrastructure/tunnel/protocol"
	"carbonvpn/infrastructure/tunnel/session"
)

// ErrTransportClosed reports that the server closed the transport; the
// single-session client treats it as a clean end of the event loop.
var ErrTransportClosed = errors.New("transport closed")

// Client is the client-side event core: one session (index 0) to the
// server, one virtual interface, one dispatcher goroutine.
type Client struct {
	conf     settings.Settings
	device   tun.Device
	engine   *protocol.Engine
	conn     net.Conn
	datagram bool
	sess     *session.Session
	log      logging.Debugger

	tunCh   chan []byte
	frameCh chan inboundFrame
}

func NewClient(conf settings.Settings, device tun.Device, engine *protocol.Engine, conn net.Conn, datagram bool, log logging.Debugger) *Client {
	return &Client{
		conf:     conf,
		device:   device,
		engine:   engine,
		conn:     conn,
		datagram: datagram,
		sess:     session.NewSession(0, transport.NewConnTransport(conn)),
		log:      log,
		tunCh:    make(chan []byte, 64),
		frameCh:  make(chan inboundFrame, 64),
	}
}

// Run opens the handshake and blocks until ctx is cancelled or the server
// closes the transport.
func (c *Client) Run(ctx context.Context) error {
	// Poke the server so a datagram transport allocates the session, then
	// introduce ourselves.
	if err := c.engine.SendPing(c.sess); err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	if err := c.engine.SendClientHello(c.sess); err != nil {
		return fmt.Errorf("failed to send client hello: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)

	// Closing the blocking sources is what unwinds the reader goroutines,
	// both on cancellation and when one side fails.
	go func() {
		<-ctx.Done()
		_ = c.device.Close()
		_ = c.conn.Close()
	}()

	group.Go(func() error { return c.readDevice(ctx) })
	group.Go(func() error { return c.readTransport(ctx) })
	group.Go(func() error { return c.dispatch(ctx) })
	return group.Wait()
}

func (c *Client) readDevice(ctx context.Context) error {
	buf := make([]byte, settings.BufferSize)
	for {
		n, err := c.device.Read(buf)
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
		case c.tunCh <- packet:
		case <-ctx.Done():
			return nil
		}
	}
}

// readTransport pumps frames from the server connection. Frames with a bad
// magic are dropped; transport closure breaks the event loop.
func (c *Client) readTransport(ctx context.Context) error {
	if c.datagram {
		return c.readTransportDatagrams(ctx)
	}

	for {
		h, body, err := wire.ReadFrame(c.conn)
		if errors.Is(err, wire.ErrBadMagic) {
			c.log.Debugf("invalid packet, packet dropped")
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Printf("server disconnected")
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		select {
		case c.frameCh <- inboundFrame{sess: c.sess, h: h, body: body}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) readTransportDatagrams(ctx context.Context) error {
	buf := make([]byte, wire.HeaderSize+wire.MaxBodySize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Printf("server disconnected")
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}

		h, body, parseErr := wire.ParseDatagram(buf[:n])
		if parseErr != nil {
			c.log.Debugf("invalid packet, packet dropped")
			continue
		}

		owned := make([]byte, len(body))
		copy(owned, body)
		select {
		case c.frameCh <- inboundFrame{sess: c.sess, h: h, body: owned}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = c.sess.Close()
			return nil
		case packet := <-c.tunCh:
			if err := c.engine.SendStream(c.sess, packet); err != nil {
				c.log.Printf("failed to send packet: %v", err)
			}
		case frame := <-c.frameCh:
			if err := c.engine.HandleFrame(c.sess, frame.h, frame.body); err != nil {
				c.log.Printf("%v", err)
			}
		}
	}
}
