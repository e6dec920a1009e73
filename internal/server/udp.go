package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grantcarthew/vlc-control/internal/dispatch"
)

// maxDatagramSize bounds the receive buffer. Oversize commands are
// rejected by the dispatcher well below this, so 1024 bytes covers the
// whole command vocabulary.
const maxDatagramSize = 1024

// UDPServer receives one command per datagram. Each datagram is handled
// on its own goroutine so a slow forward does not stall receipt of the
// next datagram. Replies are best-effort: a failed send is logged and
// otherwise ignored.
type UDPServer struct {
	conn       net.PacketConn
	dispatcher *dispatch.Dispatcher
	log        *logrus.Entry

	wg        sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// ListenUDP binds the UDP socket. A bind failure is returned to the
// caller, which treats it as fatal at startup.
func ListenUDP(address string, dispatcher *dispatch.Dispatcher, log *logrus.Entry) (*UDPServer, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s: %w", address, err)
	}
	return &UDPServer{
		conn:       conn,
		dispatcher: dispatcher,
		log:        log,
		closed:     make(chan struct{}),
	}, nil
}

// Addr returns the bound socket address.
func (s *UDPServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve receives datagrams until Close is called or ctx is cancelled.
func (s *UDPServer) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.closed:
		}
	}()

	s.log.WithField("address", s.Addr().String()).Info("udp server listening")

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return fmt.Errorf("receive error: %w", err)
			}
		}

		// The buffer is reused by the next ReadFrom.
		payload := make([]byte, n)
		copy(payload, buf[:n])

		s.wg.Add(1)
		go s.handleDatagram(ctx, payload, addr)
	}
}

func (s *UDPServer) handleDatagram(ctx context.Context, payload []byte, addr net.Addr) {
	defer s.wg.Done()

	text := strings.TrimSpace(string(payload))
	log := s.log.WithFields(logrus.Fields{
		"client_addr": addr.String(),
		"command":     text,
	})
	log.Debug("received udp command")

	resp := s.dispatcher.Process(ctx, dispatch.Request{
		Text:   text,
		Source: "udp",
		Remote: addr.String(),
	})

	// Best-effort reply to the datagram's source address. The client may
	// no longer be listening; a send failure must not affect any other
	// datagram's processing.
	if _, err := s.conn.WriteTo([]byte(resp.Line()), addr); err != nil {
		log.WithError(err).Debug("udp reply send failed")
	}
}

// Close stops the receive loop and waits for in-flight datagram handlers.
// Safe to call multiple times concurrently.
func (s *UDPServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}
