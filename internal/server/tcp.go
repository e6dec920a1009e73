// Package server implements the TCP and UDP command listeners. Both feed
// the shared dispatcher; TCP sessions get one reply line per command,
// UDP replies are best-effort datagrams.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grantcarthew/vlc-control/internal/dispatch"
)

// TCPServer accepts persistent client connections and runs one session
// goroutine per connection. Replies on a connection are strictly ordered
// because each session processes its commands sequentially.
type TCPServer struct {
	listener   net.Listener
	dispatcher *dispatch.Dispatcher
	log        *logrus.Entry

	wg        sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// ListenTCP binds the TCP listener. A bind failure is returned to the
// caller, which treats it as fatal at startup.
func ListenTCP(address string, dispatcher *dispatch.Dispatcher, log *logrus.Entry) (*TCPServer, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("bind tcp %s: %w", address, err)
	}
	return &TCPServer{
		listener:   listener,
		dispatcher: dispatcher,
		log:        log,
		closed:     make(chan struct{}),
		conns:      map[net.Conn]struct{}{},
	}, nil
}

// Addr returns the bound listener address.
func (s *TCPServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until Close is called or ctx is cancelled.
// A failed session never affects the accept loop or other sessions.
func (s *TCPServer) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.closed:
		}
	}()

	s.log.WithField("address", s.Addr().String()).Info("tcp server listening")

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return fmt.Errorf("accept error: %w", err)
			}
		}

		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// handleConn runs one client session: read line, dispatch, write exactly
// one reply line, repeat until the client disconnects.
func (s *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	s.track(conn)
	defer s.untrack(conn)

	remote := conn.RemoteAddr().String()
	log := s.log.WithFields(logrus.Fields{
		"session":     uuid.NewString(),
		"client_addr": remote,
	})
	log.Info("client connected")

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Info("client disconnected")
			case errors.Is(err, net.ErrClosed):
				// Server shutdown closed the connection.
			default:
				log.WithError(err).Debug("session read error")
			}
			return
		}

		text := strings.TrimSpace(line)
		log.WithField("command", text).Debug("received tcp command")

		resp := s.dispatcher.Process(ctx, dispatch.Request{
			Text:   text,
			Source: "tcp",
			Remote: remote,
		})

		if _, err := conn.Write([]byte(resp.Line() + "\n")); err != nil {
			// The client left mid-command; the result is discarded.
			log.WithError(err).Debug("session write error")
			return
		}
	}
}

func (s *TCPServer) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Close stops the accept loop, closes live sessions, and waits for their
// goroutines to finish. Safe to call multiple times concurrently.
func (s *TCPServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.listener.Close()

		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
	return err
}
