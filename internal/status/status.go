// Package status serves the observational HTTP surface: daemon state,
// buffered command events, and a WebSocket event stream. It accepts no
// commands.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/grantcarthew/vlc-control/internal/events"
)

// Info holds the static daemon facts reported by /status.
type Info struct {
	Version    string
	PID        int
	Started    time.Time
	TCPAddress string
	UDPAddress string
	VLCAddress string
}

type statusPayload struct {
	Version        string          `json:"version"`
	PID            int             `json:"pid"`
	UptimeSeconds  int64           `json:"uptimeSeconds"`
	TCPAddress     string          `json:"tcpAddress"`
	UDPAddress     string          `json:"udpAddress"`
	VLCAddress     string          `json:"vlcAddress"`
	Commands       events.Counters `json:"commands"`
	BufferedEvents int             `json:"bufferedEvents"`
}

// Server is the HTTP status server.
type Server struct {
	listener net.Listener
	http     *http.Server
	recorder *events.Recorder
	info     Info
	log      *logrus.Entry
}

// Listen binds the status listener. A bind failure is returned to the
// caller, which treats it as fatal at startup.
func Listen(address string, info Info, recorder *events.Recorder, log *logrus.Entry) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("bind status %s: %w", address, err)
	}

	s := &Server{
		listener: listener,
		recorder: recorder,
		info:     info,
		log:      log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /events/ws", s.handleEventsWS)
	s.http = &http.Server{Handler: mux}

	return s, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the HTTP server until Close is called or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	s.log.WithField("address", s.Addr().String()).Info("status server listening")

	if err := s.http.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts the server down, dropping live WebSocket subscribers.
func (s *Server) Close() error {
	return s.http.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, statusPayload{
		Version:        s.info.Version,
		PID:            s.info.PID,
		UptimeSeconds:  int64(time.Since(s.info.Started).Seconds()),
		TCPAddress:     s.info.TCPAddress,
		UDPAddress:     s.info.UDPAddress,
		VLCAddress:     s.info.VLCAddress,
		Commands:       s.recorder.Counters(),
		BufferedEvents: s.recorder.Len(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	buffered := s.recorder.Events()
	if buffered == nil {
		buffered = []events.CommandEvent{}
	}
	s.writeJSON(w, buffered)
}

// handleEventsWS streams one JSON text message per processed command. A
// subscriber that stops reading is dropped by the recorder and the
// connection closed; command processing is never blocked.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	sub, cancel := s.recorder.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				// Dropped as a slow subscriber.
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.WithError(err).Warn("failed to marshal event")
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Debug("failed to write response")
	}
}
