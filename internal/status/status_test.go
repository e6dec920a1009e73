package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/grantcarthew/vlc-control/internal/events"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func startServer(t *testing.T, recorder *events.Recorder) *Server {
	t.Helper()

	srv, err := Listen("127.0.0.1:0", Info{
		Version:    "test",
		PID:        os.Getpid(),
		Started:    time.Now(),
		TCPAddress: "127.0.0.1:55550",
		UDPAddress: "127.0.0.1:55551",
		VLCAddress: "127.0.0.1:54322",
	}, recorder, testLog())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
		<-done
	})
	return srv
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestStatusEndpoint(t *testing.T) {
	recorder := events.NewRecorder(8)
	recorder.Record(events.CommandEvent{Command: "play", OK: true})
	recorder.Record(events.CommandEvent{Command: "bogus", OK: false})

	srv := startServer(t, recorder)

	var payload statusPayload
	getJSON(t, fmt.Sprintf("http://%s/status", srv.Addr()), &payload)

	require.Equal(t, "test", payload.Version)
	require.Equal(t, os.Getpid(), payload.PID)
	require.Equal(t, "127.0.0.1:54322", payload.VLCAddress)
	require.Equal(t, uint64(2), payload.Commands.Total)
	require.Equal(t, uint64(1), payload.Commands.OK)
	require.Equal(t, uint64(1), payload.Commands.Failed)
	require.Equal(t, 2, payload.BufferedEvents)
}

func TestEventsEndpoint(t *testing.T) {
	recorder := events.NewRecorder(8)
	recorder.Record(events.CommandEvent{Command: "play", OK: true, Source: "tcp"})

	srv := startServer(t, recorder)

	var got []events.CommandEvent
	getJSON(t, fmt.Sprintf("http://%s/events", srv.Addr()), &got)

	require.Len(t, got, 1)
	require.Equal(t, "play", got[0].Command)
	require.Equal(t, "tcp", got[0].Source)
}

func TestEventsEndpoint_Empty(t *testing.T) {
	srv := startServer(t, events.NewRecorder(8))

	var got []events.CommandEvent
	getJSON(t, fmt.Sprintf("http://%s/events", srv.Addr()), &got)
	require.Empty(t, got)
}

func TestEventsWebSocket(t *testing.T) {
	recorder := events.NewRecorder(8)
	srv := startServer(t, recorder)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/events/ws", srv.Addr()), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// The server registers its subscription after the handshake, so keep
	// recording until the stream delivers.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			recorder.Record(events.CommandEvent{Command: "play", OK: true, Source: "udp"})
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}()

	kind, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, kind)

	var ev events.CommandEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, "play", ev.Command)
	require.Equal(t, "udp", ev.Source)
	require.True(t, ev.OK)
}
