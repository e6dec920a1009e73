package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grantcarthew/vlc-control/internal/client"
	"github.com/grantcarthew/vlc-control/internal/config"
	"github.com/grantcarthew/vlc-control/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

// startVLCStub runs a line-mode stub remote that echoes "OK: <command>".
func startVLCStub(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				_, _ = conn.Write([]byte("OK: " + line))
			}()
		}
	}()

	return listener.Addr().String()
}

func testConfig(vlcAddr string) config.Config {
	cfg := config.Default()
	cfg.TCPAddress = "127.0.0.1:0"
	cfg.UDPAddress = "127.0.0.1:0"
	cfg.StatusAddress = "127.0.0.1:0"
	cfg.VLC.Address = vlcAddr
	cfg.VLC.DialTimeout = config.Duration{Duration: time.Second}
	cfg.VLC.IOTimeout = config.Duration{Duration: time.Second}
	cfg.Forward.Attempts = 1
	cfg.Forward.Backoff = config.Duration{Duration: time.Millisecond}
	return cfg
}

func startDaemon(t *testing.T, cfg config.Config) *Daemon {
	t.Helper()

	d := New(cfg, "test", testLog())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- d.Wait() }()
	t.Cleanup(func() {
		cancel()
		_ = d.Close()
		require.NoError(t, <-done)
	})
	return d
}

func TestDaemon_TCPEndToEnd(t *testing.T) {
	d := startDaemon(t, testConfig(startVLCStub(t)))

	c, err := client.Dial(d.TCPAddr().String(), 5*time.Second)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Send("play")
	require.NoError(t, err)
	require.Equal(t, "OK: play", reply)

	// Unauthorized reserved command.
	reply, err = c.Send("pi_format_disk")
	require.NoError(t, err)
	msg, isErr := client.IsError(reply)
	require.True(t, isErr)
	require.Contains(t, msg, "unauthorized")

	// Empty command; connection stays usable.
	reply, err = c.Send("")
	require.NoError(t, err)
	_, isErr = client.IsError(reply)
	require.True(t, isErr)

	reply, err = c.Send("pause")
	require.NoError(t, err)
	require.Equal(t, "OK: pause", reply)
}

func TestDaemon_UDPEndToEnd(t *testing.T) {
	d := startDaemon(t, testConfig(startVLCStub(t)))

	conn, err := net.Dial("udp", d.UDPAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("next"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "OK: next", string(buf[:n]))
}

func TestDaemon_ForwardUnreachable(t *testing.T) {
	// A refused VLC port: forwards fail, the daemon keeps serving.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := listener.Addr().String()
	require.NoError(t, listener.Close())

	d := startDaemon(t, testConfig(deadAddr))

	c, err := client.Dial(d.TCPAddr().String(), 5*time.Second)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Send("play")
	require.NoError(t, err)
	msg, isErr := client.IsError(reply)
	require.True(t, isErr)
	require.Contains(t, msg, "connect failed")

	// The session survives the failure.
	reply, err = c.Send("pause")
	require.NoError(t, err)
	_, isErr = client.IsError(reply)
	require.True(t, isErr)
}

func TestDaemon_StatusSurface(t *testing.T) {
	d := startDaemon(t, testConfig(startVLCStub(t)))

	c, err := client.Dial(d.TCPAddr().String(), 5*time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send("play")
	require.NoError(t, err)
	_, err = c.Send("pi_bogus")
	require.NoError(t, err)

	httpClient := &http.Client{Timeout: 5 * time.Second}
	defer httpClient.CloseIdleConnections()

	resp, err := httpClient.Get(fmt.Sprintf("http://%s/status", d.StatusAddr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload struct {
		Version  string          `json:"version"`
		Commands events.Counters `json:"commands"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "test", payload.Version)
	require.Equal(t, uint64(2), payload.Commands.Total)
	require.Equal(t, uint64(1), payload.Commands.OK)
	require.Equal(t, uint64(1), payload.Commands.Failed)
}

func TestDaemon_StatusDisabled(t *testing.T) {
	cfg := testConfig(startVLCStub(t))
	cfg.StatusAddress = ""

	d := startDaemon(t, cfg)
	require.Nil(t, d.StatusAddr())
}

func TestDaemon_BindFailureIsFatal(t *testing.T) {
	// Occupy a TCP port so the daemon cannot bind it.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	cfg := testConfig("127.0.0.1:54322")
	cfg.TCPAddress = listener.Addr().String()

	d := New(cfg, "test", testLog())
	err = d.Start(context.Background())
	require.Error(t, err, "a bind failure must abort startup")
}

func TestDaemon_UDPBindFailureClosesTCP(t *testing.T) {
	// Occupy a UDP port; the already-bound TCP listener must be released.
	packet, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer packet.Close()

	// Reserve a concrete TCP port so the release can be observed.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tcpAddr := probe.Addr().String()
	require.NoError(t, probe.Close())

	cfg := testConfig("127.0.0.1:54322")
	cfg.TCPAddress = tcpAddr
	cfg.UDPAddress = packet.LocalAddr().String()

	d := New(cfg, "test", testLog())
	require.Error(t, d.Start(context.Background()))

	// The TCP port is free again.
	tcpListener, err := net.Listen("tcp", tcpAddr)
	require.NoError(t, err)
	_ = tcpListener.Close()
}

func TestDaemon_SignalShutdown(t *testing.T) {
	cfg := testConfig(startVLCStub(t))
	d := New(cfg, "test", testLog())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- d.Wait() }()

	// Context cancellation stands in for SIGINT/SIGTERM delivery.
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err, "context cancellation is a clean shutdown")
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}
	_ = d.Close()
}
