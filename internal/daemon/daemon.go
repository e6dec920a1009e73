// Package daemon wires the proxy together: configuration in, listeners
// bound, serve loops running until the context is cancelled.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grantcarthew/vlc-control/internal/config"
	"github.com/grantcarthew/vlc-control/internal/dispatch"
	"github.com/grantcarthew/vlc-control/internal/events"
	"github.com/grantcarthew/vlc-control/internal/server"
	"github.com/grantcarthew/vlc-control/internal/status"
	"github.com/grantcarthew/vlc-control/internal/sysaction"
	"github.com/grantcarthew/vlc-control/internal/vlc"
)

// Daemon is the vlc-control proxy process.
type Daemon struct {
	cfg     config.Config
	version string
	log     *logrus.Entry

	recorder  *events.Recorder
	tcp       *server.TCPServer
	udp       *server.UDPServer
	status    *status.Server // nil when the status surface is disabled
	loops     int
	errCh     chan error
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a daemon from a validated configuration.
func New(cfg config.Config, version string, log *logrus.Entry) *Daemon {
	return &Daemon{
		cfg:     cfg,
		version: version,
		log:     log,
	}
}

// Start binds every listener and launches the serve loops. All binds
// happen before any serving starts; any bind failure aborts startup with
// nothing left running. Call Wait to block until shutdown.
func (d *Daemon) Start(ctx context.Context) error {
	d.recorder = events.NewRecorder(d.cfg.Events.BufferSize)

	vlcClient := vlc.NewClient(d.cfg.VLC, d.log.WithField("component", "vlc"))
	executor := sysaction.New(
		d.cfg.System.VLCUnit,
		d.cfg.System.Timeout.Duration,
		d.log.WithField("component", "sysaction"),
	)
	dispatcher := dispatch.New(
		vlcClient, executor, d.cfg.Forward, d.recorder,
		d.log.WithField("component", "dispatch"),
	)

	tcp, err := server.ListenTCP(d.cfg.TCPAddress, dispatcher, d.log.WithField("proto", "tcp"))
	if err != nil {
		return err
	}

	udp, err := server.ListenUDP(d.cfg.UDPAddress, dispatcher, d.log.WithField("proto", "udp"))
	if err != nil {
		_ = tcp.Close()
		return err
	}

	var statusSrv *status.Server
	if d.cfg.StatusAddress != "" {
		statusSrv, err = status.Listen(d.cfg.StatusAddress, status.Info{
			Version:    d.version,
			PID:        os.Getpid(),
			Started:    time.Now(),
			TCPAddress: tcp.Addr().String(),
			UDPAddress: udp.Addr().String(),
			VLCAddress: d.cfg.VLC.Address,
		}, d.recorder, d.log.WithField("component", "status"))
		if err != nil {
			_ = tcp.Close()
			_ = udp.Close()
			return err
		}
	}

	d.tcp = tcp
	d.udp = udp
	d.status = statusSrv

	ctx, d.cancel = context.WithCancel(ctx)
	d.errCh = make(chan error, 3)

	d.serve(ctx, "tcp", tcp.Serve)
	d.serve(ctx, "udp", udp.Serve)
	if statusSrv != nil {
		d.serve(ctx, "status", statusSrv.Serve)
	}

	d.log.WithFields(logrus.Fields{
		"tcp_addr": tcp.Addr().String(),
		"udp_addr": udp.Addr().String(),
		"vlc_addr": d.cfg.VLC.Address,
		"version":  d.version,
	}).Info("vlc-control daemon started")

	return nil
}

func (d *Daemon) serve(ctx context.Context, name string, fn func(context.Context) error) {
	d.loops++
	go func() {
		if err := fn(ctx); err != nil {
			d.errCh <- fmt.Errorf("%s server: %w", name, err)
			return
		}
		d.errCh <- nil
	}()
}

// Wait blocks until every serve loop has returned, closing the daemon as
// soon as one of them fails. It returns the first failure, or nil on a
// clean shutdown.
func (d *Daemon) Wait() error {
	var firstErr error
	for i := 0; i < d.loops; i++ {
		if err := <-d.errCh; err != nil && firstErr == nil {
			firstErr = err
			_ = d.Close()
		}
	}
	return firstErr
}

// Run starts the daemon and blocks until ctx is cancelled or a serve
// loop fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Wait()
}

// Close shuts down the listeners and in-flight sessions. Safe to call
// multiple times concurrently.
func (d *Daemon) Close() error {
	d.closeOnce.Do(func() {
		d.log.Info("shutting down")
		d.cancel()
		_ = d.tcp.Close()
		_ = d.udp.Close()
		if d.status != nil {
			_ = d.status.Close()
		}
	})
	return nil
}

// TCPAddr returns the bound TCP listener address. Valid after Start.
func (d *Daemon) TCPAddr() net.Addr {
	return d.tcp.Addr()
}

// UDPAddr returns the bound UDP socket address. Valid after Start.
func (d *Daemon) UDPAddr() net.Addr {
	return d.udp.Addr()
}

// StatusAddr returns the bound status listener address, or nil when the
// status surface is disabled. Valid after Start.
func (d *Daemon) StatusAddr() net.Addr {
	if d.status == nil {
		return nil
	}
	return d.status.Addr()
}
