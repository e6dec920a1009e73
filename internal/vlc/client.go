// Package vlc implements the forward operation to the VLC rc interface:
// one TCP connection per command, connect, write the command line, read
// the framed reply, close.
package vlc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grantcarthew/vlc-control/internal/config"
)

// Forward failure kinds, each distinctly reportable via errors.Is.
var (
	// ErrConnect means the remote endpoint could not be reached.
	ErrConnect = errors.New("connect failed")
	// ErrWrite means the command could not be written.
	ErrWrite = errors.New("write failed")
	// ErrRead means the reply could not be read.
	ErrRead = errors.New("read failed")
	// ErrTimeout means a deadline expired during some phase of the
	// exchange. It takes precedence over the phase kind.
	ErrTimeout = errors.New("timed out")
	// ErrRemoteClosed means the remote dropped the connection mid-exchange.
	ErrRemoteClosed = errors.New("remote closed connection")
)

// ForwardError is the error returned by a failed forward operation. Kind
// is one of the sentinel errors above; Phase names the step that failed.
type ForwardError struct {
	Kind    error
	Phase   string
	Command string
	Cause   error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward %q (%s): %v: %v", e.Command, e.Phase, e.Kind, e.Cause)
}

func (e *ForwardError) Is(target error) bool {
	return target == e.Kind
}

func (e *ForwardError) Unwrap() error {
	return e.Cause
}

// Client forwards commands to the VLC rc interface. Each forward opens a
// fresh connection, so concurrent forwards are fully isolated and no
// shared connection state exists.
type Client struct {
	address     string
	prompt      byte // 0 selects newline-framed replies
	dialTimeout time.Duration
	ioTimeout   time.Duration
	log         *logrus.Entry
}

// NewClient creates a forwarding client from the VLC configuration.
func NewClient(cfg config.VLCConfig, log *logrus.Entry) *Client {
	var prompt byte
	if cfg.Prompt != "" {
		prompt = cfg.Prompt[0]
	}
	return &Client{
		address:     cfg.Address,
		prompt:      prompt,
		dialTimeout: cfg.DialTimeout.Duration,
		ioTimeout:   cfg.IOTimeout.Duration,
		log:         log,
	}
}

// Address returns the remote endpoint address.
func (c *Client) Address() string {
	return c.address
}

// Forward performs one connect-write-read exchange and returns the reply.
// In newline mode the reply is one line with the trailing newline (and any
// carriage return) stripped. In prompt mode the initial greeting is
// drained up to the prompt byte first, and the reply is everything up to
// the next prompt byte, trimmed of surrounding whitespace; interior
// newlines of multi-line replies are preserved. Every phase is bounded by
// a deadline, and context cancellation aborts the exchange at any phase.
// The Client never retries; retry policy belongs to the caller.
func (c *Client) Forward(ctx context.Context, command string) (string, error) {
	dialer := &net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return "", c.fail("connect", command, err)
	}
	defer func() { _ = conn.Close() }()

	c.log.WithField("address", c.address).Debug("connected to vlc")

	// Expire the connection deadlines if the caller goes away mid-exchange.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-done:
		}
	}()

	reader := bufio.NewReader(conn)

	if c.prompt != 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.ioTimeout))
		if _, err := reader.ReadBytes(c.prompt); err != nil {
			return "", c.fail("read greeting", command, err)
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(c.ioTimeout))
	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return "", c.fail("write", command, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.ioTimeout))
	reply, err := c.readReply(reader)
	if err != nil {
		return "", c.fail("read", command, err)
	}

	c.log.WithFields(logrus.Fields{
		"command": command,
		"reply":   reply,
	}).Debug("vlc reply received")

	return reply, nil
}

func (c *Client) readReply(reader *bufio.Reader) (string, error) {
	if c.prompt != 0 {
		raw, err := reader.ReadBytes(c.prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(strings.TrimSuffix(string(raw), string(c.prompt))), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// fail classifies err into a ForwardError. Timeouts and a closed remote
// are recognized regardless of phase; everything else maps to the kind
// for the phase that failed.
func (c *Client) fail(phase, command string, err error) error {
	kind := phaseKind(phase)
	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		kind = ErrRemoteClosed
	case isTimeout(err):
		kind = ErrTimeout
	}
	return &ForwardError{Kind: kind, Phase: phase, Command: command, Cause: err}
}

func phaseKind(phase string) error {
	switch phase {
	case "connect":
		return ErrConnect
	case "write":
		return ErrWrite
	default:
		return ErrRead
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
