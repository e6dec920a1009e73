// Package client implements the newline-delimited text protocol used to
// talk to a running daemon over TCP: one command line out, one reply
// line back, connection persists across commands.
package client

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// Client is a TCP line-protocol client for the daemon.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to a daemon. timeout bounds the connect and every
// subsequent exchange.
func Dial(address string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", address, err)
	}
	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

// Send writes one command line and reads back one reply line, without
// the trailing newline. Error replies come back as "ERR <message>" text;
// interpreting them is the caller's concern.
func (c *Client) Send(command string) (string, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", err
	}

	if _, err := c.conn.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// IsError reports whether a reply line is a daemon error reply, and if
// so returns the message.
func IsError(reply string) (string, bool) {
	if msg, ok := strings.CutPrefix(reply, "ERR "); ok {
		return msg, true
	}
	return "", false
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
