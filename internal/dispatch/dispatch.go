// Package dispatch is the shared command entry point for the TCP and UDP
// servers: classify, guard, execute or forward, produce a uniform
// response. Both transports observe identical command semantics; only
// reply delivery differs.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grantcarthew/vlc-control/internal/command"
	"github.com/grantcarthew/vlc-control/internal/config"
	"github.com/grantcarthew/vlc-control/internal/events"
)

// Request is one command received from a client.
type Request struct {
	// Text is the command line, already trimmed of surrounding whitespace.
	Text string
	// Source is the receiving transport, "tcp" or "udp".
	Source string
	// Remote is the client address, for logging and event records.
	Remote string
}

// Response is the uniform result of processing one command.
type Response struct {
	OK      bool
	Payload string
}

// Line returns the single reply line written back to the client:
// the payload on success, "ERR <message>" on failure.
func (r Response) Line() string {
	if r.OK {
		return r.Payload
	}
	return "ERR " + r.Payload
}

func errorf(format string, args ...any) Response {
	return Response{OK: false, Payload: fmt.Sprintf(format, args...)}
}

// Forwarder relays one command to the remote endpoint.
type Forwarder interface {
	Forward(ctx context.Context, command string) (string, error)
}

// ActionRunner executes one local system action.
type ActionRunner interface {
	Run(ctx context.Context, action command.Action) error
}

// Recorder receives one event per processed command.
type Recorder interface {
	Record(ev events.CommandEvent)
}

// Dispatcher processes commands. It holds no mutable state and is safe
// for concurrent use by any number of sessions.
type Dispatcher struct {
	forwarder Forwarder
	actions   ActionRunner
	attempts  int
	backoff   time.Duration
	recorder  Recorder // optional
	log       *logrus.Entry
}

// New creates a dispatcher. recorder may be nil.
func New(forwarder Forwarder, actions ActionRunner, cfg config.ForwardConfig, recorder Recorder, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		forwarder: forwarder,
		actions:   actions,
		attempts:  cfg.Attempts,
		backoff:   cfg.Backoff.Duration,
		recorder:  recorder,
		log:       log,
	}
}

// Process handles one command and returns its response. Every failure is
// contained in the response; Process never panics the caller's session.
func (d *Dispatcher) Process(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := d.process(ctx, req)

	if d.recorder != nil {
		d.recorder.Record(events.CommandEvent{
			Time:       start,
			Source:     req.Source,
			Remote:     req.Remote,
			Command:    req.Text,
			OK:         resp.OK,
			Reply:      resp.Payload,
			DurationMS: time.Since(start).Milliseconds(),
		})
	}
	return resp
}

func (d *Dispatcher) process(ctx context.Context, req Request) Response {
	log := d.log.WithFields(logrus.Fields{
		"source":      req.Source,
		"client_addr": req.Remote,
		"command":     req.Text,
	})

	if req.Text == "" {
		log.Debug("rejected empty command")
		return errorf("empty command")
	}
	if len(req.Text) > command.MaxSize {
		log.Warn("rejected oversize command")
		return errorf("command too large: %d bytes (max %d)", len(req.Text), command.MaxSize)
	}

	classified := command.Classify(req.Text)
	if classified.Action != command.ActionNone {
		if err := d.actions.Run(ctx, classified.Action); err != nil {
			return Response{OK: false, Payload: err.Error()}
		}
		return Response{OK: true, Payload: "OK"}
	}

	// Unknown commands in the reserved namespace are never forwarded.
	if command.IsReserved(req.Text) {
		log.Warn("blocked unauthorized system command")
		return errorf("unauthorized system command: %s", req.Text)
	}

	log.Debug("forwarding command to vlc")
	reply, err := d.forwardWithRetry(ctx, req.Text, log)
	if err != nil {
		return Response{OK: false, Payload: err.Error()}
	}
	return Response{OK: true, Payload: reply}
}

// forwardWithRetry relays the command, retrying failed attempts with
// exponential backoff. attempts of 1 disables retries.
func (d *Dispatcher) forwardWithRetry(ctx context.Context, text string, log *logrus.Entry) (string, error) {
	delay := d.backoff
	for attempt := 1; ; attempt++ {
		reply, err := d.forwarder.Forward(ctx, text)
		if err == nil {
			return reply, nil
		}

		if attempt >= d.attempts || ctx.Err() != nil {
			log.WithError(err).WithField("attempts", attempt).Error("forward failed permanently")
			return "", err
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}).Warn("forward failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", err
		}
		delay *= 2
	}
}
