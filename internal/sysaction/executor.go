// Package sysaction executes the local OS actions behind the recognized
// system commands: restarting the VLC playback unit, shutdown, and reboot.
package sysaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-cmd/cmd"
	"github.com/sirupsen/logrus"

	"github.com/grantcarthew/vlc-control/internal/command"
)

// ExecError reports a failed system action invocation. It is returned to
// the requesting client and never aborts the server.
type ExecError struct {
	Action command.Action
	Detail string
	Err    error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("system action %s failed: %s: %v", e.Action, e.Detail, e.Err)
	}
	return fmt.Sprintf("system action %s failed: %s", e.Action, e.Detail)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Executor runs system actions as external processes.
type Executor struct {
	vlcUnit string
	timeout time.Duration
	log     *logrus.Entry
}

// New creates an executor. vlcUnit is the systemd user unit restarted by
// pi_restart_vlc; timeout bounds each invocation.
func New(vlcUnit string, timeout time.Duration, log *logrus.Entry) *Executor {
	return &Executor{
		vlcUnit: vlcUnit,
		timeout: timeout,
		log:     log,
	}
}

// argv maps an action to exactly one external invocation. shutdown and
// reboot go through sudo -n so a missing sudoers rule fails fast instead
// of blocking on a password prompt.
func (e *Executor) argv(action command.Action) ([]string, error) {
	switch action {
	case command.ActionRestartVLC:
		return []string{"systemctl", "--user", "restart", e.vlcUnit}, nil
	case command.ActionShutdown:
		return []string{"sudo", "-n", "shutdown", "-h", "now"}, nil
	case command.ActionReboot:
		return []string{"sudo", "-n", "shutdown", "-r", "now"}, nil
	default:
		return nil, fmt.Errorf("no invocation for action %s", action)
	}
}

// Run executes the action and waits for the process to exit. The caller's
// goroutine blocks for at most the configured timeout; other connections
// are unaffected because each session runs on its own goroutine.
func (e *Executor) Run(ctx context.Context, action command.Action) error {
	argv, err := e.argv(action)
	if err != nil {
		return &ExecError{Action: action, Detail: "unknown action", Err: err}
	}

	log := e.log.WithFields(logrus.Fields{
		"action": action.String(),
		"argv":   strings.Join(argv, " "),
	})
	if action == command.ActionRestartVLC {
		log.Info("executing system action")
	} else {
		log.Warn("executing system action")
	}

	if err := run(ctx, action, argv, e.timeout); err != nil {
		log.WithError(err).Warn("system action failed")
		return err
	}

	log.Info("system action completed")
	return nil
}

// run invokes argv and converts the outcome to an ExecError on failure.
func run(ctx context.Context, action command.Action, argv []string, timeout time.Duration) error {
	c := cmd.NewCmdOptions(cmd.Options{Buffered: true}, argv[0], argv[1:]...)
	statusChan := c.Start()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case st := <-statusChan:
		return statusError(action, st)
	case <-ctx.Done():
		_ = c.Stop()
		<-statusChan
		return &ExecError{Action: action, Detail: "cancelled", Err: ctx.Err()}
	case <-expired:
		_ = c.Stop()
		<-statusChan
		return &ExecError{Action: action, Detail: fmt.Sprintf("timed out after %s", timeout)}
	}
}

// statusError converts a go-cmd status to an ExecError, carrying the last
// stderr line as the diagnostic.
func statusError(action command.Action, st cmd.Status) error {
	if st.Error != nil {
		return &ExecError{Action: action, Detail: "invocation failed", Err: st.Error}
	}
	if st.Exit != 0 {
		detail := fmt.Sprintf("exit status %d", st.Exit)
		if msg := lastLine(st.Stderr); msg != "" {
			detail += ": " + msg
		}
		return &ExecError{Action: action, Detail: detail}
	}
	return nil
}

func lastLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}
