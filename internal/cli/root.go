// Package cli implements the vlc-control command-line interface.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version is set at build time.
var Version = "dev"

// JSONOutput enables JSON output format (default is text).
var JSONOutput bool

// NoColor disables color output.
var NoColor bool

var rootCmd = &cobra.Command{
	Use:   "vlc-control",
	Short: "Dual-protocol command proxy for VLC",
	Long: `vlc-control accepts short text commands over TCP and UDP listeners,
executes the recognized system commands locally (restart VLC, shutdown,
reboot), and forwards everything else to the VLC rc interface, relaying
the reply back to the client.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&JSONOutput, "json", false, "Output in JSON format (default is text)")
	rootCmd.PersistentFlags().BoolVar(&NoColor, "no-color", false, "Disable color output")
	rootCmd.SetVersionTemplate(`vlc-control version {{.Version}}
Repository: https://github.com/grantcarthew/vlc-control
Report issues: https://github.com/grantcarthew/vlc-control/issues/new
`)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// printedError marks errors already written to stderr by outputError, so
// main does not print them twice.
type printedError struct {
	msg string
}

func (e *printedError) Error() string {
	return e.msg
}

// IsPrintedError reports whether err was already printed by a command handler.
func IsPrintedError(err error) bool {
	var pe *printedError
	return errors.As(err, &pe)
}

// isStdoutTTY returns true if stdout is a terminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// outputJSON writes a JSON response to the given writer.
// Pretty prints if stdout is a TTY, compact otherwise.
func outputJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if isStdoutTTY() {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

// outputReply writes a successful reply to stdout.
// Uses text format by default, JSON if --json flag is set.
func outputReply(reply string) error {
	if JSONOutput {
		return outputJSON(os.Stdout, map[string]any{
			"ok":    true,
			"reply": reply,
		})
	}
	_, err := fmt.Fprintln(os.Stdout, reply)
	return err
}

// outputError writes an error response to stderr and returns an error.
// Uses text format by default, JSON if --json flag is set.
func outputError(msg string) error {
	if JSONOutput {
		_ = outputJSON(os.Stderr, map[string]any{
			"ok":    false,
			"error": msg,
		})
	} else if shouldUseColor() {
		color.New(color.FgRed).Fprint(os.Stderr, "Error:")
		fmt.Fprintf(os.Stderr, " %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	return &printedError{msg: msg}
}

// shouldUseColor determines if color output should be used based on flags and environment.
func shouldUseColor() bool {
	if JSONOutput {
		return false
	}
	if NoColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
