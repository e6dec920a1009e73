package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/grantcarthew/vlc-control/internal/client"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive command shell against a running daemon",
	Long: `Open an interactive shell over one persistent TCP connection to a
running daemon. Every line is sent as a command and the reply printed.

Shell commands: help, exit, quit (Ctrl-C and Ctrl-D also exit).`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

var (
	shellAddress string
	shellTimeout time.Duration
)

func init() {
	shellCmd.Flags().StringVar(&shellAddress, "address", "127.0.0.1:55550", "Daemon TCP address")
	shellCmd.Flags().DurationVar(&shellTimeout, "timeout", 10*time.Second, "Connect and exchange timeout")

	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	c, err := client.Dial(shellAddress, shellTimeout)
	if err != nil {
		return outputError(err.Error())
	}
	defer func() { _ = c.Close() }()

	fmt.Printf("Connected to %s. Type 'help' for shell commands.\n", shellAddress)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("vlc> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "exit", "quit":
			return nil
		case "help", "?":
			printShellHelp()
			continue
		}

		reply, err := c.Send(input)
		if err != nil {
			// The connection is gone; the shell cannot continue.
			return outputError(err.Error())
		}

		if msg, isErr := client.IsError(reply); isErr {
			if shouldUseColor() {
				color.New(color.FgRed).Printf("ERR %s\n", msg)
			} else {
				fmt.Printf("ERR %s\n", msg)
			}
			continue
		}
		fmt.Println(reply)
	}
}

func printShellHelp() {
	fmt.Print(`
Every line is sent to the daemon as one command:
  play, pause, stop, next, ...   Forwarded to the VLC rc interface
  pi_restart_vlc                 Restart the VLC playback unit
  pi_shutdown                    Power the host off
  pi_reboot                      Reboot the host

Shell:
  help, ?     Show this help
  exit, quit  Leave the shell (Ctrl-C / Ctrl-D also work)
`)
}
