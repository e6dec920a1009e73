package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/vlc-control/internal/client"
)

var sendCmd = &cobra.Command{
	Use:   "send <command...>",
	Short: "Send one command to a running daemon",
	Long: `Send one command line to a running daemon over TCP and print the
reply. Arguments are joined with spaces into a single command line.

Examples:
  vlc-control send play
  vlc-control send add file:///media/video.mp4
  vlc-control send pi_restart_vlc
  vlc-control send --address 192.168.1.20:55550 pause`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var (
	sendAddress string
	sendTimeout time.Duration
)

func init() {
	sendCmd.Flags().StringVar(&sendAddress, "address", "127.0.0.1:55550", "Daemon TCP address")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Second, "Connect and exchange timeout")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	c, err := client.Dial(sendAddress, sendTimeout)
	if err != nil {
		return outputError(err.Error())
	}
	defer func() { _ = c.Close() }()

	reply, err := c.Send(text)
	if err != nil {
		return outputError(err.Error())
	}

	if msg, isErr := client.IsError(reply); isErr {
		return outputError(msg)
	}
	return outputReply(reply)
}
