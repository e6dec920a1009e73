package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grantcarthew/vlc-control/internal/config"
	"github.com/grantcarthew/vlc-control/internal/daemon"
	"github.com/grantcarthew/vlc-control/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy daemon in the foreground",
	Long: `Run the vlc-control daemon: a TCP command listener, a UDP command
listener, and outbound forwarding to the VLC rc interface.

Configuration is layered: built-in defaults, then the optional TOML
config file, then any explicitly-set command-line flags. The daemon
runs until it receives SIGINT or SIGTERM.

Examples:
  vlc-control serve
  vlc-control serve --config /etc/vlc-control.toml
  vlc-control serve --vlc-address 127.0.0.1:54322 --log-level debug
  vlc-control serve --status-address 127.0.0.1:55552`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveConfigPath    string
	serveLogLevel      string
	serveTCPAddress    string
	serveUDPAddress    string
	serveStatusAddress string
	serveVLCAddress    string
	serveVLCPrompt     string
	serveVLCUnit       string
	serveAttempts      int
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to TOML config file")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level (error, warn, info, debug, trace)")
	serveCmd.Flags().StringVar(&serveTCPAddress, "tcp-address", config.DefaultTCPAddress, "TCP listen address")
	serveCmd.Flags().StringVar(&serveUDPAddress, "udp-address", config.DefaultUDPAddress, "UDP listen address")
	serveCmd.Flags().StringVar(&serveStatusAddress, "status-address", "", "HTTP status listen address (empty disables)")
	serveCmd.Flags().StringVar(&serveVLCAddress, "vlc-address", config.DefaultVLCAddress, "VLC rc interface address")
	serveCmd.Flags().StringVar(&serveVLCPrompt, "vlc-prompt", "", "VLC reply prompt byte (empty selects newline framing)")
	serveCmd.Flags().StringVar(&serveVLCUnit, "vlc-unit", "", "systemd user unit restarted by pi_restart_vlc")
	serveCmd.Flags().IntVar(&serveAttempts, "forward-attempts", 0, "Forward attempts per command (1 disables retries)")

	rootCmd.AddCommand(serveCmd)
}

// serveConfig layers defaults, the config file, and explicitly-set flags.
func serveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = serveLogLevel
	}
	if flags.Changed("tcp-address") {
		cfg.TCPAddress = serveTCPAddress
	}
	if flags.Changed("udp-address") {
		cfg.UDPAddress = serveUDPAddress
	}
	if flags.Changed("status-address") {
		cfg.StatusAddress = serveStatusAddress
	}
	if flags.Changed("vlc-address") {
		cfg.VLC.Address = serveVLCAddress
	}
	if flags.Changed("vlc-prompt") {
		cfg.VLC.Prompt = serveVLCPrompt
	}
	if flags.Changed("vlc-unit") {
		cfg.System.VLCUnit = serveVLCUnit
	}
	if flags.Changed("forward-attempts") {
		cfg.Forward.Attempts = serveAttempts
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return outputError(err.Error())
	}

	if err := logging.Setup(cfg.LogLevel); err != nil {
		return outputError(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := daemon.New(cfg, Version, logrus.WithField("component", "daemon"))
	if err := d.Run(ctx); err != nil {
		return outputError(err.Error())
	}
	return nil
}
