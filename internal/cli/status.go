package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/vlc-control/internal/events"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running daemon's status",
	Long: `Query a daemon's HTTP status endpoint and print its state. The daemon
must be running with a status address configured (serve --status-address).

Examples:
  vlc-control status --address 127.0.0.1:55552
  vlc-control status --address 127.0.0.1:55552 --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusAddress string
	statusTimeout time.Duration
)

// daemonStatus mirrors the daemon's /status payload.
type daemonStatus struct {
	Version        string          `json:"version"`
	PID            int             `json:"pid"`
	UptimeSeconds  int64           `json:"uptimeSeconds"`
	TCPAddress     string          `json:"tcpAddress"`
	UDPAddress     string          `json:"udpAddress"`
	VLCAddress     string          `json:"vlcAddress"`
	Commands       events.Counters `json:"commands"`
	BufferedEvents int             `json:"bufferedEvents"`
}

func init() {
	statusCmd.Flags().StringVar(&statusAddress, "address", "127.0.0.1:55552", "Daemon status HTTP address")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	httpClient := &http.Client{Timeout: statusTimeout}
	defer httpClient.CloseIdleConnections()

	resp, err := httpClient.Get(fmt.Sprintf("http://%s/status", statusAddress))
	if err != nil {
		return outputError(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return outputError(fmt.Sprintf("status request failed: %s", resp.Status))
	}

	var st daemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return outputError(fmt.Sprintf("parse status response: %v", err))
	}

	if JSONOutput {
		return outputJSON(os.Stdout, st)
	}

	fmt.Printf("Version:   %s\n", st.Version)
	fmt.Printf("PID:       %d\n", st.PID)
	fmt.Printf("Uptime:    %s\n", (time.Duration(st.UptimeSeconds) * time.Second).String())
	fmt.Printf("TCP:       %s\n", st.TCPAddress)
	fmt.Printf("UDP:       %s\n", st.UDPAddress)
	fmt.Printf("VLC:       %s\n", st.VLCAddress)
	fmt.Printf("Commands:  %d total, %d ok, %d failed\n", st.Commands.Total, st.Commands.OK, st.Commands.Failed)
	fmt.Printf("Buffered:  %d events\n", st.BufferedEvents)
	return nil
}
