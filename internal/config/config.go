// Package config holds the process configuration. A Config is built once
// at startup from defaults, an optional TOML file, and command-line flag
// overrides; it is read-only afterwards and passed into each component.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Default listen and endpoint addresses.
const (
	DefaultTCPAddress = "0.0.0.0:55550"
	DefaultUDPAddress = "0.0.0.0:55551"
	DefaultVLCAddress = "127.0.0.1:54322"
)

// Duration wraps time.Duration so TOML files can use strings like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// VLCConfig configures the outbound connection to the VLC rc interface.
type VLCConfig struct {
	// Address is the host:port of the VLC rc interface.
	Address string `toml:"address"`
	// Prompt, when non-empty, selects prompt-framed replies: the remote
	// greets with the prompt byte and terminates every reply with it.
	// Empty selects newline-framed replies. Must be a single byte.
	Prompt string `toml:"prompt"`
	// DialTimeout bounds connection establishment.
	DialTimeout Duration `toml:"dial_timeout"`
	// IOTimeout bounds each write and read phase of a forward operation.
	IOTimeout Duration `toml:"io_timeout"`
}

// ForwardConfig configures dispatcher-level retry of forward operations.
type ForwardConfig struct {
	// Attempts is the maximum number of forward attempts per command.
	// 1 disables retries.
	Attempts int `toml:"attempts"`
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff Duration `toml:"backoff"`
}

// SystemConfig configures local system action execution.
type SystemConfig struct {
	// VLCUnit is the systemd user unit restarted by pi_restart_vlc.
	VLCUnit string `toml:"vlc_unit"`
	// Timeout bounds each system action invocation.
	Timeout Duration `toml:"timeout"`
}

// EventsConfig configures the processed-command event buffer.
type EventsConfig struct {
	BufferSize int `toml:"buffer_size"`
}

// Config is the complete daemon configuration.
type Config struct {
	// TCPAddress is the listen address for the TCP command server.
	TCPAddress string `toml:"tcp_address"`
	// UDPAddress is the listen address for the UDP command server.
	UDPAddress string `toml:"udp_address"`
	// StatusAddress enables the HTTP status surface when non-empty.
	StatusAddress string `toml:"status_address"`
	// LogLevel is one of error, warn, info, debug, trace.
	LogLevel string `toml:"log_level"`

	VLC     VLCConfig     `toml:"vlc"`
	Forward ForwardConfig `toml:"forward"`
	System  SystemConfig  `toml:"system"`
	Events  EventsConfig  `toml:"events"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TCPAddress: DefaultTCPAddress,
		UDPAddress: DefaultUDPAddress,
		LogLevel:   "info",
		VLC: VLCConfig{
			Address:     DefaultVLCAddress,
			DialTimeout: Duration{5 * time.Second},
			IOTimeout:   Duration{5 * time.Second},
		},
		Forward: ForwardConfig{
			Attempts: 3,
			Backoff:  Duration{100 * time.Millisecond},
		},
		System: SystemConfig{
			VLCUnit: "vlc-loader.service",
			Timeout: Duration{30 * time.Second},
		},
		Events: EventsConfig{
			BufferSize: 512,
		},
	}
}

// Load returns the default configuration overlaid with values from the
// TOML file at path. An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first configuration error found.
func (c Config) Validate() error {
	if c.TCPAddress == "" {
		return fmt.Errorf("tcp_address must not be empty")
	}
	if c.UDPAddress == "" {
		return fmt.Errorf("udp_address must not be empty")
	}
	if c.VLC.Address == "" {
		return fmt.Errorf("vlc.address must not be empty")
	}
	if len(c.VLC.Prompt) > 1 {
		return fmt.Errorf("vlc.prompt must be a single byte, got %q", c.VLC.Prompt)
	}
	if c.VLC.DialTimeout.Duration <= 0 {
		return fmt.Errorf("vlc.dial_timeout must be positive")
	}
	if c.VLC.IOTimeout.Duration <= 0 {
		return fmt.Errorf("vlc.io_timeout must be positive")
	}
	if c.Forward.Attempts < 1 {
		return fmt.Errorf("forward.attempts must be at least 1")
	}
	if c.Forward.Backoff.Duration <= 0 {
		return fmt.Errorf("forward.backoff must be positive")
	}
	if c.System.VLCUnit == "" {
		return fmt.Errorf("system.vlc_unit must not be empty")
	}
	if c.System.Timeout.Duration <= 0 {
		return fmt.Errorf("system.timeout must be positive")
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be positive")
	}
	return nil
}
