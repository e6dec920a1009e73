package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_SystemActions(t *testing.T) {
	tests := []struct {
		text   string
		action Action
	}{
		{"pi_restart_vlc", ActionRestartVLC},
		{"pi_shutdown", ActionShutdown},
		{"pi_reboot", ActionReboot},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			c := Classify(tt.text)
			require.Equal(t, tt.action, c.Action)
			require.Equal(t, tt.text, c.Text)
		})
	}
}

func TestClassify_Passthrough(t *testing.T) {
	tests := []string{
		"play",
		"pause",
		"add file:///media/video.mp4",
		"",
		" pi_shutdown",       // leading space, not an exact match
		"PI_SHUTDOWN",        // case-sensitive
		"Pi_Reboot",          // case-sensitive
		"pi_shutdown now",    // trailing text, not an exact match
		"pi_unknown_command", // reserved prefix but unrecognized
	}

	for _, text := range tests {
		c := Classify(text)
		require.Equal(t, ActionNone, c.Action, "text %q", text)
		require.Equal(t, text, c.Text, "text must be preserved byte-for-byte")
	}
}

func TestIsReserved(t *testing.T) {
	require.True(t, IsReserved("pi_shutdown"))
	require.True(t, IsReserved("pi_anything"))
	require.True(t, IsReserved("pi_"))
	require.False(t, IsReserved("play"))
	require.False(t, IsReserved("PI_shutdown"))
	require.False(t, IsReserved(""))
}

func TestActionString(t *testing.T) {
	require.Equal(t, "pi_restart_vlc", ActionRestartVLC.String())
	require.Equal(t, "pi_shutdown", ActionShutdown.String())
	require.Equal(t, "pi_reboot", ActionReboot.String())
	require.Equal(t, "none", ActionNone.String())
}
