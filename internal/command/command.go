// Package command classifies incoming command text as either a local
// system action or a pass-through command for the VLC rc interface.
package command

import "strings"

// MaxSize is the maximum accepted command length in bytes, after trimming.
const MaxSize = 128

// SystemPrefix marks the reserved namespace for local system commands.
// Commands with this prefix are never forwarded to VLC.
const SystemPrefix = "pi_"

// Action identifies a recognized local system action.
type Action int

const (
	// ActionNone means the command is a pass-through for VLC.
	ActionNone Action = iota
	// ActionRestartVLC restarts the VLC playback service.
	ActionRestartVLC
	// ActionShutdown powers the host off.
	ActionShutdown
	// ActionReboot reboots the host.
	ActionReboot
)

// String returns the command word that maps to the action.
func (a Action) String() string {
	switch a {
	case ActionRestartVLC:
		return "pi_restart_vlc"
	case ActionShutdown:
		return "pi_shutdown"
	case ActionReboot:
		return "pi_reboot"
	default:
		return "none"
	}
}

// Classified is the result of classifying one command line.
// Exactly one interpretation applies: Action != ActionNone means a local
// system action; otherwise Text is a pass-through command, preserved
// byte-for-byte.
type Classified struct {
	Action Action
	Text   string
}

// Classify maps command text to a system action or a pass-through.
// Matching is exact and case-sensitive. Classification is total: every
// input, including the empty string and unknown pi_-prefixed strings,
// classifies successfully. Dispatch-level policy (size limits, the
// reserved-prefix guard) is applied by the caller, not here.
func Classify(text string) Classified {
	switch text {
	case "pi_restart_vlc":
		return Classified{Action: ActionRestartVLC, Text: text}
	case "pi_shutdown":
		return Classified{Action: ActionShutdown, Text: text}
	case "pi_reboot":
		return Classified{Action: ActionReboot, Text: text}
	default:
		return Classified{Action: ActionNone, Text: text}
	}
}

// IsReserved reports whether text sits in the reserved system-command
// namespace. Reserved commands that do not classify to an action must be
// rejected rather than forwarded.
func IsReserved(text string) bool {
	return strings.HasPrefix(text, SystemPrefix)
}
