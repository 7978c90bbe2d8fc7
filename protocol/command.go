package protocol

import "strings"

const (
	// DefaultPort is the receiver's remote control port.
	DefaultPort = 6466

	// ProtocolVersion is sent in every PairingRequest.
	ProtocolVersion = 2

	// DefaultServiceType is the DNS-SD service type receivers announce.
	DefaultServiceType = "_androidtvremote2._tcp"
)

// Outer field numbers of client frames.
const (
	FramePairingRequest Number = 1
	FrameKeyEvent       Number = 2
	FramePairingSecret  Number = 3
)

// Outer field numbers of receiver frames.
const (
	ReplyPairingCode  Number = 1
	ReplyPairingAck   Number = 2
	ReplyPairingCheck Number = 3
	ReplyPairingOK    Number = 4
)

type Direction uint8

const (
	StartLong Direction = 0
	EndLong   Direction = 1
	Short     Direction = 2
)

func (d Direction) String() string {
	switch d {
	case StartLong:
		return "START_LONG"
	case EndLong:
		return "END_LONG"
	case Short:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// Action is a logical remote button. Its value is the Android key event name.
type Action string

const (
	DpadUp         Action = "DPAD_UP"
	DpadDown       Action = "DPAD_DOWN"
	DpadLeft       Action = "DPAD_LEFT"
	DpadRight      Action = "DPAD_RIGHT"
	DpadCenter     Action = "DPAD_CENTER"
	Back           Action = "BACK"
	Home           Action = "HOME"
	Menu           Action = "MENU"
	VolumeUp       Action = "VOLUME_UP"
	VolumeDown     Action = "VOLUME_DOWN"
	VolumeMute     Action = "VOLUME_MUTE"
	Power          Action = "POWER"
	MediaPlayPause Action = "MEDIA_PLAY_PAUSE"
	MediaPlay      Action = "MEDIA_PLAY"
	MediaPause     Action = "MEDIA_PAUSE"
	MediaNext      Action = "MEDIA_NEXT"
	MediaPrevious  Action = "MEDIA_PREVIOUS"
)

var keyCodes = map[Action]uint64{
	DpadUp:         19,
	DpadDown:       20,
	DpadLeft:       21,
	DpadRight:      22,
	DpadCenter:     23,
	Back:           4,
	Home:           3,
	Menu:           82,
	VolumeUp:       24,
	VolumeDown:     25,
	VolumeMute:     164,
	Power:          26,
	MediaPlayPause: 85,
	MediaPlay:      126,
	MediaPause:     127,
	MediaNext:      87,
	MediaPrevious:  88,
}

var aliases = map[string]Action{
	"up":         DpadUp,
	"down":       DpadDown,
	"left":       DpadLeft,
	"right":      DpadRight,
	"select":     DpadCenter,
	"center":     DpadCenter,
	"ok":         DpadCenter,
	"back":       Back,
	"home":       Home,
	"menu":       Menu,
	"volup":      VolumeUp,
	"voldown":    VolumeDown,
	"mute":       VolumeMute,
	"power":      Power,
	"playpause":  MediaPlayPause,
	"play_pause": MediaPlayPause,
	"play":       MediaPlay,
	"pause":      MediaPause,
	"next":       MediaNext,
	"previous":   MediaPrevious,
	"prev":       MediaPrevious,
}

// KeyCode maps an action to its Android key code. Unknown actions map to 0,
// which receivers ignore.
func KeyCode(a Action) uint64 {
	return keyCodes[a]
}

// Known returns true if a has a key code.
func (a Action) Known() bool {
	_, ok := keyCodes[a]
	return ok
}

// ParseAction resolves a user supplied name, either a key event name in any
// case or one of the short aliases (up, select, volup...). Unknown names are
// returned upper-cased with ok false.
func ParseAction(name string) (Action, bool) {
	name = strings.TrimSpace(name)

	if a, ok := aliases[strings.ToLower(name)]; ok {
		return a, true
	}

	a := Action(strings.ToUpper(name))
	return a, a.Known()
}

// Actions returns every known action.
func Actions() []Action {
	return []Action{
		Power, Home, Back, Menu,
		VolumeUp, VolumeDown, VolumeMute,
		MediaPlayPause, MediaPlay, MediaPause, MediaNext, MediaPrevious,
		DpadUp, DpadDown, DpadLeft, DpadRight, DpadCenter,
	}
}
