// Package keyboard turns raw terminal input into remote actions.
package keyboard

import "github.com/luma/tvremote/protocol"

// Key is one decoded key press. Quit is set for the keys that end an
// interactive session, Action is empty then.
type Key struct {
	Action protocol.Action
	Quit   bool
}

const (
	esc       = 0x1b
	ctrlC     = 0x03
	ctrlD     = 0x04
	backspace = 0x7f
	ctrlH     = 0x08
)

var bindings = map[byte]protocol.Action{
	'\r':      protocol.DpadCenter,
	'\n':      protocol.DpadCenter,
	backspace: protocol.Back,
	ctrlH:     protocol.Back,
	'h':       protocol.Home,
	'u':       protocol.Menu,
	'p':       protocol.Power,
	'+':       protocol.VolumeUp,
	'=':       protocol.VolumeUp,
	'-':       protocol.VolumeDown,
	'm':       protocol.VolumeMute,
	' ':       protocol.MediaPlayPause,
	'n':       protocol.MediaNext,
	'b':       protocol.MediaPrevious,
}

var arrows = map[byte]protocol.Action{
	'A': protocol.DpadUp,
	'B': protocol.DpadDown,
	'C': protocol.DpadRight,
	'D': protocol.DpadLeft,
}

// Help lists the bindings for display.
var Help = []struct {
	Keys   string
	Action protocol.Action
}{
	{"arrows", "DPAD"},
	{"enter", protocol.DpadCenter},
	{"backspace, esc", protocol.Back},
	{"h", protocol.Home},
	{"u", protocol.Menu},
	{"p", protocol.Power},
	{"+ -", "VOLUME"},
	{"m", protocol.VolumeMute},
	{"space", protocol.MediaPlayPause},
	{"n b", "MEDIA_NEXT/PREVIOUS"},
	{"q", "quit"},
}

// Decoder decodes a stream of reads. An escape sequence split across reads
// is held until the rest arrives.
type Decoder struct {
	pending []byte
}

// Feed decodes one read. Unbound bytes are skipped.
func (d *Decoder) Feed(input []byte) []Key {
	data := append(d.pending, input...)
	d.pending = nil

	var keys []Key

	for i := 0; i < len(data); i++ {
		b := data[i]

		switch {
		case b == 'q' || b == ctrlC || b == ctrlD:
			keys = append(keys, Key{Quit: true})

		case b == esc:
			if i+1 == len(data) {
				// A lone escape at the end of a read is the escape key
				keys = append(keys, Key{Action: protocol.Back})
				continue
			}

			if data[i+1] != '[' && data[i+1] != 'O' {
				keys = append(keys, Key{Action: protocol.Back})
				continue
			}

			if i+2 == len(data) {
				d.pending = append([]byte(nil), data[i:]...)
				return keys
			}

			if a, ok := arrows[data[i+2]]; ok {
				keys = append(keys, Key{Action: a})
			}
			i += 2

		default:
			if a, ok := bindings[b]; ok {
				keys = append(keys, Key{Action: a})
			}
		}
	}

	return keys
}
