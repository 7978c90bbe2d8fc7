package client

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingPairingResponse
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingPairingResponse:
		return "awaiting_pairing_response"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Connected is true once the transport is open, whether or not the pairing
// has been accepted.
func (s State) Connected() bool {
	return s == StateAwaitingPairingResponse || s == StateAuthenticated
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type EventType int

const (
	// EventStateChanged is sent on every state transition. Err is set when the
	// transition was caused by a failure.
	EventStateChanged EventType = iota

	// EventPairingCode is sent when the receiver sends a pairing code.
	EventPairingCode
)

type Event struct {
	Type        EventType
	SessionID   string
	State       State
	Previous    State
	Host        string
	Port        int
	PairingCode string
	Err         error
}
