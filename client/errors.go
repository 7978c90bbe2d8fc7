package client

import "errors"

var (
	ErrNotAuthenticated = errors.New("Receiver has not accepted the pairing")
	ErrConnectFailed    = errors.New("Could not connect to the receiver")
	ErrHandshakeTimeout = errors.New("Receiver did not answer the pairing request in time")
	ErrFrameTooLarge    = errors.New("Inbound frame exceeds the maximum frame size")
	ErrMalformedFrame   = errors.New("Receiver sent data that is not a valid frame")

	// ErrNotConnected is returned when there is no open transport. A session
	// without a transport is not authenticated either, so it also matches
	// ErrNotAuthenticated with errors.Is.
	ErrNotConnected error = notConnectedError{}
)

type notConnectedError struct{}

func (notConnectedError) Error() string {
	return "Not connected to a receiver"
}

func (notConnectedError) Is(target error) bool {
	return target == ErrNotAuthenticated
}
