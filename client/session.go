package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luma/tvremote/protocol"
	"github.com/luma/tvremote/transport"
)

// Session is a control connection to a single receiver. It opens the
// transport, sends the pairing request and tracks whether the receiver has
// accepted it. Key events are only sent once it has.
//
// All state changes and writes happen under one lock, so once a close from the
// transport has been processed no later SendKey can reach the wire.
type Session struct {
	dialer transport.Dialer
	opts   Options
	log    *zap.Logger

	mu sync.Mutex

	// gen is bumped whenever the current connection is torn down. Events and
	// timers belonging to an older generation are ignored.
	gen uint64

	id             string
	host           string
	port           int
	state          State
	conn           transport.Conn
	pairingCode    string
	inbound        []byte
	skip           int
	handshakeTimer *time.Timer
	connLog        *zap.Logger

	events chan Event
}

func New(dialer transport.Dialer, options Options) *Session {
	options = options.withDefaults()

	return &Session{
		dialer:  dialer,
		opts:    options,
		log:     options.Log,
		connLog: options.Log,
		events:  make(chan Event, EventBufferSize),
	}
}

// Events delivers state changes and pairing codes. Events are dropped if the
// channel is full.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Connect opens a connection to the receiver and sends the pairing request.
// It returns once the transport is connected, which is before the receiver
// has accepted the pairing. Any previous connection is closed first.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	s.mu.Lock()
	s.teardownLocked(nil)

	s.gen++
	gen := s.gen
	s.id = uuid.NewString()
	s.host = host
	s.port = port
	s.connLog = s.log.With(
		zap.String("session", s.id),
		zap.String("host", host),
		zap.Int("port", port))
	log := s.connLog

	s.setStateLocked(StateConnecting, nil)
	s.mu.Unlock()

	log.Info("Connecting to receiver")

	conn, err := s.dialer.Dial(ctx, host, port)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		// Disconnect, or another Connect, happened while we were dialing
		if conn != nil {
			conn.Close()
			go drain(conn)
		}

		return fmt.Errorf("%w: connection attempt to %s was abandoned", ErrConnectFailed, s.endpoint(host, port))
	}

	if err != nil {
		log.Warn("Failed to connect to receiver", zap.Error(err))

		cerr := fmt.Errorf("%w %s: %w", ErrConnectFailed, s.endpoint(host, port), err)
		s.teardownLocked(cerr)
		return cerr
	}

	s.conn = conn
	go s.readLoop(gen, conn)

	req := protocol.EncodePairingRequest(s.opts.ClientName, s.opts.ProtocolVersion)
	if err := conn.Write(ctx, req); err != nil {
		log.Warn("Failed to send pairing request", zap.Error(err))

		cerr := fmt.Errorf("%w %s: %w", ErrConnectFailed, s.endpoint(host, port), err)
		s.teardownLocked(cerr)
		return cerr
	}

	s.setStateLocked(StateAwaitingPairingResponse, nil)

	if s.opts.HandshakeTimeout > 0 {
		s.handshakeTimer = time.AfterFunc(s.opts.HandshakeTimeout, func() {
			s.handshakeExpired(gen)
		})
	}

	log.Info("Connected, waiting for the receiver to accept the pairing",
		zap.String("clientName", s.opts.ClientName))

	return nil
}

// Disconnect closes the connection. It is a no-op when already disconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil && s.state == StateDisconnected {
		return nil
	}

	s.connLog.Info("Disconnecting")
	s.teardownLocked(nil)

	return nil
}

// SendKey sends a short press of action.
func (s *Session) SendKey(ctx context.Context, action protocol.Action) error {
	return s.SendKeyEvent(ctx, action, protocol.Short)
}

// SendKeyEvent hands a key event to the transport. It does not wait for the
// receiver to acknowledge it, there is no acknowledgment.
func (s *Session) SendKeyEvent(ctx context.Context, action protocol.Action, direction protocol.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || !s.state.Connected() {
		return ErrNotConnected
	}

	if s.state != StateAuthenticated {
		return ErrNotAuthenticated
	}

	code := protocol.KeyCode(action)
	if code == 0 {
		s.connLog.Warn("Unknown action, sending key code 0", zap.String("action", string(action)))
	}

	if err := s.conn.Write(ctx, protocol.EncodeKeyEvent(code, direction)); err != nil {
		return fmt.Errorf("Failed to send %s: %w", action, err)
	}

	s.connLog.Debug("Sent key",
		zap.String("action", string(action)),
		zap.Uint64("keyCode", code),
		zap.Stringer("direction", direction))

	return nil
}

// SendPairingSecret sends the secret shown on the receiver's screen. It only
// needs a connection, not an accepted pairing.
func (s *Session) SendPairingSecret(ctx context.Context, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || !s.state.Connected() {
		return ErrNotConnected
	}

	if err := s.conn.Write(ctx, protocol.EncodePairingSecret(secret)); err != nil {
		return fmt.Errorf("Failed to send pairing secret: %w", err)
	}

	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) Connected() bool {
	return s.State().Connected()
}

func (s *Session) Authenticated() bool {
	return s.State() == StateAuthenticated
}

// PairingCode returns the last pairing code sent by the receiver, if any.
func (s *Session) PairingCode() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pairingCode, s.pairingCode != ""
}

// Endpoint returns host:port of the current or last connection.
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.host == "" {
		return ""
	}

	return s.endpoint(s.host, s.port)
}

// ID identifies the current or last connection in logs and events.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.id
}

func (s *Session) readLoop(gen uint64, conn transport.Conn) {
	for ev := range conn.Events() {
		s.handleEvent(gen, ev)
	}
}

func (s *Session) handleEvent(gen uint64, ev transport.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	switch ev.Type {
	case transport.EventData:
		s.handleDataLocked(ev.Data)

	case transport.EventTimeout:
		s.connLog.Debug("Receiver has been idle")

	case transport.EventError:
		s.connLog.Warn("Transport failed", zap.Error(ev.Err))
		s.teardownLocked(ev.Err)

	case transport.EventClose:
		s.connLog.Info("Receiver closed the connection")
		s.teardownLocked(transport.ErrClosed)
	}
}

// handleDataLocked appends data to the reassembly buffer and applies every
// complete field in it.
func (s *Session) handleDataLocked(data []byte) {
	if s.skip > 0 {
		if len(data) <= s.skip {
			s.skip -= len(data)
			return
		}

		data = data[s.skip:]
		s.skip = 0
	}

	s.inbound = append(s.inbound, data...)

	for len(s.inbound) > 0 {
		f, n, status := protocol.NextField(s.inbound)

		switch status {
		case protocol.StatusIncomplete:
			if len(s.inbound) > s.opts.MaxFrameSize {
				s.skipOversizedLocked()
			}

			return

		case protocol.StatusUnsupported:
			// Without a length the next frame boundary is unknown
			s.connLog.Warn("Unparseable inbound data", zap.Binary("data", s.inbound))
			s.teardownLocked(ErrMalformedFrame)
			return
		}

		s.inbound = s.inbound[n:]
		s.applyReplyLocked(f)
	}

	s.inbound = nil
}

// skipOversizedLocked discards the field at the start of the buffer, along
// with the rest of it that has not arrived yet, so parsing resumes at the
// next frame boundary.
func (s *Session) skipOversizedLocked() {
	size, ok := protocol.FieldSize(s.inbound)
	if !ok {
		s.connLog.Warn("Inbound frame too large and of unknown size",
			zap.Int("buffered", len(s.inbound)))
		s.teardownLocked(ErrFrameTooLarge)
		return
	}

	s.connLog.Warn("Skipping inbound frame",
		zap.Int("size", size),
		zap.Error(ErrFrameTooLarge))

	s.skip = size - len(s.inbound)
	s.inbound = nil
}

func (s *Session) applyReplyLocked(f protocol.Field) {
	switch f.Number {
	case protocol.ReplyPairingCode:
		code, ok := f.Value.String()
		if !ok {
			return
		}

		s.pairingCode = code
		s.connLog.Info("Receiver sent a pairing code", zap.String("pairingCode", code))
		s.emitLocked(Event{Type: EventPairingCode, State: s.state, Previous: s.state, PairingCode: code})

	case protocol.ReplyPairingAck, protocol.ReplyPairingCheck, protocol.ReplyPairingOK:
		if s.state != StateAwaitingPairingResponse {
			return
		}

		s.stopHandshakeTimerLocked()
		s.connLog.Info("Receiver accepted the pairing", zap.Int32("field", int32(f.Number)))
		s.setStateLocked(StateAuthenticated, nil)

	default:
		s.connLog.Debug("Ignoring reply field", zap.Int32("field", int32(f.Number)))
	}
}

func (s *Session) handshakeExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state != StateAwaitingPairingResponse {
		return
	}

	s.connLog.Warn("Pairing handshake timed out", zap.Duration("timeout", s.opts.HandshakeTimeout))
	s.teardownLocked(ErrHandshakeTimeout)
}

// teardownLocked closes the current connection, if any, and moves to
// Disconnected. cause is reported in the state change event.
func (s *Session) teardownLocked(cause error) {
	s.gen++
	s.stopHandshakeTimerLocked()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.connLog.Debug("Transport did not close cleanly", zap.Error(err))
		}

		s.conn = nil
	}

	s.inbound = nil
	s.skip = 0
	s.pairingCode = ""

	if s.state != StateDisconnected {
		s.setStateLocked(StateDisconnected, cause)
	}
}

func (s *Session) stopHandshakeTimerLocked() {
	if s.handshakeTimer != nil {
		s.handshakeTimer.Stop()
		s.handshakeTimer = nil
	}
}

func (s *Session) setStateLocked(state State, cause error) {
	prev := s.state
	s.state = state

	s.emitLocked(Event{
		Type:     EventStateChanged,
		State:    state,
		Previous: prev,
		Err:      cause,
	})
}

func (s *Session) emitLocked(ev Event) {
	ev.SessionID = s.id
	ev.Host = s.host
	ev.Port = s.port

	select {
	case s.events <- ev:
	default:
		s.connLog.Warn("Session event dropped, nobody is listening",
			zap.Stringer("state", ev.State))
	}
}

func (s *Session) endpoint(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func drain(conn transport.Conn) {
	for range conn.Events() {
	}
}
