package client_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/tvremote/client"
	"github.com/luma/tvremote/protocol"
	"github.com/luma/tvremote/transport"
	"github.com/luma/tvremote/transport/transporttest"
)

var _ = Describe("Session", func() {
	var (
		ctx     context.Context
		dialer  *transporttest.Dialer
		session *client.Session
	)

	pairingAck := protocol.EncodeFrame(protocol.ReplyPairingAck, protocol.VarintField(1, 200))

	connect := func() *transporttest.Conn {
		Expect(session.Connect(ctx, "192.168.1.20", protocol.DefaultPort)).To(Succeed())
		conn := dialer.Last()
		Expect(conn).NotTo(BeNil())
		return conn
	}

	authenticate := func() *transporttest.Conn {
		conn := connect()
		conn.Deliver(pairingAck)
		Eventually(session.Authenticated).Should(BeTrue())
		return conn
	}

	BeforeEach(func() {
		ctx = context.Background()
		dialer = transporttest.NewDialer()
		session = client.New(dialer, client.Options{
			ClientName: "X",
			Log:        zap.NewNop(),
		})
	})

	AfterEach(func() {
		Expect(session.Disconnect()).To(Succeed())
	})

	Describe("Connect()", func() {
		It("sends the pairing request as soon as the transport connects", func() {
			conn := connect()

			Expect(dialer.Dials()).To(Equal([]string{"192.168.1.20:6466"}))
			Expect(conn.Writes()).To(Equal([][]byte{
				{0x0A, 0x05, 0x0A, 0x01, 'X', 0x10, 0x02},
			}))
		})

		It("returns before the receiver accepts the pairing", func() {
			connect()

			Expect(session.State()).To(Equal(client.StateAwaitingPairingResponse))
			Expect(session.Connected()).To(BeTrue())
			Expect(session.Authenticated()).To(BeFalse())
		})

		It("surfaces dial failures and stays disconnected", func() {
			dialer.SetErr(errors.New("connection refused"))

			err := session.Connect(ctx, "192.168.1.20", protocol.DefaultPort)
			Expect(errors.Is(err, client.ErrConnectFailed)).To(BeTrue())
			Expect(session.State()).To(Equal(client.StateDisconnected))
		})

		It("closes the previous connection when connecting again", func() {
			first := authenticate()

			second := connect()
			Expect(first.Closes()).To(Equal(1))
			Expect(second).NotTo(BeIdenticalTo(first))
			Expect(session.Authenticated()).To(BeFalse())
		})

		It("ignores events from a connection it has replaced", func() {
			first := connect()
			connect()

			first.Deliver(pairingAck)
			Consistently(session.Authenticated, 50*time.Millisecond).Should(BeFalse())
		})

		It("assigns a new session id to every connection", func() {
			connect()
			first := session.ID()
			connect()

			Expect(first).NotTo(BeEmpty())
			Expect(session.ID()).NotTo(Equal(first))
		})
	})

	Describe("authentication", func() {
		DescribeTable("any pairing reply field authenticates",
			func(field protocol.Number) {
				conn := connect()
				conn.Deliver(protocol.EncodeFrame(field, protocol.VarintField(1, 200)))

				Eventually(session.State).Should(Equal(client.StateAuthenticated))
			},
			Entry("pairing ack (2)", protocol.ReplyPairingAck),
			Entry("pairing check (3)", protocol.ReplyPairingCheck),
			Entry("pairing ok (4)", protocol.ReplyPairingOK),
		)

		It("accepts a reply field carried as a bare varint", func() {
			conn := connect()
			conn.Deliver([]byte{0x10, 0x01})

			Eventually(session.Authenticated).Should(BeTrue())
		})

		It("stores a pairing code without authenticating", func() {
			conn := connect()
			conn.Deliver(protocol.EncodeField(protocol.StringField(protocol.ReplyPairingCode, "4F2A")))

			Eventually(func() string {
				code, _ := session.PairingCode()
				return code
			}).Should(Equal("4F2A"))
			Expect(session.Authenticated()).To(BeFalse())
		})

		It("waits for the rest of a frame split across reads", func() {
			conn := connect()
			conn.Deliver(pairingAck[:2])

			Consistently(session.Authenticated, 50*time.Millisecond).Should(BeFalse())

			conn.Deliver(pairingAck[2:])
			Eventually(session.Authenticated).Should(BeTrue())
		})

		It("handles several frames in one read", func() {
			conn := connect()

			data := protocol.EncodeField(protocol.StringField(protocol.ReplyPairingCode, "77"))
			data = append(data, pairingAck...)
			conn.Deliver(data)

			Eventually(session.Authenticated).Should(BeTrue())
			code, ok := session.PairingCode()
			Expect(ok).To(BeTrue())
			Expect(code).To(Equal("77"))
		})

		It("disconnects on data with an unknown wire type", func() {
			conn := connect()
			conn.Deliver([]byte{0x0D, 0x00, 0x00, 0x00, 0x00})

			Expect(disconnectCause(session)).To(MatchError(client.ErrMalformedFrame))
			Expect(conn.Closed()).To(BeTrue())
		})

		Describe("oversized frames", func() {
			var oversized []byte

			BeforeEach(func() {
				session = client.New(dialer, client.Options{
					MaxFrameSize: 16,
					Log:          zap.NewNop(),
				})

				// A 40 byte pairing code frame whose payload looks like a
				// pairing ack from byte 20 on.
				payload := make([]byte, 38)
				for i := range payload {
					payload[i] = 'a'
				}
				payload[18] = 0x10
				payload[19] = 0x01

				oversized = protocol.EncodeField(protocol.BytesField(protocol.ReplyPairingCode, payload))
				Expect(oversized).To(HaveLen(40))
			})

			It("skips the rest of the frame instead of parsing its payload", func() {
				conn := connect()
				conn.Deliver(oversized[:20])
				conn.Deliver(oversized[20:])

				Consistently(session.State, 50*time.Millisecond).Should(Equal(client.StateAwaitingPairingResponse))
				_, ok := session.PairingCode()
				Expect(ok).To(BeFalse())

				conn.Deliver(pairingAck)
				Eventually(session.Authenticated).Should(BeTrue())
			})

			It("resumes at the frame boundary inside a read", func() {
				conn := connect()
				conn.Deliver(oversized[:20])
				conn.Deliver(oversized[20:30])
				conn.Deliver(append(append([]byte(nil), oversized[30:]...), pairingAck...))

				Eventually(session.Authenticated).Should(BeTrue())
			})

			It("disconnects on an overlong varint", func() {
				conn := connect()
				conn.Deliver([]byte{0x08, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80})

				Expect(disconnectCause(session)).To(MatchError(client.ErrMalformedFrame))
				Expect(session.State()).To(Equal(client.StateDisconnected))
				Expect(conn.Closed()).To(BeTrue())
			})

			It("disconnects on an unterminated length", func() {
				session = client.New(dialer, client.Options{MaxFrameSize: 1, Log: zap.NewNop()})

				conn := connect()
				conn.Deliver([]byte{0x0A, 0x80})

				Expect(disconnectCause(session)).To(MatchError(client.ErrFrameTooLarge))
				Expect(conn.Closed()).To(BeTrue())
			})
		})

		It("disconnects when the handshake times out", func() {
			session = client.New(dialer, client.Options{
				HandshakeTimeout: 20 * time.Millisecond,
				Log:              zap.NewNop(),
			})

			conn := connect()

			Eventually(session.State).Should(Equal(client.StateDisconnected))
			Expect(conn.Closed()).To(BeTrue())
		})

		It("does not time out once authenticated", func() {
			session = client.New(dialer, client.Options{
				HandshakeTimeout: 20 * time.Millisecond,
				Log:              zap.NewNop(),
			})

			authenticate()

			Consistently(session.Authenticated, 100*time.Millisecond).Should(BeTrue())
		})
	})

	Describe("SendKey()", func() {
		It("fails with not connected before connecting", func() {
			err := session.SendKey(ctx, protocol.DpadUp)
			Expect(err).To(MatchError(client.ErrNotConnected))
		})

		It("fails with not authenticated before any reply", func() {
			conn := connect()

			err := session.SendKey(ctx, protocol.DpadUp)
			Expect(err).To(MatchError(client.ErrNotAuthenticated))
			Expect(conn.Writes()).To(HaveLen(1))
		})

		It("writes a short key event once authenticated", func() {
			conn := authenticate()

			Expect(session.SendKey(ctx, protocol.DpadUp)).To(Succeed())
			Expect(conn.Writes()).To(HaveLen(2))
			Expect(conn.Writes()[1]).To(Equal([]byte{0x12, 0x04, 0x08, 0x13, 0x10, 0x02}))
		})

		It("sends key code 0 for unknown actions", func() {
			conn := authenticate()

			Expect(session.SendKey(ctx, "TELEPORT")).To(Succeed())
			Expect(conn.Writes()[1]).To(Equal(protocol.EncodeKeyEvent(0, protocol.Short)))
		})

		It("sends long presses with their direction", func() {
			conn := authenticate()

			Expect(session.SendKeyEvent(ctx, protocol.Power, protocol.StartLong)).To(Succeed())
			Expect(session.SendKeyEvent(ctx, protocol.Power, protocol.EndLong)).To(Succeed())
			Expect(conn.Writes()[1:]).To(Equal([][]byte{
				protocol.EncodeKeyEvent(26, protocol.StartLong),
				protocol.EncodeKeyEvent(26, protocol.EndLong),
			}))
		})

		It("exposes one method per remote button", func() {
			conn := authenticate()

			buttons := []struct {
				press  func(context.Context) error
				action protocol.Action
			}{
				{session.Power, protocol.Power},
				{session.Home, protocol.Home},
				{session.Back, protocol.Back},
				{session.Menu, protocol.Menu},
				{session.VolumeUp, protocol.VolumeUp},
				{session.VolumeDown, protocol.VolumeDown},
				{session.Mute, protocol.VolumeMute},
				{session.PlayPause, protocol.MediaPlayPause},
				{session.Next, protocol.MediaNext},
				{session.Previous, protocol.MediaPrevious},
				{session.Up, protocol.DpadUp},
				{session.Down, protocol.DpadDown},
				{session.Left, protocol.DpadLeft},
				{session.Right, protocol.DpadRight},
				{session.Select, protocol.DpadCenter},
			}

			for _, b := range buttons {
				Expect(b.press(ctx)).To(Succeed())
			}

			writes := conn.Writes()[1:]
			Expect(writes).To(HaveLen(len(buttons)))
			for i, b := range buttons {
				Expect(writes[i]).To(Equal(protocol.EncodeKeyEvent(protocol.KeyCode(b.action), protocol.Short)), string(b.action))
			}
		})

		It("returns transport write failures", func() {
			conn := authenticate()
			conn.WriteFn = func([]byte) error { return errors.New("broken pipe") }

			Expect(session.SendKey(ctx, protocol.Home)).To(MatchError(ContainSubstring("broken pipe")))
			Expect(session.Authenticated()).To(BeTrue())
		})
	})

	Describe("transport failures", func() {
		It("drops authentication when the receiver closes the connection", func() {
			conn := authenticate()
			conn.Hangup()

			Eventually(session.State).Should(Equal(client.StateDisconnected))
			Expect(session.Authenticated()).To(BeFalse())

			err := session.SendKey(ctx, protocol.DpadUp)
			Expect(errors.Is(err, client.ErrNotAuthenticated)).To(BeTrue())
			Expect(conn.Writes()).To(HaveLen(1))
		})

		It("reports the cause when the transport errors", func() {
			conn := authenticate()
			cause := errors.New("connection reset by peer")
			conn.Fail(cause)

			Eventually(session.State).Should(Equal(client.StateDisconnected))

			var last client.Event
			Eventually(func() error {
				for {
					select {
					case ev := <-session.Events():
						if ev.Type == client.EventStateChanged && ev.State == client.StateDisconnected {
							last = ev
							return nil
						}
					default:
						return errors.New("no disconnect event yet")
					}
				}
			}).Should(Succeed())

			Expect(last.Err).To(MatchError(cause))
			Expect(last.Previous).To(Equal(client.StateAuthenticated))
		})

		It("ignores idle timeouts", func() {
			conn := authenticate()
			conn.Timeout()

			Consistently(session.Authenticated, 50*time.Millisecond).Should(BeTrue())
		})
	})

	Describe("Disconnect()", func() {
		It("is safe to call twice", func() {
			conn := authenticate()

			Expect(session.Disconnect()).To(Succeed())
			Expect(session.Disconnect()).To(Succeed())
			Expect(conn.Closes()).To(Equal(1))
			Expect(session.State()).To(Equal(client.StateDisconnected))
		})

		It("is safe to call before ever connecting", func() {
			Expect(session.Disconnect()).To(Succeed())
		})
	})

	Describe("SendPairingSecret()", func() {
		It("requires a connection", func() {
			Expect(session.SendPairingSecret(ctx, "AB12")).To(MatchError(client.ErrNotConnected))
		})

		It("is allowed before the pairing is accepted", func() {
			conn := connect()

			Expect(session.SendPairingSecret(ctx, "AB12")).To(Succeed())
			Expect(conn.Writes()[1]).To(Equal(protocol.EncodePairingSecret("AB12")))
		})
	})

	Describe("Events()", func() {
		It("reports each state transition of a connection in order", func() {
			authenticate()
			Expect(session.Disconnect()).To(Succeed())

			var states []client.State
			Eventually(func() []client.State {
				for {
					select {
					case ev := <-session.Events():
						if ev.Type == client.EventStateChanged {
							states = append(states, ev.State)
						}
					default:
						return states
					}
				}
			}).Should(Equal([]client.State{
				client.StateConnecting,
				client.StateAwaitingPairingResponse,
				client.StateAuthenticated,
				client.StateDisconnected,
			}))
		})
	})
})

var _ transport.Conn = (*transporttest.Conn)(nil)

// disconnectCause waits for the session's disconnect event and returns its
// cause.
func disconnectCause(session *client.Session) error {
	var cause error

	EventuallyWithOffset(1, func() bool {
		for {
			select {
			case ev := <-session.Events():
				if ev.Type == client.EventStateChanged && ev.State == client.StateDisconnected {
					cause = ev.Err
					return true
				}
			default:
				return false
			}
		}
	}).Should(BeTrue())

	return cause
}
