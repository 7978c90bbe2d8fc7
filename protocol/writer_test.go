package protocol_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/tvremote/protocol"
)

var _ = Describe("Writer", func() {
	Describe("EncodeField", func() {
		It("writes a varint field as tag then value", func() {
			Expect(protocol.EncodeField(protocol.VarintField(2, 150))).
				To(Equal([]byte{0x10, 0x96, 0x01}))
		})

		It("writes a bytes field as tag, length then payload", func() {
			Expect(protocol.EncodeField(protocol.StringField(1, "abc"))).
				To(Equal([]byte{0x0A, 0x03, 'a', 'b', 'c'}))
		})

		It("uses a multi-byte tag for large field numbers", func() {
			Expect(protocol.EncodeTag(16, protocol.WireVarint)).To(Equal([]byte{0x80, 0x01}))
		})
	})

	Describe("EncodePairingRequest", func() {
		It("wraps the client name and version in outer field 1", func() {
			Expect(protocol.EncodePairingRequest("X", 2)).To(Equal([]byte{
				0x0A, 0x05,
				0x0A, 0x01, 'X',
				0x10, 0x02,
			}))
		})

		It("can be decoded back into its inner message", func() {
			outer := protocol.DecodeMessage(protocol.EncodePairingRequest("living room", protocol.ProtocolVersion))
			Expect(outer.Complete()).To(BeTrue())

			payload, ok := outer.Message.Bytes(protocol.FramePairingRequest)
			Expect(ok).To(BeTrue())

			inner := protocol.DecodeMessage(payload)
			Expect(mustString(inner.Message.String(1))).To(Equal("living room"))
			Expect(mustVarint(inner.Message.Varint(2))).To(Equal(uint64(2)))
		})
	})

	Describe("EncodeKeyEvent", func() {
		It("wraps key code and direction in outer field 2", func() {
			Expect(protocol.EncodeKeyEvent(19, protocol.Short)).To(Equal([]byte{
				0x12, 0x04,
				0x08, 0x13,
				0x10, 0x02,
			}))
		})

		It("encodes key codes above 127 as multi-byte varints", func() {
			Expect(protocol.EncodeKeyEvent(protocol.KeyCode(protocol.VolumeMute), protocol.StartLong)).To(Equal([]byte{
				0x12, 0x05,
				0x08, 0xA4, 0x01,
				0x10, 0x00,
			}))
		})
	})

	Describe("EncodePairingSecret", func() {
		It("wraps the secret in outer field 3", func() {
			Expect(protocol.EncodePairingSecret("AB12")).To(Equal([]byte{
				0x1A, 0x06,
				0x0A, 0x04, 'A', 'B', '1', '2',
			}))
		})
	})
})
