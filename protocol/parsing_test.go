package protocol_test

import (
	"math"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/tvremote/protocol"
)

var _ = Describe("Parsing", func() {
	Describe("DecodeVarint()", func() {
		DescribeTable("round trips what EncodeVarint produces",
			func(v uint64, size int) {
				b := protocol.EncodeVarint(v)
				Expect(b).To(HaveLen(size))

				value, n := protocol.DecodeVarint(b, 0)
				Expect(value).To(Equal(v))
				Expect(n).To(Equal(size))
			},
			Entry("zero", uint64(0), 1),
			Entry("largest single byte", uint64(127), 1),
			Entry("smallest two bytes", uint64(128), 2),
			Entry("300", uint64(300), 2),
			Entry("largest 32 bit value", uint64(math.MaxUint32), 5),
		)

		It("encodes 300 as two little-endian groups", func() {
			Expect(protocol.EncodeVarint(300)).To(Equal([]byte{0xAC, 0x02}))
		})

		It("decodes from an offset", func() {
			value, n := protocol.DecodeVarint([]byte{0xFF, 0xAC, 0x02}, 1)
			Expect(value).To(Equal(uint64(300)))
			Expect(n).To(Equal(2))
		})

		It("reports zero bytes consumed when the varint is truncated", func() {
			_, n := protocol.DecodeVarint([]byte{0xAC}, 0)
			Expect(n).To(Equal(0))
		})

		It("reports zero bytes consumed when the offset is past the end", func() {
			_, n := protocol.DecodeVarint([]byte{0x01}, 1)
			Expect(n).To(Equal(0))
		})
	})

	Describe("NextField()", func() {
		It("consumes a single varint field", func() {
			f, n, status := protocol.NextField([]byte{0x10, 0x02, 0xFF})
			Expect(status).To(Equal(protocol.StatusComplete))
			Expect(n).To(Equal(2))
			Expect(f).To(Equal(protocol.VarintField(2, 2)))
		})

		It("consumes a single length-delimited field", func() {
			f, n, status := protocol.NextField([]byte{0x0A, 0x02, 'h', 'i'})
			Expect(status).To(Equal(protocol.StatusComplete))
			Expect(n).To(Equal(4))
			Expect(f.Number).To(Equal(protocol.Number(1)))
			Expect(mustString(f.Value.String())).To(Equal("hi"))
		})

		It("copies the bytes of the field", func() {
			data := []byte{0x0A, 0x01, 'a'}
			f, _, _ := protocol.NextField(data)
			data[2] = 'b'
			Expect(f.Value.Bytes).To(Equal([]byte("a")))
		})

		It("is incomplete when the payload is shorter than its length", func() {
			_, n, status := protocol.NextField([]byte{0x0A, 0x05, 'h', 'i'})
			Expect(status).To(Equal(protocol.StatusIncomplete))
			Expect(n).To(Equal(0))
		})

		It("is incomplete when the buffer is empty", func() {
			_, _, status := protocol.NextField(nil)
			Expect(status).To(Equal(protocol.StatusIncomplete))
		})

		It("is unsupported for unknown wire types", func() {
			// field 1, wire type 5 (fixed32)
			_, _, status := protocol.NextField([]byte{0x0D, 0x00, 0x00, 0x00, 0x00})
			Expect(status).To(Equal(protocol.StatusUnsupported))
		})

		It("is unsupported for field number zero", func() {
			_, _, status := protocol.NextField([]byte{0x00, 0x01})
			Expect(status).To(Equal(protocol.StatusUnsupported))
		})
	})

	Describe("DecodeMessage()", func() {
		It("parses every field of a complete message", func() {
			d := protocol.DecodeMessage([]byte{0x0A, 0x01, 'X', 0x10, 0x02})
			Expect(d.Complete()).To(BeTrue())
			Expect(d.Consumed).To(Equal(5))
			Expect(mustString(d.Message.String(1))).To(Equal("X"))
			Expect(mustVarint(d.Message.Varint(2))).To(Equal(uint64(2)))
		})

		It("keeps the last occurrence of a repeated field", func() {
			d := protocol.DecodeMessage([]byte{0x08, 0x01, 0x08, 0x07})
			Expect(mustVarint(d.Message.Varint(1))).To(Equal(uint64(7)))
		})

		It("returns what it parsed before a truncated field", func() {
			d := protocol.DecodeMessage([]byte{0x08, 0x01, 0x12, 0x09, 'a'})
			Expect(d.Status).To(Equal(protocol.StatusIncomplete))
			Expect(d.Consumed).To(Equal(2))
			Expect(mustVarint(d.Message.Varint(1))).To(Equal(uint64(1)))
			Expect(d.Message.Has(2)).To(BeFalse())
		})

		It("distinguishes a zero valued field from a missing one", func() {
			d := protocol.DecodeMessage([]byte{0x08, 0x00})
			Expect(d.Complete()).To(BeTrue())
			Expect(d.Message.Has(1)).To(BeTrue())
			Expect(mustVarint(d.Message.Varint(1))).To(Equal(uint64(0)))

			d = protocol.DecodeMessage([]byte{0x08})
			Expect(d.Status).To(Equal(protocol.StatusIncomplete))
			Expect(d.Message.Has(1)).To(BeFalse())
		})

		It("stops at an unknown wire type", func() {
			d := protocol.DecodeMessage([]byte{0x08, 0x01, 0x0D, 0x00})
			Expect(d.Status).To(Equal(protocol.StatusUnsupported))
			Expect(d.Message).To(HaveLen(1))
		})

		It("does not report text for invalid UTF-8", func() {
			d := protocol.DecodeMessage([]byte{0x0A, 0x02, 0xC3, 0x28})
			_, ok := d.Message.String(1)
			Expect(ok).To(BeFalse())
			Expect(mustBytes(d.Message.Bytes(1))).To(Equal([]byte{0xC3, 0x28}))
		})
	})

	DescribeTable("FieldSize()",
		func(data []byte, size int, ok bool) {
			n, known := protocol.FieldSize(data)
			Expect(known).To(Equal(ok))
			Expect(n).To(Equal(size))
		},
		Entry("bytes header only", []byte{0x0A, 0x26}, 40, true),
		Entry("bytes with part of the value", []byte{0x0A, 0x26, 'a', 'b'}, 40, true),
		Entry("two byte length", []byte{0x0A, 0xC8, 0x01}, 203, true),
		Entry("complete varint", []byte{0x10, 0x96, 0x01}, 3, true),
		Entry("incomplete varint", []byte{0x10, 0x96}, 0, false),
		Entry("incomplete length", []byte{0x0A, 0x80}, 0, false),
		Entry("empty", []byte{}, 0, false),
		Entry("field number zero", []byte{0x02, 0x01}, 0, false),
		Entry("unsupported wire type", []byte{0x0D, 0x00}, 0, false),
		Entry("absurd length", append([]byte{0x0A}, protocol.EncodeVarint(1<<40)...), 0, false),
	)
})
