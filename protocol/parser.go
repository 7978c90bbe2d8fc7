package protocol

import (
	"errors"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// DecodeVarint reads a varint starting at offset. It returns the number of
// bytes consumed, which is 0 when the buffer ends before the varint does (or
// the varint overflows 64 bits). A return of (0, 0) therefore means "need more
// bytes", never a parsed zero.
func DecodeVarint(data []byte, offset int) (value uint64, n int) {
	if offset < 0 || offset >= len(data) {
		return 0, 0
	}

	value, n = protowire.ConsumeVarint(data[offset:])
	if n < 0 {
		return 0, 0
	}

	return value, n
}

// NextField consumes exactly one field from the start of data. The returned
// field's bytes are copied so data can be reused by the caller.
//
// If the status is not StatusComplete the field and count are zero.
func NextField(data []byte) (Field, int, Status) {
	tag, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return Field{}, 0, statusFor(n)
	}

	num := protowire.Number(tag >> 3)
	if num < protowire.MinValidNumber || num > protowire.MaxValidNumber {
		return Field{}, 0, StatusUnsupported
	}

	switch protowire.Type(tag & 7) {
	case protowire.VarintType:
		v, m := protowire.ConsumeVarint(data[n:])
		if m < 0 {
			return Field{}, 0, statusFor(m)
		}

		return VarintField(Number(num), v), n + m, StatusComplete

	case protowire.BytesType:
		b, m := protowire.ConsumeBytes(data[n:])
		if m < 0 {
			return Field{}, 0, statusFor(m)
		}

		value := make([]byte, len(b))
		copy(value, b)

		return BytesField(Number(num), value), n + m, StatusComplete

	default:
		return Field{}, 0, StatusUnsupported
	}
}

// FieldSize returns the encoded size of the field at the start of data once
// its header is readable, even if the value itself is still incomplete. For a
// bytes field the header is the tag and the length, for a varint field the
// whole field is needed. ok is false when the size cannot be known yet, or
// the header is malformed.
func FieldSize(data []byte) (size int, ok bool) {
	tag, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, false
	}

	num := protowire.Number(tag >> 3)
	if num < protowire.MinValidNumber || num > protowire.MaxValidNumber {
		return 0, false
	}

	switch protowire.Type(tag & 7) {
	case protowire.VarintType:
		_, m := protowire.ConsumeVarint(data[n:])
		if m < 0 {
			return 0, false
		}

		return n + m, true

	case protowire.BytesType:
		length, m := protowire.ConsumeVarint(data[n:])
		if m < 0 || length > uint64(math.MaxInt32) {
			return 0, false
		}

		return n + m + int(length), true

	default:
		return 0, false
	}
}

// DecodeMessage parses fields until data is exhausted. It never fails, a
// truncated final field or an unknown wire type stops the parse and whatever was
// parsed so far is returned along with the reason decoding stopped.
func DecodeMessage(data []byte) Decoded {
	d := Decoded{Message: make(Message)}

	for d.Consumed < len(data) {
		f, n, status := NextField(data[d.Consumed:])
		if status != StatusComplete {
			d.Status = status
			return d
		}

		d.Message[f.Number] = f.Value
		d.Consumed += n
	}

	return d
}

func statusFor(n int) Status {
	if errors.Is(protowire.ParseError(n), io.ErrUnexpectedEOF) {
		return StatusIncomplete
	}

	return StatusUnsupported
}
