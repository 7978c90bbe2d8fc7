package protocol

import (
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Number is a field number. Valid field numbers are positive.
type Number int32

// WireType describes how a field's value is encoded.
type WireType int8

const (
	WireVarint WireType = WireType(protowire.VarintType)
	WireBytes  WireType = WireType(protowire.BytesType)
)

func (w WireType) String() string {
	switch w {
	case WireVarint:
		return "varint"
	case WireBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Status reports how far a decode got.
type Status int

const (
	// StatusComplete means every byte was consumed.
	StatusComplete Status = iota

	// StatusIncomplete means the buffer ended inside a field. More bytes are
	// needed, nothing about the truncated field is known.
	StatusIncomplete

	// StatusUnsupported means a field used a wire type (or field number) this
	// package does not understand. The stream cannot be resynchronized from
	// that point.
	StatusUnsupported
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusIncomplete:
		return "incomplete"
	case StatusUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Value is a decoded field value. Exactly one of Varint or Bytes is meaningful,
// depending on Type.
type Value struct {
	Type   WireType
	Varint uint64
	Bytes  []byte
}

// String returns the value as text if it is a length-delimited value holding
// valid UTF-8.
func (v Value) String() (string, bool) {
	if v.Type != WireBytes || !utf8.Valid(v.Bytes) {
		return "", false
	}

	return string(v.Bytes), true
}

// Field is a single field of a message.
type Field struct {
	Number Number
	Value  Value
}

func VarintField(num Number, v uint64) Field {
	return Field{Number: num, Value: Value{Type: WireVarint, Varint: v}}
}

func BytesField(num Number, b []byte) Field {
	return Field{Number: num, Value: Value{Type: WireBytes, Bytes: b}}
}

func StringField(num Number, s string) Field {
	return BytesField(num, []byte(s))
}

// Message maps field numbers to their values. When a field number occurs more
// than once the last occurrence wins.
type Message map[Number]Value

func (m Message) Has(num Number) bool {
	_, ok := m[num]
	return ok
}

func (m Message) Varint(num Number) (uint64, bool) {
	v, ok := m[num]
	if !ok || v.Type != WireVarint {
		return 0, false
	}

	return v.Varint, true
}

func (m Message) Bytes(num Number) ([]byte, bool) {
	v, ok := m[num]
	if !ok || v.Type != WireBytes {
		return nil, false
	}

	return v.Bytes, true
}

func (m Message) String(num Number) (string, bool) {
	v, ok := m[num]
	if !ok {
		return "", false
	}

	return v.String()
}

// Decoded is the result of DecodeMessage. Message holds every field that was
// parsed before decoding stopped, even when Status is not StatusComplete.
type Decoded struct {
	Message  Message
	Consumed int
	Status   Status
}

// Complete returns true if the whole buffer was parsed.
func (d Decoded) Complete() bool {
	return d.Status == StatusComplete
}
