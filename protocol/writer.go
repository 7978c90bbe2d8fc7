package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// EncodeVarint returns the minimal varint encoding of v.
func EncodeVarint(v uint64) []byte {
	return protowire.AppendVarint(nil, v)
}

// EncodeTag returns the varint encoded tag for a field.
func EncodeTag(num Number, wt WireType) []byte {
	return EncodeVarint(uint64(num)<<3 | uint64(wt))
}

// EncodeField returns the tag of f followed by its value. Bytes values are
// prefixed by their length.
func EncodeField(f Field) []byte {
	return AppendField(nil, f)
}

func AppendField(b []byte, f Field) []byte {
	b = protowire.AppendTag(b, protowire.Number(f.Number), protowire.Type(f.Value.Type))

	switch f.Value.Type {
	case WireVarint:
		b = protowire.AppendVarint(b, f.Value.Varint)
	case WireBytes:
		b = protowire.AppendBytes(b, f.Value.Bytes)
	}

	return b
}

// EncodeMessage encodes fields in the order given.
func EncodeMessage(fields ...Field) []byte {
	var b []byte
	for _, f := range fields {
		b = AppendField(b, f)
	}

	return b
}

// EncodeFrame wraps the inner message as the length-delimited outer field num.
func EncodeFrame(num Number, inner ...Field) []byte {
	return EncodeField(BytesField(num, EncodeMessage(inner...)))
}

// EncodePairingRequest builds the frame that opens a pairing handshake.
func EncodePairingRequest(clientName string, protocolVersion uint64) []byte {
	return EncodeFrame(FramePairingRequest,
		StringField(1, clientName),
		VarintField(2, protocolVersion),
	)
}

// EncodeKeyEvent builds a key press frame.
func EncodeKeyEvent(keyCode uint64, direction Direction) []byte {
	return EncodeFrame(FrameKeyEvent,
		VarintField(1, keyCode),
		VarintField(2, uint64(direction)),
	)
}

// EncodePairingSecret builds the frame carrying the secret the user read off
// the receiver's screen.
func EncodePairingSecret(secret string) []byte {
	return EncodeFrame(FramePairingSecret, StringField(1, secret))
}
