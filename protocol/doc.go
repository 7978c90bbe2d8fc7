package protocol

// This package implements encoding and decoding of the binary protocol that
// Android TV style receivers speak on their remote control port (6466 by default).
//
// The protocol aims to be
//
// - compact on the wire
// - resynchronizable from any frame boundary
// - forgiving when parsing replies from the receiver
//
// It is a subset of the protobuf wire format.
//
// === Fields
//
// Every value is a field. A field starts with a tag, which is a varint of
// `fieldNumber << 3 | wireType`, and is followed by its value
//
// - wire type 0 (varint)  - the value is a single varint
// - wire type 2 (bytes)   - a varint length followed by that many raw bytes
//
// No other wire types are understood. Parsing stops at the first one it sees.
//
// === Varints
//
// Little-endian groups of 7 bits, the high bit of each byte is set when more
// bytes follow. Encodings are always minimal.
//
//   ```
//     19  -> 0x13
//     300 -> 0xAC 0x02
//   ```
//
// === Frames
//
// A frame is a single outer field of wire type 2 whose payload is itself a
// message. There is no other length header, the outer field's own length prefix
// delimits the frame.
//
// === Client frames
//
// - `PairingRequest` - outer field 1 { 1: client name, 2: protocol version }
// - `KeyEvent`       - outer field 2 { 1: key code, 2: direction }
// - `PairingSecret`  - outer field 3 { 1: secret }
//
// For example, a short press of DPAD_UP
//
//   ```
//     0x12 0x04 0x08 0x13 0x10 0x02
//   ```
//
// === Receiver frames
//
// Replies are read leniently, a receiver that sends field 2, 3 or 4 has
// accepted the pairing. Field 1, when it holds text, is a pairing code to show
// to the user.
//
