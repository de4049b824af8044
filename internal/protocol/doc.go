// Package protocol defines the binary wire format agents use to request
// host operations.
//
// A frame is [opcode u8][token u64 LE][payload]. Payload fields are
// little-endian integers and u16-length-prefixed UTF-8 text. Decoding is
// all-or-nothing: malformed frames fail with ErrBadFrame and apply no
// partial effect.
package protocol
