package protocol

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"
)

// MaxPayload bounds the variable part of a frame. Anything larger is
// rejected before any field is parsed.
const MaxPayload = 4096

// ErrBadFrame reports a malformed or truncated frame. Decoding applies no
// partial effect: a frame either parses completely or not at all.
var ErrBadFrame = errors.New("bad frame")

// Frame is one decoded wire frame: [opcode u8][token u64 LE][payload].
type Frame struct {
	Opcode  Opcode
	Token   uint64
	Payload []byte
}

// DecodeFrame parses a raw wire frame.
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) < 9 {
		return Frame{}, ErrBadFrame
	}
	payload := raw[9:]
	if len(payload) > MaxPayload {
		return Frame{}, ErrBadFrame
	}
	return Frame{
		Opcode:  Opcode(raw[0]),
		Token:   binary.LittleEndian.Uint64(raw[1:9]),
		Payload: payload,
	}, nil
}

// EncodeFrame serializes a frame to wire form.
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, 9+len(f.Payload))
	buf[0] = byte(f.Opcode)
	binary.LittleEndian.PutUint64(buf[1:9], f.Token)
	copy(buf[9:], f.Payload)
	return buf
}

// reader walks a payload without ever reading past its end. All integer
// fields are little-endian; variable fields are u16 LE length + bytes.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) u8() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrBadFrame
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, ErrBadFrame
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, ErrBadFrame
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, ErrBadFrame
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// bytesTLV reads a u16-length-prefixed byte field.
func (r *reader) bytesTLV() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	if r.remaining() < int(n) {
		return nil, ErrBadFrame
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

// stringTLV reads a length-prefixed UTF-8 text field.
func (r *reader) stringTLV() (string, error) {
	b, err := r.bytesTLV()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrBadFrame
	}
	return string(b), nil
}

// rest consumes everything left in the payload.
func (r *reader) rest() []byte {
	v := r.buf[r.pos:]
	r.pos = len(r.buf)
	return v
}

// writer builds payloads for the encode side; used by the host test
// surface and the round-trip tests.
type writer struct {
	buf []byte
}

func (w *writer) u8(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) bytesTLV(b []byte) {
	w.u16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) stringTLV(s string) {
	w.bytesTLV([]byte(s))
}
