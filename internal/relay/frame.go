package relay

import (
	"encoding/binary"
	"errors"
)

// Opcodes from RFC 6455 section 5.2.
const (
	opContinuation = 0x0
	opText         = 0x1
	opBinary       = 0x2
	opClose        = 0x8
	opPing         = 0x9
	opPong         = 0xA
)

// Close status codes from RFC 6455 section 7.4.1.
const (
	closeNormal        = 1000
	closeProtocolError = 1002
	closeTooLarge      = 1009
)

var (
	// ErrUnmaskedFrame reports a client frame without the mandatory mask bit.
	ErrUnmaskedFrame = errors.New("relay: unmasked client frame")
	// ErrFrameTooLarge reports a 64-bit payload length with a nonzero high word.
	ErrFrameTooLarge = errors.New("relay: frame payload too large")
)

type frame struct {
	fin     bool
	opcode  byte
	payload []byte
}

// closeCodeFor maps a framing error to the status code sent in the close frame.
func closeCodeFor(err error) uint16 {
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		return closeTooLarge
	case errors.Is(err, ErrUnmaskedFrame):
		return closeProtocolError
	default:
		return closeNormal
	}
}

// decodeFrames drains every complete frame from buf, left to right, and
// returns the undecoded tail. A partial frame at the end of buf is left in
// the tail untouched; the caller appends further bytes and calls again.
// A non-nil error means the connection must be failed; frames decoded
// before the violation are still returned and must be processed first.
func decodeFrames(buf []byte) ([]frame, []byte, error) {
	var frames []frame
	offset := 0
	for offset+2 <= len(buf) {
		b0 := buf[offset]
		fin := b0&0x80 != 0
		opcode := b0 & 0x0f
		b1 := buf[offset+1]
		masked := b1&0x80 != 0
		length := int(b1 & 0x7f)
		pos := offset + 2

		switch length {
		case 126:
			if pos+2 > len(buf) {
				return frames, buf[offset:], nil
			}
			length = int(binary.BigEndian.Uint16(buf[pos:]))
			pos += 2
		case 127:
			if pos+8 > len(buf) {
				return frames, buf[offset:], nil
			}
			high := binary.BigEndian.Uint32(buf[pos:])
			low := binary.BigEndian.Uint32(buf[pos+4:])
			pos += 8
			if high != 0 {
				return frames, nil, ErrFrameTooLarge
			}
			length = int(low)
		}

		// Client-to-server frames must be masked (RFC 6455 section 5.1).
		if !masked {
			return frames, nil, ErrUnmaskedFrame
		}
		if pos+4 > len(buf) {
			return frames, buf[offset:], nil
		}
		mask := buf[pos : pos+4]
		pos += 4
		if pos+length > len(buf) {
			return frames, buf[offset:], nil
		}
		payload := buf[pos : pos+length]
		for i := range payload {
			payload[i] ^= mask[i&3]
		}
		offset = pos + length
		frames = append(frames, frame{fin: fin, opcode: opcode, payload: payload})
	}
	return frames, buf[offset:], nil
}

// encodeFrame builds a single final server-to-client frame. Server frames
// are never masked (RFC 6455 section 5.1), so the header is just the opcode
// byte plus the length field in the narrowest of the three size classes.
func encodeFrame(opcode byte, payload []byte) []byte {
	n := len(payload)
	var header []byte
	switch {
	case n < 126:
		header = []byte{0x80 | opcode, byte(n)}
	case n < 1<<16:
		header = make([]byte, 4)
		header[0] = 0x80 | opcode
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = 0x80 | opcode
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}
	return append(header, payload...)
}

// encodeCloseFrame carries the status code as a 2-byte big-endian payload.
func encodeCloseFrame(code uint16) []byte {
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, code)
	return encodeFrame(opClose, body)
}
