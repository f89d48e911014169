package wslink

import (
	"crypto/rand"
	"encoding/binary"
	"math/bits"

	"golang.org/x/xerrors"
)

// opcode represents a WebSocket opcode.
type opcode int

// https://tools.ietf.org/html/rfc6455#section-11.8.
const (
	opContinuation opcode = iota
	opText
	opBinary
	// 3 - 7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	opClose
	opPing
	opPong
	// 11-16 are reserved for further control frames.
)

func (o opcode) String() string {
	switch o {
	case opContinuation:
		return "continuation"
	case opText:
		return "text"
	case opBinary:
		return "binary"
	case opClose:
		return "close"
	case opPing:
		return "ping"
	case opPong:
		return "pong"
	}
	return "unknown"
}

func (o opcode) control() bool {
	return o == opClose || o == opPing || o == opPong
}

// frame is one decoded unit of the wire protocol.
// See https://tools.ietf.org/html/rfc6455#section-5.2.
type frame struct {
	fin    bool
	opcode opcode

	masked  bool
	maskKey uint32

	// payload is unmasked. Control frames carry none in this subset.
	payload []byte
}

// maxFramePayload bounds the declared payload length a peer may ask us to
// buffer. Anything larger is treated as a corrupt header.
const maxFramePayload = 1 << 24

// encodeFrame encodes payload as a single masked frame with FIN set.
// A fresh random 4-byte mask key is generated per frame.
func encodeFrame(op opcode, payload []byte) ([]byte, error) {
	b := make([]byte, 0, 14+len(payload))
	b = append(b, 0x80|byte(op))

	switch {
	case len(payload) < 126:
		b = append(b, 0x80|byte(len(payload)))
	case len(payload) < 65536:
		b = append(b, 0x80|126, 0, 0)
		binary.BigEndian.PutUint16(b[2:4], uint16(len(payload)))
	default:
		b = append(b, 0x80|127, 0, 0, 0, 0, 0, 0, 0, 0)
		binary.BigEndian.PutUint64(b[2:10], uint64(len(payload)))
	}

	var maskKey uint32
	err := binary.Read(rand.Reader, binary.LittleEndian, &maskKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to generate mask key: %w", err)
	}
	b = binary.LittleEndian.AppendUint32(b, maskKey)

	masked := append(b, payload...)
	mask(maskKey, masked[len(b):])
	return masked, nil
}

// decodeFrame decodes the first complete frame in b.
//
// The returned count is how many bytes of b the frame occupied; a count of
// zero means b does not yet hold a complete frame and nothing was consumed.
// A non-nil error is always a *ProtocolError and consumes nothing either.
//
// Control frames (close, ping, pong) are treated as payload-less: exactly
// their two base header bytes are consumed and no payload is parsed. This is
// a deliberate subset of RFC 6455, which permits short control payloads.
func decodeFrame(b []byte) (frame, int, error) {
	if len(b) < 2 {
		return frame{}, 0, nil
	}

	var f frame
	f.fin = b[0]&0x80 != 0
	f.opcode = opcode(b[0] & 0x0f)

	if f.opcode.control() {
		return f, 2, nil
	}

	f.masked = b[1]&0x80 != 0

	n := int64(b[1] & 0x7f)
	off := 2
	switch n {
	case 126:
		if len(b) < 4 {
			return frame{}, 0, nil
		}
		n = int64(binary.BigEndian.Uint16(b[2:4]))
		off = 4
	case 127:
		if len(b) < 10 {
			return frame{}, 0, nil
		}
		v := binary.BigEndian.Uint64(b[2:10])
		if v > maxFramePayload {
			return frame{}, 0, &ProtocolError{
				Reason: "declared payload length is impossibly large",
			}
		}
		n = int64(v)
		off = 10
	}
	if n > maxFramePayload {
		return frame{}, 0, &ProtocolError{
			Reason: "declared payload length exceeds the frame limit",
		}
	}

	if f.masked {
		if len(b) < off+4 {
			return frame{}, 0, nil
		}
		f.maskKey = binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
	}

	total := off + int(n)
	if len(b) < total {
		return frame{}, 0, nil
	}

	f.payload = make([]byte, n)
	copy(f.payload, b[off:total])
	if f.masked {
		mask(f.maskKey, f.payload)
	}

	return f, total, nil
}

// mask applies the WebSocket masking algorithm to p with the given key.
// See https://tools.ietf.org/html/rfc6455#section-5.3
//
// The returned value is the correctly rotated key to continue to
// mask/unmask the message.
//
// It is optimized for LittleEndian and expects the key to be in
// little endian.
//
// See https://github.com/golang/go/issues/31586
func mask(key uint32, b []byte) uint32 {
	if len(b) >= 8 {
		key64 := uint64(key)<<32 | uint64(key)

		for len(b) >= 64 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			v = binary.LittleEndian.Uint64(b[8:16])
			binary.LittleEndian.PutUint64(b[8:16], v^key64)
			v = binary.LittleEndian.Uint64(b[16:24])
			binary.LittleEndian.PutUint64(b[16:24], v^key64)
			v = binary.LittleEndian.Uint64(b[24:32])
			binary.LittleEndian.PutUint64(b[24:32], v^key64)
			v = binary.LittleEndian.Uint64(b[32:40])
			binary.LittleEndian.PutUint64(b[32:40], v^key64)
			v = binary.LittleEndian.Uint64(b[40:48])
			binary.LittleEndian.PutUint64(b[40:48], v^key64)
			v = binary.LittleEndian.Uint64(b[48:56])
			binary.LittleEndian.PutUint64(b[48:56], v^key64)
			v = binary.LittleEndian.Uint64(b[56:64])
			binary.LittleEndian.PutUint64(b[56:64], v^key64)
			b = b[64:]
		}

		for len(b) >= 8 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			b = b[8:]
		}
	}

	for len(b) >= 4 {
		v := binary.LittleEndian.Uint32(b)
		binary.LittleEndian.PutUint32(b, v^key)
		b = b[4:]
	}

	for i := range b {
		b[i] ^= byte(key)
		key = bits.RotateLeft32(key, -8)
	}

	return key
}
