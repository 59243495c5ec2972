// Package frame implements the outer wire framing shared by every message
// this client sends or receives: a one-byte type tag, a big-endian u16
// payload length, and the payload itself. It does not know how to decode
// any particular payload — that is internal/message's job.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/FenQiDian/point-set-client/internal/message"
	"github.com/FenQiDian/point-set-client/internal/neterr"
)

const (
	// MinPacket is the smallest a frame can ever legally be: tag + length.
	MinPacket = 3
	// MaxPacket is the largest whole frame (header plus payload) the codec
	// encodes, and the largest input Decode accepts.
	MaxPacket = 1880

	headerLen = 3
)

// Encode appends the framed encoding of (typ, payload) to buf and returns
// the result. It fails if the resulting frame would exceed MaxPacket.
func Encode(buf []byte, typ message.Type, payload []byte) ([]byte, error) {
	if headerLen+len(payload) > MaxPacket {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds max packet %d", neterr.ErrMessageTooLong, len(payload), MaxPacket-headerLen)
	}
	start := len(buf)
	buf = append(buf, byte(typ), 0, 0)
	buf = append(buf, payload...)
	binary.BigEndian.PutUint16(buf[start+1:start+3], uint16(len(payload)))
	return buf, nil
}

// Decode reads exactly one frame from the front of b. It returns the frame's
// type, its payload slice (a view into b, not a copy), and the number of
// bytes consumed.
func Decode(b []byte) (message.Type, []byte, int, error) {
	if len(b) < MinPacket {
		return 0, nil, 0, fmt.Errorf("%w: have %d bytes, need at least %d", neterr.ErrPacketTooShort, len(b), MinPacket)
	}
	if len(b) > MaxPacket {
		return 0, nil, 0, fmt.Errorf("%w: have %d bytes, max is %d", neterr.ErrPacketTooLong, len(b), MaxPacket)
	}
	typ := message.Type(b[0])
	n := int(binary.BigEndian.Uint16(b[1:3]))
	if headerLen+n > len(b) {
		return 0, nil, 0, fmt.Errorf("%w: declared length %d overruns %d available", neterr.ErrPacketBroken, n, len(b)-headerLen)
	}
	if typ < message.TypeConnect || typ > message.TypeHash {
		return 0, nil, 0, fmt.Errorf("%w: unknown type tag %d", neterr.ErrPacketBroken, uint8(typ))
	}
	return typ, b[headerLen : headerLen+n], headerLen + n, nil
}

// PeekType returns the type tag of a frame without validating or decoding
// its body. Callers use this to take a fast path for the hot Command type
// before paying for a full Decode.
func PeekType(b []byte) (message.Type, error) {
	if len(b) < 1 {
		return 0, fmt.Errorf("%w: empty packet", neterr.ErrPacketTooShort)
	}
	return message.Type(b[0]), nil
}
