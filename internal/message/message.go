// Package message defines the seven frame payload records exchanged between
// a point-set client and its room server, and the small enums (PlayerState,
// FinishCause) carried inside them.
package message

import (
	"encoding/binary"
	"fmt"
)

// Type is the outer frame tag. Values 1..7 are reserved by the wire format;
// anything else is rejected by the frame codec.
type Type uint8

const (
	TypeConnect Type = 1
	TypeAccept  Type = 2
	TypeState   Type = 3
	TypeStart   Type = 4
	TypeFinish  Type = 5
	TypeCommand Type = 6
	TypeHash    Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeConnect:
		return "Connect"
	case TypeAccept:
		return "Accept"
	case TypeState:
		return "State"
	case TypeStart:
		return "Start"
	case TypeFinish:
		return "Finish"
	case TypeCommand:
		return "Command"
	case TypeHash:
		return "Hash"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// PlayerState mirrors a peer's lifecycle as seen by the room server.
// Monotonic: a conforming worker never reports a lower value than the one
// it last reported for itself.
type PlayerState uint8

const (
	StateIniting PlayerState = 0
	StateWaiting PlayerState = 1
	StateRunning PlayerState = 2
	StateStopped PlayerState = 3
)

func (s PlayerState) String() string {
	switch s {
	case StateIniting:
		return "Initing"
	case StateWaiting:
		return "Waiting"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("PlayerState(%d)", uint8(s))
	}
}

// FinishCause is the coarse reason a session ended. Values below 16 are
// reserved by this client; the server is free to send higher values and
// they are passed through to the game untouched.
type FinishCause uint8

const (
	CauseNetworkBroken FinishCause = 1
	CauseInvalidPacket FinishCause = 2
	CauseGameOver      FinishCause = 3
	CauseClientError   FinishCause = 4
)

func (c FinishCause) String() string {
	switch c {
	case CauseNetworkBroken:
		return "NetworkBroken"
	case CauseInvalidPacket:
		return "InvalidPacket"
	case CauseGameOver:
		return "GameOver"
	case CauseClientError:
		return "ClientError"
	default:
		return fmt.Sprintf("FinishCause(%d)", uint8(c))
	}
}

// Connect is sent once by the client immediately after the worker starts.
type Connect struct {
	RoomID   string
	PlayerID string
	Password string
}

// Accept is the server's affirmative reply to Connect.
type Accept struct{}

// State reports a peer's current PlayerState, keyed by its conv.
type State struct {
	Conv  uint32
	State PlayerState
}

// Start tells a Waiting client the room has begun its Running phase.
type Start struct{}

// Finish carries the reason a session is ending, from either side.
type Finish struct {
	Cause FinishCause
}

// Command is the outer-frame header for a batch of per-frame game inputs.
// The inputs themselves are appended after this frame's bytes by the
// command codec (see internal/command) and are not part of this struct.
type Command struct {
	Conv  uint32
	Frame uint32
}

// Hash carries one frame's local state digest, used by the server to
// detect simulation divergence across peers.
type Hash struct {
	Frame uint32
	Hash  []byte
}

// --- payload (de)serialization -------------------------------------------
//
// The original system leaves payload encoding to an external structured
// serializer (protobuf in the reference implementation). This module has no
// protoc toolchain available, so each payload is packed by hand with
// encoding/binary the same way the teacher repo packs its own wire records —
// length-prefixed strings, fixed-width integers, no padding.

func putString(buf []byte, s string) []byte {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf = append(buf, n[:]...)
	buf = append(buf, s...)
	return buf
}

func getString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, fmt.Errorf("message: truncated string length")
	}
	n := int(binary.BigEndian.Uint16(b))
	b = b[2:]
	if len(b) < n {
		return "", nil, fmt.Errorf("message: truncated string body")
	}
	return string(b[:n]), b[n:], nil
}

// Marshal appends the wire encoding of each payload type to buf and returns
// the result. Empty-payload types (Accept, Start) append nothing.
func (c Connect) Marshal(buf []byte) []byte {
	buf = putString(buf, c.RoomID)
	buf = putString(buf, c.PlayerID)
	buf = putString(buf, c.Password)
	return buf
}

func (c *Connect) Unmarshal(b []byte) error {
	var err error
	if c.RoomID, b, err = getString(b); err != nil {
		return err
	}
	if c.PlayerID, b, err = getString(b); err != nil {
		return err
	}
	if c.Password, _, err = getString(b); err != nil {
		return err
	}
	return nil
}

func (Accept) Marshal(buf []byte) []byte { return buf }

func (*Accept) Unmarshal(b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("message: Accept expects empty payload, got %d bytes", len(b))
	}
	return nil
}

func (s State) Marshal(buf []byte) []byte {
	var tmp [5]byte
	binary.BigEndian.PutUint32(tmp[0:4], s.Conv)
	tmp[4] = byte(s.State)
	return append(buf, tmp[:]...)
}

func (s *State) Unmarshal(b []byte) error {
	if len(b) != 5 {
		return fmt.Errorf("message: State expects 5 bytes, got %d", len(b))
	}
	s.Conv = binary.BigEndian.Uint32(b[0:4])
	s.State = PlayerState(b[4])
	return nil
}

func (Start) Marshal(buf []byte) []byte { return buf }

func (*Start) Unmarshal(b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("message: Start expects empty payload, got %d bytes", len(b))
	}
	return nil
}

func (f Finish) Marshal(buf []byte) []byte {
	return append(buf, byte(f.Cause))
}

func (f *Finish) Unmarshal(b []byte) error {
	if len(b) != 1 {
		return fmt.Errorf("message: Finish expects 1 byte, got %d", len(b))
	}
	f.Cause = FinishCause(b[0])
	return nil
}

func (c Command) Marshal(buf []byte) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint32(tmp[0:4], c.Conv)
	binary.BigEndian.PutUint32(tmp[4:8], c.Frame)
	return append(buf, tmp[:]...)
}

func (c *Command) Unmarshal(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("message: Command expects 8 bytes, got %d", len(b))
	}
	c.Conv = binary.BigEndian.Uint32(b[0:4])
	c.Frame = binary.BigEndian.Uint32(b[4:8])
	return nil
}

func (h Hash) Marshal(buf []byte) []byte {
	var tmp [6]byte
	binary.BigEndian.PutUint32(tmp[0:4], h.Frame)
	binary.BigEndian.PutUint16(tmp[4:6], uint16(len(h.Hash)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, h.Hash...)
	return buf
}

func (h *Hash) Unmarshal(b []byte) error {
	if len(b) < 6 {
		return fmt.Errorf("message: Hash header truncated")
	}
	h.Frame = binary.BigEndian.Uint32(b[0:4])
	n := int(binary.BigEndian.Uint16(b[4:6]))
	b = b[6:]
	if len(b) != n {
		return fmt.Errorf("message: Hash body length mismatch, want %d got %d", n, len(b))
	}
	h.Hash = append([]byte(nil), b...)
	return nil
}
