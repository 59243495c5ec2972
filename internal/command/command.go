// Package command encodes and decodes the per-frame game input batch that
// rides after every Command frame. The outer Command frame (conv + frame
// number) is framed normally by internal/frame; the input list itself is a
// trailing, length-prefixed, fixed-width little-endian blob appended after
// it and deliberately excluded from the outer frame's declared length, so a
// peer that only cares about the header never has to decode the list.
package command

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/FenQiDian/point-set-client/internal/frame"
	"github.com/FenQiDian/point-set-client/internal/message"
	"github.com/FenQiDian/point-set-client/internal/neterr"
)

// Kind tags which Command variant follows in the wire encoding.
type Kind uint32

const (
	KindMove Kind = 0
	KindAim  Kind = 1
)

// Command is the closed set of per-frame inputs a game thread can submit.
// Both variants carry a small fixed tuple of primitives, encoded bit-exact.
type Command interface {
	kind() Kind
	marshal(buf []byte) []byte
}

// Move is a per-frame movement delta.
type Move struct{ DX, DY int32 }

func (Move) kind() Kind { return KindMove }

func (m Move) marshal(buf []byte) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[0:4], uint32(m.DX))
	binary.LittleEndian.PutUint32(tmp[4:8], uint32(m.DY))
	return append(buf, tmp[:]...)
}

// Aim is a per-frame aim/target vector.
type Aim struct{ X, Y, Z float32 }

func (Aim) kind() Kind { return KindAim }

func (a Aim) marshal(buf []byte) []byte {
	var tmp [12]byte
	binary.LittleEndian.PutUint32(tmp[0:4], math.Float32bits(a.X))
	binary.LittleEndian.PutUint32(tmp[4:8], math.Float32bits(a.Y))
	binary.LittleEndian.PutUint32(tmp[8:12], math.Float32bits(a.Z))
	return append(buf, tmp[:]...)
}

// CommandEx stamps a decoded Command with the conv and frame number of the
// Command message it arrived in, the same way every command the game
// thread consumes is addressed.
type CommandEx struct {
	Conv    uint32
	Frame   uint32
	Command Command
}

func encodeOne(buf []byte, c Command) []byte {
	var k [4]byte
	binary.LittleEndian.PutUint32(k[:], uint32(c.kind()))
	buf = append(buf, k[:]...)
	return c.marshal(buf)
}

func decodeOne(b []byte) (Command, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("%w: command tag truncated", neterr.ErrDecode)
	}
	kind := Kind(binary.LittleEndian.Uint32(b[0:4]))
	b = b[4:]
	switch kind {
	case KindMove:
		if len(b) < 8 {
			return nil, nil, fmt.Errorf("%w: Move payload truncated", neterr.ErrDecode)
		}
		dx := int32(binary.LittleEndian.Uint32(b[0:4]))
		dy := int32(binary.LittleEndian.Uint32(b[4:8]))
		return Move{DX: dx, DY: dy}, b[8:], nil
	case KindAim:
		if len(b) < 12 {
			return nil, nil, fmt.Errorf("%w: Aim payload truncated", neterr.ErrDecode)
		}
		x := math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
		y := math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
		z := math.Float32frombits(binary.LittleEndian.Uint32(b[8:12]))
		return Aim{X: x, Y: y, Z: z}, b[12:], nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown command kind %d", neterr.ErrDecode, kind)
	}
}

// Encoder builds one tick's outbound hash frame and command frame+list. It
// is reused across ticks: Encode clears its staging buffers once it has
// copied their contents into the returned wire buffers.
type Encoder struct {
	conv     uint32
	commands []Command
	hash     []byte

	hashBytes    []byte
	commandBytes []byte
}

// NewEncoder returns an Encoder for the given conv with staging capacity
// cap commands.
func NewEncoder(conv uint32, cap int) *Encoder {
	return &Encoder{
		conv:         conv,
		commands:     make([]Command, 0, cap),
		hash:         make([]byte, 0, 128),
		hashBytes:    make([]byte, 0, frame.MaxPacket),
		commandBytes: make([]byte, 0, frame.MaxPacket),
	}
}

// AppendCommand queues c for the next Encode call.
func (e *Encoder) AppendCommand(c Command) { e.commands = append(e.commands, c) }

// SetHash replaces the pending local state digest for the next Encode call.
func (e *Encoder) SetHash(h []byte) { e.hash = append(e.hash[:0], h...) }

// StageBuffers exposes the encoder's staging slices directly so a caller
// like netchan.Chan.RecvInput can append into them without an intermediate
// copy.
func (e *Encoder) StageBuffers() (*[]Command, *[]byte) { return &e.commands, &e.hash }

// Pending reports how many commands and hash bytes are staged.
func (e *Encoder) Pending() (commands int, hashBytes int) { return len(e.commands), len(e.hash) }

// Encode frames the staged hash and commands for frame number f, leaving
// the results in HashBytes/CommandBytes, and clears the staging buffers.
// The hash frame must be sent before the command frame, per protocol.
func (e *Encoder) Encode(f uint32) error {
	hashPayload := message.Hash{Frame: f, Hash: e.hash}.Marshal(nil)
	hashWire, err := frame.Encode(e.hashBytes[:0], message.TypeHash, hashPayload)
	if err != nil {
		return err
	}
	e.hashBytes = hashWire

	cmdPayload := message.Command{Conv: e.conv, Frame: f}.Marshal(nil)
	cmdWire, err := frame.Encode(e.commandBytes[:0], message.TypeCommand, cmdPayload)
	if err != nil {
		return err
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(e.commands)))
	cmdWire = append(cmdWire, countBuf[:]...)
	for _, c := range e.commands {
		cmdWire = encodeOne(cmdWire, c)
	}
	e.commandBytes = cmdWire

	e.hash = e.hash[:0]
	e.commands = e.commands[:0]
	return nil
}

// HashBytes returns the wire bytes of the most recently Encode'd hash frame.
func (e *Encoder) HashBytes() []byte { return e.hashBytes }

// CommandBytes returns the wire bytes of the most recently Encode'd command
// frame, including its trailing command list.
func (e *Encoder) CommandBytes() []byte { return e.commandBytes }

// Decoder decodes an inbound Command frame plus its trailing command list
// into a batch of CommandEx, reusing its backing slice across calls.
type Decoder struct {
	commands []CommandEx
}

// NewDecoder returns a Decoder with staging capacity cap commands.
func NewDecoder(cap int) *Decoder {
	return &Decoder{commands: make([]CommandEx, 0, cap)}
}

// Decode parses b as a Command frame followed by its trailing list. b must
// be exactly one such frame; trailing garbage after the list is an error.
func (d *Decoder) Decode(b []byte) error {
	typ, payload, n, err := frame.Decode(b)
	if err != nil {
		return err
	}
	if typ != message.TypeCommand {
		return fmt.Errorf("%w: expected Command frame, got %v", neterr.ErrPacketBroken, typ)
	}
	var hdr message.Command
	if err := hdr.Unmarshal(payload); err != nil {
		return fmt.Errorf("%w: %v", neterr.ErrDecode, err)
	}

	rest := b[n:]
	if len(rest) < 4 {
		return fmt.Errorf("%w: command list count truncated", neterr.ErrDecode)
	}
	count := binary.LittleEndian.Uint32(rest[0:4])
	rest = rest[4:]

	d.commands = d.commands[:0]
	for i := uint32(0); i < count; i++ {
		var c Command
		c, rest, err = decodeOne(rest)
		if err != nil {
			return err
		}
		d.commands = append(d.commands, CommandEx{Conv: hdr.Conv, Frame: hdr.Frame, Command: c})
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: %d trailing bytes after command list", neterr.ErrDecode, len(rest))
	}
	return nil
}

// Len reports how many commands the last Decode produced.
func (d *Decoder) Len() int { return len(d.commands) }

// Command returns the idx'th command from the last Decode.
func (d *Decoder) Command(idx int) CommandEx { return d.commands[idx] }

// Commands returns every command from the last Decode.
func (d *Decoder) Commands() []CommandEx { return d.commands }
