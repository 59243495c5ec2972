// Package neterr is the client's error taxonomy: sentinel errors callers
// can match with errors.Is, plus the coarse FinishCause each one maps to
// when it terminates a session.
package neterr

import (
	"errors"

	"github.com/FenQiDian/point-set-client/internal/message"
)

// Sentinel errors, grouped by the FinishCause they map to. Wrap these with
// fmt.Errorf("%w: ...") at the detection site so callers keep errors.Is.
var (
	// NetworkBroken
	ErrIO              = errors.New("io error")
	ErrTimeout         = errors.New("timeout")
	ErrWindowExhausted = errors.New("window exhausted")

	// InvalidPacket
	ErrPacketBroken    = errors.New("packet broken")
	ErrPacketTooShort  = errors.New("packet too short")
	ErrPacketTooLong   = errors.New("packet too long")
	ErrUnexpectedPkt   = errors.New("unexpected packet")

	// GameOver
	ErrGameOver = errors.New("game over")

	// ClientError
	ErrDecode         = errors.New("decode error")
	ErrEngine         = errors.New("reliable-udp engine error")
	ErrUnexpected     = errors.New("unexpected error")
	ErrInvalidFrame   = errors.New("invalid frame")
	ErrMessageTooLong = errors.New("message too long")
)

// RemoteFinished wraps a FinishCause the server sent us in a Finish frame.
// Its Cause() passes that value straight through rather than mapping it.
type RemoteFinished struct {
	Cause message.FinishCause
}

func (e RemoteFinished) Error() string { return "remote finished: " + e.Cause.String() }

// Cause maps err to the coarse FinishCause recorded on NetChan when a
// session terminates. Unrecognized errors map to ClientError, matching the
// reference implementation's catch-all.
func Cause(err error) message.FinishCause {
	var remote RemoteFinished
	if errors.As(err, &remote) {
		return remote.Cause
	}
	switch {
	case errors.Is(err, ErrIO), errors.Is(err, ErrTimeout), errors.Is(err, ErrWindowExhausted):
		return message.CauseNetworkBroken
	case errors.Is(err, ErrPacketBroken), errors.Is(err, ErrPacketTooShort),
		errors.Is(err, ErrPacketTooLong), errors.Is(err, ErrUnexpectedPkt):
		return message.CauseInvalidPacket
	case errors.Is(err, ErrGameOver):
		return message.CauseGameOver
	default:
		return message.CauseClientError
	}
}

// MetricLabel maps err to a stable, low-cardinality label for error counters.
func MetricLabel(err error) string {
	var remote RemoteFinished
	switch {
	case errors.As(err, &remote):
		return "remote_finished"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrWindowExhausted):
		return "window_exhausted"
	case errors.Is(err, ErrPacketBroken):
		return "packet_broken"
	case errors.Is(err, ErrPacketTooShort):
		return "packet_too_short"
	case errors.Is(err, ErrPacketTooLong):
		return "packet_too_long"
	case errors.Is(err, ErrUnexpectedPkt):
		return "unexpected_packet"
	case errors.Is(err, ErrGameOver):
		return "game_over"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrEngine):
		return "engine"
	case errors.Is(err, ErrInvalidFrame):
		return "invalid_frame"
	case errors.Is(err, ErrMessageTooLong):
		return "message_too_long"
	default:
		return "other"
	}
}
