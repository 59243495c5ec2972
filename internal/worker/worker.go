// Package worker runs the client-side session state machine: it owns the
// transport tick loop, drives the Initing -> Waiting -> Running -> Stopped
// lifecycle, and is the only thing that ever touches the transport or the
// NetChan directly. Everything else in this module only ever talks to a
// NetChan.
package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/FenQiDian/point-set-client/internal/command"
	"github.com/FenQiDian/point-set-client/internal/frame"
	"github.com/FenQiDian/point-set-client/internal/logging"
	"github.com/FenQiDian/point-set-client/internal/message"
	"github.com/FenQiDian/point-set-client/internal/metrics"
	"github.com/FenQiDian/point-set-client/internal/netchan"
	"github.com/FenQiDian/point-set-client/internal/neterr"
	"github.com/FenQiDian/point-set-client/internal/transport"
)

// Default per-phase wall-clock budgets.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultStartTimeout   = 20 * time.Second
	DefaultUpdateTimeout  = 7 * time.Second
	DefaultFinishTimeout  = 5 * time.Second

	commandsCap = 256
)

// Transport is the subset of internal/transport.Transport the worker
// drives. Tests substitute a fake.
type Transport interface {
	Send(b []byte) error
	Recv(buf []byte) (int, error)
	Update(nowMs uint32)
	UpdateUDP(deadline time.Time) error
}

var _ Transport = (*transport.Transport)(nil)

// Worker is the session state machine for one conv against one room.
type Worker struct {
	chan_ *netchan.Chan
	kcp   Transport

	conv     uint32
	roomID   string
	playerID string
	password string

	cmdEncoder *command.Encoder
	cmdDecoder *command.Decoder
	kcpBuffer  []byte

	state     message.PlayerState
	frame     uint32
	startedAt time.Time
	stoppedAt time.Time
	updatedAt time.Time

	logger *slog.Logger

	connectTimeout       time.Duration
	startTimeout         time.Duration
	updateTimeout        time.Duration
	finishTimeout        time.Duration
	runningLivenessCheck bool
}

// Option configures a Worker at construction time.
type Option func(*Worker)

// WithLogger overrides the package-global logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithConnectTimeout overrides DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.connectTimeout = d
		}
	}
}

// WithStartTimeout overrides DefaultStartTimeout.
func WithStartTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.startTimeout = d
		}
	}
}

// WithUpdateTimeout overrides DefaultUpdateTimeout.
func WithUpdateTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.updateTimeout = d
		}
	}
}

// WithFinishTimeout overrides DefaultFinishTimeout, the wall-clock budget
// Run spends draining already-queued outbound traffic after the session
// ends, for any error that occurs once Connect has been sent.
func WithFinishTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.finishTimeout = d
		}
	}
}

// WithRunningLivenessCheck enables timing out the Running phase when no
// Command frame has arrived for longer than the update timeout. Off by
// default: a conforming server that has simply gone quiet mid-match (no new
// commands to relay) is not itself a failure.
func WithRunningLivenessCheck(enabled bool) Option {
	return func(w *Worker) { w.runningLivenessCheck = enabled }
}

// New constructs a Worker for conv against room roomID, authenticating as
// playerID/password, driving t and surfacing everything through ch.
func New(t Transport, conv uint32, roomID, playerID, password string, ch *netchan.Chan, opts ...Option) *Worker {
	now := time.Now()
	w := &Worker{
		chan_:    ch,
		kcp:      t,
		conv:     conv,
		roomID:   roomID,
		playerID: playerID,
		password: password,

		cmdEncoder: command.NewEncoder(conv, commandsCap),
		cmdDecoder: command.NewDecoder(commandsCap * 2),
		kcpBuffer:  make([]byte, frame.MaxPacket),

		state: message.StateIniting,

		// Parked 3650 days out, the same way the reference implementation
		// does, so a Worker that's constructed but never run can't
		// spuriously time out. Run resets startedAt; stoppedAt is never
		// reassigned.
		startedAt: now.Add(3650 * 24 * time.Hour),
		stoppedAt: now.Add(3650 * 24 * time.Hour),
		updatedAt: now,

		logger: logging.L(),

		connectTimeout: DefaultConnectTimeout,
		startTimeout:   DefaultStartTimeout,
		updateTimeout:  DefaultUpdateTimeout,
		finishTimeout:  DefaultFinishTimeout,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run blocks until the session ends, either because the transport failed,
// a protocol error was detected, or the game thread called GameOver on the
// shared NetChan. It always finishes the NetChan with a cause before
// returning.
func (w *Worker) Run() {
	w.startedAt = time.Now()
	if err := w.connect(); err != nil {
		w.finish(err, false)
		return
	}
	err := w.update()
	w.finish(err, true)
}

func (w *Worker) connect() error {
	payload := message.Connect{RoomID: w.roomID, PlayerID: w.playerID, Password: w.password}.Marshal(nil)
	wire, err := frame.Encode(nil, message.TypeConnect, payload)
	if err != nil {
		return err
	}
	if err := w.kcp.Send(wire); err != nil {
		return err
	}
	return nil
}

func (w *Worker) update() error {
	for {
		current := time.Since(w.startedAt)
		currentMs := uint32(current.Milliseconds())

		next := ((current + transport.Interval) / transport.Interval) * transport.Interval
		nextAt := w.startedAt.Add(next)

		if err := w.handleInput(); err != nil {
			return err
		}
		w.kcp.Update(currentMs)
		if err := w.handleOutput(); err != nil {
			return err
		}
		if err := w.kcp.UpdateUDP(nextAt); err != nil {
			return err
		}
		if err := w.handleTimeout(); err != nil {
			return err
		}
	}
}

// finish poisons the NetChan with the cause derived from err and logs it.
// If delay is true it keeps ticking the transport for finishTimeout so any
// outbound data or ACK traffic already queued has a chance to actually
// leave, without touching the NetChan again.
func (w *Worker) finish(err error, delay bool) {
	cause := neterr.Cause(err)
	w.logger.Warn("worker_finished", "cause", cause.String(), "error", err)
	metrics.IncFinish(cause.String())
	metrics.IncError(neterr.MetricLabel(err))
	if cause == message.CauseInvalidPacket {
		metrics.IncMalformed()
	}
	w.chan_.Finish(cause)

	if !delay {
		return
	}

	deadline := time.Now().Add(w.finishTimeout)
	for time.Now().Before(deadline) {
		now := time.Now()
		currentMs := uint32(now.Sub(w.startedAt).Milliseconds())
		w.kcp.Update(currentMs)
		_ = w.kcp.UpdateUDP(now.Add(transport.Interval))
	}
}

func (w *Worker) handleInput() error {
	for {
		commandsPtr, hashPtr := w.cmdEncoder.StageBuffers()
		var f uint32
		state := w.chan_.RecvInput(&f, commandsPtr, hashPtr)
		switch state {
		case netchan.InputNonEmpty:
		case netchan.InputEmpty:
			return nil
		case netchan.InputFinish:
			w.setSelfState(message.StateStopped)
			return fmt.Errorf("%w", neterr.ErrGameOver)
		}
		if err := w.handleInputImpl(f); err != nil {
			return err
		}
	}
}

func (w *Worker) handleInputImpl(f uint32) error {
	switch w.state {
	case message.StateIniting, message.StateWaiting:
		pendingCommands, pendingHash := w.cmdEncoder.Pending()
		if pendingCommands > 0 || pendingHash > 0 {
			return fmt.Errorf("%w: local input submitted before Running", neterr.ErrUnexpected)
		}
	case message.StateRunning:
		if f <= w.frame {
			return fmt.Errorf("%w: frame %d does not advance past %d", neterr.ErrInvalidFrame, f, w.frame)
		}
		w.frame = f
		if err := w.cmdEncoder.Encode(w.frame); err != nil {
			return err
		}
		if err := w.kcp.Send(w.cmdEncoder.HashBytes()); err != nil {
			return err
		}
		metrics.IncHashTx()
		if err := w.kcp.Send(w.cmdEncoder.CommandBytes()); err != nil {
			return err
		}
		metrics.IncCommandTx()
	case message.StateStopped:
		// Draining; local input is simply dropped.
	}
	return nil
}

func (w *Worker) handleOutput() error {
	for {
		n, err := w.kcp.Recv(w.kcpBuffer)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := w.handleOutputImpl(w.kcpBuffer[:n]); err != nil {
			return err
		}
	}
}

func (w *Worker) handleOutputImpl(b []byte) error {
	switch w.state {
	case message.StateIniting:
		typ, payload, _, err := frame.Decode(b)
		if err != nil {
			return err
		}
		switch typ {
		case message.TypeAccept:
			w.setSelfState(message.StateWaiting)
		case message.TypeFinish:
			metrics.IncControlRx()
			return remoteFinished(payload)
		default:
			return fmt.Errorf("%w: got %v while Initing", neterr.ErrUnexpectedPkt, typ)
		}
		metrics.IncControlRx()

	case message.StateWaiting:
		typ, payload, _, err := frame.Decode(b)
		if err != nil {
			return err
		}
		switch typ {
		case message.TypeState:
			var s message.State
			if err := s.Unmarshal(payload); err != nil {
				return fmt.Errorf("%w: %v", neterr.ErrDecode, err)
			}
			w.setState(s.Conv, s.State)
		case message.TypeStart:
			w.setSelfState(message.StateRunning)
		case message.TypeFinish:
			metrics.IncControlRx()
			return remoteFinished(payload)
		default:
			return fmt.Errorf("%w: got %v while Waiting", neterr.ErrUnexpectedPkt, typ)
		}
		metrics.IncControlRx()

	case message.StateRunning:
		if isMessageCommand(b) {
			w.updatedAt = time.Now()
			if err := w.cmdDecoder.Decode(b); err != nil {
				return err
			}
			w.chan_.SendOutputCommands(w.cmdDecoder.Commands())
			metrics.IncCommandRx()
			return nil
		}
		typ, payload, _, err := frame.Decode(b)
		if err != nil {
			return err
		}
		switch typ {
		case message.TypeState:
			var s message.State
			if err := s.Unmarshal(payload); err != nil {
				return fmt.Errorf("%w: %v", neterr.ErrDecode, err)
			}
			w.setState(s.Conv, s.State)
		case message.TypeFinish:
			metrics.IncControlRx()
			return remoteFinished(payload)
		default:
			return fmt.Errorf("%w: got %v while Running", neterr.ErrUnexpectedPkt, typ)
		}
		metrics.IncControlRx()

	case message.StateStopped:
		// Draining; inbound data is ignored.
	}
	return nil
}

func remoteFinished(payload []byte) error {
	var f message.Finish
	if err := f.Unmarshal(payload); err != nil {
		return fmt.Errorf("%w: %v", neterr.ErrDecode, err)
	}
	return neterr.RemoteFinished{Cause: f.Cause}
}

func (w *Worker) handleTimeout() error {
	switch w.state {
	case message.StateIniting:
		if time.Since(w.startedAt) > w.connectTimeout {
			return fmt.Errorf("%w: no Accept within %s", neterr.ErrTimeout, w.connectTimeout)
		}
	case message.StateWaiting:
		if time.Since(w.startedAt) > w.startTimeout {
			return fmt.Errorf("%w: no Start within %s", neterr.ErrTimeout, w.startTimeout)
		}
	case message.StateRunning:
		if w.runningLivenessCheck && time.Since(w.updatedAt) > w.updateTimeout {
			return fmt.Errorf("%w: no Command frame within %s", neterr.ErrTimeout, w.updateTimeout)
		}
	case message.StateStopped:
		if time.Since(w.stoppedAt) > w.updateTimeout {
			return fmt.Errorf("%w: stuck in Stopped past %s", neterr.ErrTimeout, w.updateTimeout)
		}
	}
	return nil
}

// setState forwards a peer's reported state to the game thread. A peer
// never reports on behalf of our own conv.
func (w *Worker) setState(conv uint32, state message.PlayerState) {
	if conv != w.conv {
		w.chan_.SendOutputStates(conv, state)
	}
}

// setSelfState transitions our own state and mirrors the transition to the
// game thread the same way a peer's state change would be.
func (w *Worker) setSelfState(state message.PlayerState) {
	w.state = state
	w.chan_.SendOutputStates(w.conv, state)
	metrics.IncStateTransition(state.String())
}

func isMessageCommand(b []byte) bool {
	if len(b) < frame.MinPacket {
		return false
	}
	return message.Type(b[0]) == message.TypeCommand
}
