package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/FenQiDian/point-set-client/internal/command"
	"github.com/FenQiDian/point-set-client/internal/frame"
	"github.com/FenQiDian/point-set-client/internal/message"
	"github.com/FenQiDian/point-set-client/internal/netchan"
	"github.com/FenQiDian/point-set-client/internal/neterr"
)

// fakeTransport is a Transport double that records every outbound send and
// lets tests feed back whatever bytes they want the worker to "receive".
type fakeTransport struct {
	sent [][]byte
	inbox [][]byte
}

func (f *fakeTransport) Send(b []byte) error {
	f.sent = append(f.sent, append([]byte(nil), b...))
	return nil
}

func (f *fakeTransport) Recv(buf []byte) (int, error) {
	if len(f.inbox) == 0 {
		return 0, nil
	}
	next := f.inbox[0]
	f.inbox = f.inbox[1:]
	n := copy(buf, next)
	return n, nil
}

func (f *fakeTransport) Update(uint32) {}

func (f *fakeTransport) UpdateUDP(time.Time) error { return nil }

func newTestWorker(t *testing.T) (*Worker, *fakeTransport, *netchan.Chan) {
	t.Helper()
	ch := netchan.New()
	tr := &fakeTransport{}
	w := New(tr, 6666, "", "", "", ch)
	w.startedAt = time.Now()
	return w, tr, ch
}

func TestWorker_HandleInput_RejectsInputBeforeRunning(t *testing.T) {
	w, _, ch := newTestWorker(t)

	ch.SendInput(1, nil, []byte{1, 2, 3})
	err := w.handleInput()
	if !errors.Is(err, neterr.ErrUnexpected) {
		t.Fatalf("Initing: got %v, want ErrUnexpected", err)
	}

	w.state = message.StateWaiting
	ch.SendInput(2, nil, []byte{1, 2, 3})
	err = w.handleInput()
	if !errors.Is(err, neterr.ErrUnexpected) {
		t.Fatalf("Waiting: got %v, want ErrUnexpected", err)
	}
}

func TestWorker_HandleInput_RejectsNonAdvancingFrame(t *testing.T) {
	w, _, ch := newTestWorker(t)
	w.state = message.StateRunning

	ch.SendInput(0, nil, nil)
	err := w.handleInput()
	if !errors.Is(err, neterr.ErrInvalidFrame) {
		t.Fatalf("got %v, want ErrInvalidFrame", err)
	}
}

func TestWorker_HandleInput_SendsHashBeforeCommand(t *testing.T) {
	w, tr, ch := newTestWorker(t)
	w.state = message.StateRunning

	ch.SendInput(3, []command.Command{command.Aim{X: 1, Y: 1, Z: 1}}, []byte{9, 0, 9, 0})
	if err := w.handleInput(); err != nil {
		t.Fatalf("handleInput: %v", err)
	}
	if len(tr.sent) != 2 {
		t.Fatalf("got %d sends, want 2 (hash, command)", len(tr.sent))
	}
	typ0, _, _, err := frame.Decode(tr.sent[0])
	if err != nil || typ0 != message.TypeHash {
		t.Fatalf("first send should be Hash, got type=%v err=%v", typ0, err)
	}
	typ1, _, _, err := frame.Decode(tr.sent[1])
	if err != nil || typ1 != message.TypeCommand {
		t.Fatalf("second send should be Command, got type=%v err=%v", typ1, err)
	}
}

func TestWorker_HandleInput_GameOverStopsAndErrors(t *testing.T) {
	w, _, ch := newTestWorker(t)
	w.state = message.StateRunning

	ch.GameOver()
	err := w.handleInput()
	if !errors.Is(err, neterr.ErrGameOver) {
		t.Fatalf("got %v, want ErrGameOver", err)
	}
	if w.state != message.StateStopped {
		t.Fatalf("state = %v, want Stopped", w.state)
	}
}

func TestWorker_HandleOutput_InitingAcceptTransitionsToWaiting(t *testing.T) {
	w, _, ch := newTestWorker(t)

	wire, err := frame.Encode(nil, message.TypeAccept, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.handleOutputImpl(wire); err != nil {
		t.Fatalf("handleOutputImpl: %v", err)
	}
	if w.state != message.StateWaiting {
		t.Fatalf("state = %v, want Waiting", w.state)
	}

	var cmds []command.CommandEx
	states := make(map[uint32]message.PlayerState)
	if _, ok := ch.RecvOutput(&cmds, states); !ok {
		t.Fatal("RecvOutput failed")
	}
	if states[w.conv] != message.StateWaiting {
		t.Fatalf("reported state = %v, want Waiting", states[w.conv])
	}
}

func TestWorker_HandleOutput_WaitingStartTransitionsToRunning(t *testing.T) {
	w, _, ch := newTestWorker(t)
	w.state = message.StateWaiting

	wire, _ := frame.Encode(nil, message.TypeStart, nil)
	if err := w.handleOutputImpl(wire); err != nil {
		t.Fatalf("handleOutputImpl: %v", err)
	}
	if w.state != message.StateRunning {
		t.Fatalf("state = %v, want Running", w.state)
	}

	var cmds []command.CommandEx
	states := make(map[uint32]message.PlayerState)
	ch.RecvOutput(&cmds, states)
	if states[w.conv] != message.StateRunning {
		t.Fatalf("reported state = %v, want Running", states[w.conv])
	}
}

func TestWorker_HandleOutput_RunningCommandForwardedToChan(t *testing.T) {
	w, _, ch := newTestWorker(t)
	w.state = message.StateRunning

	enc := command.NewEncoder(0, 0)
	enc.AppendCommand(command.Aim{X: 1, Y: 1, Z: 1})
	if err := enc.Encode(10); err != nil {
		t.Fatal(err)
	}
	if err := w.handleOutputImpl(enc.CommandBytes()); err != nil {
		t.Fatalf("handleOutputImpl: %v", err)
	}

	var cmds []command.CommandEx
	states := make(map[uint32]message.PlayerState)
	ch.RecvOutput(&cmds, states)
	if len(cmds) != 1 || cmds[0].Command != (command.Aim{X: 1, Y: 1, Z: 1}) || cmds[0].Frame != 10 {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
}

func TestWorker_HandleOutput_RemoteFinishAnyState(t *testing.T) {
	for _, st := range []message.PlayerState{message.StateIniting, message.StateWaiting, message.StateRunning} {
		w, _, _ := newTestWorker(t)
		w.state = st

		wire, _ := frame.Encode(nil, message.TypeFinish, message.Finish{Cause: message.CauseGameOver}.Marshal(nil))
		err := w.handleOutputImpl(wire)
		var remote neterr.RemoteFinished
		if !errors.As(err, &remote) || remote.Cause != message.CauseGameOver {
			t.Fatalf("state %v: got %v, want RemoteFinished(GameOver)", st, err)
		}
	}
}

func TestWorker_HandleOutput_UnexpectedPacketAnyState(t *testing.T) {
	for _, st := range []message.PlayerState{message.StateIniting, message.StateWaiting, message.StateRunning} {
		w, _, _ := newTestWorker(t)
		w.state = st

		wire, _ := frame.Encode(nil, message.TypeConnect, message.Connect{}.Marshal(nil))
		err := w.handleOutputImpl(wire)
		if !errors.Is(err, neterr.ErrUnexpectedPkt) {
			t.Fatalf("state %v: got %v, want ErrUnexpectedPkt", st, err)
		}
	}
}

func TestWorker_Finish_PoisonsChanWithMappedCause(t *testing.T) {
	w, _, ch := newTestWorker(t)
	w.finish(neterr.RemoteFinished{Cause: message.CauseInvalidPacket}, false)

	cause, ok := ch.FinishCause()
	if !ok || cause != message.CauseInvalidPacket {
		t.Fatalf("FinishCause = (%v, %v), want (InvalidPacket, true)", cause, ok)
	}
}
