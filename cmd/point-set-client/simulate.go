package main

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/FenQiDian/point-set-client/internal/command"
	"github.com/FenQiDian/point-set-client/internal/message"
	"github.com/FenQiDian/point-set-client/internal/metrics"
	"github.com/FenQiDian/point-set-client/internal/netchan"
)

// simulateTickInterval is the demo game thread's own cadence. It need not
// match the worker's transport tick (transport.Interval) — the whole point
// of NetChan is decoupling the two.
const simulateTickInterval = 50 * time.Millisecond

// runSimulation is a stand-in game thread: every tick it submits a made-up
// Move command plus a state digest, and logs whatever the worker has
// relayed back since the previous tick. Real integrations replace this file
// wholesale; the Worker and NetChan underneath it don't change.
func runSimulation(ctx context.Context, ch *netchan.Chan, conv uint32, l *slog.Logger, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(simulateTickInterval)
		defer t.Stop()

		var frameNum uint32
		var cmds []command.CommandEx
		states := make(map[uint32]message.PlayerState)

		for {
			select {
			case <-ctx.Done():
				ch.GameOver()
				return
			case <-t.C:
				frameNum++
				hash := stateDigest(frameNum)
				move := command.Move{DX: int32(frameNum % 7), DY: -int32(frameNum % 5)}
				if cause, ok := ch.SendInput(frameNum, []command.Command{move}, hash); !ok {
					metrics.IncNetChanDropped()
					l.Info("simulation_stopped", "cause", cause.String())
					return
				}

				cmds = cmds[:0]
				if cause, ok := ch.RecvOutput(&cmds, states); !ok {
					l.Info("simulation_stopped", "cause", cause.String())
					return
				}
				for _, c := range cmds {
					l.Debug("remote_command", "conv", c.Conv, "frame", c.Frame, "command", c.Command)
				}
				remoteConvs := len(states)
				if _, isSelf := states[conv]; isSelf {
					remoteConvs--
				}
				metrics.SetRemoteConvs(remoteConvs)
				for peerConv, st := range states {
					l.Debug("remote_state", "conv", peerConv, "state", st.String())
				}
			}
		}
	}()
}

// stateDigest is a placeholder local-state hash: real games hash whatever
// deterministic simulation state they're keeping in sync, not the frame
// number.
func stateDigest(frameNum uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], frameNum)
	sum := sha1.Sum(buf[:])
	return sum[:]
}
