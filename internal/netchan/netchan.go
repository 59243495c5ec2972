// Package netchan is the decoupling boundary between a game thread and its
// network worker goroutine. Neither side blocks on the other: the worker
// polls it once per tick instead of waiting on a condition variable, so the
// only thing guarding shared state is a mutex, plus an atomic fast path for
// the already-finished case.
package netchan

import (
	"sync"
	"sync/atomic"

	"github.com/FenQiDian/point-set-client/internal/command"
	"github.com/FenQiDian/point-set-client/internal/message"
)

const cacheCapacity = 3

// InputState reports what RecvInput found in the input queue.
type InputState int

const (
	InputEmpty InputState = iota
	InputNonEmpty
	InputFinish
)

type input struct {
	frame    uint32
	commands []command.Command
	hash     []byte
}

func newInput() *input {
	return &input{
		commands: make([]command.Command, 0, 256),
		hash:     make([]byte, 0, 128),
	}
}

func (in *input) reset() {
	in.frame = 0
	in.commands = in.commands[:0]
	in.hash = in.hash[:0]
}

// queueEntry is either a staged input or the Finish sentinel placed by
// GameOver; exactly one of the two is meaningful at a time.
type queueEntry struct {
	in     *input
	finish bool
}

// Output accumulates one tick's worth of decoded remote commands plus the
// latest known PlayerState per conv. A later state write for the same conv
// replaces the earlier one — last write wins, no history kept.
type Output struct {
	Commands []command.CommandEx
	States   map[uint32]message.PlayerState
}

func newOutput() *Output {
	return &Output{
		Commands: make([]command.CommandEx, 0, 32),
		States:   make(map[uint32]message.PlayerState, 256),
	}
}

func (o *Output) clear() {
	o.Commands = o.Commands[:0]
	for k := range o.States {
		delete(o.States, k)
	}
}

// Chan is the cross-thread channel itself. The zero value is not usable;
// construct with New.
type Chan struct {
	mu sync.Mutex

	cacheStack []*input
	inputQueue []queueEntry
	output     *Output

	finished    atomic.Bool
	finishCause atomic.Uint32
}

// New returns a ready-to-use Chan.
func New() *Chan {
	return &Chan{
		cacheStack: make([]*input, 0, cacheCapacity),
		inputQueue: make([]queueEntry, 0, cacheCapacity),
		output:     newOutput(),
	}
}

// SendInput queues one frame's local commands and hash for the worker to
// pick up and transmit. Fails once the channel has been finished.
func (c *Chan) SendInput(frame uint32, commands []command.Command, hash []byte) (message.FinishCause, bool) {
	if c.finished.Load() {
		return message.FinishCause(c.finishCause.Load()), false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished.Load() {
		return message.FinishCause(c.finishCause.Load()), false
	}

	var in *input
	if n := len(c.cacheStack); n > 0 {
		in = c.cacheStack[n-1]
		c.cacheStack = c.cacheStack[:n-1]
	} else {
		in = newInput()
	}
	in.frame = frame
	in.commands = append(in.commands, commands...)
	in.hash = append(in.hash, hash...)
	c.inputQueue = append(c.inputQueue, queueEntry{in: in})
	return 0, true
}

// RecvInput dequeues the next staged input for the worker. If the queue
// holds a Finish sentinel it returns InputFinish and no data. A drained
// input buffer is returned to the reuse cache when the cache has room.
func (c *Chan) RecvInput(frame *uint32, commands *[]command.Command, hash *[]byte) InputState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.inputQueue) == 0 {
		return InputEmpty
	}
	entry := c.inputQueue[0]
	c.inputQueue = c.inputQueue[1:]
	if entry.finish {
		return InputFinish
	}

	*frame = entry.in.frame
	*commands = append(*commands, entry.in.commands...)
	*hash = append(*hash, entry.in.hash...)
	entry.in.reset()
	if len(c.cacheStack) < cacheCapacity {
		c.cacheStack = append(c.cacheStack, entry.in)
	}
	return InputNonEmpty
}

// SendOutputCommands appends decoded remote commands to the pending output
// batch, for the game thread to collect on its next RecvOutput.
func (c *Chan) SendOutputCommands(commands []command.CommandEx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output.Commands = append(c.output.Commands, commands...)
}

// SendOutputStates records the latest PlayerState seen for conv.
func (c *Chan) SendOutputStates(conv uint32, state message.PlayerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output.States[conv] = state
}

// RecvOutput copies and clears the pending output batch into commands and
// states, which the caller is expected to have cleared beforehand if it
// wants only this tick's contents.
func (c *Chan) RecvOutput(commands *[]command.CommandEx, states map[uint32]message.PlayerState) (message.FinishCause, bool) {
	if c.finished.Load() {
		return message.FinishCause(c.finishCause.Load()), false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished.Load() {
		return message.FinishCause(c.finishCause.Load()), false
	}

	*commands = append(*commands, c.output.Commands...)
	for k, v := range c.output.States {
		states[k] = v
	}
	c.output.clear()
	return 0, true
}

// GameOver enqueues a Finish sentinel that the worker will observe the next
// time it drains the input queue, triggering a graceful shutdown.
func (c *Chan) GameOver() (message.FinishCause, bool) {
	if c.finished.Load() {
		return message.FinishCause(c.finishCause.Load()), false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished.Load() {
		return message.FinishCause(c.finishCause.Load()), false
	}
	c.inputQueue = append(c.inputQueue, queueEntry{finish: true})
	return 0, true
}

// Finish poisons the channel with cause. Once finished, the game-side
// SendInput, RecvOutput and GameOver fail fast with the same cause; the
// worker-side RecvInput and SendOutput* calls do not check it. A session is
// never un-finished.
// A later call overwrites an earlier cause, matching the reference: the
// worker only ever finishes a channel once in practice, so overwrite-vs-
// first-write-wins makes no observable difference, and overwrite is simpler.
func (c *Chan) Finish(cause message.FinishCause) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishCause.Store(uint32(cause))
	c.finished.Store(true)
}

// FinishCause reports the cause if the channel has been finished.
func (c *Chan) FinishCause() (message.FinishCause, bool) {
	if !c.finished.Load() {
		return 0, false
	}
	return message.FinishCause(c.finishCause.Load()), true
}
