// Package transport binds the worker's fixed tick schedule to a real
// reliable-UDP engine. It owns the UDP socket and a raw KCP ARQ state
// machine and exposes exactly the primitives the worker loop needs: queue a
// message for reliable delivery, drain whatever has been reassembled, and
// advance the protocol clock with one blocking socket read per tick.
package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"
	"golang.org/x/sys/unix"

	"github.com/FenQiDian/point-set-client/internal/neterr"
)

const (
	// Mtu bounds a single KCP segment; chosen to keep a full-size UDP
	// datagram under common path MTUs after IP/UDP/KCP headers.
	Mtu = 470
	// Window is both the KCP send/receive window size and the WaitSnd
	// threshold past which Send reports the peer unresponsive.
	Window = 256
	// Interval is the protocol tick, matching the worker's own cadence.
	Interval = 10 * time.Millisecond

	socketBufBytes = 4 << 20
)

// Transport wraps one UDP socket and one KCP session for a single peer.
type Transport struct {
	conn net.PacketConn
	peer net.Addr
	kcp  *kcp.KCP

	outbox [][]byte // pending datagrams staged by kcp's output callback
}

// Dial opens a UDP socket to addr and constructs a KCP session over it with
// conv as the session identifier. Socket buffers are raised via
// SO_RCVBUF/SO_SNDBUF the same way a server tuning a listening socket would.
func Dial(addr string, conv uint32) (*Transport, error) {
	lc := net.ListenConfig{Control: tuneSocketBuffers}
	conn, err := lc.ListenPacket(context.Background(), "udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("%w: listen udp: %v", neterr.ErrIO, err)
	}
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: resolve %s: %v", neterr.ErrIO, addr, err)
	}

	return newTransport(conn, peer, conv), nil
}

func newTransport(conn net.PacketConn, peer net.Addr, conv uint32) *Transport {
	t := &Transport{conn: conn, peer: peer}
	t.kcp = kcp.NewKCP(conv, t.output)
	t.kcp.SetMtu(Mtu)
	t.kcp.NoDelay(1, int(Interval/time.Millisecond), 2, 1)
	t.kcp.WndSize(Window, Window)
	return t
}

func tuneSocketBuffers(_, _ string, c syscall.RawConn) error {
	var ctlErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufBytes); e != nil {
			ctlErr = e
			return
		}
		ctlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufBytes)
	})
	if err != nil {
		return err
	}
	return ctlErr
}

// output is KCP's callback for bytes ready to go out on the wire. KCP may
// call it several times per Update/flush; we stage everything and write it
// out in one pass from UpdateUDP so a single read deadline covers both
// directions of one tick.
func (t *Transport) output(buf []byte, size int) {
	cp := append([]byte(nil), buf[:size]...)
	t.outbox = append(t.outbox, cp)
}

// Send queues bytes for reliable delivery. It reports ErrWindowExhausted
// instead of letting KCP's send queue grow without bound when the peer
// isn't acking fast enough.
func (t *Transport) Send(b []byte) error {
	if t.kcp.WaitSnd() > Window {
		return fmt.Errorf("%w: %d unacked segments", neterr.ErrWindowExhausted, t.kcp.WaitSnd())
	}
	if ret := t.kcp.Send(b); ret < 0 {
		return fmt.Errorf("%w: kcp send returned %d", neterr.ErrEngine, ret)
	}
	return nil
}

// Recv drains one reassembled message into buf, sized by the caller to at
// least the largest message the protocol can produce. It returns 0 when
// nothing is queued.
func (t *Transport) Recv(buf []byte) (int, error) {
	size := t.kcp.PeekSize()
	if size <= 0 {
		return 0, nil
	}
	if size > len(buf) {
		return 0, fmt.Errorf("%w: reassembled message %d bytes exceeds buffer %d", neterr.ErrPacketTooLong, size, len(buf))
	}
	n := t.kcp.Recv(buf)
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Update advances KCP's internal clock to nowMs without touching the
// socket. Call once per tick before UpdateUDP.
func (t *Transport) Update(nowMs uint32) {
	t.kcp.Update(nowMs)
}

// UpdateUDP performs this tick's single blocking socket read (bounded by
// deadline) feeding any datagram into KCP, then flushes whatever KCP staged
// via its output callback, including during the read itself.
func (t *Transport) UpdateUDP(deadline time.Time) error {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set read deadline: %v", neterr.ErrIO, err)
	}

	readBuf := make([]byte, 65536)
	n, _, err := t.conn.ReadFrom(readBuf)
	if err != nil {
		if !isTimeout(err) {
			return fmt.Errorf("%w: %v", neterr.ErrIO, err)
		}
	} else if n > 0 {
		t.kcp.Input(readBuf[:n], true, false)
	}

	return t.flush()
}

func (t *Transport) flush() error {
	for _, datagram := range t.outbox {
		if _, err := t.conn.WriteTo(datagram, t.peer); err != nil {
			t.outbox = t.outbox[:0]
			return fmt.Errorf("%w: %v", neterr.ErrIO, err)
		}
	}
	t.outbox = t.outbox[:0]
	return nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}
